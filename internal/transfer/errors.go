package transfer

import "github.com/pkg/errors"

// Sentinel error kinds for transfer failures. Every failure delivered to a
// completion callback wraps exactly one of these; callers classify with
// errors.Is.
var (
	// ErrPrecondition: the device subsystem was not initialized when the
	// source and destination device identities differ.
	ErrPrecondition = errors.New("precondition failure")

	// ErrTypeMismatch: source and destination element types disagree.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrShapeMismatch: source and destination logical shapes disagree.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrAllocation: the destination buffer could not be allocated.
	ErrAllocation = errors.New("allocation failure")

	// ErrInternal: an internal invariant was violated, such as a leaf
	// byte-size mismatch. Indicates an upstream shape-computation bug,
	// not a user error.
	ErrInternal = errors.New("internal invariant violation")

	// ErrEventInit: the definition event could not be initialized on the
	// destination device.
	ErrEventInit = errors.New("event initialization failure")
)
