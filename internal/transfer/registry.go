package transfer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/weft-ml/weft/internal/device"
	"github.com/weft-ml/weft/internal/tensor"
)

// CopyFn performs one device-to-device copy. Implementations report the
// outcome exclusively through done.
type CopyFn func(src, dst device.Device, srcCtx, dstCtx *Context,
	srcAttrs, dstAttrs AllocAttrs, input, output *tensor.Tensor,
	streamIndex int, done DoneFn)

var (
	registryMu sync.RWMutex
	registry   = make(map[[2]string]CopyFn)
)

// RegisterCopy registers fn as the copy function for transfers from
// srcKind devices to dstKind devices. Registering the same pair twice is a
// programmer error.
func RegisterCopy(srcKind, dstKind string, fn CopyFn) {
	registryMu.Lock()
	defer registryMu.Unlock()
	key := [2]string{srcKind, dstKind}
	if _, dup := registry[key]; dup {
		panic("transfer: duplicate copy registration for " + srcKind + "->" + dstKind)
	}
	registry[key] = fn
}

// LookupCopy returns the copy function registered for the device kind pair.
func LookupCopy(srcKind, dstKind string) (CopyFn, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	fn, ok := registry[[2]string{srcKind, dstKind}]
	if !ok {
		return nil, errors.Errorf("no copy function registered for %s->%s", srcKind, dstKind)
	}
	return fn, nil
}

// Copy dispatches a transfer to the copy function registered for the
// devices' kinds. Lookup failures are reported through done.
func Copy(src, dst device.Device, srcCtx, dstCtx *Context,
	srcAttrs, dstAttrs AllocAttrs, input, output *tensor.Tensor,
	streamIndex int, done DoneFn) {
	fn, err := LookupCopy(src.Kind(), dst.Kind())
	if err != nil {
		done(errors.Wrap(ErrPrecondition, err.Error()))
		return
	}
	fn(src, dst, srcCtx, dstCtx, srcAttrs, dstAttrs, input, output, streamIndex, done)
}
