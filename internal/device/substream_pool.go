package device

import (
	"sync"

	"github.com/pkg/errors"
)

// SubstreamPool manages a bounded set of auxiliary streams attached to a
// master stream. Transfers check a substream out for the duration of one
// copy and return it exactly once; bounding the pool avoids unbounded
// stream creation under memory-transfer pressure.
//
// Checkout and Return are safe under concurrent use from multiple
// simultaneous transfers.
type SubstreamPool struct {
	factory func() (Stream, error)

	available chan Stream
	mu        sync.Mutex
	total     int
	max       int
	closed    bool

	// Statistics
	checkouts uint64
	returns   uint64
	created   uint64
}

// NewSubstreamPool creates a pool that lazily creates up to max streams
// with factory.
func NewSubstreamPool(max int, factory func() (Stream, error)) (*SubstreamPool, error) {
	if max <= 0 {
		return nil, errors.Errorf("substream pool size must be positive, got %d", max)
	}
	if factory == nil {
		return nil, errors.New("substream pool requires a stream factory")
	}
	return &SubstreamPool{
		factory:   factory,
		available: make(chan Stream, max),
		max:       max,
	}, nil
}

// Checkout obtains an idle substream, creating a new one if the pool is
// under its limit. It fails when the pool is exhausted or closed.
func (p *SubstreamPool) Checkout() (Stream, error) {
	select {
	case s := <-p.available:
		p.mu.Lock()
		p.checkouts++
		p.mu.Unlock()
		return s, nil
	default:
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("substream pool is closed")
	}
	if p.total < p.max {
		s, err := p.factory()
		if err != nil {
			return nil, errors.Wrap(err, "creating substream")
		}
		p.total++
		p.created++
		p.checkouts++
		return s, nil
	}

	// At capacity; a concurrent Return may have raced the first receive.
	select {
	case s := <-p.available:
		p.checkouts++
		return s, nil
	default:
		return nil, errors.Errorf("no substreams available and pool is at capacity (%d)", p.max)
	}
}

// Return puts a checked-out substream back into the pool.
func (p *SubstreamPool) Return(s Stream) {
	if s == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	p.returns++
	p.mu.Unlock()
	if closed {
		return
	}
	select {
	case p.available <- s:
	default:
		// More returns than checkouts is a caller bug; drop rather than block.
	}
}

// Idle returns the number of substreams currently checked in.
func (p *SubstreamPool) Idle() int {
	return len(p.available)
}

// PoolStats is a snapshot of pool activity.
type PoolStats struct {
	Created   uint64
	Checkouts uint64
	Returns   uint64
	Idle      int
	Max       int
}

// Stats returns a snapshot of pool activity.
func (p *SubstreamPool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PoolStats{
		Created:   p.created,
		Checkouts: p.checkouts,
		Returns:   p.returns,
		Idle:      len(p.available),
		Max:       p.max,
	}
}

// Close marks the pool closed. Subsequent checkouts fail and returns are
// dropped.
func (p *SubstreamPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for {
		select {
		case <-p.available:
		default:
			return
		}
	}
}
