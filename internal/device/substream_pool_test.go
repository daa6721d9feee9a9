package device

import (
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStream is the minimal Stream used to exercise the pool; none of its
// stream operations are reachable from pool code.
type fakeStream struct {
	Stream
	id int
}

func newFakeFactory() (func() (Stream, error), *int) {
	var next int
	return func() (Stream, error) {
		next++
		return &fakeStream{id: next}, nil
	}, &next
}

func TestSubstreamPoolCheckoutReturn(t *testing.T) {
	factory, created := newFakeFactory()
	pool, err := NewSubstreamPool(2, factory)
	require.NoError(t, err)

	s1, err := pool.Checkout()
	require.NoError(t, err)
	s2, err := pool.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 2, *created)

	pool.Return(s1)
	pool.Return(s2)
	assert.Equal(t, 2, pool.Idle())

	// Further checkouts reuse pooled streams, no new creation.
	s3, err := pool.Checkout()
	require.NoError(t, err)
	assert.Equal(t, 2, *created)
	pool.Return(s3)
}

func TestSubstreamPoolExhaustion(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewSubstreamPool(1, factory)
	require.NoError(t, err)

	s, err := pool.Checkout()
	require.NoError(t, err)

	_, err = pool.Checkout()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at capacity")

	pool.Return(s)
	s2, err := pool.Checkout()
	require.NoError(t, err)
	assert.Same(t, s, s2)
}

func TestSubstreamPoolValidation(t *testing.T) {
	factory, _ := newFakeFactory()
	_, err := NewSubstreamPool(0, factory)
	assert.Error(t, err)
	_, err = NewSubstreamPool(4, nil)
	assert.Error(t, err)
}

func TestSubstreamPoolFactoryError(t *testing.T) {
	boom := errors.New("stream creation failed")
	pool, err := NewSubstreamPool(2, func() (Stream, error) { return nil, boom })
	require.NoError(t, err)

	_, err = pool.Checkout()
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestSubstreamPoolConcurrentConservation(t *testing.T) {
	const workers = 16
	const iterations = 200

	factory, _ := newFakeFactory()
	pool, err := NewSubstreamPool(4, factory)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < iterations; i++ {
				s, err := pool.Checkout()
				if err != nil {
					// Exhaustion under contention is expected; never lose
					// a stream we did not get.
					continue
				}
				pool.Return(s)
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	assert.Equal(t, stats.Checkouts, stats.Returns, "every checkout must be matched by one return")
	assert.LessOrEqual(t, stats.Created, uint64(4))
	assert.Equal(t, int(stats.Created), stats.Idle, "all created streams must be back in the pool")
}

func TestSubstreamPoolStats(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewSubstreamPool(3, factory)
	require.NoError(t, err)

	s, err := pool.Checkout()
	require.NoError(t, err)
	pool.Return(s)

	stats := pool.Stats()
	assert.Equal(t, uint64(1), stats.Created)
	assert.Equal(t, uint64(1), stats.Checkouts)
	assert.Equal(t, uint64(1), stats.Returns)
	assert.Equal(t, 1, stats.Idle)
	assert.Equal(t, 3, stats.Max)
}

func TestSubstreamPoolClose(t *testing.T) {
	factory, _ := newFakeFactory()
	pool, err := NewSubstreamPool(2, factory)
	require.NoError(t, err)

	s, err := pool.Checkout()
	require.NoError(t, err)

	pool.Close()
	_, err = pool.Checkout()
	assert.Error(t, err)

	// Returning after close is a no-op, not a panic.
	pool.Return(s)
	assert.Equal(t, 0, pool.Idle())
}
