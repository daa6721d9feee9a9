// Package sim implements an in-process simulated device runtime for the
// Weft transfer engine: bump-allocated device memory arenas, FIFO command
// streams backed by goroutines, events, and a transfer manager. It is the
// always-available runtime the test suite and the demo CLI run on.
package sim

import (
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
)

var arenaIDs atomic.Uint64

// arena is a fixed-capacity device memory space. Allocation is a bump
// pointer; the simulation never frees. The fixed capacity keeps Bytes
// views stable and makes allocation failure reachable in tests.
type arena struct {
	id   uint64
	mu   sync.Mutex
	data []byte
	next int
}

func newArena(capacity int) *arena {
	return &arena{
		id:   arenaIDs.Add(1),
		data: make([]byte, capacity),
	}
}

func (a *arena) allocate(size int) (*Memory, error) {
	if size < 0 {
		return nil, errors.Errorf("sim: negative allocation size %d", size)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.next+size > len(a.data) {
		return nil, errors.Errorf("sim: out of device memory: want %d bytes, %d of %d in use",
			size, a.next, len(a.data))
	}
	m := &Memory{a: a, off: a.next, size: size}
	a.next += size
	return m, nil
}

// Memory is a region of simulated device memory.
type Memory struct {
	a    *arena
	off  int
	size int
}

// Size returns the region size in bytes.
func (m *Memory) Size() int {
	return m.size
}

// Address returns the simulated device address: arena id in the high bits,
// byte offset in the low bits, unique across devices.
func (m *Memory) Address() uint64 {
	return m.a.id<<32 | uint64(m.off)
}

// Bytes returns the host view of the region. Reading it is only valid
// once the writes that defined the region have completed.
func (m *Memory) Bytes() []byte {
	return m.a.data[m.off : m.off+m.size]
}
