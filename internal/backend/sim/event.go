package sim

import "sync"

// Event is a one-shot synchronization token. It becomes signaled when the
// stream it was recorded on reaches the record point, and stays signaled.
type Event struct {
	ch   chan struct{}
	once sync.Once
}

func newEvent() *Event {
	return &Event{ch: make(chan struct{})}
}

func (e *Event) signal() {
	e.once.Do(func() { close(e.ch) })
}

func (e *Event) wait() {
	<-e.ch
}

// Signaled reports whether the record point has been reached.
func (e *Event) Signaled() bool {
	select {
	case <-e.ch:
		return true
	default:
		return false
	}
}
