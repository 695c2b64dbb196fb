package transfer

import (
	"sync"
	"sync/atomic"
)

// State is shared by reference between the coordinator, every part
// worker, and the progress monitor for the lifetime of one download.
// The byte counter is only ever touched atomically; the cancel flag
// flips false to true exactly once and never back.
type State struct {
	total      int64
	written    atomic.Int64
	cancelled  atomic.Bool
	cancelOnce sync.Once
	done       chan struct{}
}

func NewState(total int64) *State {
	return &State{
		total: total,
		done:  make(chan struct{}),
	}
}

func (s *State) Total() int64 {
	return s.total
}

func (s *State) Written() int64 {
	return s.written.Load()
}

// Add credits n downloaded bytes to the shared counter.
func (s *State) Add(n int64) {
	s.written.Add(n)
}

// Discard backs out credit for bytes that belonged to a failed attempt,
// so a re-fetched range is not double-counted.
func (s *State) Discard(n int64) {
	if n > 0 {
		s.written.Add(-n)
	}
}

// Cancel requests cooperative shutdown. Safe to call from any goroutine,
// any number of times.
func (s *State) Cancel() {
	s.cancelOnce.Do(func() {
		s.cancelled.Store(true)
		close(s.done)
	})
}

func (s *State) Cancelled() bool {
	return s.cancelled.Load()
}

// Done returns a channel closed on cancellation, for use in selects
// alongside timers and contexts.
func (s *State) Done() <-chan struct{} {
	return s.done
}
