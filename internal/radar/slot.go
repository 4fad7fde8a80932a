package radar

import (
	"context"
	"sync"
	"time"
)

// Slot is a write-once cell. The scan goroutine fills it, the orchestrator reads it.
type Slot struct {
	once sync.Once
	done chan struct{}
	out  Output
	err  error
}

// NewSlot returns an empty slot.
func NewSlot() *Slot {
	return &Slot{done: make(chan struct{})}
}

// Set stores the result. Only the first call has an effect; it reports whether it won.
func (s *Slot) Set(out Output, err error) bool {
	won := false
	s.once.Do(func() {
		s.out, s.err = out, err
		close(s.done)
		won = true
	})
	return won
}

// Done is closed once the slot is filled.
func (s *Slot) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the slot is filled, the timeout passes or ctx ends.
// ok is false when no value arrived in time.
func (s *Slot) Wait(ctx context.Context, timeout time.Duration) (out Output, ok bool, err error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return s.out, true, s.err
	case <-timer.C:
		return Output{}, false, nil
	case <-ctx.Done():
		return Output{}, false, nil
	}
}
