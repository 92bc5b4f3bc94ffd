// Package workerpool bounds how many external calls a research run keeps in
// flight at once. One Limiter is created per request from
// max_parallel_searches and shared by every pipeline stage, so discovery and
// evidence gathering draw from the same budget.
package workerpool

import "context"

// Limiter is a slot-based concurrency bound. Acquire blocks until a slot is
// free or the context is done.
type Limiter struct {
	slots chan struct{}
}

// NewLimiter creates a limiter with n slots; n < 1 is coerced to 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{slots: make(chan struct{}, n)}
}

// Acquire takes a slot, or returns the context error if cancelled first.
func (l *Limiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot taken by Acquire.
func (l *Limiter) Release() {
	<-l.slots
}

// Do runs fn while holding a slot.
func (l *Limiter) Do(ctx context.Context, fn func() error) error {
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// InFlight reports the number of currently held slots.
func (l *Limiter) InFlight() int { return len(l.slots) }
