package testutil

import (
	"context"
	"sync"
	"time"
)

// StepClock is a manual clock for driver tests.
//
// Now returns a virtual instant that only moves when Advance or Sleep is
// called. Sleep never blocks: it advances the clock by d and records the
// request, so a periodic loop can be stepped without wall-clock delays.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type StepClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// Epoch is the instant a new StepClock starts at.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// NewStepClock creates a clock positioned at Epoch.
func NewStepClock() *StepClock {
	return &StepClock{now: Epoch}
}

// Now returns the current virtual instant.
func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d. Runners call it to simulate work.
func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Sleep records d and advances the clock by it. It returns ctx.Err() if the
// context is already done, without advancing.
func (c *StepClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

// Sleeps returns a copy of every duration passed to Sleep, in order.
func (c *StepClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Reset rewinds the clock to Epoch and forgets recorded sleeps.
func (c *StepClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = Epoch
	c.sleeps = nil
}
