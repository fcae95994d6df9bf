package testutil

import (
	"sync"
	"time"
)

// Clock is a thread-safe stepping time source for tests.
//
// Each call to Now advances the clock by one step, so code that stamps
// rows with successive times gets distinct, ordered timestamps without
// touching the wall clock. Pass Clock.Now as the engine's time source.
type Clock struct {
	mu   sync.Mutex
	at   time.Time
	step time.Duration
}

// NewClock creates a clock starting at the given instant.
//
// The first call to Now returns start; each later call returns the
// previous value advanced by step.
func NewClock(start time.Time, step time.Duration) *Clock {
	return &Clock{at: start, step: step}
}

// Now returns the current instant and advances the clock.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.at
	c.at = c.at.Add(c.step)
	return now
}

// Peek returns the instant the next Now call would return, without
// advancing.
func (c *Clock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at
}

// Advance moves the clock forward by d. Useful for aging rows past a
// retention window.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.at = c.at.Add(d)
}
