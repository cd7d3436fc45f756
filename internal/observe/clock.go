package observe

import (
	"sync"
	"time"
)

// Clock is a source of the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// ManualClock only moves when told to. Used to make timings deterministic.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock stopped at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Timing records when a unit of work started and completed.
type Timing struct {
	clock       Clock
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewTiming starts a timing on the given clock
func NewTiming(clock Clock) *Timing {
	return &Timing{
		clock:     clock,
		StartedAt: clock.Now(),
	}
}

// Complete records completion time
func (t *Timing) Complete() {
	t.CompletedAt = t.clock.Now()
}

// Duration returns the elapsed time, up to now if not completed
func (t *Timing) Duration() time.Duration {
	if t.CompletedAt.IsZero() {
		return t.clock.Now().Sub(t.StartedAt)
	}
	return t.CompletedAt.Sub(t.StartedAt)
}
