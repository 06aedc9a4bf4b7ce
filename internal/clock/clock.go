package clock

import (
	"sync"
	"time"
)

// Clock supplies "now" to all duration math. Every computation pass reads it
// exactly once so that bucket totals derived from open intervals agree with
// the session total within that pass.
type Clock interface {
	Now() time.Time
}

// systemClock wraps the wall clock with a monotonic non-decreasing guard.
type systemClock struct {
	mu   sync.Mutex
	last time.Time
}

// System returns a Clock backed by the wall clock. Consecutive calls never
// go backwards, even across NTP adjustments.
func System() Clock {
	return &systemClock{}
}

func (c *systemClock) Now() time.Time {
	now := time.Now().UTC()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.last) {
		return c.last
	}
	c.last = now
	return now
}

// Manual is a hand-driven Clock for tests.
type Manual struct {
	mu sync.Mutex
	t  time.Time
}

// NewManual returns a Manual clock starting at t.
func NewManual(t time.Time) *Manual {
	return &Manual{t: t}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.t
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = m.t.Add(d)
}

// Set jumps the clock to t.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.t = t
}
