package clock

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSystemClockNonDecreasing(t *testing.T) {
	c := System()

	prev := c.Now()
	for i := 0; i < 1000; i++ {
		now := c.Now()
		assert.False(t, now.Before(prev), "clock went backwards at iteration %d", i)
		prev = now
	}
}

func TestSystemClockConcurrent(t *testing.T) {
	c := System()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prev := c.Now()
			for j := 0; j < 200; j++ {
				now := c.Now()
				assert.False(t, now.Before(prev))
				prev = now
			}
		}()
	}
	wg.Wait()
}

func TestManualClock(t *testing.T) {
	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	m := NewManual(start)

	assert.Equal(t, start, m.Now())

	m.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), m.Now())

	jump := start.Add(8 * time.Hour)
	m.Set(jump)
	assert.Equal(t, jump, m.Now())
}
