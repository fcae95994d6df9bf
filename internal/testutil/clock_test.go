package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClockSteps(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c := NewClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Peek())
	assert.Equal(t, start.Add(2*time.Second), c.Now())
}

func TestClockAdvance(t *testing.T) {
	start := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	c := NewClock(start, time.Second)

	c.Advance(2 * time.Hour)
	assert.Equal(t, start.Add(2*time.Hour), c.Now())
}

func TestClockConcurrentNowIsMonotonic(t *testing.T) {
	c := NewClock(time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC), time.Millisecond)

	const n = 100
	var wg sync.WaitGroup
	seen := make(chan time.Time, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seen <- c.Now()
		}()
	}
	wg.Wait()
	close(seen)

	unique := map[time.Time]bool{}
	for ts := range seen {
		assert.False(t, unique[ts], "duplicate timestamp %v", ts)
		unique[ts] = true
	}
	assert.Len(t, unique, n)
}
