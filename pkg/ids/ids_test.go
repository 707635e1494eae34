package ids

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGenerator_Unique(t *testing.T) {
	gen := UUIDGenerator{}
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := gen.NewID()
		require.NotEmpty(t, id)
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMonotonicClock_NeverStepsBack(t *testing.T) {
	clock := NewMonotonicClock()

	var mu sync.Mutex
	var stamps []time.Time
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				now := clock.Now()
				mu.Lock()
				stamps = append(stamps, now)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Per-call monotonicity: a second read is never earlier.
	prev := clock.Now()
	for i := 0; i < 100; i++ {
		now := clock.Now()
		assert.False(t, now.Before(prev), "clock stepped back")
		prev = now
	}
	require.NotEmpty(t, stamps)
}

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFakeClock(start)

	assert.Equal(t, start, clock.Now())
	clock.Advance(90 * time.Second)
	assert.Equal(t, start.Add(90*time.Second), clock.Now())
}
