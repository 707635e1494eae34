// Package ids provides session/trace id generation and a monotonic clock
// source. Components take these as dependencies so tests can pin time.
package ids

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique identifiers.
type Generator interface {
	NewID() string
}

// Clock supplies timestamps. Now is guaranteed non-decreasing.
type Clock interface {
	Now() time.Time
}

// UUIDGenerator issues random UUIDv4 strings.
type UUIDGenerator struct{}

// NewID returns a new UUID string.
func (UUIDGenerator) NewID() string { return uuid.New().String() }

// MonotonicClock wraps the wall clock and never steps backwards, even
// across NTP adjustments. Concurrent callers observe non-decreasing values.
type MonotonicClock struct {
	mu   sync.Mutex
	last time.Time
}

// NewMonotonicClock creates a monotonic clock source.
func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{}
}

// Now returns the current time, clamped to be >= any previously returned value.
func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	if !now.After(c.last) {
		now = c.last.Add(time.Nanosecond)
	}
	c.last = now
	return now
}

// FakeClock is a manually advanced clock for tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock creates a fake clock starting at t.
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t}
}

// Now returns the fake clock's current time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake clock forward by d.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
