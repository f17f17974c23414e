// Package buffer accumulates items per slot and decides when they are due
// for a flush.
package buffer

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Trigger decides whether pending items are due for a flush. A flush is due
// when the number of pending items reaches maxSize or when interval has
// elapsed since the last flush, whichever comes first. Nothing is ever due
// while no items are pending.
//
// Trigger is not safe for concurrent use; owners guard it with their own lock.
type Trigger struct {
	maxSize  int
	interval time.Duration
	clock    clockwork.Clock
	last     time.Time
}

// NewTrigger creates a Trigger. A maxSize of zero or less disables the size
// trigger and an interval of zero or less disables the time trigger.
// A nil clock uses the wall clock.
func NewTrigger(maxSize int, interval time.Duration, clock clockwork.Clock) *Trigger {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Trigger{
		maxSize:  maxSize,
		interval: interval,
		clock:    clock,
		last:     clock.Now(),
	}
}

// Due reports whether n pending items should be flushed now.
func (t *Trigger) Due(n int) bool {
	if n <= 0 {
		return false
	}
	if t.maxSize > 0 && n >= t.maxSize {
		return true
	}
	return t.interval > 0 && t.clock.Since(t.last) >= t.interval
}

// Reset marks a flush as having happened now.
func (t *Trigger) Reset() {
	t.last = t.clock.Now()
}

// Interval returns the configured flush interval.
func (t *Trigger) Interval() time.Duration {
	return t.interval
}

// MaxSize returns the configured size threshold.
func (t *Trigger) MaxSize() int {
	return t.maxSize
}
