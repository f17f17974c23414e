package buffer

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Buffer holds the pending items of one slot.
// It is safe for concurrent use by multiple goroutines.
type Buffer[T any] struct {
	mu      sync.Mutex
	items   []T
	trigger *Trigger
}

// New creates a Buffer that is due for a flush once it holds maxSize items
// or once interval has passed since the last drain.
func New[T any](maxSize int, interval time.Duration, clock clockwork.Clock) *Buffer[T] {
	return &Buffer[T]{trigger: NewTrigger(maxSize, interval, clock)}
}

// Add appends items and reports whether the buffer is now due for a flush.
func (b *Buffer[T]) Add(items ...T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, items...)
	return b.trigger.Due(len(b.items))
}

// Due reports whether the buffer is due for a flush.
func (b *Buffer[T]) Due() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.trigger.Due(len(b.items))
}

// Drain removes and returns all pending items and restarts the flush timer.
// Items added after Drain returns start a fresh pending sequence.
func (b *Buffer[T]) Drain() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	items := b.items
	b.items = nil
	b.trigger.Reset()
	return items
}

// Requeue puts previously drained items back in front of the pending items.
// The flush timer is not reset.
func (b *Buffer[T]) Requeue(items []T) {
	if len(items) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	merged := make([]T, 0, len(items)+len(b.items))
	merged = append(merged, items...)
	b.items = append(merged, b.items...)
}

// Len returns the number of pending items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
