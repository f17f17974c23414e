package buffer_test

import (
	"sync"
	"testing"
	"time"

	"github.com/fwojciec/hcf/buffer"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_Add(t *testing.T) {
	t.Parallel()

	t.Run("reports flush due on reaching max size", func(t *testing.T) {
		t.Parallel()

		b := buffer.New[int](3, time.Hour, clockwork.NewFakeClock())

		assert.False(t, b.Add(1))
		assert.False(t, b.Add(2))
		assert.True(t, b.Add(3))
		assert.Equal(t, 3, b.Len())
	})

	t.Run("reports flush due once interval elapsed", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		b := buffer.New[int](1000, time.Second, clock)

		assert.False(t, b.Add(1))
		assert.False(t, b.Due())

		clock.Advance(time.Second)
		assert.True(t, b.Due())
	})

	t.Run("accepts several items at once", func(t *testing.T) {
		t.Parallel()

		b := buffer.New[string](2, 0, clockwork.NewFakeClock())
		assert.True(t, b.Add("a", "b", "c"))
		assert.Equal(t, []string{"a", "b", "c"}, b.Drain())
	})
}

func TestBuffer_Due(t *testing.T) {
	t.Parallel()

	t.Run("empty buffer is never due", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		b := buffer.New[int](1, time.Second, clock)

		clock.Advance(time.Hour)
		assert.False(t, b.Due())
	})

	t.Run("disabled triggers never fire", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		b := buffer.New[int](0, 0, clock)

		for i := range 100 {
			assert.False(t, b.Add(i))
		}
		clock.Advance(24 * time.Hour)
		assert.False(t, b.Due())
	})
}

func TestBuffer_Drain(t *testing.T) {
	t.Parallel()

	t.Run("returns pending items and resets timer", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		b := buffer.New[int](100, time.Second, clock)
		b.Add(1, 2)
		clock.Advance(time.Second)
		require.True(t, b.Due())

		assert.Equal(t, []int{1, 2}, b.Drain())
		assert.Equal(t, 0, b.Len())

		b.Add(3)
		assert.False(t, b.Due(), "timer restarts on drain")
		clock.Advance(time.Second)
		assert.True(t, b.Due())
	})

	t.Run("returns nil when empty", func(t *testing.T) {
		t.Parallel()

		b := buffer.New[int](10, time.Second, nil)
		assert.Empty(t, b.Drain())
	})

	t.Run("concurrent add and drain lose and duplicate nothing", func(t *testing.T) {
		t.Parallel()

		const (
			writers   = 8
			perWriter = 1000
		)
		b := buffer.New[int](0, 0, nil)

		var (
			mu      sync.Mutex
			drained []int
			wg      sync.WaitGroup
		)
		done := make(chan struct{})
		var drainer sync.WaitGroup
		drainer.Add(1)
		go func() {
			defer drainer.Done()
			for {
				items := b.Drain()
				mu.Lock()
				drained = append(drained, items...)
				mu.Unlock()
				select {
				case <-done:
					return
				default:
				}
			}
		}()

		wg.Add(writers)
		for w := range writers {
			go func(w int) {
				defer wg.Done()
				for i := range perWriter {
					b.Add(w*perWriter + i)
				}
			}(w)
		}
		wg.Wait()
		close(done)
		drainer.Wait()
		drained = append(drained, b.Drain()...)

		require.Len(t, drained, writers*perWriter)
		seen := make(map[int]bool, len(drained))
		for _, v := range drained {
			assert.False(t, seen[v], "item %d drained twice", v)
			seen[v] = true
		}
	})
}

func TestBuffer_Requeue(t *testing.T) {
	t.Parallel()

	b := buffer.New[int](0, 0, nil)
	b.Add(1, 2)
	drained := b.Drain()
	b.Add(3)

	b.Requeue(drained)

	assert.Equal(t, []int{1, 2, 3}, b.Drain())
}

func TestTrigger(t *testing.T) {
	t.Parallel()

	clock := clockwork.NewFakeClock()
	tr := buffer.NewTrigger(5, time.Minute, clock)

	assert.Equal(t, 5, tr.MaxSize())
	assert.Equal(t, time.Minute, tr.Interval())
	assert.False(t, tr.Due(0))
	assert.False(t, tr.Due(4))
	assert.True(t, tr.Due(5))

	clock.Advance(time.Minute)
	assert.True(t, tr.Due(1))
	tr.Reset()
	assert.False(t, tr.Due(1))
}
