package states_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/memory"
	"github.com/fwojciec/hcf/mock"
	"github.com/fwojciec/hcf/retry"
	"github.com/fwojciec/hcf/states"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frontier = hcf.Frontier{Project: "123", Name: "test-frontier"}

var fastRetry = retry.Policy{
	MaxAttempts:     2,
	InitialInterval: time.Millisecond,
	MaxInterval:     time.Millisecond,
}

// countingStore counts the state reads that reach the wrapped store.
type countingStore struct {
	*memory.Store
	gets atomic.Int32
}

func (s *countingStore) GetStates(ctx context.Context, f hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
	s.gets.Add(1)
	return s.Store.GetStates(ctx, f, keys)
}

func newCache(t *testing.T, store hcf.StateStore, opts ...states.Option) *states.Cache[string] {
	t.Helper()
	opts = append([]states.Option{states.WithClock(clockwork.NewFakeClock())}, opts...)
	c, err := states.NewCache[string](store, frontier, nil, opts...)
	require.NoError(t, err)
	return c
}

func TestNewCache(t *testing.T) {
	t.Parallel()

	_, err := states.NewCache[string](memory.NewStore(), hcf.Frontier{Project: "1"}, nil)
	assert.Equal(t, hcf.ECONFIG, hcf.ErrorCode(err))

	_, err = states.NewCache[string](memory.NewStore(), frontier, nil, states.WithFetchChunk(0))
	assert.Equal(t, hcf.ECONFIG, hcf.ErrorCode(err))
}

func TestCache_Get(t *testing.T) {
	t.Parallel()

	t.Run("serves a set value without a remote call", func(t *testing.T) {
		t.Parallel()

		store := &countingStore{Store: memory.NewStore()}
		c := newCache(t, store)

		_, err := c.Set("fp", "seen")
		require.NoError(t, err)

		v, ok, err := c.Get(context.Background(), "fp")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "seen", v)
		assert.Equal(t, int32(0), store.gets.Load())
	})

	t.Run("fetches flushed values in a fresh cache", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := &countingStore{Store: memory.NewStore()}
		c := newCache(t, store)
		_, err := c.Set("fp", "seen")
		require.NoError(t, err)
		require.NoError(t, c.Flush(ctx))

		fresh := newCache(t, store)
		v, ok, err := fresh.Get(ctx, "fp")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "seen", v)
		assert.Equal(t, int32(1), store.gets.Load())
	})

	t.Run("asks the store again for absent states", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := &countingStore{Store: memory.NewStore()}
		c := newCache(t, store)

		for range 2 {
			_, ok, err := c.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)
		}
		assert.Equal(t, int32(2), store.gets.Load())
		assert.Equal(t, 0, c.Len())
	})

	t.Run("sees states written by another cache after a miss", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := memory.NewStore()
		a := newCache(t, store)
		b := newCache(t, store)

		_, ok, err := a.Get(ctx, "fp")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = b.Set("fp", "crawled")
		require.NoError(t, err)
		require.NoError(t, b.Flush(ctx))

		require.NoError(t, a.Fetch(ctx, []hcf.Fingerprint{"fp"}))
		v, ok, err := a.Get(ctx, "fp")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "crawled", v)
	})

	t.Run("refetches entries evicted from a bounded cache", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := &countingStore{Store: memory.NewStore()}
		require.NoError(t, store.SetStates(ctx, frontier, map[hcf.Fingerprint][]byte{
			"a": []byte(`"A"`),
			"b": []byte(`"B"`),
		}))
		c := newCache(t, store, states.WithSizeLimit(1))

		v, _, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "A", v)
		_, _, err = c.Get(ctx, "b")
		require.NoError(t, err)

		v, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "A", v)
		assert.Equal(t, int32(3), store.gets.Load())
	})

	t.Run("keeps dirty entries beyond the size limit", func(t *testing.T) {
		t.Parallel()

		store := &countingStore{Store: memory.NewStore()}
		c := newCache(t, store, states.WithSizeLimit(1))

		_, err := c.Set("a", "1")
		require.NoError(t, err)
		_, err = c.Set("b", "2")
		require.NoError(t, err)

		v, ok, err := c.Get(context.Background(), "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)
		assert.Equal(t, int32(0), store.gets.Load())
	})

	t.Run("does not cache failed fetches", func(t *testing.T) {
		t.Parallel()

		var calls atomic.Int32
		store := &mock.Store{
			GetStatesFn: func(context.Context, hcf.Frontier, []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
				if calls.Add(1) == 1 {
					return nil, hcf.Errorf(hcf.EFATAL, "forbidden")
				}
				return map[hcf.Fingerprint][]byte{"fp": []byte(`"ok"`)}, nil
			},
		}
		c := newCache(t, store, states.WithRetry(fastRetry))
		ctx := context.Background()

		_, _, err := c.Get(ctx, "fp")
		assert.Equal(t, hcf.EFATAL, hcf.ErrorCode(err))

		v, ok, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "ok", v)
	})
}

func TestCache_Fetch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{Store: memory.NewStore()}
	stored := make(map[hcf.Fingerprint][]byte)
	var fps []hcf.Fingerprint
	for i := range 70 {
		fp := hcf.Fingerprint(fmt.Sprintf("fp-%02d", i))
		fps = append(fps, fp)
		if i%2 == 0 {
			stored[fp] = []byte(`"crawled"`)
		}
	}
	require.NoError(t, store.SetStates(ctx, frontier, stored))

	c := newCache(t, store)
	_, err := c.Set("fp-00", "local")
	require.NoError(t, err)

	require.NoError(t, c.Fetch(ctx, fps))
	// 69 uncached keys in chunks of 32.
	assert.Equal(t, int32(3), store.gets.Load())

	v, ok, err := c.Get(ctx, "fp-00")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "local", v)

	v, ok, err = c.Get(ctx, "fp-02")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "crawled", v)
	assert.Equal(t, int32(3), store.gets.Load())
	assert.Equal(t, 35, c.Len())

	// Absent keys are not cached and are requested again.
	_, ok, err = c.Get(ctx, "fp-01")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, int32(4), store.gets.Load())
}

func TestCache_Set(t *testing.T) {
	t.Parallel()

	t.Run("reports flush due once max dirty is reached", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, memory.NewStore(), states.WithMaxDirty(2))

		due, err := c.Set("a", "1")
		require.NoError(t, err)
		assert.False(t, due)

		due, err = c.Set("b", "1")
		require.NoError(t, err)
		assert.True(t, due)
		assert.Equal(t, 2, c.Dirty())
	})

	t.Run("reports flush due once the interval elapsed", func(t *testing.T) {
		t.Parallel()

		clock := clockwork.NewFakeClock()
		c := newCache(t, memory.NewStore(), states.WithClock(clock), states.WithFlushInterval(time.Second))

		due, err := c.Set("a", "1")
		require.NoError(t, err)
		assert.False(t, due)

		clock.Advance(time.Second)
		due, err = c.Set("b", "1")
		require.NoError(t, err)
		assert.True(t, due)
	})

	t.Run("rejects empty fingerprint", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, memory.NewStore())
		_, err := c.Set("", "1")
		assert.Equal(t, hcf.EINVALID, hcf.ErrorCode(err))
	})
}

func TestCache_Flush(t *testing.T) {
	t.Parallel()

	t.Run("writes dirty entries in chunks", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		mem := memory.NewStore()
		var writes atomic.Int32
		store := &mock.Store{
			SetStatesFn: func(ctx context.Context, f hcf.Frontier, s map[hcf.Fingerprint][]byte) error {
				writes.Add(1)
				assert.LessOrEqual(t, len(s), 2)
				return mem.SetStates(ctx, f, s)
			},
		}
		c := newCache(t, store, states.WithWriteChunk(2))
		for _, fp := range []hcf.Fingerprint{"a", "b", "c"} {
			_, err := c.Set(fp, "v-"+string(fp))
			require.NoError(t, err)
		}

		require.NoError(t, c.Flush(ctx))
		assert.Equal(t, int32(2), writes.Load())
		assert.Equal(t, 0, c.Dirty())

		got, err := mem.GetStates(ctx, frontier, []hcf.Fingerprint{"a", "b", "c"})
		require.NoError(t, err)
		assert.JSONEq(t, `"v-c"`, string(got["c"]))
	})

	t.Run("keeps entries dirty when the write fails", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		mem := memory.NewStore()
		var fail atomic.Bool
		fail.Store(true)
		store := &mock.Store{
			SetStatesFn: func(ctx context.Context, f hcf.Frontier, s map[hcf.Fingerprint][]byte) error {
				if fail.Load() {
					return hcf.Errorf(hcf.ETRANSIENT, "unavailable")
				}
				return mem.SetStates(ctx, f, s)
			},
		}
		c := newCache(t, store, states.WithRetry(fastRetry))
		_, err := c.Set("a", "1")
		require.NoError(t, err)
		_, err = c.Set("b", "2")
		require.NoError(t, err)

		err = c.Flush(ctx)
		var dl *hcf.DataLossError
		require.ErrorAs(t, err, &dl)
		assert.Equal(t, []hcf.Fingerprint{"a", "b"}, dl.Keys())
		assert.Equal(t, 2, c.Dirty())

		v, ok, err := c.Get(ctx, "a")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "1", v)

		fail.Store(false)
		require.NoError(t, c.Flush(ctx))
		assert.Equal(t, 0, c.Dirty())
	})

	t.Run("does nothing without dirty entries", func(t *testing.T) {
		t.Parallel()

		c := newCache(t, &mock.Store{})
		assert.NoError(t, c.Flush(context.Background()))
	})
}

func TestCache_Clear(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &countingStore{Store: memory.NewStore()}
	c := newCache(t, store)

	_, _, err := c.Get(ctx, "clean")
	require.NoError(t, err)
	_, err = c.Set("dirty", "1")
	require.NoError(t, err)

	c.Clear()
	assert.Equal(t, 0, c.Len())

	v, ok, err := c.Get(ctx, "dirty")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "1", v)
	assert.Equal(t, int32(1), store.gets.Load())
}

func TestCache_Start(t *testing.T) {
	t.Parallel()

	t.Run("flushes in the background once the interval elapsed", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		clock := clockwork.NewFakeClock()
		store := memory.NewStore()
		c := newCache(t, store, states.WithClock(clock), states.WithFlushInterval(5*time.Second))
		require.NoError(t, c.Start(ctx))
		t.Cleanup(func() { _ = c.Stop(ctx) })

		_, err := c.Set("fp", "seen")
		require.NoError(t, err)

		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(5 * time.Second)

		assert.Eventually(t, func() bool { return c.Dirty() == 0 }, time.Second, 5*time.Millisecond)
		got, err := store.GetStates(ctx, frontier, []hcf.Fingerprint{"fp"})
		require.NoError(t, err)
		assert.JSONEq(t, `"seen"`, string(got["fp"]))
	})

	t.Run("deletes stored states when cleanup is enabled", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := memory.NewStore()
		require.NoError(t, store.SetStates(ctx, frontier, map[hcf.Fingerprint][]byte{"fp": []byte(`"old"`)}))

		c := newCache(t, store, states.WithCleanupOnStart())
		require.NoError(t, c.Start(ctx))
		t.Cleanup(func() { _ = c.Stop(ctx) })

		_, ok, err := c.Get(ctx, "fp")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("stop flushes dirty entries", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := memory.NewStore()
		c := newCache(t, store)
		require.NoError(t, c.Start(ctx))

		_, err := c.Set("fp", "seen")
		require.NoError(t, err)
		require.NoError(t, c.Stop(ctx))
		require.NoError(t, c.Stop(ctx))

		got, err := store.GetStates(ctx, frontier, []hcf.Fingerprint{"fp"})
		require.NoError(t, err)
		assert.Contains(t, got, hcf.Fingerprint("fp"))
	})
}

func TestCrawlStateCodec(t *testing.T) {
	t.Parallel()

	var codec states.CrawlStateCodec
	data, err := codec.Encode(hcf.Crawled)
	require.NoError(t, err)
	assert.JSONEq(t, `"crawled"`, string(data))

	s, err := codec.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, hcf.Crawled, s)

	s, err = codec.Decode([]byte(`3`))
	require.NoError(t, err)
	assert.Equal(t, hcf.Errored, s)

	_, err = codec.Decode([]byte(`{}`))
	assert.Equal(t, hcf.EINVALID, hcf.ErrorCode(err))
}
