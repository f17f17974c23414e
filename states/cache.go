// Package states caches the per-fingerprint crawl state of a frontier and
// writes local changes back to the store in bulk.
package states

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/buffer"
	"github.com/fwojciec/hcf/retry"
)

// pending is a locally set value awaiting write-back.
type pending[V any] struct {
	value V
	data  []byte
}

// Cache is an in-memory view of a frontier's states with write-back to the
// store. Values set locally are served from memory and written on Flush.
// It is safe for concurrent use by multiple goroutines.
type Cache[V any] struct {
	store    hcf.StateStore
	frontier hcf.Frontier
	codec    Codec[V]
	opts     options

	mu       sync.Mutex
	entries  entries[V]
	dirty    map[hcf.Fingerprint]pending[V]
	inflight map[hcf.Fingerprint]pending[V]
	trigger  *buffer.Trigger

	// flushMu serializes flushes.
	flushMu sync.Mutex

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewCache creates a Cache. A nil codec stores values as JSON.
func NewCache[V any](store hcf.StateStore, frontier hcf.Frontier, codec Codec[V], opts ...Option) (*Cache[V], error) {
	if err := frontier.Validate(); err != nil {
		return nil, err
	}
	if codec == nil {
		codec = JSONCodec[V]{}
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.fetchChunk <= 0 || o.writeChunk <= 0 {
		return nil, hcf.Errorf(hcf.ECONFIG, "fetch and write chunk sizes must be positive")
	}
	e, err := newEntries[V](o.sizeLimit)
	if err != nil {
		return nil, err
	}
	return &Cache[V]{
		store:    store,
		frontier: frontier,
		codec:    codec,
		opts:     o,
		entries:  e,
		dirty:    make(map[hcf.Fingerprint]pending[V]),
		trigger:  buffer.NewTrigger(o.maxDirty, o.flushInterval, o.clock),
	}, nil
}

// Get returns the state of fp. On a miss the state is fetched from the
// store. Found values are cached; absent ones are asked for again next time.
func (c *Cache[V]) Get(ctx context.Context, fp hcf.Fingerprint) (V, bool, error) {
	if v, ok := c.lookup(fp); ok {
		return v, true, nil
	}
	if err := c.fetch(ctx, []hcf.Fingerprint{fp}); err != nil {
		var zero V
		return zero, false, err
	}
	v, ok := c.lookup(fp)
	return v, ok, nil
}

func (c *Cache[V]) lookup(fp hcf.Fingerprint) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.dirty[fp]; ok {
		return p.value, true
	}
	if p, ok := c.inflight[fp]; ok {
		return p.value, true
	}
	return c.entries.Get(fp)
}

// Fetch loads the states of every uncached fingerprint from the store,
// including fingerprints an earlier fetch found absent.
func (c *Cache[V]) Fetch(ctx context.Context, fps []hcf.Fingerprint) error {
	c.mu.Lock()
	missing := make([]hcf.Fingerprint, 0, len(fps))
	seen := make(map[hcf.Fingerprint]struct{}, len(fps))
	for _, fp := range fps {
		if _, ok := seen[fp]; ok {
			continue
		}
		seen[fp] = struct{}{}
		if c.cachedLocked(fp) {
			continue
		}
		missing = append(missing, fp)
	}
	c.mu.Unlock()
	return c.fetch(ctx, missing)
}

func (c *Cache[V]) cachedLocked(fp hcf.Fingerprint) bool {
	if _, ok := c.dirty[fp]; ok {
		return true
	}
	if _, ok := c.inflight[fp]; ok {
		return true
	}
	return c.entries.Contains(fp)
}

func (c *Cache[V]) fetch(ctx context.Context, fps []hcf.Fingerprint) error {
	for chunk := range slices.Chunk(fps, c.opts.fetchChunk) {
		var got map[hcf.Fingerprint][]byte
		err := retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
			var err error
			got, err = c.store.GetStates(ctx, c.frontier, chunk)
			return err
		}, c.notify("get states"))
		if err != nil {
			return fmt.Errorf("fetch states: %w", err)
		}

		fetched := make(map[hcf.Fingerprint]V, len(got))
		for fp, data := range got {
			v, err := c.codec.Decode(data)
			if err != nil {
				return fmt.Errorf("fetch state %s: %w", fp, err)
			}
			fetched[fp] = v
		}

		c.mu.Lock()
		for fp, v := range fetched {
			// A local value set meanwhile is newer than the fetched one.
			if c.cachedLocked(fp) {
				continue
			}
			c.entries.Add(fp, v)
		}
		c.mu.Unlock()
		c.opts.logger.Debug("fetched states", "keys", len(chunk), "found", len(got))
	}
	return nil
}

// Set stores v as the state of fp and marks it for write-back. It reports
// whether enough dirty entries accumulated for a flush to be due.
func (c *Cache[V]) Set(fp hcf.Fingerprint, v V) (bool, error) {
	if fp == "" {
		return false, hcf.Errorf(hcf.EINVALID, "empty fingerprint")
	}
	data, err := c.codec.Encode(v)
	if err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty[fp] = pending[V]{value: v, data: data}
	c.entries.Add(fp, v)
	return c.trigger.Due(len(c.dirty)), nil
}

// Flush writes every dirty entry to the store. Entries that could not be
// written stay dirty for the next flush and are listed in the returned
// *hcf.DataLossError.
func (c *Cache[V]) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()

	c.mu.Lock()
	batch := c.dirty
	c.dirty = make(map[hcf.Fingerprint]pending[V])
	c.inflight = batch
	c.trigger.Reset()
	c.mu.Unlock()

	if len(batch) == 0 {
		c.finishFlush(nil)
		return nil
	}

	begin := c.opts.clock.Now()
	keys := slices.Sorted(maps.Keys(batch))
	for i, chunk := range chunks(keys, c.opts.writeChunk) {
		data := make(map[hcf.Fingerprint][]byte, len(chunk))
		for _, fp := range chunk {
			data[fp] = batch[fp].data
		}
		err := retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
			return c.store.SetStates(ctx, c.frontier, data)
		}, c.notify("set states"))
		if err != nil {
			unwritten := keys[i*c.opts.writeChunk:]
			lost := c.finishFlush(unwritten)
			c.opts.logger.Warn("states flush failed, entries kept dirty",
				"entries", len(lost),
				"err", err,
			)
			return &hcf.DataLossError{States: lost, Err: err}
		}
	}

	c.finishFlush(nil)
	c.opts.logger.Debug("states flushed",
		"entries", len(keys),
		"duration", c.opts.clock.Since(begin),
	)
	return nil
}

// finishFlush ends a flush, moving the unwritten in-flight entries back to
// the dirty set unless they were set again meanwhile. It returns the
// encoded unwritten entries.
func (c *Cache[V]) finishFlush(unwritten []hcf.Fingerprint) map[hcf.Fingerprint][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	lost := make(map[hcf.Fingerprint][]byte, len(unwritten))
	for _, fp := range unwritten {
		p := c.inflight[fp]
		lost[fp] = p.data
		if _, newer := c.dirty[fp]; !newer {
			c.dirty[fp] = p
		}
	}
	c.inflight = nil
	return lost
}

func chunks(keys []hcf.Fingerprint, n int) [][]hcf.Fingerprint {
	return slices.Collect(slices.Chunk(keys, n))
}

// Clear drops every clean cached entry. Dirty entries are kept.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Purge()
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

// Dirty returns the number of entries awaiting write-back.
func (c *Cache[V]) Dirty() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.dirty) + len(c.inflight)
}

// Start optionally deletes the stored states of the frontier and starts the
// background loop that flushes dirty entries when a flush is due.
func (c *Cache[V]) Start(ctx context.Context) error {
	c.runMu.Lock()
	defer c.runMu.Unlock()
	if c.cancel != nil {
		return hcf.Errorf(hcf.EINVALID, "states cache already started")
	}

	if c.opts.cleanupOnStart {
		err := retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
			return c.store.DeleteStates(ctx, c.frontier)
		}, c.notify("delete states"))
		if err != nil {
			return fmt.Errorf("cleanup on start: %w", err)
		}
		c.mu.Lock()
		c.entries.Purge()
		clear(c.dirty)
		c.mu.Unlock()
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(loopCtx, c.done)
	return nil
}

// Stop stops the background loop and flushes every dirty entry.
func (c *Cache[V]) Stop(ctx context.Context) error {
	c.runMu.Lock()
	cancel, done := c.cancel, c.done
	c.cancel, c.done = nil, nil
	c.runMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	return c.Flush(ctx)
}

func (c *Cache[V]) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := c.opts.clock.NewTicker(tickInterval(c.opts.flushInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			c.mu.Lock()
			due := c.trigger.Due(len(c.dirty))
			c.mu.Unlock()
			if !due {
				continue
			}
			if err := c.Flush(ctx); err != nil {
				c.opts.logger.Warn("background states flush failed", "err", err)
			}
		}
	}
}

func (c *Cache[V]) notify(op string) retry.NotifyFunc {
	return func(err error, attempt int, wait time.Duration) {
		c.opts.logger.Warn("store call failed, retrying",
			"op", op,
			"frontier", c.frontier.String(),
			"attempt", attempt,
			"wait", wait,
			"err", err,
		)
	}
}

func tickInterval(flushInterval time.Duration) time.Duration {
	if flushInterval <= 0 || flushInterval > time.Second {
		return time.Second
	}
	return flushInterval
}
