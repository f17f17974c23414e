package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/bloom"
	"github.com/fwojciec/hcf/buffer"
	"github.com/fwojciec/hcf/retry"
	"github.com/fwojciec/hcf/slot"
	"golang.org/x/sync/errgroup"
)

// Producer buffers requests per slot and writes them to the store as batches.
// It is safe for concurrent use by multiple goroutines.
type Producer struct {
	store    hcf.QueueStore
	frontier hcf.Frontier
	router   *slot.Router
	opts     options
	dedupe   *bloom.Filter

	slots []*producerSlot
	kick  chan int

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running atomic.Bool
}

// producerSlot holds the buffer and counters of one slot. flushMu keeps
// flushes of the slot in write order.
type producerSlot struct {
	name     string
	buf      *buffer.Buffer[hcf.Request]
	flushMu  sync.Mutex
	enqueued atomic.Int64
	flushed  atomic.Int64
}

// NewProducer creates a Producer writing to the slots of router.
func NewProducer(store hcf.QueueStore, frontier hcf.Frontier, router *slot.Router, opts ...Option) (*Producer, error) {
	if err := frontier.Validate(); err != nil {
		return nil, err
	}
	if router == nil {
		return nil, hcf.Errorf(hcf.ECONFIG, "slot router required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.batchSize < 0 || o.flushInterval < 0 {
		return nil, hcf.Errorf(hcf.ECONFIG, "batch size and flush interval must not be negative")
	}
	if o.concurrency <= 0 {
		o.concurrency = router.Count()
	}

	p := &Producer{
		store:    store,
		frontier: frontier,
		router:   router,
		opts:     o,
		slots:    make([]*producerSlot, router.Count()),
		kick:     make(chan int, router.Count()),
	}
	for i := range p.slots {
		p.slots[i] = &producerSlot{
			name: router.Name(i),
			buf:  buffer.New[hcf.Request](o.batchSize, o.flushInterval, o.clock),
		}
	}
	if o.dedupeN > 0 {
		p.dedupe = bloom.NewFilter(o.dedupeN, o.dedupeRate)
	}
	return p, nil
}

// Start optionally cleans up the frontier's slots and starts the background
// loop that flushes slots whose flush interval has elapsed.
func (p *Producer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return hcf.Errorf(hcf.EINVALID, "producer already started")
	}

	if p.opts.cleanupOnStart {
		if err := Cleanup(ctx, p.store, p.frontier, p.router.Names(), p.opts.policy); err != nil {
			return fmt.Errorf("cleanup on start: %w", err)
		}
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel
	p.done = make(chan struct{})
	p.running.Store(true)
	go p.run(loopCtx, p.done)
	return nil
}

// Stop stops the background loop and flushes every pending request.
// Requests that could not be written are returned in *hcf.DataLossError
// values joined into the result.
func (p *Producer) Stop(ctx context.Context) error {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		p.running.Store(false)
		cancel()
		<-done
	}
	return p.FlushAll(ctx)
}

// Enqueue buffers a request in the slot its fingerprint routes to.
// It returns false when the fingerprint was suppressed as a duplicate.
// When the slot becomes due it is flushed inline, unless asynchronous
// flushing is enabled and the background loop is running. An inline flush
// that fails returns the undelivered batch in an *hcf.DataLossError.
func (p *Producer) Enqueue(ctx context.Context, req hcf.Request) (bool, error) {
	if err := req.Validate(); err != nil {
		return false, err
	}
	if p.dedupe != nil && p.dedupe.TestAndAdd(req.Fingerprint) {
		p.opts.logger.Debug("duplicate fingerprint suppressed", "fp", req.Fingerprint)
		return false, nil
	}

	i := p.router.Slot(req.Fingerprint)
	s := p.slots[i]
	s.enqueued.Add(1)
	if !s.buf.Add(req) {
		return true, nil
	}

	if p.opts.async && p.running.Load() {
		select {
		case p.kick <- i:
		default:
		}
		return true, nil
	}
	return true, p.flushSlot(ctx, s, false)
}

// FlushAll writes the pending requests of every slot, flushing slots in
// parallel. Errors of individual slots are joined.
func (p *Producer) FlushAll(ctx context.Context) error {
	return p.flushSlots(ctx, func(*producerSlot) bool { return true }, false)
}

// ProducerStats reports per-slot counters of a Producer.
type ProducerStats struct {
	Enqueued int64
	Pending  int
	Flushed  int64
	Slots    map[string]SlotStats
}

// SlotStats reports the counters of one slot.
type SlotStats struct {
	Enqueued int64
	Pending  int
	Flushed  int64
}

// Stats returns the number of requests enqueued, still pending and the
// number of batches flushed, in total and per slot.
func (p *Producer) Stats() ProducerStats {
	stats := ProducerStats{Slots: make(map[string]SlotStats, len(p.slots))}
	for _, s := range p.slots {
		ss := SlotStats{
			Enqueued: s.enqueued.Load(),
			Pending:  s.buf.Len(),
			Flushed:  s.flushed.Load(),
		}
		stats.Slots[s.name] = ss
		stats.Enqueued += ss.Enqueued
		stats.Pending += ss.Pending
		stats.Flushed += ss.Flushed
	}
	return stats
}

func (p *Producer) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := p.opts.clock.NewTicker(tickInterval(p.opts.flushInterval))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := p.flushSlots(ctx, func(s *producerSlot) bool { return s.buf.Due() }, true); err != nil {
				p.opts.logger.Warn("background flush failed", "err", err)
			}
		case i := <-p.kick:
			if err := p.flushSlot(ctx, p.slots[i], true); err != nil {
				p.opts.logger.Warn("background flush failed", "slot", p.slots[i].name, "err", err)
			}
		}
	}
}

func (p *Producer) flushSlots(ctx context.Context, want func(*producerSlot) bool, requeue bool) error {
	errs := make([]error, len(p.slots))
	var g errgroup.Group
	g.SetLimit(p.opts.concurrency)
	for i, s := range p.slots {
		if !want(s) {
			continue
		}
		g.Go(func() error {
			errs[i] = p.flushSlot(ctx, s, requeue)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// flushSlot drains the slot and writes the drained requests as one batch.
// On failure the requests are put back into the buffer when requeue is set,
// otherwise they are returned to the caller in an *hcf.DataLossError.
func (p *Producer) flushSlot(ctx context.Context, s *producerSlot, requeue bool) error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	items := s.buf.Drain()
	if len(items) == 0 {
		return nil
	}

	begin := p.opts.clock.Now()
	var id string
	err := retry.Do(ctx, p.opts.policy, func(ctx context.Context) error {
		var err error
		id, err = p.store.WriteBatch(ctx, p.frontier, s.name, items)
		return err
	}, retryNotify(p.opts.logger, "write batch", s.name))
	if err != nil {
		if requeue {
			s.buf.Requeue(items)
			p.opts.logger.Warn("batch requeued",
				"slot", s.name,
				"count", len(items),
				"err", err,
			)
			return fmt.Errorf("flush slot %s: %w", s.name, err)
		}
		return &hcf.DataLossError{Slot: s.name, Requests: items, Err: err}
	}

	s.flushed.Add(1)
	p.opts.logger.Debug("batch flushed",
		"slot", s.name,
		"id", id,
		"count", len(items),
		"duration", p.opts.clock.Since(begin),
	)
	return nil
}

// tickInterval returns how often the background loop checks for due slots.
func tickInterval(flushInterval time.Duration) time.Duration {
	if flushInterval <= 0 || flushInterval > time.Second {
		return time.Second
	}
	return flushInterval
}
