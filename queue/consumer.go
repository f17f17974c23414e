package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/retry"
)

// Delivery is the result of one Pull.
type Delivery struct {
	// Requests holds the requests of all pulled batches in batch order.
	Requests []hcf.Request
	// BatchIDs identifies the pulled batches for Ack.
	BatchIDs []string
}

// inflightBatch is a pulled batch that has not been deleted yet.
// redeliver is set when deleting it failed, making it eligible for the
// next Pull again.
type inflightBatch struct {
	slot      string
	count     int
	redeliver bool
}

// Consumer pulls batches from its slots and deletes them once acknowledged.
// It is safe for concurrent use by multiple goroutines.
type Consumer struct {
	store    hcf.QueueStore
	frontier hcf.Frontier
	slots    []string
	opts     options

	mu       sync.Mutex
	inflight map[string]*inflightBatch
}

// NewConsumer creates a Consumer reading the given slots in order.
func NewConsumer(store hcf.QueueStore, frontier hcf.Frontier, slots []string, opts ...Option) (*Consumer, error) {
	if err := frontier.Validate(); err != nil {
		return nil, err
	}
	if len(slots) == 0 {
		return nil, hcf.Errorf(hcf.ECONFIG, "consumer requires at least one slot")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.maxBatches < 0 {
		return nil, hcf.Errorf(hcf.ECONFIG, "max batches must not be negative")
	}
	return &Consumer{
		store:    store,
		frontier: frontier,
		slots:    slots,
		opts:     o,
		inflight: make(map[string]*inflightBatch),
	}, nil
}

// Start deletes the batches of the consumer's slots when cleanup on start
// is enabled.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.opts.cleanupOnStart {
		return nil
	}
	return c.Cleanup(ctx)
}

// Pull reads up to the configured number of batches from the consumer's
// slots and returns their requests. Batches pulled earlier and not yet
// acknowledged are skipped unless their deletion failed. Each slot is read
// repeatedly until a read yields no new batch or the cap is reached, so
// stores that return one page per read are drained as far as they allow.
//
// In AckOnPull mode every page is deleted before the next one is read. If
// a deletion fails, the delivery is returned together with the error and
// the failed batches will be delivered again.
//
// When a read fails after some batches were pulled, those batches are
// returned with the error; they stay in flight.
func (c *Consumer) Pull(ctx context.Context) (*Delivery, error) {
	var (
		pulled []*hcf.Batch
		err    error
	)
	for _, s := range c.slots {
		var batches []*hcf.Batch
		batches, err = c.pullSlot(ctx, s, len(pulled))
		pulled = append(pulled, batches...)
		if err != nil {
			break
		}
	}

	d := &Delivery{
		Requests: hcf.Requests(pulled),
		BatchIDs: make([]string, len(pulled)),
	}
	for i, b := range pulled {
		d.BatchIDs[i] = b.ID
	}
	c.opts.logger.Debug("pulled batches",
		"batches", len(pulled),
		"requests", len(d.Requests),
	)
	return d, err
}

// pullSlot reads the deliverable batches of one slot page by page. taken is
// the number of batches this Pull already collected from earlier slots.
func (c *Consumer) pullSlot(ctx context.Context, slot string, taken int) ([]*hcf.Batch, error) {
	var out []*hcf.Batch
	for {
		remaining := 0
		if c.opts.maxBatches > 0 {
			remaining = c.opts.maxBatches - taken - len(out)
			if remaining <= 0 {
				return out, nil
			}
		}
		page, err := c.read(ctx, slot, remaining)
		if err != nil {
			return out, fmt.Errorf("pull slot %s: %w", slot, err)
		}
		if len(page) == 0 {
			return out, nil
		}

		c.mu.Lock()
		for _, b := range page {
			c.inflight[b.ID] = &inflightBatch{slot: slot, count: len(b.Requests)}
		}
		c.mu.Unlock()
		out = append(out, page...)

		if c.opts.ackMode == AckOnPull {
			ids := make([]string, len(page))
			for i, b := range page {
				ids[i] = b.ID
			}
			// Failed batches are marked for redelivery; reading on would
			// return them again.
			if err := c.Ack(ctx, ids...); err != nil {
				return out, err
			}
		}
	}
}

// read returns up to remaining deliverable batches of the slot from one
// store read. A remaining of zero reads as many as the store returns.
func (c *Consumer) read(ctx context.Context, slot string, remaining int) ([]*hcf.Batch, error) {
	max := 0
	if remaining > 0 {
		max = remaining + c.held(slot)
	}

	var batches []*hcf.Batch
	err := retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
		var err error
		batches, err = c.store.ReadBatches(ctx, c.frontier, slot, max)
		return err
	}, retryNotify(c.opts.logger, "read batches", slot))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := batches[:0]
	for _, b := range batches {
		if ib, ok := c.inflight[b.ID]; ok && !ib.redeliver {
			continue
		}
		b.Slot = slot
		out = append(out, b)
	}
	if remaining > 0 && len(out) > remaining {
		out = out[:remaining]
	}
	return out, nil
}

// held returns the number of in-flight batches of the slot that Pull must skip.
func (c *Consumer) held(slot string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int
	for _, b := range c.inflight {
		if b.slot == slot && !b.redeliver {
			n++
		}
	}
	return n
}

// Ack deletes the given pulled batches from the store. Batches whose
// deletion fails after retries stay in flight and are delivered again by
// the next Pull. Unknown ids are reported as ENOTFOUND.
func (c *Consumer) Ack(ctx context.Context, ids ...string) error {
	var (
		order   []string
		bySlot  = make(map[string][]string)
		unknown []string
	)
	c.mu.Lock()
	for _, id := range ids {
		b, ok := c.inflight[id]
		if !ok {
			unknown = append(unknown, id)
			continue
		}
		if _, ok := bySlot[b.slot]; !ok {
			order = append(order, b.slot)
		}
		bySlot[b.slot] = append(bySlot[b.slot], id)
	}
	c.mu.Unlock()

	var errs []error
	for _, s := range order {
		slotIDs := bySlot[s]
		err := retry.Do(ctx, c.opts.policy, func(ctx context.Context) error {
			return c.store.DeleteBatches(ctx, c.frontier, s, slotIDs)
		}, retryNotify(c.opts.logger, "delete batches", s))

		c.mu.Lock()
		for _, id := range slotIDs {
			if err != nil {
				if b, ok := c.inflight[id]; ok {
					b.redeliver = true
				}
				continue
			}
			delete(c.inflight, id)
		}
		c.mu.Unlock()

		if err != nil {
			c.opts.logger.Warn("ack failed, batches will be redelivered",
				"slot", s,
				"batches", len(slotIDs),
				"err", err,
			)
			errs = append(errs, fmt.Errorf("ack slot %s: %w", s, err))
			continue
		}
		c.opts.logger.Debug("acked batches", "slot", s, "batches", len(slotIDs))
	}
	if len(unknown) > 0 {
		errs = append(errs, hcf.Errorf(hcf.ENOTFOUND, "unknown batch ids: %s", strings.Join(unknown, ",")))
	}
	return errors.Join(errs...)
}

// InFlight returns the number of pulled batches not yet deleted.
func (c *Consumer) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}

// Cleanup deletes every batch of the consumer's slots and forgets all
// in-flight batches.
func (c *Consumer) Cleanup(ctx context.Context) error {
	if err := Cleanup(ctx, c.store, c.frontier, c.slots, c.opts.policy); err != nil {
		return err
	}
	c.mu.Lock()
	clear(c.inflight)
	c.mu.Unlock()
	return nil
}

// Cleanup deletes every batch of the given slots.
func Cleanup(ctx context.Context, store hcf.QueueStore, frontier hcf.Frontier, slots []string, policy retry.Policy) error {
	var errs []error
	for _, s := range slots {
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			return store.DeleteSlot(ctx, frontier, s)
		}, nil)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete slot %s: %w", s, err))
		}
	}
	return errors.Join(errs...)
}

// Count returns a lower estimate of the number of queued requests in the
// given slots.
func Count(ctx context.Context, store hcf.QueueStore, frontier hcf.Frontier, slots []string, policy retry.Policy) (int, error) {
	var n int
	for _, s := range slots {
		var batches []*hcf.Batch
		err := retry.Do(ctx, policy, func(ctx context.Context) error {
			var err error
			batches, err = store.ReadBatches(ctx, frontier, s, 0)
			return err
		}, nil)
		if err != nil {
			return n, fmt.Errorf("count slot %s: %w", s, err)
		}
		for _, b := range batches {
			n += len(b.Requests)
		}
	}
	return n, nil
}
