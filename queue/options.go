// Package queue synchronizes the shared work queue of a frontier: producers
// buffer requests per slot and flush them as batches, consumers pull
// batches from their slots and acknowledge them once processed.
package queue

import (
	"log/slog"
	"time"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/retry"
	"github.com/jonboulle/clockwork"
)

// Defaults for producers and consumers.
const (
	DefaultBatchSize     = 10000
	DefaultFlushInterval = 30 * time.Second
)

// AckMode selects when consumed batches are deleted from the store.
type AckMode int

const (
	// AckManual deletes batches when the caller acknowledges them
	// (at-least-once delivery).
	AckManual AckMode = iota
	// AckOnPull deletes batches as soon as they are pulled
	// (at-most-once delivery).
	AckOnPull
)

// ParseAckMode parses the configuration names of the ack modes.
func ParseAckMode(s string) (AckMode, error) {
	switch s {
	case hcf.AckManual, "":
		return AckManual, nil
	case hcf.AckOnPull:
		return AckOnPull, nil
	}
	return AckManual, hcf.Errorf(hcf.ECONFIG, "unknown ack mode %q", s)
}

type options struct {
	batchSize      int
	flushInterval  time.Duration
	policy         retry.Policy
	clock          clockwork.Clock
	logger         *slog.Logger
	dedupeN        uint
	dedupeRate     float64
	async          bool
	concurrency    int
	cleanupOnStart bool
	maxBatches     int
	ackMode        AckMode
}

func defaultOptions() options {
	return options{
		batchSize:     DefaultBatchSize,
		flushInterval: DefaultFlushInterval,
		policy:        retry.DefaultPolicy(),
		clock:         clockwork.NewRealClock(),
		logger:        slog.New(slog.DiscardHandler),
		ackMode:       AckManual,
	}
}

// Option configures a Producer or a Consumer.
type Option func(*options)

// WithBatchSize sets the number of buffered requests that triggers a slot
// flush. Zero disables the size trigger.
func WithBatchSize(n int) Option {
	return func(o *options) { o.batchSize = n }
}

// WithFlushInterval sets the maximum age of buffered requests.
// Zero disables the time trigger.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.flushInterval = d }
}

// WithRetry sets the retry policy for store calls.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock sets the clock driving flush intervals.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDedupe suppresses fingerprints this producer has already enqueued,
// using a Bloom filter sized for n fingerprints at the given false
// positive rate.
func WithDedupe(n uint, fpRate float64) Option {
	return func(o *options) {
		o.dedupeN = n
		o.dedupeRate = fpRate
	}
}

// WithAsyncFlush hands size-triggered flushes to the background loop
// instead of writing inline in Enqueue.
func WithAsyncFlush() Option {
	return func(o *options) { o.async = true }
}

// WithConcurrency limits the number of slots flushed in parallel.
func WithConcurrency(n int) Option {
	return func(o *options) { o.concurrency = n }
}

// WithCleanupOnStart deletes all existing batches of the slots on Start.
func WithCleanupOnStart() Option {
	return func(o *options) { o.cleanupOnStart = true }
}

// WithMaxBatches caps the number of batches returned by one Pull.
// Zero means unbounded.
func WithMaxBatches(n int) Option {
	return func(o *options) { o.maxBatches = n }
}

// WithAckMode sets when pulled batches are deleted.
func WithAckMode(m AckMode) Option {
	return func(o *options) { o.ackMode = m }
}

func retryNotify(logger *slog.Logger, op, slot string) retry.NotifyFunc {
	return func(err error, attempt int, wait time.Duration) {
		logger.Warn("store call failed, retrying",
			"op", op,
			"slot", slot,
			"attempt", attempt,
			"wait", wait,
			"err", err,
		)
	}
}
