package states

import (
	"log/slog"
	"time"

	"github.com/fwojciec/hcf/retry"
	"github.com/jonboulle/clockwork"
)

// Defaults for a Cache.
const (
	DefaultFlushInterval = 30 * time.Second
	DefaultMaxDirty      = 1024
	DefaultFetchChunk    = 32
	DefaultWriteChunk    = 1024
)

type options struct {
	sizeLimit      int
	flushInterval  time.Duration
	maxDirty       int
	fetchChunk     int
	writeChunk     int
	policy         retry.Policy
	clock          clockwork.Clock
	logger         *slog.Logger
	cleanupOnStart bool
}

func defaultOptions() options {
	return options{
		flushInterval: DefaultFlushInterval,
		maxDirty:      DefaultMaxDirty,
		fetchChunk:    DefaultFetchChunk,
		writeChunk:    DefaultWriteChunk,
		policy:        retry.DefaultPolicy(),
		clock:         clockwork.NewRealClock(),
		logger:        slog.New(slog.DiscardHandler),
	}
}

// Option configures a Cache.
type Option func(*options)

// WithSizeLimit bounds the number of clean cached entries, evicting the
// least recently used ones. Zero keeps every entry.
func WithSizeLimit(n int) Option {
	return func(o *options) { o.sizeLimit = n }
}

// WithFlushInterval sets how often dirty entries are written back.
// Zero disables periodic flushing.
func WithFlushInterval(d time.Duration) Option {
	return func(o *options) { o.flushInterval = d }
}

// WithMaxDirty sets the number of dirty entries that makes a flush due.
// Zero disables the size trigger.
func WithMaxDirty(n int) Option {
	return func(o *options) { o.maxDirty = n }
}

// WithFetchChunk sets the number of keys read from the store per call.
func WithFetchChunk(n int) Option {
	return func(o *options) { o.fetchChunk = n }
}

// WithWriteChunk sets the number of entries written to the store per call.
func WithWriteChunk(n int) Option {
	return func(o *options) { o.writeChunk = n }
}

// WithRetry sets the retry policy for store calls.
func WithRetry(p retry.Policy) Option {
	return func(o *options) { o.policy = p }
}

// WithClock sets the clock driving the flush interval.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCleanupOnStart deletes every stored state of the frontier on Start.
func WithCleanupOnStart() Option {
	return func(o *options) { o.cleanupOnStart = true }
}
