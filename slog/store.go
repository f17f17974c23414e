// Package slog provides logging decorators for hcf interfaces.
package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/hcf"
)

// Ensure LoggingStore implements hcf.Store.
var _ hcf.Store = (*LoggingStore)(nil)

// LoggingStore wraps a Store and logs every remote call with its duration.
// Successful calls are logged at debug level, failures at warn level.
type LoggingStore struct {
	next   hcf.Store
	logger *slog.Logger
}

// NewLoggingStore creates a new LoggingStore.
func NewLoggingStore(next hcf.Store, logger *slog.Logger) *LoggingStore {
	return &LoggingStore{next: next, logger: logger}
}

func (s *LoggingStore) log(ctx context.Context, msg string, begin time.Time, err error, attrs ...any) {
	level := slog.LevelDebug
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs, "err", err, "code", hcf.ErrorCode(err))
	}
	attrs = append(attrs, "duration", time.Since(begin))
	s.logger.Log(ctx, level, msg, attrs...)
}

// WriteBatch delegates to the wrapped store and logs the operation.
func (s *LoggingStore) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (id string, err error) {
	defer func(begin time.Time) {
		s.log(ctx, "write batch", begin, err,
			"frontier", frontier.String(),
			"slot", slot,
			"count", len(requests),
			"id", id,
		)
	}(time.Now())
	return s.next.WriteBatch(ctx, frontier, slot, requests)
}

// ReadBatches delegates to the wrapped store and logs the operation.
func (s *LoggingStore) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) (batches []*hcf.Batch, err error) {
	defer func(begin time.Time) {
		s.log(ctx, "read batches", begin, err,
			"frontier", frontier.String(),
			"slot", slot,
			"max", max,
			"batches", len(batches),
		)
	}(time.Now())
	return s.next.ReadBatches(ctx, frontier, slot, max)
}

// DeleteBatches delegates to the wrapped store and logs the operation.
func (s *LoggingStore) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, "delete batches", begin, err,
			"frontier", frontier.String(),
			"slot", slot,
			"batches", len(ids),
		)
	}(time.Now())
	return s.next.DeleteBatches(ctx, frontier, slot, ids)
}

// DeleteSlot delegates to the wrapped store and logs the operation.
func (s *LoggingStore) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, "delete slot", begin, err,
			"frontier", frontier.String(),
			"slot", slot,
		)
	}(time.Now())
	return s.next.DeleteSlot(ctx, frontier, slot)
}

// GetStates delegates to the wrapped store and logs the operation.
func (s *LoggingStore) GetStates(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (states map[hcf.Fingerprint][]byte, err error) {
	defer func(begin time.Time) {
		s.log(ctx, "get states", begin, err,
			"frontier", frontier.String(),
			"keys", len(keys),
			"found", len(states),
		)
	}(time.Now())
	return s.next.GetStates(ctx, frontier, keys)
}

// SetStates delegates to the wrapped store and logs the operation.
func (s *LoggingStore) SetStates(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, "set states", begin, err,
			"frontier", frontier.String(),
			"entries", len(states),
		)
	}(time.Now())
	return s.next.SetStates(ctx, frontier, states)
}

// DeleteStates delegates to the wrapped store and logs the operation.
func (s *LoggingStore) DeleteStates(ctx context.Context, frontier hcf.Frontier) (err error) {
	defer func(begin time.Time) {
		s.log(ctx, "delete states", begin, err, "frontier", frontier.String())
	}(time.Now())
	return s.next.DeleteStates(ctx, frontier)
}

// Close closes the wrapped store.
func (s *LoggingStore) Close() error {
	return s.next.Close()
}
