// Package prometheus provides a metrics decorator for hcf.Store.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/fwojciec/hcf"
	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// storeCalls counts store calls by operation and error code.
	storeCalls = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "hcf_store_calls_total",
			Help: "Total number of remote store calls",
		},
		[]string{"op", "code"},
	)

	// storeLatency tracks the duration of store calls.
	storeLatency = promauto.NewHistogramVec(
		prom.HistogramOpts{
			Name:    "hcf_store_call_duration_seconds",
			Help:    "Duration of remote store calls in seconds",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 120},
		},
		[]string{"op"},
	)

	// requestsWritten counts requests written to slots.
	requestsWritten = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "hcf_requests_written_total",
			Help: "Total number of requests written to the queue",
		},
		[]string{"frontier", "slot"},
	)

	// requestsRead counts requests read from slots.
	requestsRead = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "hcf_requests_read_total",
			Help: "Total number of requests read from the queue",
		},
		[]string{"frontier", "slot"},
	)

	// statesWritten counts state entries written.
	statesWritten = promauto.NewCounterVec(
		prom.CounterOpts{
			Name: "hcf_states_written_total",
			Help: "Total number of state entries written",
		},
		[]string{"frontier"},
	)
)

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Ensure InstrumentedStore implements hcf.Store.
var _ hcf.Store = (*InstrumentedStore)(nil)

// InstrumentedStore wraps a Store and records call counts, latencies and
// item throughput.
type InstrumentedStore struct {
	next hcf.Store
}

// NewInstrumentedStore creates a new InstrumentedStore.
func NewInstrumentedStore(next hcf.Store) *InstrumentedStore {
	return &InstrumentedStore{next: next}
}

func observe(op string, begin time.Time, err error) {
	code := "ok"
	if err != nil {
		code = hcf.ErrorCode(err)
	}
	storeCalls.WithLabelValues(op, code).Inc()
	storeLatency.WithLabelValues(op).Observe(time.Since(begin).Seconds())
}

// WriteBatch delegates to the wrapped store and records its latency and the requests written.
func (s *InstrumentedStore) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (id string, err error) {
	defer func(begin time.Time) {
		observe("write_batch", begin, err)
		if err == nil {
			requestsWritten.WithLabelValues(frontier.String(), slot).Add(float64(len(requests)))
		}
	}(time.Now())
	return s.next.WriteBatch(ctx, frontier, slot, requests)
}

// ReadBatches delegates to the wrapped store and records its latency and the requests read.
func (s *InstrumentedStore) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) (batches []*hcf.Batch, err error) {
	defer func(begin time.Time) {
		observe("read_batches", begin, err)
		if err == nil {
			requestsRead.WithLabelValues(frontier.String(), slot).Add(float64(len(hcf.Requests(batches))))
		}
	}(time.Now())
	return s.next.ReadBatches(ctx, frontier, slot, max)
}

// DeleteBatches delegates to the wrapped store and records its latency.
func (s *InstrumentedStore) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) (err error) {
	defer func(begin time.Time) { observe("delete_batches", begin, err) }(time.Now())
	return s.next.DeleteBatches(ctx, frontier, slot, ids)
}

// DeleteSlot delegates to the wrapped store and records its latency.
func (s *InstrumentedStore) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) (err error) {
	defer func(begin time.Time) { observe("delete_slot", begin, err) }(time.Now())
	return s.next.DeleteSlot(ctx, frontier, slot)
}

// GetStates delegates to the wrapped store and records its latency.
func (s *InstrumentedStore) GetStates(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (states map[hcf.Fingerprint][]byte, err error) {
	defer func(begin time.Time) { observe("get_states", begin, err) }(time.Now())
	return s.next.GetStates(ctx, frontier, keys)
}

// SetStates delegates to the wrapped store and records its latency and the states written.
func (s *InstrumentedStore) SetStates(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) (err error) {
	defer func(begin time.Time) {
		observe("set_states", begin, err)
		if err == nil {
			statesWritten.WithLabelValues(frontier.String()).Add(float64(len(states)))
		}
	}(time.Now())
	return s.next.SetStates(ctx, frontier, states)
}

// DeleteStates delegates to the wrapped store and records its latency.
func (s *InstrumentedStore) DeleteStates(ctx context.Context, frontier hcf.Frontier) (err error) {
	defer func(begin time.Time) { observe("delete_states", begin, err) }(time.Now())
	return s.next.DeleteStates(ctx, frontier)
}

// Close closes the wrapped store.
func (s *InstrumentedStore) Close() error {
	return s.next.Close()
}
