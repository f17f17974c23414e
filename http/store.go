package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/hcf"
	"golang.org/x/time/rate"
)

// Compile-time interface verification.
var _ hcf.Store = (*Store)(nil)

// Store talks to the hosted frontier service. Batches live under
// /hcf/{project}/{frontier}/s/{slot}, states in the collection
// /collections/{project}/s/{frontier}_states.
//
// The service does not return batch ids on write, so WriteBatch returns "".
// State values must be JSON documents.
type Store struct {
	client  *http.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	limiter *rate.Limiter
}

// NewStore creates a Store for the service at baseURL authenticating with
// apiKey. An empty baseURL uses DefaultBaseURL.
func NewStore(baseURL, apiKey string, opts ...Option) *Store {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	s := &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		timeout: DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = &http.Client{Timeout: s.timeout}
	}
	return s
}

// queueRequest is the wire shape of a request written to a slot.
type queueRequest struct {
	Fingerprint hcf.Fingerprint `json:"fp"`
	Priority    int             `json:"p,omitempty"`
	QData       queueData       `json:"qdata"`
}

// queueData is the payload stored with a queued request: an optional URL
// and the request attributes nested under "request".
type queueData struct {
	URL     string      `json:"url,omitempty"`
	Request requestData `json:"request"`
}

type requestData struct {
	Method  string         `json:"method,omitempty"`
	Headers wireHeaders    `json:"headers,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// wireHeaders reads header values given as a string or as a list of
// strings. Lists are joined with ", ".
type wireHeaders map[string]string

func (h *wireHeaders) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(wireHeaders, len(raw))
	for k, v := range raw {
		var one string
		if err := json.Unmarshal(v, &one); err == nil {
			out[k] = one
			continue
		}
		var many []string
		if err := json.Unmarshal(v, &many); err != nil {
			return fmt.Errorf("header %s: %w", k, err)
		}
		out[k] = strings.Join(many, ", ")
	}
	*h = out
	return nil
}

// queueBatch is the wire shape of a batch read from a slot. Each request is
// a [fingerprint, qdata] pair.
type queueBatch struct {
	ID       string              `json:"id"`
	Requests [][]json.RawMessage `json:"requests"`
}

func slotPath(f hcf.Frontier, slot string) string {
	return "/hcf/" + url.PathEscape(f.Project) + "/" + url.PathEscape(f.Name) + "/s/" + url.PathEscape(slot)
}

func collectionPath(f hcf.Frontier) string {
	return "/collections/" + url.PathEscape(f.Project) + "/s/" + url.PathEscape(f.StatesCollection())
}

// WriteBatch appends a batch to the slot.
func (s *Store) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error) {
	if err := validate(frontier); err != nil {
		return "", err
	}
	if len(requests) == 0 {
		return "", hcf.Errorf(hcf.EINVALID, "empty batch")
	}

	wire := make([]queueRequest, len(requests))
	for i, r := range requests {
		wire[i] = queueRequest{
			Fingerprint: r.Fingerprint,
			Priority:    r.Priority,
			QData: queueData{
				URL: r.URL,
				Request: requestData{
					Method:  r.Method,
					Headers: r.Headers,
					Meta:    r.Meta,
				},
			},
		}
	}
	body, err := jsonLines(wire)
	if err != nil {
		return "", err
	}
	_, err = s.do(ctx, http.MethodPost, slotPath(frontier, slot), nil, body)
	return "", err
}

// ReadBatches returns up to max batches of the slot in write order.
func (s *Store) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error) {
	if err := validate(frontier); err != nil {
		return nil, err
	}
	data, err := s.do(ctx, http.MethodGet, slotPath(frontier, slot)+"/q", nil, nil)
	if err != nil {
		return nil, err
	}
	wire, err := decodeLines[queueBatch](data)
	if err != nil {
		return nil, err
	}
	if max > 0 && len(wire) > max {
		wire = wire[:max]
	}

	batches := make([]*hcf.Batch, len(wire))
	for i, w := range wire {
		b := &hcf.Batch{ID: w.ID, Slot: slot, Requests: make([]hcf.Request, 0, len(w.Requests))}
		for _, pair := range w.Requests {
			r, err := decodeQueued(pair)
			if err != nil {
				return nil, fmt.Errorf("decode batch %s: %w", w.ID, err)
			}
			b.Requests = append(b.Requests, r)
		}
		batches[i] = b
	}
	return batches, nil
}

func decodeQueued(pair []json.RawMessage) (hcf.Request, error) {
	if len(pair) == 0 {
		return hcf.Request{}, hcf.Errorf(hcf.EINVALID, "empty request entry")
	}
	var r hcf.Request
	if err := json.Unmarshal(pair[0], &r.Fingerprint); err != nil {
		return r, hcf.Errorf(hcf.EINVALID, "invalid fingerprint: %v", err)
	}
	if len(pair) > 1 && string(pair[1]) != "null" {
		qd, err := decodeQueueData(pair[1])
		if err != nil {
			return r, hcf.Errorf(hcf.EINVALID, "invalid qdata of %s: %v", r.Fingerprint, err)
		}
		r.URL = qd.URL
		r.Method, r.Headers, r.Meta = qd.Request.Method, qd.Request.Headers, qd.Request.Meta
	}
	if r.URL == "" {
		r.URL = string(r.Fingerprint)
	}
	return r, nil
}

// decodeQueueData decodes qdata either as a plain object or in the
// type-tagged form some producers write, where every value is a
// [type, value] pair and dicts are lists of [key, value] pairs.
func decodeQueueData(data json.RawMessage) (queueData, error) {
	var qd queueData
	if len(data) > 0 && data[0] == '[' {
		var tagged any
		if err := json.Unmarshal(data, &tagged); err != nil {
			return qd, err
		}
		plain, err := json.Marshal(untag(tagged))
		if err != nil {
			return qd, err
		}
		data = plain
	}
	err := json.Unmarshal(data, &qd)
	return qd, err
}

// untag converts a type-tagged value to plain JSON values.
func untag(v any) any {
	pair, ok := v.([]any)
	if !ok || len(pair) != 2 {
		return v
	}
	tag, ok := pair[0].(string)
	if !ok {
		return v
	}
	switch tag {
	case "bytes", "other":
		return pair[1]
	case "dict":
		items, _ := pair[1].([]any)
		m := make(map[string]any, len(items))
		for _, item := range items {
			kv, ok := item.([]any)
			if !ok || len(kv) != 2 {
				continue
			}
			key := untag(kv[0])
			ks, ok := key.(string)
			if !ok {
				ks = fmt.Sprint(key)
			}
			m[ks] = untag(kv[1])
		}
		return m
	case "list", "tuple":
		items, _ := pair[1].([]any)
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = untag(item)
		}
		return out
	}
	return v
}

// DeleteBatches removes the given batches from the slot.
func (s *Store) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	body, err := jsonLines(ids)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodPost, slotPath(frontier, slot)+"/q/deleted", nil, body)
	return err
}

// DeleteSlot removes every batch of the slot.
func (s *Store) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	_, err := s.do(ctx, http.MethodDelete, slotPath(frontier, slot), nil, nil)
	return err
}

// stateItem is the wire shape of a collection entry.
type stateItem struct {
	Key   hcf.Fingerprint `json:"_key"`
	Value json.RawMessage `json:"value"`
}

// GetStates returns the stored values for keys.
func (s *Store) GetStates(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
	if err := validate(frontier); err != nil {
		return nil, err
	}
	out := make(map[hcf.Fingerprint][]byte, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	q := url.Values{}
	for _, k := range keys {
		q.Add("key", string(k))
	}
	q.Set("meta", "_key")
	data, err := s.do(ctx, http.MethodGet, collectionPath(frontier), q, nil)
	if err != nil {
		if hcf.ErrorCode(err) == hcf.ENOTFOUND {
			return out, nil
		}
		return nil, err
	}
	items, err := decodeLines[stateItem](data)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.Key] = []byte(it.Value)
	}
	return out, nil
}

// SetStates writes the given entries.
func (s *Store) SetStates(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) error {
	if err := validate(frontier); err != nil {
		return err
	}
	if len(states) == 0 {
		return nil
	}
	items := make([]stateItem, 0, len(states))
	for k, v := range states {
		if !json.Valid(v) {
			return hcf.Errorf(hcf.EINVALID, "state of %s is not a JSON document", k)
		}
		items = append(items, stateItem{Key: k, Value: v})
	}
	body, err := jsonLines(items)
	if err != nil {
		return err
	}
	_, err = s.do(ctx, http.MethodPost, collectionPath(frontier), nil, body)
	return err
}

// deleteResult is the response of a collection delete. The service deletes
// in pages and returns nextstart while entries remain.
type deleteResult struct {
	Deleted   int    `json:"deleted"`
	Scanned   int    `json:"scanned"`
	NextStart string `json:"nextstart"`
}

// DeleteStates removes every state entry of the frontier.
func (s *Store) DeleteStates(ctx context.Context, frontier hcf.Frontier) error {
	if err := validate(frontier); err != nil {
		return err
	}
	var start string
	for {
		var q url.Values
		if start != "" {
			q = url.Values{"start": {start}}
		}
		data, err := s.do(ctx, http.MethodDelete, collectionPath(frontier), q, nil)
		if err != nil {
			if hcf.ErrorCode(err) == hcf.ENOTFOUND {
				return nil
			}
			return err
		}
		var r deleteResult
		if len(data) > 0 {
			if err := json.Unmarshal(data, &r); err != nil {
				return fmt.Errorf("decode delete response: %w", err)
			}
		}
		if r.NextStart == "" {
			return nil
		}
		start = r.NextStart
	}
}

// Close releases idle connections.
func (s *Store) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func validate(frontier hcf.Frontier) error {
	if err := frontier.Validate(); err != nil {
		return hcf.Errorf(hcf.EINVALID, "%s", hcf.ErrorMessage(err))
	}
	return nil
}
