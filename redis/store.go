// Package redis provides an hcf.Store shared by processes through Redis.
//
// Each slot is a list of batch ids in write order plus a hash of batch
// payloads keyed by id. The states of a frontier live in one hash keyed by
// fingerprint.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/hcf"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix prefixes every key written by a Store.
const DefaultKeyPrefix = "hcf"

// Compile-time interface verification.
var _ hcf.Store = (*Store)(nil)

// Store implements hcf.Store using Redis.
type Store struct {
	client goredis.UniversalClient
	prefix string
}

// Option configures a Store.
type Option func(*Store)

// WithKeyPrefix sets the prefix of every key.
func WithKeyPrefix(prefix string) Option {
	return func(s *Store) { s.prefix = prefix }
}

// NewStore creates a Store using client. Closing the Store closes client.
func NewStore(client goredis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: DefaultKeyPrefix}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects to the Redis server at url (redis://[user:pass@]host:port/db)
// and verifies the connection.
func Open(ctx context.Context, url string, opts ...Option) (*Store, error) {
	o, err := goredis.ParseURL(url)
	if err != nil {
		return nil, hcf.Errorf(hcf.ECONFIG, "invalid redis url: %v", err)
	}
	client := goredis.NewClient(o)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewStore(client, opts...), nil
}

func (s *Store) queueKey(f hcf.Frontier, slot string) string {
	return fmt.Sprintf("%s:%s:%s:q:%s", s.prefix, f.Project, f.Name, slot)
}

func (s *Store) batchesKey(f hcf.Frontier, slot string) string {
	return fmt.Sprintf("%s:%s:%s:b:%s", s.prefix, f.Project, f.Name, slot)
}

func (s *Store) statesKey(f hcf.Frontier) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, f.Project, f.StatesCollection())
}

// WriteBatch appends a batch to the slot.
func (s *Store) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error) {
	if err := validate(frontier); err != nil {
		return "", err
	}
	if len(requests) == 0 {
		return "", hcf.Errorf(hcf.EINVALID, "empty batch")
	}
	data, err := json.Marshal(requests)
	if err != nil {
		return "", hcf.Errorf(hcf.EINVALID, "encode batch: %v", err)
	}

	id := uuid.New().String()
	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.batchesKey(frontier, slot), id, data)
		pipe.RPush(ctx, s.queueKey(frontier, slot), id)
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// ReadBatches returns up to max batches of the slot in write order.
func (s *Store) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error) {
	if err := validate(frontier); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if max > 0 {
		stop = int64(max) - 1
	}
	ids, err := s.client.LRange(ctx, s.queueKey(frontier, slot), 0, stop).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	payloads, err := s.client.HMGet(ctx, s.batchesKey(frontier, slot), ids...).Result()
	if err != nil {
		return nil, err
	}
	batches := make([]*hcf.Batch, 0, len(ids))
	for i, p := range payloads {
		data, ok := p.(string)
		if !ok {
			// Payload removed by a concurrent delete.
			continue
		}
		b := &hcf.Batch{ID: ids[i], Slot: slot}
		if err := json.Unmarshal([]byte(data), &b.Requests); err != nil {
			return nil, hcf.Errorf(hcf.EINVALID, "failed to decode batch %s: %v", ids[i], err)
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// DeleteBatches removes the given batches from the slot.
func (s *Store) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, id := range ids {
			pipe.LRem(ctx, s.queueKey(frontier, slot), 0, id)
		}
		pipe.HDel(ctx, s.batchesKey(frontier, slot), ids...)
		return nil
	})
	return err
}

// DeleteSlot removes every batch of the slot.
func (s *Store) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) error {
	if err := validate(frontier); err != nil {
		return err
	}
	return s.client.Del(ctx, s.queueKey(frontier, slot), s.batchesKey(frontier, slot)).Err()
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

	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = string(k)
	}
	values, err := s.client.HMGet(ctx, s.statesKey(frontier), fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range values {
		if data, ok := v.(string); ok {
			out[keys[i]] = []byte(data)
		}
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
	values := make(map[string]any, len(states))
	for k, v := range states {
		values[string(k)] = v
	}
	return s.client.HSet(ctx, s.statesKey(frontier), values).Err()
}

// DeleteStates removes every state entry of the frontier.
func (s *Store) DeleteStates(ctx context.Context, frontier hcf.Frontier) error {
	if err := validate(frontier); err != nil {
		return err
	}
	return s.client.Del(ctx, s.statesKey(frontier)).Err()
}

// Close closes the Redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

func validate(frontier hcf.Frontier) error {
	if err := frontier.Validate(); err != nil {
		return hcf.Errorf(hcf.EINVALID, "%s", hcf.ErrorMessage(err))
	}
	return nil
}
