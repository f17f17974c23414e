// Package memory provides an in-process implementation of hcf.Store.
// It is intended for tests and single-process development runs.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/fwojciec/hcf"
	"github.com/google/uuid"
)

// Compile-time interface verification.
var _ hcf.Store = (*Store)(nil)

type slotKey struct {
	frontier hcf.Frontier
	slot     string
}

// Store keeps batches and states in memory.
// It is safe for concurrent use by multiple goroutines.
type Store struct {
	mu     sync.Mutex
	slots  map[slotKey][]*hcf.Batch
	states map[hcf.Frontier]map[hcf.Fingerprint][]byte
	closed bool
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		slots:  make(map[slotKey][]*hcf.Batch),
		states: make(map[hcf.Frontier]map[hcf.Fingerprint][]byte),
	}
}

// WriteBatch appends a batch to the slot.
func (s *Store) WriteBatch(_ context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error) {
	if err := s.check(frontier); err != nil {
		return "", err
	}
	if len(requests) == 0 {
		return "", hcf.Errorf(hcf.EINVALID, "empty batch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b := &hcf.Batch{
		ID:       uuid.New().String(),
		Slot:     slot,
		Requests: slices.Clone(requests),
	}
	key := slotKey{frontier, slot}
	s.slots[key] = append(s.slots[key], b)
	return b.ID, nil
}

// ReadBatches returns up to max batches of the slot in write order.
func (s *Store) ReadBatches(_ context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error) {
	if err := s.check(frontier); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	batches := s.slots[slotKey{frontier, slot}]
	if max > 0 && len(batches) > max {
		batches = batches[:max]
	}
	out := make([]*hcf.Batch, len(batches))
	for i, b := range batches {
		out[i] = &hcf.Batch{ID: b.ID, Slot: b.Slot, Requests: slices.Clone(b.Requests)}
	}
	return out, nil
}

// DeleteBatches removes the given batches from the slot.
func (s *Store) DeleteBatches(_ context.Context, frontier hcf.Frontier, slot string, ids []string) error {
	if err := s.check(frontier); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := slotKey{frontier, slot}
	s.slots[key] = slices.DeleteFunc(s.slots[key], func(b *hcf.Batch) bool {
		return slices.Contains(ids, b.ID)
	})
	return nil
}

// DeleteSlot removes every batch of the slot.
func (s *Store) DeleteSlot(_ context.Context, frontier hcf.Frontier, slot string) error {
	if err := s.check(frontier); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.slots, slotKey{frontier, slot})
	return nil
}

// GetStates returns the stored values for keys.
func (s *Store) GetStates(_ context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
	if err := s.check(frontier); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[hcf.Fingerprint][]byte)
	stored := s.states[frontier]
	for _, k := range keys {
		if v, ok := stored[k]; ok {
			out[k] = slices.Clone(v)
		}
	}
	return out, nil
}

// SetStates writes the given entries.
func (s *Store) SetStates(_ context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) error {
	if err := s.check(frontier); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.states[frontier]
	if !ok {
		stored = make(map[hcf.Fingerprint][]byte, len(states))
		s.states[frontier] = stored
	}
	for k, v := range states {
		stored[k] = slices.Clone(v)
	}
	return nil
}

// DeleteStates removes every state entry of the frontier.
func (s *Store) DeleteStates(_ context.Context, frontier hcf.Frontier) error {
	if err := s.check(frontier); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.states, frontier)
	return nil
}

// Close marks the store closed. Later calls fail with EFATAL.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *Store) check(frontier hcf.Frontier) error {
	if err := frontier.Validate(); err != nil {
		return hcf.Errorf(hcf.EINVALID, "%s", hcf.ErrorMessage(err))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return hcf.Errorf(hcf.EFATAL, "store closed")
	}
	return nil
}
