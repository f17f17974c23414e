package mock

import (
	"context"

	"github.com/fwojciec/hcf"
)

var _ hcf.Store = (*Store)(nil)

// Store is a mock implementation of hcf.Store.
type Store struct {
	WriteBatchFn    func(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error)
	ReadBatchesFn   func(ctx context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error)
	DeleteBatchesFn func(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) error
	DeleteSlotFn    func(ctx context.Context, frontier hcf.Frontier, slot string) error
	GetStatesFn     func(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error)
	SetStatesFn     func(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) error
	DeleteStatesFn  func(ctx context.Context, frontier hcf.Frontier) error
	CloseFn         func() error
}

func (s *Store) WriteBatch(ctx context.Context, frontier hcf.Frontier, slot string, requests []hcf.Request) (string, error) {
	return s.WriteBatchFn(ctx, frontier, slot, requests)
}

func (s *Store) ReadBatches(ctx context.Context, frontier hcf.Frontier, slot string, max int) ([]*hcf.Batch, error) {
	return s.ReadBatchesFn(ctx, frontier, slot, max)
}

func (s *Store) DeleteBatches(ctx context.Context, frontier hcf.Frontier, slot string, ids []string) error {
	return s.DeleteBatchesFn(ctx, frontier, slot, ids)
}

func (s *Store) DeleteSlot(ctx context.Context, frontier hcf.Frontier, slot string) error {
	return s.DeleteSlotFn(ctx, frontier, slot)
}

func (s *Store) GetStates(ctx context.Context, frontier hcf.Frontier, keys []hcf.Fingerprint) (map[hcf.Fingerprint][]byte, error) {
	return s.GetStatesFn(ctx, frontier, keys)
}

func (s *Store) SetStates(ctx context.Context, frontier hcf.Frontier, states map[hcf.Fingerprint][]byte) error {
	return s.SetStatesFn(ctx, frontier, states)
}

func (s *Store) DeleteStates(ctx context.Context, frontier hcf.Frontier) error {
	return s.DeleteStatesFn(ctx, frontier)
}

func (s *Store) Close() error {
	return s.CloseFn()
}
