package memory_test

import (
	"context"
	"testing"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/memory"
	"github.com/fwojciec/hcf/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()

	storetest.Run(t, func(*testing.T) hcf.Store { return memory.NewStore() })
}

func TestStore_WriteBatch_rejects_empty_batch(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	_, err := s.WriteBatch(context.Background(), storetest.Frontier, "0", nil)
	require.Error(t, err)
	assert.Equal(t, hcf.EINVALID, hcf.ErrorCode(err))
}

func TestStore_requires_frontier_identity(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	_, err := s.ReadBatches(context.Background(), hcf.Frontier{Project: "1"}, "0", 0)
	require.Error(t, err)
	assert.Equal(t, hcf.EINVALID, hcf.ErrorCode(err))
}

func TestStore_Close(t *testing.T) {
	t.Parallel()

	s := memory.NewStore()
	require.NoError(t, s.Close())

	_, err := s.GetStates(context.Background(), storetest.Frontier, []hcf.Fingerprint{"a"})
	require.Error(t, err)
	assert.Equal(t, hcf.EFATAL, hcf.ErrorCode(err))
}

func TestStore_returns_copies(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := memory.NewStore()
	_, err := s.WriteBatch(ctx, storetest.Frontier, "0", []hcf.Request{{Fingerprint: "a"}})
	require.NoError(t, err)

	batches, err := s.ReadBatches(ctx, storetest.Frontier, "0", 0)
	require.NoError(t, err)
	batches[0].Requests[0].Fingerprint = "mutated"

	again, err := s.ReadBatches(ctx, storetest.Frontier, "0", 0)
	require.NoError(t, err)
	assert.Equal(t, hcf.Fingerprint("a"), again[0].Requests[0].Fingerprint)
}
