// Package storetest provides a behavioural test suite shared by all
// hcf.Store implementations.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/fwojciec/hcf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Frontier is the frontier identity used by the suite.
var Frontier = hcf.Frontier{Project: "123", Name: "test-frontier"}

// Run exercises a store created by newStore. Each subtest gets a fresh store.
func Run(t *testing.T, newStore func(t *testing.T) hcf.Store) {
	t.Helper()

	t.Run("reads batches in write order", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		id1, err := s.WriteBatch(ctx, Frontier, "0", requests("a", "b"))
		require.NoError(t, err)
		id2, err := s.WriteBatch(ctx, Frontier, "0", requests("c"))
		require.NoError(t, err)

		batches, err := s.ReadBatches(ctx, Frontier, "0", 0)
		require.NoError(t, err)
		require.Len(t, batches, 2)
		if id1 != "" {
			assert.Equal(t, id1, batches[0].ID)
			assert.Equal(t, id2, batches[1].ID)
		}
		assert.Equal(t, []hcf.Fingerprint{"a", "b", "c"}, fingerprints(hcf.Requests(batches)))
		assert.Equal(t, "https://example.com/a", batches[0].Requests[0].URL)
	})

	t.Run("read is non-destructive and honours max", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for i := range 5 {
			_, err := s.WriteBatch(ctx, Frontier, "1", requests(fmt.Sprintf("fp-%d", i)))
			require.NoError(t, err)
		}

		first, err := s.ReadBatches(ctx, Frontier, "1", 2)
		require.NoError(t, err)
		require.Len(t, first, 2)

		again, err := s.ReadBatches(ctx, Frontier, "1", 2)
		require.NoError(t, err)
		assert.Equal(t, batchIDs(first), batchIDs(again))
	})

	t.Run("slots and frontiers are isolated", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()
		other := hcf.Frontier{Project: "123", Name: "other"}

		_, err := s.WriteBatch(ctx, Frontier, "0", requests("a"))
		require.NoError(t, err)

		batches, err := s.ReadBatches(ctx, Frontier, "1", 0)
		require.NoError(t, err)
		assert.Empty(t, batches)

		batches, err = s.ReadBatches(ctx, other, "0", 0)
		require.NoError(t, err)
		assert.Empty(t, batches)
	})

	t.Run("deletes batches by id", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		for _, fp := range []string{"a", "b", "c"} {
			_, err := s.WriteBatch(ctx, Frontier, "0", requests(fp))
			require.NoError(t, err)
		}
		batches, err := s.ReadBatches(ctx, Frontier, "0", 0)
		require.NoError(t, err)
		require.Len(t, batches, 3)

		err = s.DeleteBatches(ctx, Frontier, "0", []string{batches[0].ID, batches[2].ID, "unknown"})
		require.NoError(t, err)

		left, err := s.ReadBatches(ctx, Frontier, "0", 0)
		require.NoError(t, err)
		require.Len(t, left, 1)
		assert.Equal(t, batches[1].ID, left[0].ID)
	})

	t.Run("deletes a whole slot", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		_, err := s.WriteBatch(ctx, Frontier, "0", requests("a"))
		require.NoError(t, err)
		_, err = s.WriteBatch(ctx, Frontier, "1", requests("b"))
		require.NoError(t, err)

		require.NoError(t, s.DeleteSlot(ctx, Frontier, "0"))

		batches, err := s.ReadBatches(ctx, Frontier, "0", 0)
		require.NoError(t, err)
		assert.Empty(t, batches)
		batches, err = s.ReadBatches(ctx, Frontier, "1", 0)
		require.NoError(t, err)
		assert.Len(t, batches, 1)
	})

	t.Run("round-trips states", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		err := s.SetStates(ctx, Frontier, map[hcf.Fingerprint][]byte{
			"a": []byte(`2`),
			"b": []byte(`{"state":"seen"}`),
		})
		require.NoError(t, err)
		err = s.SetStates(ctx, Frontier, map[hcf.Fingerprint][]byte{"a": []byte(`3`)})
		require.NoError(t, err)

		got, err := s.GetStates(ctx, Frontier, []hcf.Fingerprint{"a", "b", "missing"})
		require.NoError(t, err)
		assert.Len(t, got, 2)
		assert.JSONEq(t, `3`, string(got["a"]))
		assert.JSONEq(t, `{"state":"seen"}`, string(got["b"]))
	})

	t.Run("deletes states", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		require.NoError(t, s.SetStates(ctx, Frontier, map[hcf.Fingerprint][]byte{"a": []byte(`1`)}))
		require.NoError(t, s.DeleteStates(ctx, Frontier))

		got, err := s.GetStates(ctx, Frontier, []hcf.Fingerprint{"a"})
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("returns empty result for no keys", func(t *testing.T) {
		s := newStore(t)

		got, err := s.GetStates(context.Background(), Frontier, nil)
		require.NoError(t, err)
		assert.Empty(t, got)
	})
}

func requests(fps ...string) []hcf.Request {
	out := make([]hcf.Request, len(fps))
	for i, fp := range fps {
		out[i] = hcf.Request{
			Fingerprint: hcf.Fingerprint(fp),
			URL:         "https://example.com/" + fp,
			Meta:        map[string]any{"depth": float64(i)},
		}
	}
	return out
}

func fingerprints(reqs []hcf.Request) []hcf.Fingerprint {
	out := make([]hcf.Fingerprint, len(reqs))
	for i, r := range reqs {
		out[i] = r.Fingerprint
	}
	return out
}

func batchIDs(batches []*hcf.Batch) []string {
	out := make([]string, len(batches))
	for i, b := range batches {
		out[i] = b.ID
	}
	return out
}
