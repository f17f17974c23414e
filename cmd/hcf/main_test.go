package main_test

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/fwojciec/hcf"
	main "github.com/fwojciec/hcf/cmd/hcf"
	"github.com/fwojciec/hcf/memory"
	"github.com/fwojciec/hcf/mock"
	goenv "github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var frontier = hcf.Frontier{Project: "123", Name: "news"}

func baseEnv() map[string]string {
	return map[string]string{
		"HCF_PROJECT_ID":               "123",
		"HCF_FRONTIER":                 "news",
		"HCF_PRODUCER_NUMBER_OF_SLOTS": "1",
		"HCF_RETRY_ATTEMPTS":           "1",
	}
}

type result struct {
	stdout string
	stderr string
	err    error
}

func run(t *testing.T, store hcf.Store, env map[string]string, stdin string, args ...string) result {
	t.Helper()
	m := main.NewMain()
	m.Lookuper = goenv.MapLookuper(env)
	m.Store = store

	var stdout, stderr bytes.Buffer
	err := m.Run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func TestMain_Run(t *testing.T) {
	t.Parallel()

	t.Run("requires a command", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), baseEnv(), "")
		assert.Error(t, r.err)
	})

	t.Run("shows help", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), baseEnv(), "", "--help")
		require.NoError(t, r.err)
		assert.Contains(t, r.stdout, "produce")
		assert.Contains(t, r.stdout, "consume")
	})

	t.Run("requires frontier identity", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), map[string]string{}, "", "count")
		assert.Equal(t, hcf.ECONFIG, hcf.ErrorCode(r.err))
		assert.Contains(t, r.stderr, "HCF_PROJECT_ID")
	})

	t.Run("rejects unknown store address", func(t *testing.T) {
		t.Parallel()

		env := baseEnv()
		env["HCF_STORE"] = "ftp://example.com"
		r := run(t, nil, env, "", "count")
		assert.Equal(t, hcf.ECONFIG, hcf.ErrorCode(r.err))
	})

	t.Run("opens a sqlite store", func(t *testing.T) {
		t.Parallel()

		env := baseEnv()
		env["HCF_STORE"] = "sqlite://" + t.TempDir() + "/hcf.db"

		r := run(t, nil, env, "https://example.com/a\n", "produce")
		require.NoError(t, r.err)

		r = run(t, nil, env, "", "count")
		require.NoError(t, r.err)
		assert.Equal(t, "1\n", r.stdout)
	})

	t.Run("logs store calls when verbose", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), baseEnv(), "", "--verbose", "count")
		require.NoError(t, r.err)
		assert.Contains(t, r.stderr, "read batches")
	})
}

func TestProduceCmd(t *testing.T) {
	t.Parallel()

	t.Run("enqueues urls and json requests", func(t *testing.T) {
		t.Parallel()

		store := memory.NewStore()
		stdin := "https://example.com/a\n\n{\"fp\":\"custom\",\"url\":\"https://example.com/b\"}\nnot json {\n"

		r := run(t, store, baseEnv(), stdin, "produce")
		require.NoError(t, r.err)
		assert.Contains(t, r.stdout, "Enqueued 3 requests in 1 batches")

		batches, err := store.ReadBatches(context.Background(), frontier, "0", 0)
		require.NoError(t, err)
		require.Len(t, batches, 1)
		reqs := batches[0].Requests
		require.Len(t, reqs, 3)
		assert.Equal(t, "https://example.com/a", reqs[0].URL)
		assert.Len(t, string(reqs[0].Fingerprint), 16)
		assert.Equal(t, hcf.Fingerprint("custom"), reqs[1].Fingerprint)
		assert.Equal(t, "not json {", reqs[2].URL)
	})

	t.Run("suppresses duplicates", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), baseEnv(), "https://example.com/a\nhttps://example.com/a\n", "produce", "--dedupe", "100")
		require.NoError(t, r.err)
		assert.Contains(t, r.stdout, "Enqueued 1 requests")
		assert.Contains(t, r.stdout, "1 duplicates suppressed")
	})

	t.Run("reports undelivered requests", func(t *testing.T) {
		t.Parallel()

		store := &mock.Store{
			WriteBatchFn: func(context.Context, hcf.Frontier, string, []hcf.Request) (string, error) {
				return "", hcf.Errorf(hcf.EFATAL, "forbidden")
			},
			CloseFn: func() error { return nil },
		}
		r := run(t, store, baseEnv(), "https://example.com/a\n", "produce")
		assert.Equal(t, hcf.EDATALOSS, hcf.ErrorCode(r.err))
		assert.Contains(t, r.stderr, "undelivered: https://example.com/a")
	})
}

func TestConsumeCmd(t *testing.T) {
	t.Parallel()

	t.Run("prints and acknowledges requests", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := memory.NewStore()
		_, err := store.WriteBatch(ctx, frontier, "0", []hcf.Request{{Fingerprint: "a", URL: "https://example.com/a"}})
		require.NoError(t, err)

		r := run(t, store, baseEnv(), "", "consume")
		require.NoError(t, r.err)

		var got hcf.Request
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &got))
		assert.Equal(t, hcf.Fingerprint("a"), got.Fingerprint)
		assert.Contains(t, r.stderr, "Consumed 1 requests from slot 0")

		left, err := store.ReadBatches(ctx, frontier, "0", 0)
		require.NoError(t, err)
		assert.Empty(t, left)
	})

	t.Run("leaves batches queued without ack", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		store := memory.NewStore()
		for range 3 {
			_, err := store.WriteBatch(ctx, frontier, "0", []hcf.Request{{Fingerprint: "a"}})
			require.NoError(t, err)
		}
		env := baseEnv()
		env["HCF_CONSUMER_MAX_BATCHES"] = "1"

		r := run(t, store, env, "", "consume", "--no-ack", "--drain")
		require.NoError(t, r.err)
		assert.Equal(t, 3, strings.Count(r.stdout, "\n"))

		left, err := store.ReadBatches(ctx, frontier, "0", 0)
		require.NoError(t, err)
		assert.Len(t, left, 3)
	})

	t.Run("prints batches pulled before a read failure", func(t *testing.T) {
		t.Parallel()

		var reads atomic.Int32
		store := &mock.Store{
			ReadBatchesFn: func(context.Context, hcf.Frontier, string, int) ([]*hcf.Batch, error) {
				if reads.Add(1) > 1 {
					return nil, hcf.Errorf(hcf.EFATAL, "forbidden")
				}
				return []*hcf.Batch{{ID: "b1", Requests: []hcf.Request{{Fingerprint: "a"}}}}, nil
			},
			CloseFn: func() error { return nil },
		}

		r := run(t, store, baseEnv(), "", "consume")
		assert.Equal(t, hcf.EFATAL, hcf.ErrorCode(r.err))

		var got hcf.Request
		require.NoError(t, json.Unmarshal([]byte(r.stdout), &got))
		assert.Equal(t, hcf.Fingerprint("a"), got.Fingerprint)
		assert.Contains(t, r.stderr, "forbidden")
	})

	t.Run("rejects slot out of range", func(t *testing.T) {
		t.Parallel()

		r := run(t, memory.NewStore(), baseEnv(), "", "consume", "--slot", "5")
		assert.Equal(t, hcf.EINVALID, hcf.ErrorCode(r.err))
	})
}

func TestCleanupCmd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := memory.NewStore()
	_, err := store.WriteBatch(ctx, frontier, "0", []hcf.Request{{Fingerprint: "a"}})
	require.NoError(t, err)
	require.NoError(t, store.SetStates(ctx, frontier, map[hcf.Fingerprint][]byte{"a": []byte(`"crawled"`)}))

	r := run(t, store, baseEnv(), "", "cleanup", "--states")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Deleted batches of 1 slots of 123/news")
	assert.Contains(t, r.stdout, "Deleted states of 123/news")

	r = run(t, store, baseEnv(), "", "count")
	require.NoError(t, r.err)
	assert.Equal(t, "0\n", r.stdout)

	got, err := store.GetStates(ctx, frontier, []hcf.Fingerprint{"a"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStateCmd(t *testing.T) {
	t.Parallel()

	store := memory.NewStore()

	r := run(t, store, baseEnv(), "", "state", "set", "fp1", "crawled")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "Set fp1 to crawled")

	r = run(t, store, baseEnv(), "", "state", "get", "fp1", "fp2")
	require.NoError(t, r.err)
	assert.Equal(t, "fp1\tcrawled\nfp2\t-\n", r.stdout)

	r = run(t, store, baseEnv(), "", "state", "set", "fp1", "bogus")
	assert.Error(t, r.err)
}
