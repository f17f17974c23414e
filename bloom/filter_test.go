package bloom_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/hcf"
	"github.com/fwojciec/hcf/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_AddAndTest(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Test("fp-1"))

	f.Add("fp-1")

	assert.True(t, f.Test("fp-1"))
	assert.False(t, f.Test("fp-2"))
}

func TestFilter_TestAndAdd(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.TestAndAdd("fp-1"), "first sighting")
	assert.True(t, f.TestAndAdd("fp-1"), "second sighting")
}

func TestFilter_EstimatedCount(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)
	assert.Equal(t, uint(0), f.EstimatedCount())

	f.Add("fp-1")
	f.Add("fp-2")
	f.Add("fp-3")

	count := f.EstimatedCount()
	assert.True(t, count >= 2 && count <= 4, "expected count near 3, got %d", count)
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const (
		numItems   = 10000
		fpRate     = 0.01
		testLookups = 10000
	)

	f := bloom.NewFilter(numItems, fpRate)
	for i := range numItems {
		f.Add(hcf.Fingerprint(fmt.Sprintf("added-%d", i)))
	}

	falsePositives := 0
	for i := range testLookups {
		if f.Test(hcf.Fingerprint(fmt.Sprintf("notadded-%d", i))) {
			falsePositives++
		}
	}

	// Allow up to 2% to account for statistical variance.
	actualRate := float64(falsePositives) / float64(testLookups)
	assert.Less(t, actualRate, 0.02, "false positive rate %f exceeds 2%%", actualRate)
}

func TestFilter_concurrent_access(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(10000, 0.01)

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := range 500 {
				f.TestAndAdd(hcf.Fingerprint(fmt.Sprintf("%d-%d", g, i)))
			}
		}(g)
	}
	wg.Wait()

	for g := range 8 {
		for i := range 500 {
			assert.True(t, f.Test(hcf.Fingerprint(fmt.Sprintf("%d-%d", g, i))))
		}
	}
}
