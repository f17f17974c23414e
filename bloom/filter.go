// Package bloom provides fingerprint deduplication using Bloom filters.
package bloom

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/fwojciec/hcf"
)

// Filter wraps a Bloom filter for fingerprint deduplication.
// It is safe for concurrent use by multiple goroutines.
type Filter struct {
	mu sync.Mutex
	f  *bloom.BloomFilter
}

// NewFilter creates a new Bloom filter sized for n expected fingerprints
// with the given false positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// Add adds a fingerprint to the filter.
func (f *Filter) Add(fp hcf.Fingerprint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.f.AddString(string(fp))
}

// Test returns true if the fingerprint might be in the filter.
// False positives are possible; false negatives are not.
func (f *Filter) Test(fp hcf.Fingerprint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.TestString(string(fp))
}

// TestAndAdd adds the fingerprint and reports whether it might have been
// present before.
func (f *Filter) TestAndAdd(fp hcf.Fingerprint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.f.TestAndAddString(string(fp))
}

// EstimatedCount returns the approximate number of fingerprints in the filter.
func (f *Filter) EstimatedCount() uint {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint(f.f.ApproximatedSize())
}
