// Package slot routes fingerprints to the numbered slots of a frontier.
package slot

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/fwojciec/hcf"
)

// Router maps fingerprints onto n slots with a stable hash.
// The mapping depends only on the fingerprint and n, so independent
// processes configured with the same n agree on every assignment.
type Router struct {
	n      int
	prefix string
}

// NewRouter creates a Router for n slots whose names start with prefix.
func NewRouter(n int, prefix string) (*Router, error) {
	if n <= 0 {
		return nil, hcf.Errorf(hcf.ECONFIG, "number of slots must be positive, got %d", n)
	}
	return &Router{n: n, prefix: prefix}, nil
}

// Slot returns the slot index in [0, n) for the fingerprint.
func (r *Router) Slot(fp hcf.Fingerprint) int {
	return int(xxhash.Sum64String(string(fp)) % uint64(r.n))
}

// Name returns the store-facing name of slot i.
func (r *Router) Name(i int) string {
	return r.prefix + strconv.Itoa(i)
}

// SlotName returns the name of the slot the fingerprint routes to.
func (r *Router) SlotName(fp hcf.Fingerprint) string {
	return r.Name(r.Slot(fp))
}

// Names returns the names of all slots in index order.
func (r *Router) Names() []string {
	names := make([]string, r.n)
	for i := range names {
		names[i] = r.Name(i)
	}
	return names
}

// Count returns the number of slots.
func (r *Router) Count() int {
	return r.n
}
