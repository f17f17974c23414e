package states

import (
	"github.com/fwojciec/hcf"
	lru "github.com/hashicorp/golang-lru/v2"
)

// entries holds the clean cached values of a Cache. Keys the store does not
// have are never held, so a later fetch sees values written elsewhere.
type entries[V any] interface {
	Get(fp hcf.Fingerprint) (V, bool)
	Add(fp hcf.Fingerprint, e V)
	Contains(fp hcf.Fingerprint) bool
	Len() int
	Purge()
}

type mapEntries[V any] map[hcf.Fingerprint]V

func (m mapEntries[V]) Get(fp hcf.Fingerprint) (V, bool) {
	e, ok := m[fp]
	return e, ok
}

func (m mapEntries[V]) Add(fp hcf.Fingerprint, e V) { m[fp] = e }

func (m mapEntries[V]) Contains(fp hcf.Fingerprint) bool {
	_, ok := m[fp]
	return ok
}

func (m mapEntries[V]) Len() int { return len(m) }

func (m mapEntries[V]) Purge() { clear(m) }

type lruEntries[V any] struct {
	c *lru.Cache[hcf.Fingerprint, V]
}

func (l lruEntries[V]) Get(fp hcf.Fingerprint) (V, bool) { return l.c.Get(fp) }

func (l lruEntries[V]) Add(fp hcf.Fingerprint, e V) { l.c.Add(fp, e) }

func (l lruEntries[V]) Contains(fp hcf.Fingerprint) bool { return l.c.Contains(fp) }

func (l lruEntries[V]) Len() int { return l.c.Len() }

func (l lruEntries[V]) Purge() { l.c.Purge() }

func newEntries[V any](size int) (entries[V], error) {
	if size <= 0 {
		return make(mapEntries[V]), nil
	}
	c, err := lru.New[hcf.Fingerprint, V](size)
	if err != nil {
		return nil, hcf.Errorf(hcf.ECONFIG, "states cache: %v", err)
	}
	return lruEntries[V]{c: c}, nil
}
