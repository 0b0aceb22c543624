package similarity

import (
	"sync"
	"sync/atomic"
)

// PairCache memoizes pairwise similarity scores keyed by the unordered
// entity id pair. One cache is owned by one resolution run and torn down
// with it; scores for a fixed pair are pure and stable, so writers only
// ever add entries, never update them.
type PairCache struct {
	mu     sync.RWMutex
	scores map[string]float64
	hits   atomic.Int64
	misses atomic.Int64
}

// NewPairCache creates an empty pair score cache.
func NewPairCache() *PairCache {
	return &PairCache{
		scores: make(map[string]float64),
	}
}

// pairKey builds the unordered key for two entity ids.
func pairKey(id1, id2 string) string {
	if id2 < id1 {
		id1, id2 = id2, id1
	}
	return id1 + "|" + id2
}

// Get returns the cached score for the unordered pair, if present.
func (c *PairCache) Get(id1, id2 string) (float64, bool) {
	c.mu.RLock()
	score, ok := c.scores[pairKey(id1, id2)]
	c.mu.RUnlock()

	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return score, ok
}

// Put stores the score for the unordered pair. Existing entries are left
// untouched.
func (c *PairCache) Put(id1, id2 string, score float64) {
	key := pairKey(id1, id2)
	c.mu.Lock()
	if _, exists := c.scores[key]; !exists {
		c.scores[key] = score
	}
	c.mu.Unlock()
}

// Len returns the number of cached pairs.
func (c *PairCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.scores)
}

// Stats returns hit and miss counters.
func (c *PairCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
