package lru

import (
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
)

const (
	// maxShards bounds how many independently locked LRUs back one cache.
	maxShards = 64
	// minShardSize keeps small caches in one shard so eviction stays exact.
	minShardSize = 128
)

// decisionCache is an LRU-backed rulestore.DecisionCache keyed by full URL.
// golang-lru locks on every Get, so entries are spread over shards by an
// xxhash of the URL and evaluations of unrelated URLs never share a lock.
type decisionCache struct {
	shards    []*lru.Cache[string, domain.Decision]
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// disabledCache is a no-op DecisionCache used when size <= 0.
type disabledCache struct{}

// newLRU is a seam for tests.
var newLRU = func(size int, onEvict func(string, domain.Decision)) (*lru.Cache[string, domain.Decision], error) {
	return lru.NewWithEvict(size, onEvict)
}

// shardsFor returns the shard count and per-shard capacity for size.
func shardsFor(size int) (n, per int) {
	n = size / minShardSize
	if n < 1 {
		n = 1
	}
	if n > maxShards {
		n = maxShards
	}
	return n, (size + n - 1) / n
}

// New creates a new DecisionCache with the given capacity. If size <= 0, a
// disabled no-op cache is returned that always misses and tracks no metrics.
func New(size int) (rulestore.DecisionCache, error) {
	if size <= 0 {
		return &disabledCache{}, nil
	}

	n, per := shardsFor(size)
	dc := &decisionCache{shards: make([]*lru.Cache[string, domain.Decision], n)}
	// NewWithEvict observes evictions, including Purge-induced ones.
	onEvict := func(_ string, _ domain.Decision) { dc.evictions.Add(1) }
	for i := range dc.shards {
		cache, err := newLRU(per, onEvict)
		if err != nil {
			return nil, err
		}
		dc.shards[i] = cache
	}
	return dc, nil
}

// Factory adapts New to rulestore.CacheFactory.
func Factory() rulestore.CacheFactory { return New }

func (c *decisionCache) shard(url string) *lru.Cache[string, domain.Decision] {
	if len(c.shards) == 1 {
		return c.shards[0]
	}
	return c.shards[xxhash.Sum64String(url)%uint64(len(c.shards))]
}

// Get looks up a decision by URL. When found, increments hits; otherwise increments misses.
func (c *decisionCache) Get(url string) (domain.Decision, bool) {
	if val, ok := c.shard(url).Get(url); ok {
		c.hits.Add(1)
		return val, true
	}
	c.misses.Add(1)
	return domain.Decision{}, false
}

func (c *decisionCache) Put(url string, d domain.Decision) {
	c.shard(url).Add(url, d)
}

func (c *decisionCache) Len() int {
	n := 0
	for _, s := range c.shards {
		n += s.Len()
	}
	return n
}

// Purge clears all entries. Evictions are counted via the eviction callback.
func (c *decisionCache) Purge() {
	for _, s := range c.shards {
		s.Purge()
	}
}

// Stats returns cumulative hit/miss/eviction counters.
func (c *decisionCache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

func (d *disabledCache) Get(string) (domain.Decision, bool) { return domain.Decision{}, false }

func (d *disabledCache) Put(string, domain.Decision) {}

func (d *disabledCache) Len() int { return 0 }

func (d *disabledCache) Purge() {}

func (d *disabledCache) Stats() (uint64, uint64, uint64) { return 0, 0, 0 }

var _ rulestore.DecisionCache = (*decisionCache)(nil)
var _ rulestore.DecisionCache = (*disabledCache)(nil)
