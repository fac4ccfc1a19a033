package rulestore

import "github.com/haukened/rr-guard/internal/guard/domain"

// BloomFilter is the minimal interface a snapshot needs from Bloom filters.
// A snapshot adds every key while building and only probes afterwards.
type BloomFilter interface {
	Add(key []byte)
	MightContain(key []byte) bool
}

// BloomFactory constructs BloomFilters sized for a dataset.
type BloomFactory interface {
	New(capacity uint64, fpRate float64) BloomFilter
}

// DecisionCache caches decisions by full URL with basic metrics.
type DecisionCache interface {
	Get(url string) (domain.Decision, bool)
	Put(url string, d domain.Decision)
	Len() int
	Purge()
	Stats() (hits, misses, evictions uint64)
}

// CacheFactory builds a DecisionCache with the given capacity. A capacity <= 0
// yields a disabled cache.
type CacheFactory func(size int) (DecisionCache, error)
