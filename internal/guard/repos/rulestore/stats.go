package rulestore

// CacheStats reports lightweight cache metrics for the current snapshot.
// All fields are best-effort snapshots and may be updated concurrently.
type CacheStats struct {
	Capacity  int    // configured capacity (0 for disabled cache)
	Size      int    // current number of entries
	Hits      uint64 // hits since the snapshot was published
	Misses    uint64 // misses since the snapshot was published
	Evictions uint64 // evictions since the snapshot was published
}

// Stats reports the shape of the current snapshot.
type Stats struct {
	Version       uint64 // increments on every publish, 1 for the seed-only snapshot
	BuiltUnix     int64  // publish time, seconds since epoch
	BlockDomains  int
	AllowDomains  int
	BlockPatterns int
	AllowPatterns int
	Dropped       int // rules rejected while building (bad wildcard, empty domain)
	Cache         CacheStats
}
