package stats

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type counterShard struct {
	mu sync.Mutex
	m  map[string]uint64
}

// counterMap is a string-keyed counter split across independently locked
// shards so unrelated keys never contend.
type counterMap struct {
	shards [shardCount]counterShard
}

func (c *counterMap) shard(key string) *counterShard {
	return &c.shards[xxhash.Sum64String(key)%shardCount]
}

func (c *counterMap) inc(key string) {
	s := c.shard(key)
	s.mu.Lock()
	if s.m == nil {
		s.m = make(map[string]uint64)
	}
	s.m[key]++
	s.mu.Unlock()
}

// copy returns a fresh map holding every key and count.
func (c *counterMap) copy() map[string]uint64 {
	out := make(map[string]uint64)
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		for k, v := range s.m {
			out[k] = v
		}
		s.mu.Unlock()
	}
	return out
}

func (c *counterMap) reset() {
	for i := range c.shards {
		s := &c.shards[i]
		s.mu.Lock()
		s.m = nil
		s.mu.Unlock()
	}
}
