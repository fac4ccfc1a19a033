package lru

import (
	"errors"
	"strconv"
	"sync"
	"testing"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestDecisionCache_HitMissAndPut(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	d := domain.Decision{Verdict: domain.VerdictBlock, Reason: domain.ReasonPattern, Matched: "ads"}

	if _, ok := c.Get("https://x.com/ads"); ok {
		t.Fatalf("expected miss before put")
	}
	c.Put("https://x.com/ads", d)

	got, ok := c.Get("https://x.com/ads")
	if !ok || got != d {
		t.Fatalf("unexpected get: ok=%v got=%+v", ok, got)
	}
	hits, misses, _ := c.Stats()
	if hits != 1 || misses != 1 {
		t.Fatalf("stats hits=%d misses=%d, want 1/1", hits, misses)
	}
}

func TestDecisionCache_EvictionAndLen(t *testing.T) {
	c, err := New(2)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.Decision{Verdict: domain.VerdictBlock})
	c.Put("b", domain.Decision{Verdict: domain.VerdictBlock})
	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2", got)
	}
	c.Put("c", domain.Decision{Verdict: domain.VerdictBlock})
	if got := c.Len(); got != 2 {
		t.Fatalf("len=%d want=2 after eviction", got)
	}
	if _, _, ev := c.Stats(); ev != 1 {
		t.Fatalf("evictions=%d want=1", ev)
	}
}

func TestDecisionCache_PurgeCountsEvictions(t *testing.T) {
	c, err := New(3)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	c.Put("a", domain.DefaultDecision())
	c.Put("b", domain.DefaultDecision())
	c.Put("c", domain.DefaultDecision())

	c.Purge()
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 after purge", got)
	}
	if _, _, ev := c.Stats(); ev != 3 {
		t.Fatalf("evictions=%d want=3 after purge", ev)
	}
}

func TestDecisionCache_Disabled(t *testing.T) {
	c, err := New(0)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	if _, ok := c.Get("x"); ok {
		t.Fatalf("expected miss in disabled cache")
	}
	c.Put("x", domain.DefaultDecision())
	c.Purge()
	if got := c.Len(); got != 0 {
		t.Fatalf("len=%d want=0 for disabled", got)
	}
	if h, m, e := c.Stats(); h+m+e != 0 {
		t.Fatalf("disabled cache reported stats %d/%d/%d", h, m, e)
	}
}

func TestFactory(t *testing.T) {
	c, err := Factory()(4)
	if err != nil || c == nil {
		t.Fatalf("Factory()(4) = %v, %v", c, err)
	}
}

func TestNewLRU_Error(t *testing.T) {
	originalLRU := newLRU
	t.Cleanup(func() { newLRU = originalLRU })
	newLRU = func(int, func(string, domain.Decision)) (*lru.Cache[string, domain.Decision], error) {
		return nil, errors.New("cache creation error")
	}
	if _, err := New(1); err == nil {
		t.Fatalf("expected error but got nil")
	}
}

func TestShardsFor(t *testing.T) {
	cases := []struct {
		size, wantN, wantPer int
	}{
		{1, 1, 1},
		{2, 1, 2},
		{minShardSize, 1, minShardSize},
		{minShardSize * 4, 4, minShardSize},
		{10000, maxShards, 157},
		{1_000_000, maxShards, 15625},
	}
	for _, tc := range cases {
		n, per := shardsFor(tc.size)
		if n != tc.wantN || per != tc.wantPer {
			t.Errorf("shardsFor(%d) = (%d,%d), want (%d,%d)", tc.size, n, per, tc.wantN, tc.wantPer)
		}
		if n*per < tc.size {
			t.Errorf("shardsFor(%d) capacity %d below requested size", tc.size, n*per)
		}
	}
}

func TestDecisionCache_ShardsSpreadURLs(t *testing.T) {
	c, err := New(10000)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	dc := c.(*decisionCache)
	if len(dc.shards) != maxShards {
		t.Fatalf("shards=%d want=%d", len(dc.shards), maxShards)
	}

	const urls = 6400
	for i := 0; i < urls; i++ {
		c.Put("https://example.com/"+strconv.Itoa(i), domain.DefaultDecision())
	}
	if got := c.Len(); got != urls {
		t.Fatalf("len=%d want=%d", got, urls)
	}
	// an even spread puts 100 per shard; no shard should hold a large share
	for i, s := range dc.shards {
		if s.Len() == 0 || s.Len() > 4*urls/maxShards {
			t.Errorf("shard %d holds %d of %d urls", i, s.Len(), urls)
		}
	}
}

func TestDecisionCache_ConcurrentGetPut(t *testing.T) {
	c, err := New(4096)
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				url := "https://host" + strconv.Itoa(g) + ".test/" + strconv.Itoa(i%200)
				if _, ok := c.Get(url); !ok {
					c.Put(url, domain.DefaultDecision())
				}
			}
		}(g)
	}
	wg.Wait()

	hits, misses, _ := c.Stats()
	if hits+misses != 16*1000 {
		t.Fatalf("hits+misses=%d want=%d", hits+misses, 16*1000)
	}
	if misses < 16*200 {
		t.Fatalf("misses=%d, want at least one per distinct url", misses)
	}
}
