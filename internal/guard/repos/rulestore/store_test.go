package rulestore_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/bloom"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/lru"
)

func newStore(t *testing.T, seeds rulestore.Seeds) (*rulestore.Store, *clock.MockClock) {
	t.Helper()
	clk := &clock.MockClock{CurrentTime: time.Unix(1_700_000_000, 0)}
	s := rulestore.New(seeds, rulestore.Options{
		Bloom:     bloom.NewFactory(),
		FPRate:    0.01,
		NewCache:  lru.Factory(),
		CacheSize: 16,
		Clock:     clk,
	})
	return s, clk
}

func TestStore_SeedOnlySnapshot(t *testing.T) {
	s, _ := newStore(t, rulestore.Seeds{
		AllowDomains: []string{"github.com"},
		BlockDomains: []string{"doubleclick.net"},
		Patterns:     []string{"ads"},
	})
	snap := s.Current()
	require.NotNil(t, snap)
	assert.Equal(t, uint64(1), snap.Version())
	assert.True(t, snap.Allowed("github.com"))
	assert.True(t, snap.Blocked("doubleclick.net"))
	_, ok := snap.MatchBlockPattern("https://x.com/ads")
	assert.True(t, ok)

	st := s.Stats()
	assert.Equal(t, 16, st.Cache.Capacity)
	assert.Equal(t, int64(1_700_000_000), st.BuiltUnix)
}

func TestStore_ReplaceKeepsSeedsAndSwaps(t *testing.T) {
	s, clk := newStore(t, rulestore.Seeds{BlockDomains: []string{"doubleclick.net"}})
	old := s.Current()
	old.Remember("https://a", domain.DefaultDecision())

	clk.Advance(time.Minute)
	s.Replace([]domain.Rule{{Kind: domain.RuleHostBlock, Pattern: "tracker.net", Source: "hosts"}})
	cur := s.Current()

	assert.NotSame(t, old, cur)
	assert.Equal(t, uint64(2), cur.Version())
	assert.True(t, cur.Blocked("doubleclick.net"), "seed survives replace")
	assert.True(t, cur.Blocked("tracker.net"))
	assert.False(t, old.Blocked("tracker.net"), "old snapshot is immutable")

	_, ok := cur.Cached("https://a")
	assert.False(t, ok, "new snapshot starts with an empty cache")
	_, ok = old.Cached("https://a")
	assert.True(t, ok)

	s.Replace(nil)
	assert.False(t, s.Current().Blocked("tracker.net"))
}

func TestStore_CacheFactoryErrorFallsBack(t *testing.T) {
	s := rulestore.New(rulestore.Seeds{}, rulestore.Options{
		NewCache:  func(int) (rulestore.DecisionCache, error) { return nil, errors.New("no cache") },
		CacheSize: 8,
	})
	snap := s.Current()
	snap.Remember("u", domain.DefaultDecision())
	_, ok := snap.Cached("u")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Stats().Cache.Capacity)
}

func TestStore_ConcurrentReadersDuringReplace(t *testing.T) {
	s, _ := newStore(t, rulestore.Seeds{BlockDomains: []string{"always.blocked"}})

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					if !s.Current().Blocked("always.blocked") {
						t.Error("seed missing from a published snapshot")
						return
					}
				}
			}
		}()
	}
	for i := 0; i < 50; i++ {
		s.Replace([]domain.Rule{{Kind: domain.RuleBlock, Pattern: "p", Source: "x"}})
	}
	close(stop)
	wg.Wait()
	assert.Equal(t, uint64(51), s.Current().Version())
}
