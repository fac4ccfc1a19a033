package rulestore

import (
	"sync"
	"sync/atomic"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// SeedSource labels rules that come from configuration rather than a list.
const SeedSource = "config"

// Seeds are the configured domains and patterns present in every snapshot.
type Seeds struct {
	AllowDomains []string
	BlockDomains []string
	Patterns     []string
}

// Options configures snapshot acceleration. Zero values disable it.
type Options struct {
	Bloom     BloomFactory
	FPRate    float64
	NewCache  CacheFactory
	CacheSize int
	Clock     clock.Clock
	Logger    log.Logger
}

// Store publishes Snapshots through an atomic pointer. Any number of readers
// may call Current concurrently; Replace calls are serialized.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	version uint64
	seeds   Seeds
	opts    Options
}

// New constructs a Store and publishes a seed-only snapshot so Current never
// returns nil.
func New(seeds Seeds, opts Options) *Store {
	if opts.Clock == nil {
		opts.Clock = &clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	s := &Store{seeds: seeds, opts: opts}
	s.Replace(nil)
	return s
}

// Current returns the published snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Replace builds a snapshot from the seeds plus rules and swaps it in.
// Readers holding the previous snapshot keep using it undisturbed.
func (s *Store) Replace(rules []domain.Rule) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b := NewBuilder(s.opts.Logger)
	for _, d := range s.seeds.AllowDomains {
		b.AllowDomain(d, SeedSource)
	}
	for _, d := range s.seeds.BlockDomains {
		b.BlockDomain(d, SeedSource)
	}
	for _, p := range s.seeds.Patterns {
		b.Add(domain.Rule{Kind: domain.RuleBlock, Pattern: p, Source: SeedSource})
	}
	b.AddAll(rules)

	s.version++
	snap := b.Build(s.version, s.opts.Clock.Now(), s.opts.Bloom, s.opts.FPRate, s.newCache(), s.opts.CacheSize)
	s.current.Store(snap)

	st := snap.Stats()
	s.opts.Logger.Info(map[string]any{
		"version":        st.Version,
		"block_domains":  st.BlockDomains,
		"allow_domains":  st.AllowDomains,
		"block_patterns": st.BlockPatterns,
		"allow_patterns": st.AllowPatterns,
		"dropped":        st.Dropped,
	}, "Published rule snapshot")
}

// Stats reports on the published snapshot.
func (s *Store) Stats() Stats {
	return s.Current().Stats()
}

func (s *Store) newCache() DecisionCache {
	if s.opts.NewCache == nil || s.opts.CacheSize <= 0 {
		return nil
	}
	c, err := s.opts.NewCache(s.opts.CacheSize)
	if err != nil {
		s.opts.Logger.Warn(map[string]any{"error": err.Error(), "size": s.opts.CacheSize}, "Decision cache unavailable, continuing without it")
		return nil
	}
	return c
}
