package engine

import (
	"strconv"
	"testing"

	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/lru"
)

func benchStore(b *testing.B) *rulestore.Store {
	b.Helper()
	s := scenarioStore()
	s.Replace(benchRules())
	return s
}

func benchRules() []domain.Rule {
	rules := make([]domain.Rule, 0, 20_000)
	for i := 0; i < 10_000; i++ {
		rules = append(rules,
			domain.Rule{Kind: domain.RuleBlock, Pattern: "/adpath" + strconv.Itoa(i) + "/", Source: "bench"},
			domain.Rule{Kind: domain.RuleHostBlock, Pattern: "ads" + strconv.Itoa(i) + ".example", Source: "bench"},
		)
	}
	return rules
}

func BenchmarkEngine_DecideCached(b *testing.B) {
	e := New(Options{Rules: benchStore(b)})
	r := req("https://example.com/api/v1/items")
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Decide(r)
	}
}

func BenchmarkEngine_DecideUncached(b *testing.B) {
	e := New(Options{Rules: benchStore(b)})
	urls := make([]domain.Request, 1024)
	for i := range urls {
		urls[i] = req("https://site" + strconv.Itoa(i) + ".example/path")
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = e.Decide(urls[i%len(urls)])
	}
}

// Run with -mutexprofile to inspect decision cache contention across threads.
func BenchmarkEngine_DecideParallel(b *testing.B) {
	s := rulestore.New(rulestore.Seeds{}, rulestore.Options{NewCache: lru.Factory(), CacheSize: 10_000})
	s.Replace(benchRules())
	e := New(Options{Rules: s})
	urls := make([]domain.Request, 4096)
	for i := range urls {
		urls[i] = req("https://site" + strconv.Itoa(i%512) + ".example/p/" + strconv.Itoa(i))
	}
	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = e.Decide(urls[i%len(urls)])
			i++
		}
	})
}
