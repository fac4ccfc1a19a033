package rulestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestCompileWildcard(t *testing.T) {
	cases := []struct {
		pattern string
		url     string
		want    bool
	}{
		{"https://*.example.com/*", "https://ads.example.com/x.js", true},
		{"https://*.example.com/*", "http://ads.example.com/x.js", false},
		{"*/ads/*", "https://site.com/ads/banner.png", true},
		{"*/ads/*", "https://site.com/nope/banner.png", false},
		{"*ad?.js", "https://cdn.com/ads.js", true},
		{"*ad?.js", "https://cdn.com/ad.js", false},
		{"*a.b*", "https://x.com/aXb", false}, // '.' is literal
		{"*(x)+*", "https://x.com/(x)+", true},
	}
	for _, tc := range cases {
		re, err := compileWildcard(tc.pattern)
		require.NoError(t, err, tc.pattern)
		assert.Equal(t, tc.want, re.MatchString(tc.url), "%s ~ %s", tc.pattern, tc.url)
	}
}

func TestCompileWildcard_InvalidUTF8Fails(t *testing.T) {
	_, err := compileWildcard("*\xff*")
	assert.Error(t, err)
}

func TestBuilder_RoutesRules(t *testing.T) {
	b := NewBuilder(nil)
	b.AllowDomain("GitHub.com.", "config")
	b.BlockDomain("doubleclick.net", "config")
	b.BlockDomain("", "config")
	b.AddAll([]domain.Rule{
		{Kind: domain.RuleHostBlock, Pattern: "Tracker.NET", Source: "hosts"},
		{Kind: domain.RuleBlock, Pattern: "/ads/", Source: "easylist"},
		{Kind: domain.RuleAllow, Pattern: "/ads/ok", Source: "easylist"},
		{Kind: domain.RuleBlock, Pattern: "*\xff*", Source: "broken"},
		{Kind: domain.RuleKind(9), Pattern: "x", Source: "broken"},
	})
	s := b.Build(7, time.Unix(100, 0), nil, 0, nil, 0)

	assert.True(t, s.Allowed("github.com"))
	assert.True(t, s.Blocked("doubleclick.net"))
	assert.True(t, s.Blocked("tracker.net"))
	assert.False(t, s.Blocked("github.com"))
	assert.False(t, s.Blocked(""))

	m, ok := s.MatchBlockPattern("https://x.com/ads/1")
	assert.True(t, ok)
	assert.Equal(t, "/ads/", m)
	m, ok = s.MatchAllowPattern("https://x.com/ads/ok")
	assert.True(t, ok)
	assert.Equal(t, "/ads/ok", m)

	st := s.Stats()
	assert.Equal(t, uint64(7), st.Version)
	assert.Equal(t, int64(100), st.BuiltUnix)
	assert.Equal(t, 2, st.BlockDomains)
	assert.Equal(t, 1, st.AllowDomains)
	assert.Equal(t, 1, st.BlockPatterns)
	assert.Equal(t, 1, st.AllowPatterns)
	assert.Equal(t, 3, st.Dropped)
	assert.Equal(t, 0, st.Cache.Capacity)
}

func TestBuilder_PatternOrderAndCaseSensitivity(t *testing.T) {
	b := NewBuilder(nil)
	b.Add(domain.Rule{Kind: domain.RuleBlock, Pattern: "ads", Source: "a"})
	b.Add(domain.Rule{Kind: domain.RuleBlock, Pattern: "https://*", Source: "b"})
	s := b.Build(1, time.Now(), nil, 0, nil, 0)

	m, ok := s.MatchBlockPattern("https://site.com/ads")
	require.True(t, ok)
	assert.Equal(t, "ads", m, "first pattern in rule order wins")

	_, ok = s.MatchBlockPattern("http://site.com/ADS")
	assert.False(t, ok, "substring match is case-sensitive")
}

func TestBuilder_ResetAfterBuild(t *testing.T) {
	b := NewBuilder(nil)
	b.BlockDomain("a.com", "x")
	s1 := b.Build(1, time.Now(), nil, 0, nil, 0)
	b.BlockDomain("b.com", "x")
	s2 := b.Build(2, time.Now(), nil, 0, nil, 0)

	assert.True(t, s1.Blocked("a.com"))
	assert.False(t, s1.Blocked("b.com"))
	assert.False(t, s2.Blocked("a.com"))
	assert.True(t, s2.Blocked("b.com"))
}

type stubBloom struct{ keys map[string]bool }

func (s *stubBloom) Add(k []byte)               { s.keys[string(k)] = true }
func (s *stubBloom) MightContain(k []byte) bool { return s.keys[string(k)] }

type stubBloomFactory struct{}

func (stubBloomFactory) New(uint64, float64) BloomFilter { return &stubBloom{keys: map[string]bool{}} }

func TestSnapshot_BloomPrefilter(t *testing.T) {
	b := NewBuilder(nil)
	b.BlockDomain("ads.com", "x")
	b.AllowDomain("ok.com", "x")
	s := b.Build(1, time.Now(), stubBloomFactory{}, 0.01, nil, 0)

	bf := s.bloom.(*stubBloom)
	assert.True(t, bf.keys["ads.com"])
	assert.True(t, bf.keys["ok.com"])
	assert.True(t, s.Blocked("ads.com"))
	assert.True(t, s.Allowed("ok.com"))
	assert.False(t, s.Blocked("other.com"))
}

func TestSnapshot_NopCache(t *testing.T) {
	s := NewBuilder(nil).Build(1, time.Now(), nil, 0, nil, 0)
	s.Remember("u", domain.DefaultDecision())
	_, ok := s.Cached("u")
	assert.False(t, ok)
}
