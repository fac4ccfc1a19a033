package rulestore

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/common/utils"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// pattern is one URL rule. Plain patterns match by case-sensitive substring
// containment; wildcard patterns carry a compiled anchored expression.
type pattern struct {
	raw    string
	source string
	re     *regexp.Regexp
}

func (p pattern) match(url string) bool {
	if p.re != nil {
		return p.re.MatchString(url)
	}
	return strings.Contains(url, p.raw)
}

// Snapshot is one immutable generation of the rule set. Readers share it
// freely; a new generation is built and swapped in wholesale. The Bloom filter
// and decision cache belong to the generation, so a swap invalidates both.
type Snapshot struct {
	version       uint64
	builtAt       time.Time
	block         map[string]string // canonical domain -> source
	allow         map[string]string
	blockPatterns []pattern
	allowPatterns []pattern
	bloom         BloomFilter
	cache         DecisionCache
	cacheCap      int
	dropped       int
}

// Version returns the generation number.
func (s *Snapshot) Version() uint64 { return s.version }

// BuiltAt returns when the generation was published.
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// mightHaveDomain consults the Bloom prefilter. No filter means every lookup
// goes to the maps.
func (s *Snapshot) mightHaveDomain(host string) bool {
	if s.bloom == nil {
		return true
	}
	return s.bloom.MightContain([]byte(host))
}

// Allowed reports whether host is in the allow set.
func (s *Snapshot) Allowed(host string) bool {
	if host == "" || !s.mightHaveDomain(host) {
		return false
	}
	_, ok := s.allow[host]
	return ok
}

// Blocked reports whether host is in the block set.
func (s *Snapshot) Blocked(host string) bool {
	if host == "" || !s.mightHaveDomain(host) {
		return false
	}
	_, ok := s.block[host]
	return ok
}

// MatchBlockPattern returns the first block pattern, in rule order, that matches url.
func (s *Snapshot) MatchBlockPattern(url string) (string, bool) {
	return firstMatch(s.blockPatterns, url)
}

// MatchAllowPattern returns the first allow pattern, in rule order, that matches url.
func (s *Snapshot) MatchAllowPattern(url string) (string, bool) {
	return firstMatch(s.allowPatterns, url)
}

func firstMatch(ps []pattern, url string) (string, bool) {
	for _, p := range ps {
		if p.match(url) {
			return p.raw, true
		}
	}
	return "", false
}

// Cached returns a memoized decision for url.
func (s *Snapshot) Cached(url string) (domain.Decision, bool) {
	return s.cache.Get(url)
}

// Remember memoizes a decision for url in this generation.
func (s *Snapshot) Remember(url string, d domain.Decision) {
	s.cache.Put(url, d)
}

// Stats reports the size of this generation and its cache counters.
func (s *Snapshot) Stats() Stats {
	hits, misses, evictions := s.cache.Stats()
	return Stats{
		Version:       s.version,
		BuiltUnix:     s.builtAt.Unix(),
		BlockDomains:  len(s.block),
		AllowDomains:  len(s.allow),
		BlockPatterns: len(s.blockPatterns),
		AllowPatterns: len(s.allowPatterns),
		Dropped:       s.dropped,
		Cache: CacheStats{
			Capacity:  s.cacheCap,
			Size:      s.cache.Len(),
			Hits:      hits,
			Misses:    misses,
			Evictions: evictions,
		},
	}
}

// Builder accumulates rules for a new Snapshot. It is not safe for concurrent use.
type Builder struct {
	logger        log.Logger
	block         map[string]string
	allow         map[string]string
	blockPatterns []pattern
	allowPatterns []pattern
	dropped       int
}

// NewBuilder returns an empty Builder. A nil logger discards diagnostics.
func NewBuilder(logger log.Logger) *Builder {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Builder{
		logger: logger,
		block:  make(map[string]string),
		allow:  make(map[string]string),
	}
}

// AllowDomain adds a domain to the allow set.
func (b *Builder) AllowDomain(name, source string) {
	if cn := utils.CanonicalHost(name); cn != "" {
		if _, ok := b.allow[cn]; !ok {
			b.allow[cn] = source
		}
		return
	}
	b.dropped++
}

// BlockDomain adds a domain to the block set.
func (b *Builder) BlockDomain(name, source string) {
	if cn := utils.CanonicalHost(name); cn != "" {
		if _, ok := b.block[cn]; !ok {
			b.block[cn] = source
		}
		return
	}
	b.dropped++
}

// Add routes a rule to the matching set. Wildcard patterns are compiled here;
// a pattern that fails to compile is dropped and logged.
func (b *Builder) Add(r domain.Rule) {
	switch r.Kind {
	case domain.RuleHostBlock:
		b.BlockDomain(r.Pattern, r.Source)
	case domain.RuleBlock, domain.RuleAllow:
		p, err := newPattern(r)
		if err != nil {
			b.dropped++
			b.logger.Warn(map[string]any{"pattern": r.Pattern, "source": r.Source, "error": err.Error()}, "pattern_compile_failed")
			return
		}
		if r.Kind == domain.RuleAllow {
			b.allowPatterns = append(b.allowPatterns, p)
		} else {
			b.blockPatterns = append(b.blockPatterns, p)
		}
	default:
		b.dropped++
		b.logger.Warn(map[string]any{"kind": r.Kind.String(), "source": r.Source}, "rule_unknown_kind")
	}
}

// AddAll adds rules in order.
func (b *Builder) AddAll(rules []domain.Rule) {
	for _, r := range rules {
		b.Add(r)
	}
}

// Build freezes the accumulated rules. A nil cache disables memoization and a
// nil bloom factory disables the prefilter.
func (b *Builder) Build(version uint64, builtAt time.Time, factory BloomFactory, fpRate float64, cache DecisionCache, cacheCap int) *Snapshot {
	if cache == nil {
		cache = nopCache{}
		cacheCap = 0
	}
	s := &Snapshot{
		version:       version,
		builtAt:       builtAt,
		block:         b.block,
		allow:         b.allow,
		blockPatterns: b.blockPatterns,
		allowPatterns: b.allowPatterns,
		cache:         cache,
		cacheCap:      cacheCap,
		dropped:       b.dropped,
	}
	if factory != nil {
		bf := factory.New(uint64(len(b.block)+len(b.allow)), fpRate)
		for name := range b.block {
			bf.Add([]byte(name))
		}
		for name := range b.allow {
			bf.Add([]byte(name))
		}
		s.bloom = bf
	}
	// the builder must not mutate a published snapshot
	*b = Builder{logger: b.logger, block: map[string]string{}, allow: map[string]string{}}
	return s
}

func newPattern(r domain.Rule) (pattern, error) {
	if r.Pattern == "" {
		return pattern{}, fmt.Errorf("empty pattern")
	}
	p := pattern{raw: r.Pattern, source: r.Source}
	if !r.IsWildcard() {
		return p, nil
	}
	re, err := compileWildcard(r.Pattern)
	if err != nil {
		return pattern{}, err
	}
	p.re = re
	return p, nil
}

// compileWildcard turns a '*'/'?' pattern into an anchored expression where
// every other character is literal.
func compileWildcard(raw string) (*regexp.Regexp, error) {
	var sb strings.Builder
	sb.WriteString(`^(?s:`)
	start := 0
	for i := 0; i < len(raw); i++ {
		switch raw[i] {
		case '*':
			sb.WriteString(regexp.QuoteMeta(raw[start:i]))
			sb.WriteString(`.*`)
			start = i + 1
		case '?':
			sb.WriteString(regexp.QuoteMeta(raw[start:i]))
			sb.WriteString(`.`)
			start = i + 1
		}
	}
	sb.WriteString(regexp.QuoteMeta(raw[start:]))
	sb.WriteString(`)$`)
	return regexp.Compile(sb.String())
}
