package engine

import (
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/common/utils"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
)

// Engine evaluates requests against the current rule snapshot with a fixed
// precedence: allowlist, domain blocklist, patterns, default allow.
// It holds no mutable state of its own and is safe for concurrent use.
type Engine struct {
	rules  Rules
	logger log.Logger
}

type Options struct {
	Rules  Rules
	Logger log.Logger
}

func New(opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	return &Engine{rules: opts.Rules, logger: opts.Logger}
}

// Evaluate returns the verdict for req.
func (e *Engine) Evaluate(req domain.Request) domain.Verdict {
	return e.Decide(req).Verdict
}

// Decide returns the verdict for req along with the step that produced it.
// Decisions are memoized per snapshot, keyed by URL.
func (e *Engine) Decide(req domain.Request) domain.Decision {
	snap := e.rules.Current()
	if d, ok := snap.Cached(req.URL); ok {
		return d
	}
	d := decide(snap, req.URL)
	snap.Remember(req.URL, d)
	if d.Blocked() {
		e.logger.Debug(map[string]any{"url": req.URL, "type": req.Type, "reason": string(d.Reason), "matched": d.Matched}, "request_blocked")
	}
	return d
}

func decide(snap *rulestore.Snapshot, url string) domain.Decision {
	// a URL without a host skips the domain steps
	if host, ok := utils.ExtractHost(url); ok {
		if snap.Allowed(host) {
			return domain.Decision{Verdict: domain.VerdictAllow, Reason: domain.ReasonAllowlist, Matched: host}
		}
		if snap.Blocked(host) {
			return domain.Decision{Verdict: domain.VerdictBlock, Reason: domain.ReasonBlocklist, Matched: host}
		}
	}
	if p, ok := snap.MatchBlockPattern(url); ok {
		if exc, ok := snap.MatchAllowPattern(url); ok {
			return domain.Decision{Verdict: domain.VerdictAllow, Reason: domain.ReasonAllowPattern, Matched: exc}
		}
		return domain.Decision{Verdict: domain.VerdictBlock, Reason: domain.ReasonPattern, Matched: p}
	}
	return domain.DefaultDecision()
}
