package ingest

import (
	"context"
	"io"
	"time"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// Fetcher retrieves raw list text from a locator (http(s) URL, file:// URL or path).
// Implementations enforce their own timeout in addition to ctx.
type Fetcher interface {
	Fetch(ctx context.Context, locator string) (io.ReadCloser, error)
}

// RuleCache persists each list's last good rules across restarts.
type RuleCache interface {
	SaveList(name string, rules []domain.Rule, updated time.Time) error
	LoadList(name string) (rules []domain.Rule, updated time.Time, ok bool, err error)
}

// RuleSink receives the combined rule set whenever it changes.
// Implemented by rulestore.Store.
type RuleSink interface {
	Replace(rules []domain.Rule)
}
