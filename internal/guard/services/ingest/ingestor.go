package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/parsers"
)

// Status is the result of refreshing one list.
type Status string

const (
	StatusUpdated Status = "updated"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Outcome reports what happened to one list during RefreshAll.
type Outcome struct {
	Name      string
	Status    Status
	RuleCount int
	Err       error
}

type list struct {
	meta  domain.FilterListMetadata
	rules []domain.Rule
}

// Ingestor owns the registered filter lists, their parsed rules and metadata,
// and publishes the combined rule set to a RuleSink.
//
// A failed refresh never discards a list's previous rules: the metadata
// records the error and the stale rules stay published.
type Ingestor struct {
	mu    sync.RWMutex
	order []string
	lists map[string]*list

	// serializes combine+publish so an older rule set never lands after a newer one
	publishMu sync.Mutex

	fetcher       Fetcher
	cache         RuleCache
	sink          RuleSink
	clock         clock.Clock
	logger        log.Logger
	maxConcurrent int
	maxRules      int
}

type Options struct {
	Fetcher       Fetcher
	Cache         RuleCache // optional
	Sink          RuleSink  // optional
	Clock         clock.Clock
	Logger        log.Logger
	MaxConcurrent int // parallel fetches in RefreshAll, defaults to 4
	MaxRules      int // cap on published rules, 0 = unlimited
}

func New(opts Options) *Ingestor {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	return &Ingestor{
		lists:         make(map[string]*list),
		fetcher:       opts.Fetcher,
		cache:         opts.Cache,
		sink:          opts.Sink,
		clock:         opts.Clock,
		logger:        opts.Logger,
		maxConcurrent: opts.MaxConcurrent,
		maxRules:      opts.MaxRules,
	}
}

// Register adds a list. Registration order decides rule order in CombinedRules.
func (in *Ingestor) Register(meta domain.FilterListMetadata) error {
	if err := meta.Validate(); err != nil {
		return fmt.Errorf("register %q: %w", meta.Name, err)
	}
	meta.LastUpdated = time.Time{}
	meta.LastAttempt = time.Time{}
	meta.LastError = ""
	meta.RuleCount = 0

	in.mu.Lock()
	defer in.mu.Unlock()
	if _, ok := in.lists[meta.Name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateList, meta.Name)
	}
	in.lists[meta.Name] = &list{meta: meta}
	in.order = append(in.order, meta.Name)
	return nil
}

// Parse turns raw list text into rules using meta's format. It touches no state.
func (in *Ingestor) Parse(meta domain.FilterListMetadata, raw io.Reader) ([]domain.Rule, error) {
	rules, err := parsers.Parse(meta.Format, raw, meta.Name, in.logger)
	if err != nil {
		return nil, &ParseError{List: meta.Name, Format: meta.Format, Err: err}
	}
	return rules, nil
}

// Load parses raw for the named list, replaces its rules and publishes.
// On a parse error the previous rules are kept and the error is recorded.
func (in *Ingestor) Load(name string, raw io.Reader) ([]domain.Rule, error) {
	rules, err := in.load(name, raw)
	if err != nil {
		if !errors.Is(err, ErrListNotFound) {
			in.markFailed(name, err)
		}
		return nil, err
	}
	in.publish()
	return rules, nil
}

// LoadFile reads a local file into the named list.
func (in *Ingestor) LoadFile(name, path string) ([]domain.Rule, error) {
	if _, err := in.meta(name); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		ferr := &FetchError{List: name, Locator: path, Err: err}
		in.markFailed(name, ferr)
		return nil, ferr
	}
	defer f.Close()
	return in.Load(name, f)
}

// Refresh fetches the named list and loads it. Disabled lists are fetched
// too when asked for by name.
func (in *Ingestor) Refresh(ctx context.Context, name string) error {
	if _, err := in.refresh(ctx, name); err != nil {
		return err
	}
	in.publish()
	return nil
}

// RefreshAll refreshes every enabled list with bounded concurrency. A failing
// list never stops its siblings. The combined rules are published once at the
// end if any list changed.
func (in *Ingestor) RefreshAll(ctx context.Context) []Outcome {
	metas := in.Metadata()
	outcomes := make([]Outcome, len(metas))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(in.maxConcurrent)
	for i, m := range metas {
		if !m.Enabled {
			outcomes[i] = Outcome{Name: m.Name, Status: StatusSkipped, RuleCount: m.RuleCount}
			continue
		}
		g.Go(func() error {
			n, err := in.refresh(gctx, m.Name)
			if err != nil {
				// the previous rules stay published
				outcomes[i] = Outcome{Name: m.Name, Status: StatusFailed, RuleCount: m.RuleCount, Err: err}
				return nil
			}
			outcomes[i] = Outcome{Name: m.Name, Status: StatusUpdated, RuleCount: n}
			return nil
		})
	}
	_ = g.Wait()

	changed := false
	failed := 0
	for _, o := range outcomes {
		switch o.Status {
		case StatusUpdated:
			changed = true
		case StatusFailed:
			failed++
		}
	}
	if changed {
		in.publish()
	}
	in.logger.Info(map[string]any{"lists": len(outcomes), "failed": failed}, "Filter list refresh complete")
	return outcomes
}

// Warm restores every registered list from the rule cache and publishes once.
// Lists without a cached copy are left empty. It returns how many lists were restored.
func (in *Ingestor) Warm() (int, error) {
	if in.cache == nil {
		return 0, nil
	}
	var errs []error
	warmed := 0
	for _, m := range in.Metadata() {
		rules, updated, ok, err := in.cache.LoadList(m.Name)
		if err != nil {
			in.logger.Warn(map[string]any{"list": m.Name, "error": err.Error()}, "Rule cache read failed")
			errs = append(errs, fmt.Errorf("warm %s: %w", m.Name, err))
			continue
		}
		if !ok {
			continue
		}
		in.mu.Lock()
		if l, exists := in.lists[m.Name]; exists {
			l.rules = rules
			l.meta.LastUpdated = updated
			l.meta.RuleCount = len(rules)
			warmed++
		}
		in.mu.Unlock()
	}
	if warmed > 0 {
		in.publish()
	}
	in.logger.Info(map[string]any{"lists": warmed}, "Restored filter lists from cache")
	return warmed, errors.Join(errs...)
}

// Run refreshes every enabled list immediately and then on every tick of
// interval until ctx is done. It is meant to run on its own goroutine.
func (in *Ingestor) Run(ctx context.Context, interval time.Duration) {
	in.RefreshAll(ctx)
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			in.RefreshAll(ctx)
		}
	}
}

// SetEnabled toggles a list and republishes.
func (in *Ingestor) SetEnabled(name string, enabled bool) error {
	in.mu.Lock()
	l, ok := in.lists[name]
	if !ok {
		in.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrListNotFound, name)
	}
	changed := l.meta.Enabled != enabled
	l.meta.Enabled = enabled
	in.mu.Unlock()
	if changed {
		in.publish()
	}
	return nil
}

// CombinedRules returns the rules of every enabled list in registration
// order, each list's rules in file order.
func (in *Ingestor) CombinedRules() []domain.Rule {
	in.mu.RLock()
	defer in.mu.RUnlock()
	n := 0
	for _, name := range in.order {
		if l := in.lists[name]; l.meta.Enabled {
			n += len(l.rules)
		}
	}
	out := make([]domain.Rule, 0, n)
	for _, name := range in.order {
		if l := in.lists[name]; l.meta.Enabled {
			out = append(out, l.rules...)
		}
	}
	return out
}

// Metadata returns a copy of every list's metadata in registration order.
func (in *Ingestor) Metadata() []domain.FilterListMetadata {
	in.mu.RLock()
	defer in.mu.RUnlock()
	out := make([]domain.FilterListMetadata, 0, len(in.order))
	for _, name := range in.order {
		out = append(out, in.lists[name].meta)
	}
	return out
}

// MetadataFor returns a copy of one list's metadata.
func (in *Ingestor) MetadataFor(name string) (domain.FilterListMetadata, error) {
	return in.meta(name)
}

func (in *Ingestor) meta(name string) (domain.FilterListMetadata, error) {
	in.mu.RLock()
	defer in.mu.RUnlock()
	l, ok := in.lists[name]
	if !ok {
		return domain.FilterListMetadata{}, fmt.Errorf("%w: %s", ErrListNotFound, name)
	}
	return l.meta, nil
}

// refresh fetches and loads one list without publishing.
func (in *Ingestor) refresh(ctx context.Context, name string) (int, error) {
	meta, err := in.meta(name)
	if err != nil {
		return 0, err
	}
	if in.fetcher == nil {
		ferr := &FetchError{List: name, Locator: meta.Locator, Err: errors.New("no fetcher configured")}
		in.markFailed(name, ferr)
		return 0, ferr
	}

	in.logger.Debug(map[string]any{"list": name, "locator": meta.Locator}, "filter_list_fetch_start")
	body, err := in.fetcher.Fetch(ctx, meta.Locator)
	if err != nil {
		ferr := &FetchError{List: name, Locator: meta.Locator, Err: err}
		in.markFailed(name, ferr)
		return 0, ferr
	}
	defer body.Close()

	rules, err := in.load(name, &readErrorTagger{r: body})
	if err != nil {
		var rerr *readError
		if errors.As(err, &rerr) {
			err = &FetchError{List: name, Locator: meta.Locator, Err: rerr.err}
		}
		in.markFailed(name, err)
		return 0, err
	}
	return len(rules), nil
}

// load parses raw and swaps the list's rules and metadata together. Callers
// record failures.
func (in *Ingestor) load(name string, raw io.Reader) ([]domain.Rule, error) {
	meta, err := in.meta(name)
	if err != nil {
		return nil, err
	}
	rules, err := in.Parse(meta, raw)
	if err != nil {
		return nil, err
	}

	now := in.clock.Now()
	in.mu.Lock()
	l, ok := in.lists[name]
	if ok {
		l.rules = rules
		l.meta.LastUpdated = now
		l.meta.LastAttempt = now
		l.meta.LastError = ""
		l.meta.RuleCount = len(rules)
	}
	in.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListNotFound, name)
	}

	if in.cache != nil {
		if err := in.cache.SaveList(name, rules, now); err != nil {
			in.logger.Warn(map[string]any{"list": name, "error": err.Error()}, "Rule cache write failed")
		}
	}
	in.logger.Info(map[string]any{"list": name, "rules": len(rules)}, "Filter list loaded")
	return rules, nil
}

func (in *Ingestor) markFailed(name string, cause error) {
	now := in.clock.Now()
	in.mu.Lock()
	if l, ok := in.lists[name]; ok {
		l.meta.LastAttempt = now
		l.meta.LastError = cause.Error()
	}
	in.mu.Unlock()
	in.logger.Warn(map[string]any{"list": name, "error": cause.Error()}, "Filter list update failed, keeping previous rules")
}

func (in *Ingestor) publish() {
	if in.sink == nil {
		return
	}
	in.publishMu.Lock()
	defer in.publishMu.Unlock()
	rules := in.CombinedRules()
	if in.maxRules > 0 && len(rules) > in.maxRules {
		in.logger.Warn(map[string]any{"rules": len(rules), "max_rules": in.maxRules}, "Rule limit reached, dropping excess rules")
		rules = rules[:in.maxRules]
	}
	in.sink.Replace(rules)
}

// readError marks an error that came from the fetched body rather than the
// parser, so it can be reported as a fetch failure.
type readError struct{ err error }

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }

type readErrorTagger struct{ r io.Reader }

func (t *readErrorTagger) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF {
		return n, &readError{err: err}
	}
	return n, err
}
