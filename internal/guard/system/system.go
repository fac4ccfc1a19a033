// Package system assembles the filtering components into one running
// instance and owns the process-wide handle used by hosts that intercept
// requests.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/config"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/gateways/fetch"
	"github.com/haukened/rr-guard/internal/guard/gateways/hooking"
	"github.com/haukened/rr-guard/internal/guard/gateways/metrics"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/bloom"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/bolt"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore/lru"
	"github.com/haukened/rr-guard/internal/guard/repos/statsfile"
	"github.com/haukened/rr-guard/internal/guard/services/engine"
	"github.com/haukened/rr-guard/internal/guard/services/ingest"
	"github.com/haukened/rr-guard/internal/guard/services/lifecycle"
	"github.com/haukened/rr-guard/internal/guard/services/stats"
)

const defaultShutdownTimeout = 10 * time.Second

// System is one fully wired filtering instance.
type System struct {
	id     string
	cfg    *config.AppConfig
	logger log.Logger
	clock  clock.Clock

	store     *rulestore.Store
	ruleCache *bolt.Store
	ingestor  *ingest.Ingestor
	engine    *engine.Engine
	stats     *stats.Collector
	lifecycle *lifecycle.Lifecycle
	registry  *hooking.Registry
	exporter  *metrics.Exporter
	writer    *statsfile.Writer

	refresh bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

type Options struct {
	Config *config.AppConfig
	Logger log.Logger
	Clock  clock.Clock

	// Fetcher overrides the http/file fetcher.
	Fetcher ingest.Fetcher
	// Hooker overrides the in-process hooking registry. Set NoHooking to run
	// without any hooking capability.
	Hooker    lifecycle.Hooker
	NoHooking bool
	// Refresh starts the periodic list refresh loop on Start.
	Refresh bool
	// NoStatsFile keeps stats in memory only.
	NoStatsFile bool
	// NoRuleCache skips the on-disk rule cache.
	NoRuleCache bool
}

// New builds every component from cfg. Nothing runs until Start.
func New(opts Options) (*System, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.GetLogger()
	}
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	cfg := opts.Config
	logger := opts.Logger

	s := &System{
		id:      uuid.NewString(),
		cfg:     cfg,
		logger:  logger,
		clock:   opts.Clock,
		refresh: opts.Refresh,
	}

	s.store = rulestore.New(cfg.Seeds(), rulestore.Options{
		Bloom:     bloom.NewFactory(),
		FPRate:    cfg.Filters.BloomFPRate,
		NewCache:  lru.Factory(),
		CacheSize: cfg.Filters.DecisionCacheSize,
		Clock:     opts.Clock,
		Logger:    logger,
	})

	var ruleCache ingest.RuleCache
	if cfg.Filters.CacheDB != "" && !opts.NoRuleCache {
		if err := os.MkdirAll(filepath.Dir(cfg.Filters.CacheDB), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create rule cache directory: %w", err)
		}
		db, err := bolt.New(cfg.Filters.CacheDB)
		if err != nil {
			return nil, fmt.Errorf("failed to open rule cache %s: %w", cfg.Filters.CacheDB, err)
		}
		s.ruleCache = db
		ruleCache = db
	}

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = fetch.New(fetch.Options{Timeout: cfg.Filters.FetchTimeout, Logger: logger})
	}
	s.ingestor = ingest.New(ingest.Options{
		Fetcher:       fetcher,
		Cache:         ruleCache,
		Sink:          s.store,
		Clock:         opts.Clock,
		Logger:        logger,
		MaxConcurrent: cfg.Filters.MaxConcurrentFetches,
		MaxRules:      cfg.Filters.MaxRules,
	})
	lists, err := cfg.ListDescriptors()
	if err != nil {
		s.closeCache()
		return nil, err
	}
	for _, m := range lists {
		if err := s.ingestor.Register(m); err != nil {
			s.closeCache()
			return nil, fmt.Errorf("failed to register filter list: %w", err)
		}
	}

	s.engine = engine.New(engine.Options{Rules: s.store, Logger: logger})
	s.stats = stats.New(stats.Options{Clock: opts.Clock, Logger: logger})

	hooks := cfg.HookDescriptors()
	var hooker lifecycle.Hooker
	switch {
	case opts.NoHooking:
	case opts.Hooker != nil:
		hooker = opts.Hooker
	default:
		s.registry = hooking.NewRegistry(logger)
		for _, h := range hooks {
			s.registry.RegisterSymbol(h.Library, h.Name)
		}
		hooker = s.registry
	}
	s.lifecycle = lifecycle.New(lifecycle.Options{
		Hooks:  hooks,
		Hooker: hooker,
		Engine: s.engine,
		Stats:  s.stats,
		Clock:  opts.Clock,
		Logger: logger,
	})

	if cfg.Stats.Enabled && !opts.NoStatsFile {
		s.writer, err = statsfile.NewWriter(cfg.Stats.File, statsfile.Format(cfg.Stats.Format))
		if err != nil {
			s.closeCache()
			return nil, err
		}
	}

	if cfg.Metrics.Addr != "" {
		s.exporter, err = metrics.NewExporter(metrics.NewCollector(metrics.Sources{
			Requests: s.lifecycle,
			Stats:    s.stats,
			Rules:    s.store,
			Lists:    s.ingestor,
		}), metrics.Options{Addr: cfg.Metrics.Addr, Logger: logger, Runtime: true})
		if err != nil {
			s.closeCache()
			return nil, err
		}
	}

	return s, nil
}

// Start restores cached lists, installs hooks and launches the background
// loops. Missing hooking support is logged, not returned.
func (s *System) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyRunning
	}

	if s.cfg.Stats.Enabled {
		s.stats.Start()
	}

	if n, err := s.ingestor.Warm(); err != nil {
		s.logger.Warn(map[string]any{"restored": n, "error": err.Error()}, "Rule cache partially restored")
	}

	if _, err := s.lifecycle.InstallAll(); err != nil {
		if !lifecycle.IsUnavailable(err) {
			return fmt.Errorf("failed to install hooks: %w", err)
		}
		s.logger.Warn(nil, "Running without request interception")
	}

	if s.exporter != nil {
		if err := s.exporter.Start(); err != nil {
			s.lifecycle.UninstallAll()
			s.stats.Stop()
			return err
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.refresh {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ingestor.Run(runCtx, s.cfg.Filters.UpdateInterval)
		}()
	}
	if s.writer != nil && s.cfg.Stats.FlushInterval > 0 {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.flushLoop(runCtx, s.cfg.Stats.FlushInterval)
		}()
	}

	s.started = true
	st := s.store.Stats()
	s.logger.Info(map[string]any{
		"id":             s.id,
		"lists":          len(s.ingestor.Metadata()),
		"hooks":          s.lifecycle.InstalledCount(),
		"block_domains":  st.BlockDomains,
		"block_patterns": st.BlockPatterns,
	}, "Request guard started")
	return nil
}

// Stop halts the loops, removes hooks, writes a final stats snapshot and
// releases the rule cache. The System cannot be restarted.
func (s *System) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotRunning
	}
	s.started = false

	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn(nil, "Background loops did not stop before the shutdown deadline")
	}

	var errs []error
	report := s.lifecycle.UninstallAll()
	for _, f := range report.Failed {
		errs = append(errs, f.Err)
	}

	if s.writer != nil {
		if err := s.writer.Write(s.stats.Snapshot()); err != nil {
			errs = append(errs, fmt.Errorf("final stats flush: %w", err))
		}
	}
	s.stats.Stop()

	if s.exporter != nil {
		if err := s.exporter.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.closeCache(); err != nil {
		errs = append(errs, err)
	}

	total, blocked := s.lifecycle.GetCounts()
	s.logger.Info(map[string]any{"id": s.id, "total": total, "blocked": blocked}, "Request guard stopped")
	return errors.Join(errs...)
}

func (s *System) flushLoop(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.writer.Write(s.stats.Snapshot()); err != nil {
				s.logger.Warn(map[string]any{"file": s.writer.Path(), "error": err.Error()}, "Stats flush failed")
			}
		}
	}
}

func (s *System) closeCache() error {
	if s.ruleCache == nil {
		return nil
	}
	err := s.ruleCache.Close()
	s.ruleCache = nil
	return err
}

// ID identifies this instance in logs.
func (s *System) ID() string { return s.id }

// ShouldBlock runs one request through the full request path, counting it.
func (s *System) ShouldBlock(rawURL, reqType, origin string) bool {
	return s.lifecycle.AnalyzeRequest(domain.NewRequest(rawURL, reqType, origin)).IsBlock()
}

// Decide evaluates a URL without touching any counter.
func (s *System) Decide(rawURL string) domain.Decision {
	return s.engine.Decide(domain.NewRequest(rawURL, "", ""))
}

// RefreshLists refreshes every enabled list once.
func (s *System) RefreshLists(ctx context.Context) []ingest.Outcome {
	return s.ingestor.RefreshAll(ctx)
}

// Warm restores lists from the rule cache without starting anything.
func (s *System) Warm() (int, error) { return s.ingestor.Warm() }

func (s *System) Lists() []domain.FilterListMetadata { return s.ingestor.Metadata() }

func (s *System) Hooks() []lifecycle.HookStatus { return s.lifecycle.Records() }

func (s *System) Stats() domain.Stats { return s.stats.Snapshot() }

func (s *System) RuleStats() rulestore.Stats { return s.store.Stats() }

// Counts returns the total and blocked requests seen by the request path.
func (s *System) Counts() (total, blocked uint64) { return s.lifecycle.GetCounts() }

// Registry returns the in-process hooking registry, or nil when a custom
// hooker or no hooking was configured.
func (s *System) Registry() *hooking.Registry { return s.registry }

// MetricsAddr returns the bound metrics address, or "" when disabled.
func (s *System) MetricsAddr() string {
	if s.exporter == nil {
		return ""
	}
	return s.exporter.Addr()
}

// Close releases resources of a System that was never started.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("system is running, use Stop")
	}
	return s.closeCache()
}
