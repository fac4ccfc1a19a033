package stats

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// Collector accumulates filtering counters behind an on/off gate.
//
// Record calls hold the gate's shared side and only touch atomics and
// sharded maps, so they never serialize each other. Snapshot and Reset take
// the exclusive side, which makes a snapshot a consistent cut. A record racing
// a Stop may or may not be counted; either way it is counted at most once.
type Collector struct {
	gate    sync.RWMutex
	running atomic.Bool

	total   atomic.Uint64
	blocked atomic.Uint64
	allowed atomic.Uint64
	domains counterMap
	types   counterMap

	latSumUs atomic.Uint64
	latCount atomic.Uint64
	latMaxUs atomic.Uint64

	startTime   atomic.Int64 // unix nanos, 0 = never started
	lastUpdated atomic.Int64

	clock  clock.Clock
	memory func() uint64
	logger log.Logger
}

type Options struct {
	Clock  clock.Clock
	Logger log.Logger
	// Memory reports process memory for PerformanceMetrics. Defaults to the
	// Go runtime's view of memory obtained from the OS.
	Memory func() uint64
}

// New returns a stopped Collector.
func New(opts Options) *Collector {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Memory == nil {
		opts.Memory = runtimeMemory
	}
	return &Collector{clock: opts.Clock, logger: opts.Logger, memory: opts.Memory}
}

func runtimeMemory() uint64 {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys
}

// Start opens the gate. The first Start stamps StartTime.
func (c *Collector) Start() {
	c.startTime.CompareAndSwap(0, c.clock.Now().UnixNano())
	if !c.running.Swap(true) {
		c.logger.Info(nil, "Stats collection started")
	}
}

// Stop closes the gate. Counters are kept.
func (c *Collector) Stop() {
	if c.running.Swap(false) {
		c.logger.Info(nil, "Stats collection stopped")
	}
}

// Running reports whether records are being counted.
func (c *Collector) Running() bool { return c.running.Load() }

// RecordBlocked counts one blocked request for domain and reqType.
func (c *Collector) RecordBlocked(domainName, reqType string) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.running.Load() {
		return
	}
	c.total.Add(1)
	c.blocked.Add(1)
	c.domains.inc(domainName)
	c.types.inc(normalizeType(reqType))
	c.touch()
}

// RecordAllowed counts one allowed request. Allowed domains are not tracked.
func (c *Collector) RecordAllowed(_ string, reqType string) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.running.Load() {
		return
	}
	c.total.Add(1)
	c.allowed.Add(1)
	c.types.inc(normalizeType(reqType))
	c.touch()
}

// ObserveLatency folds one request's processing time into the performance metrics.
func (c *Collector) ObserveLatency(d time.Duration) {
	c.gate.RLock()
	defer c.gate.RUnlock()
	if !c.running.Load() {
		return
	}
	us := uint64(d.Microseconds())
	c.latSumUs.Add(us)
	c.latCount.Add(1)
	for {
		cur := c.latMaxUs.Load()
		if us <= cur || c.latMaxUs.CompareAndSwap(cur, us) {
			return
		}
	}
}

// Snapshot returns a consistent copy of every counter.
func (c *Collector) Snapshot() domain.Stats {
	mem := c.memory()

	c.gate.Lock()
	defer c.gate.Unlock()

	perf := domain.PerformanceMetrics{
		MaxProcessingTimeUs: c.latMaxUs.Load(),
		MemoryUsageBytes:    mem,
	}
	if n := c.latCount.Load(); n > 0 {
		perf.AvgProcessingTimeUs = c.latSumUs.Load() / n
	}
	return domain.Stats{
		TotalRequests:   c.total.Load(),
		BlockedRequests: c.blocked.Load(),
		AllowedRequests: c.allowed.Load(),
		DomainsBlocked:  c.domains.copy(),
		RequestTypes:    c.types.copy(),
		Performance:     perf,
		StartTime:       unixNanoTime(c.startTime.Load()),
		LastUpdated:     unixNanoTime(c.lastUpdated.Load()),
	}
}

// Reset zeroes every counter and restarts the StartTime clock. The gate
// state is unchanged.
func (c *Collector) Reset() {
	c.gate.Lock()
	defer c.gate.Unlock()

	c.total.Store(0)
	c.blocked.Store(0)
	c.allowed.Store(0)
	c.domains.reset()
	c.types.reset()
	c.latSumUs.Store(0)
	c.latCount.Store(0)
	c.latMaxUs.Store(0)
	c.lastUpdated.Store(0)
	c.startTime.Store(c.clock.Now().UnixNano())
	c.logger.Info(nil, "Stats reset")
}

func (c *Collector) touch() {
	c.lastUpdated.Store(c.clock.Now().UnixNano())
}

func normalizeType(t string) string {
	if t == "" {
		return domain.RequestTypeOther
	}
	return t
}

func unixNanoTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
