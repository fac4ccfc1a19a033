// Package metrics exposes filtering counters, rule snapshot shape and filter
// list health as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/rulestore"
)

const namespace = "rrguard"

// RequestCounts is implemented by lifecycle.Lifecycle.
type RequestCounts interface {
	GetCounts() (total, blocked uint64)
	AllowedCount() uint64
	InstalledCount() int
}

// StatsSource is implemented by stats.Collector.
type StatsSource interface {
	Snapshot() domain.Stats
}

// RuleSource is implemented by rulestore.Store.
type RuleSource interface {
	Stats() rulestore.Stats
}

// ListSource is implemented by ingest.Ingestor.
type ListSource interface {
	Metadata() []domain.FilterListMetadata
}

// Sources are read on every scrape. Any of them may be nil.
type Sources struct {
	Requests RequestCounts
	Stats    StatsSource
	Rules    RuleSource
	Lists    ListSource
}

// Collector is a prometheus.Collector that reads the live components at
// scrape time instead of mirroring counters.
type Collector struct {
	src Sources

	requests       *prometheus.Desc
	hooksInstalled *prometheus.Desc
	requestTypes   *prometheus.Desc
	latencyAvg     *prometheus.Desc
	latencyMax     *prometheus.Desc
	memory         *prometheus.Desc
	rules          *prometheus.Desc
	rulesDropped   *prometheus.Desc
	version        *prometheus.Desc
	cacheEntries   *prometheus.Desc
	cacheHits      *prometheus.Desc
	cacheMisses    *prometheus.Desc
	cacheEvictions *prometheus.Desc
	listRules      *prometheus.Desc
	listUpdated    *prometheus.Desc
	listStale      *prometheus.Desc
}

func NewCollector(src Sources) *Collector {
	d := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		src:            src,
		requests:       d("requests_total", "Intercepted requests by verdict.", "verdict"),
		hooksInstalled: d("hooks_installed", "Hooks currently installed."),
		requestTypes:   d("stats_requests_by_type", "Requests recorded by the stats collector, by request type.", "type"),
		latencyAvg:     d("processing_time_avg_microseconds", "Average decision time."),
		latencyMax:     d("processing_time_max_microseconds", "Slowest decision time."),
		memory:         d("memory_usage_bytes", "Process memory as reported by the stats collector."),
		rules:          d("rules", "Entries in the current rule snapshot.", "kind"),
		rulesDropped:   d("rules_dropped", "Rules rejected while building the current snapshot."),
		version:        d("snapshot_version", "Version of the current rule snapshot."),
		cacheEntries:   d("decision_cache_entries", "Decisions memoized for the current snapshot."),
		cacheHits:      d("decision_cache_hits_total", "Decision cache hits for the current snapshot."),
		cacheMisses:    d("decision_cache_misses_total", "Decision cache misses for the current snapshot."),
		cacheEvictions: d("decision_cache_evictions_total", "Decision cache evictions for the current snapshot."),
		listRules:      d("filter_list_rules", "Rules parsed from each filter list.", "list"),
		listUpdated:    d("filter_list_last_update_timestamp_seconds", "Last successful load of each filter list.", "list"),
		listStale:      d("filter_list_stale", "1 when the last refresh of a list failed.", "list"),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.hooksInstalled, c.requestTypes, c.latencyAvg, c.latencyMax, c.memory,
		c.rules, c.rulesDropped, c.version, c.cacheEntries, c.cacheHits, c.cacheMisses,
		c.cacheEvictions, c.listRules, c.listUpdated, c.listStale,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if r := c.src.Requests; r != nil {
		_, blocked := r.GetCounts()
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(blocked), "blocked")
		ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(r.AllowedCount()), "allowed")
		ch <- prometheus.MustNewConstMetric(c.hooksInstalled, prometheus.GaugeValue, float64(r.InstalledCount()))
	}

	if s := c.src.Stats; s != nil {
		snap := s.Snapshot()
		for t, n := range snap.RequestTypes {
			ch <- prometheus.MustNewConstMetric(c.requestTypes, prometheus.GaugeValue, float64(n), t)
		}
		ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, float64(snap.Performance.AvgProcessingTimeUs))
		ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, float64(snap.Performance.MaxProcessingTimeUs))
		ch <- prometheus.MustNewConstMetric(c.memory, prometheus.GaugeValue, float64(snap.Performance.MemoryUsageBytes))
	}

	if r := c.src.Rules; r != nil {
		st := r.Stats()
		ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(st.BlockDomains), "block_domain")
		ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(st.AllowDomains), "allow_domain")
		ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(st.BlockPatterns), "block_pattern")
		ch <- prometheus.MustNewConstMetric(c.rules, prometheus.GaugeValue, float64(st.AllowPatterns), "allow_pattern")
		ch <- prometheus.MustNewConstMetric(c.rulesDropped, prometheus.GaugeValue, float64(st.Dropped))
		ch <- prometheus.MustNewConstMetric(c.version, prometheus.GaugeValue, float64(st.Version))
		ch <- prometheus.MustNewConstMetric(c.cacheEntries, prometheus.GaugeValue, float64(st.Cache.Size))
		// reset with every snapshot swap, which Prometheus treats as a counter reset
		ch <- prometheus.MustNewConstMetric(c.cacheHits, prometheus.CounterValue, float64(st.Cache.Hits))
		ch <- prometheus.MustNewConstMetric(c.cacheMisses, prometheus.CounterValue, float64(st.Cache.Misses))
		ch <- prometheus.MustNewConstMetric(c.cacheEvictions, prometheus.CounterValue, float64(st.Cache.Evictions))
	}

	if l := c.src.Lists; l != nil {
		for _, m := range l.Metadata() {
			ch <- prometheus.MustNewConstMetric(c.listRules, prometheus.GaugeValue, float64(m.RuleCount), m.Name)
			var updated float64
			if m.Updated() {
				updated = float64(m.LastUpdated.Unix())
			}
			ch <- prometheus.MustNewConstMetric(c.listUpdated, prometheus.GaugeValue, updated, m.Name)
			var stale float64
			if m.Stale() {
				stale = 1
			}
			ch <- prometheus.MustNewConstMetric(c.listStale, prometheus.GaugeValue, stale, m.Name)
		}
	}
}

var _ prometheus.Collector = (*Collector)(nil)
