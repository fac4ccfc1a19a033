package system

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/config"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/repos/statsfile"
	"github.com/haukened/rr-guard/internal/guard/services/ingest"
)

func testConfig(t *testing.T) (*config.AppConfig, string) {
	t.Helper()
	dir := t.TempDir()
	listPath := filepath.Join(dir, "custom.txt")
	require.NoError(t, os.WriteFile(listPath, []byte("# local\n/tracker/\n"), 0o600))

	cfg := config.DEFAULT_APP_CONFIG
	cfg.Filters.Lists = []config.ListConfig{
		{Name: "local", Locator: listPath, Format: "custom", Enabled: true, Priority: 10},
	}
	cfg.Filters.CacheDB = filepath.Join(dir, "db", "lists.db")
	cfg.Stats.File = filepath.Join(dir, "state", "stats.yaml")
	cfg.Stats.Format = "yaml"
	cfg.Stats.FlushInterval = 0
	return &cfg, listPath
}

func TestSystem_EndToEnd(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Metrics.Addr = "127.0.0.1:0"

	s, err := New(Options{Config: cfg, Logger: log.NewNoopLogger(), Refresh: true})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyRunning)

	assert.Eventually(t, func() bool {
		return s.Decide("https://cdn.test/tracker/pixel.gif").Blocked()
	}, 2*time.Second, 10*time.Millisecond)

	assert.True(t, s.ShouldBlock("https://doubleclick.net/ad.js", "script", ""))
	assert.False(t, s.ShouldBlock("https://github.com/ads/banner.png", "image", ""), "allowlist wins over patterns")
	assert.True(t, s.ShouldBlock("https://example.com/analytics.js", "script", ""))

	for _, h := range s.Hooks() {
		assert.Equal(t, domain.HookInstalled, h.State, h.Name)
		assert.NotEmpty(t, h.ID)
	}
	verdict := s.Registry().Dispatch("libc.so", "connect", domain.NewRequest("https://googlesyndication.com/x", "", ""))
	assert.Equal(t, domain.VerdictBlock, verdict)

	total, blocked := s.Counts()
	assert.Equal(t, uint64(4), total)
	assert.Equal(t, uint64(3), blocked)

	resp, err := http.Get("http://" + s.MetricsAddr() + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `rrguard_requests_total{verdict="blocked"} 3`)
	assert.Contains(t, string(body), `rrguard_filter_list_rules{list="local"} 1`)

	require.NoError(t, s.Stop(context.Background()))
	assert.ErrorIs(t, s.Stop(context.Background()), ErrNotRunning)
	for _, h := range s.Hooks() {
		assert.Equal(t, domain.HookUninstalled, h.State)
	}

	st, err := statsfile.Read(cfg.Stats.File)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), st.TotalRequests)
	assert.Equal(t, uint64(3), st.BlockedRequests)
	assert.Equal(t, uint64(1), st.DomainsBlocked["doubleclick.net"])
}

func TestSystem_WarmFromRuleCache(t *testing.T) {
	cfg, listPath := testConfig(t)

	first, err := New(Options{Config: cfg, Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	outcomes := first.RefreshLists(context.Background())
	require.Len(t, outcomes, 1)
	require.Equal(t, ingest.StatusUpdated, outcomes[0].Status)
	require.NoError(t, first.Close())

	require.NoError(t, os.Remove(listPath))

	second, err := New(Options{Config: cfg, Logger: log.NewNoopLogger()})
	require.NoError(t, err)
	require.NoError(t, second.Start(context.Background()))
	defer second.Stop(context.Background())

	assert.True(t, second.Decide("https://cdn.test/tracker/pixel.gif").Blocked(), "cached rules survive a restart")
	lists := second.Lists()
	require.Len(t, lists, 1)
	assert.Equal(t, 1, lists[0].RuleCount)

	outcomes = second.RefreshLists(context.Background())
	assert.Equal(t, ingest.StatusFailed, outcomes[0].Status)
	assert.True(t, second.Decide("https://cdn.test/tracker/pixel.gif").Blocked(), "failed refresh keeps stale rules")
}

func TestSystem_RuleCapKeepsHighPriorityLists(t *testing.T) {
	cfg, _ := testConfig(t)
	dir := t.TempDir()
	low := filepath.Join(dir, "low.txt")
	high := filepath.Join(dir, "hosts")
	require.NoError(t, os.WriteFile(low, []byte("/low-one/\n/low-two/\n"), 0o600))
	require.NoError(t, os.WriteFile(high, []byte("0.0.0.0 bad.example\n"), 0o600))
	cfg.Filters.Lists = []config.ListConfig{
		{Name: "low", Locator: low, Format: "custom", Enabled: true, Priority: 1},
		{Name: "high", Locator: high, Format: "hosts", Enabled: true, Priority: 100},
	}
	cfg.Filters.MaxRules = 2

	s, err := New(Options{Config: cfg, Logger: log.NewNoopLogger(), NoRuleCache: true, NoStatsFile: true})
	require.NoError(t, err)
	defer s.Close()

	for _, o := range s.RefreshLists(context.Background()) {
		require.Equal(t, ingest.StatusUpdated, o.Status, o.Name)
	}
	assert.True(t, s.Decide("https://bad.example/").Blocked(), "highest priority list survives the cap")
	assert.True(t, s.Decide("https://cdn.test/low-one/x").Blocked())
	assert.False(t, s.Decide("https://cdn.test/low-two/x").Blocked(), "lowest priority rule is cut")
}

func TestSystem_NoHooking(t *testing.T) {
	cfg, _ := testConfig(t)
	cfg.Stats.Enabled = false

	s, err := New(Options{Config: cfg, Logger: log.NewNoopLogger(), NoHooking: true})
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	assert.Nil(t, s.Registry())
	for _, h := range s.Hooks() {
		assert.Equal(t, domain.HookUninstalled, h.State)
	}
	assert.True(t, s.ShouldBlock("https://doubleclick.net/", "", ""))
	assert.Zero(t, s.Stats().TotalRequests, "stats disabled")
	require.NoError(t, s.Stop(context.Background()))
}

func TestNew_RequiresConfig(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

func TestGlobal_InitializeShutdown(t *testing.T) {
	cfg, _ := testConfig(t)
	opts := Options{Config: cfg, Logger: log.NewNoopLogger()}

	assert.False(t, ShouldBlock("https://doubleclick.net/", "", ""), "no instance allows everything")
	assert.Nil(t, Current())
	assert.ErrorIs(t, Shutdown(context.Background()), ErrNotRunning)

	require.NoError(t, Initialize(context.Background(), opts))
	assert.ErrorIs(t, Initialize(context.Background(), opts), ErrAlreadyRunning)
	assert.True(t, IsRunning())
	require.NotNil(t, Current())
	assert.True(t, ShouldBlock("https://doubleclick.net/", "", ""))
	assert.False(t, ShouldBlock("https://example.org/", "", ""))

	require.NoError(t, Shutdown(context.Background()))
	assert.ErrorIs(t, Shutdown(context.Background()), ErrNotRunning)
	assert.False(t, IsRunning())
	assert.False(t, ShouldBlock("https://doubleclick.net/", "", ""))

	require.NoError(t, Initialize(context.Background(), opts), "re-initialize after shutdown")
	require.NoError(t, Shutdown(context.Background()))
}
