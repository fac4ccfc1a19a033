package statsfile

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func sample() domain.Stats {
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Stats{
		TotalRequests:   10,
		BlockedRequests: 4,
		AllowedRequests: 6,
		DomainsBlocked:  map[string]uint64{"ads.example.com": 3, "tracker.test": 1},
		RequestTypes:    map[string]uint64{"script": 7, "image": 3},
		Performance: domain.PerformanceMetrics{
			AvgProcessingTimeUs: 12,
			MaxProcessingTimeUs: 90,
			MemoryUsageBytes:    1 << 20,
		},
		StartTime:   start,
		LastUpdated: start.Add(time.Minute),
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"json", FormatJSON, false},
		{" YAML ", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"toml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestFormatFromPath(t *testing.T) {
	assert.Equal(t, FormatYAML, FormatFromPath("/var/lib/stats.yml"))
	assert.Equal(t, FormatYAML, FormatFromPath("stats.YAML"))
	assert.Equal(t, FormatJSON, FormatFromPath("stats.json"))
	assert.Equal(t, FormatJSON, FormatFromPath("stats"))
}

func TestEncodeDecode_FieldForField(t *testing.T) {
	for _, f := range []Format{FormatJSON, FormatYAML} {
		t.Run(string(f), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, Encode(&buf, sample(), f))
			assert.Contains(t, buf.String(), "blocked_requests")
			assert.Contains(t, buf.String(), "avg_processing_time_us")

			got, err := Decode(&buf, f)
			require.NoError(t, err)
			want := sample()
			assert.Equal(t, want.TotalRequests, got.TotalRequests)
			assert.Equal(t, want.DomainsBlocked, got.DomainsBlocked)
			assert.Equal(t, want.RequestTypes, got.RequestTypes)
			assert.Equal(t, want.Performance, got.Performance)
			assert.True(t, want.StartTime.Equal(got.StartTime))
			assert.True(t, want.LastUpdated.Equal(got.LastUpdated))
		})
	}
}

func TestEncode_UnknownFormat(t *testing.T) {
	assert.Error(t, Encode(&bytes.Buffer{}, sample(), "xml"))
	_, err := Decode(&bytes.Buffer{}, "xml")
	assert.Error(t, err)
}

func TestNewWriter_Validation(t *testing.T) {
	_, err := NewWriter("", FormatJSON)
	assert.Error(t, err)
	_, err = NewWriter("x.json", "xml")
	assert.Error(t, err)
}

func TestWriter_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stats.yaml")
	w, err := NewWriter(path, FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, path, w.Path())

	require.NoError(t, w.Write(sample()))
	next := sample()
	next.TotalRequests = 11
	require.NoError(t, w.Write(next))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(11), got.TotalRequests)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestNewWriter_CreatesMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "var", "lib", "rr-guard", "stats.json")
	w, err := NewWriter(path, FormatJSON)
	require.NoError(t, err)
	require.NoError(t, w.Write(sample()))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), got.TotalRequests)
}

func TestNewWriter_ParentIsFile(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	_, err := NewWriter(filepath.Join(blocker, "stats.json"), FormatJSON)
	assert.Error(t, err)
}

func TestRead_Missing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
