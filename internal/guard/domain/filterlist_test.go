package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListFormat_RoundTrip(t *testing.T) {
	for _, f := range []ListFormat{FormatEasyList, FormatAdGuard, FormatUBlock, FormatHosts, FormatCustom} {
		assert.True(t, f.IsValid())
		parsed, err := ParseListFormat(f.String())
		require.NoError(t, err)
		assert.Equal(t, f, parsed)
	}
}

func TestParseListFormat_CaseAndErrors(t *testing.T) {
	f, err := ParseListFormat(" EasyList ")
	require.NoError(t, err)
	assert.Equal(t, FormatEasyList, f)

	_, err = ParseListFormat("adblock-plus")
	assert.Error(t, err)
	assert.False(t, ListFormat(200).IsValid())
	assert.Equal(t, "ListFormat(200)", ListFormat(200).String())
}

func TestFilterListMetadata_Validate(t *testing.T) {
	assert.NoError(t, FilterListMetadata{Name: "easylist", Format: FormatEasyList}.Validate())
	assert.Error(t, FilterListMetadata{Name: "", Format: FormatHosts}.Validate())
	assert.Error(t, FilterListMetadata{Name: "x", Format: ListFormat(77)}.Validate())
}

func TestFilterListMetadata_State(t *testing.T) {
	m := FilterListMetadata{Name: "x"}
	assert.False(t, m.Updated())
	assert.False(t, m.Stale())

	m.LastUpdated = time.Unix(100, 0)
	m.LastError = "fetch failed"
	assert.True(t, m.Updated())
	assert.True(t, m.Stale())
}
