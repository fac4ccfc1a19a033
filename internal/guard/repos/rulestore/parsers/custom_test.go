package parsers

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestParseCustomList(t *testing.T) {
	input := "# my rules\n\n/ads/\n  tracking  \n!not-a-comment-here\n/ads/\n"
	got, err := ParseCustomList(strings.NewReader(input), "mine", log.NewNoopLogger())
	require.NoError(t, err)

	want := []domain.Rule{
		{Kind: domain.RuleBlock, Pattern: "/ads/", Source: "mine"},
		{Kind: domain.RuleBlock, Pattern: "tracking", Source: "mine"},
		{Kind: domain.RuleBlock, Pattern: "!not-a-comment-here", Source: "mine"},
	}
	assert.Equal(t, want, got)
}
