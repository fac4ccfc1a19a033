package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

func TestTopBlocked(t *testing.T) {
	s := domain.Stats{DomainsBlocked: map[string]uint64{
		"a.ads.com":       3,
		"b.ads.com":       2,
		"tracker.co.uk":   4,
		"x.tracker.co.uk": 1,
		"solo.net":        4,
	}}

	rows := TopBlocked(s, 2, false)
	assert.Equal(t, []DomainCount{{"solo.net", 4}, {"tracker.co.uk", 4}}, rows)

	rows = TopBlocked(s, 0, true)
	assert.Equal(t, []DomainCount{
		{"ads.com", 5},
		{"tracker.co.uk", 5},
		{"solo.net", 4},
	}, rows)

	assert.Empty(t, TopBlocked(domain.Stats{}, 5, true))
}
