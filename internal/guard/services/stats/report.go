package stats

import (
	"sort"

	"github.com/haukened/rr-guard/internal/guard/common/utils"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// DomainCount is one row of a blocked-domain report.
type DomainCount struct {
	Domain string
	Count  uint64
}

// TopBlocked returns the n most blocked domains, highest first, ties by name.
// With byApex set, counts are folded onto registrable domains first so
// "a.ads.com" and "b.ads.com" report as "ads.com". n <= 0 returns all rows.
func TopBlocked(s domain.Stats, n int, byApex bool) []DomainCount {
	counts := s.DomainsBlocked
	if byApex {
		counts = make(map[string]uint64, len(s.DomainsBlocked))
		for d, c := range s.DomainsBlocked {
			counts[utils.RegistrableDomain(d)] += c
		}
	}
	rows := make([]DomainCount, 0, len(counts))
	for d, c := range counts {
		rows = append(rows, DomainCount{Domain: d, Count: c})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Domain < rows[j].Domain
	})
	if n > 0 && len(rows) > n {
		rows = rows[:n]
	}
	return rows
}
