package parsers

import (
	"bufio"
	"io"
	"strings"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// MaxLineBytes bounds a single list line. Longer lines fail the parse.
const MaxLineBytes = 1 << 20

// newScanner returns a line scanner whose buffer grows up to MaxLineBytes.
func newScanner(r io.Reader) *bufio.Scanner {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
	return sc
}

// stripLineBOM removes a UTF-8 byte order mark from the start of a line.
func stripLineBOM(line string) string {
	return strings.TrimPrefix(line, "\uFEFF")
}

// classifyLine reports whether a trimmed line is empty or starts with the
// given comment marker.
func classifyLine(trimmed string, marker byte) (isEmpty, isComment bool) {
	if trimmed == "" {
		return true, false
	}
	return false, trimmed[0] == marker
}

// ruleSet collects rules in first-seen order, dropping repeats of the same
// kind and pattern.
type ruleSet struct {
	seen map[string]struct{}
	out  []domain.Rule
}

func newRuleSet() *ruleSet {
	return &ruleSet{seen: make(map[string]struct{}), out: make([]domain.Rule, 0, 256)}
}

// add returns false when the rule was already present.
func (s *ruleSet) add(r domain.Rule) bool {
	key := r.Kind.String() + "|" + r.Pattern
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.out = append(s.out, r)
	return true
}
