package parsers

import (
	"io"
	"strings"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// ParseCustomList treats every non-blank line that does not start with '#'
// as a Block pattern.
func ParseCustomList(r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error) {
	sc := newScanner(r)
	set := newRuleSet()

	logger.Debug(map[string]any{"source": source}, "parse_custom_start")

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(stripLineBOM(sc.Text()))
		if isEmpty, isComment := classifyLine(line, '#'); isEmpty || isComment {
			continue
		}
		rule, err := domain.NewBlockRule(line, source)
		if err != nil {
			continue
		}
		if !set.add(rule) {
			logger.Debug(map[string]any{"line": lineNum, "pattern": line}, "custom_skip_duplicate")
		}
	}

	if err := sc.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "line": lineNum + 1, "error": err.Error()}, "parse_custom_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(set.out)}, "parse_custom_done")
	return set.out, nil
}
