package parsers

import (
	"io"
	"strings"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// ParseEasyList parses EasyList-syntax lists (also used for AdGuard and
// uBlock Origin lists).
//
// Rules:
// - Skip blank lines and comments starting with '!'
// - "@@x" becomes an Allow rule for x; a bare "@@" is skipped
// - Any other line becomes a Block rule for the whole trimmed line
// - De-duplicate by kind and pattern, preserving first-seen order
func ParseEasyList(r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error) {
	sc := newScanner(r)
	set := newRuleSet()

	logger.Debug(map[string]any{"source": source}, "parse_easylist_start")

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(stripLineBOM(sc.Text()))

		if isEmpty, isComment := classifyLine(line, '!'); isEmpty || isComment {
			continue
		}

		var (
			rule domain.Rule
			err  error
		)
		if rest, ok := strings.CutPrefix(line, "@@"); ok {
			if rest == "" {
				logger.Debug(map[string]any{"line": lineNum}, "easylist_skip_empty_exception")
				continue
			}
			rule, err = domain.NewAllowRule(rest, source)
		} else {
			rule, err = domain.NewBlockRule(line, source)
		}
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "error": err.Error()}, "easylist_skip_constructor_error")
			continue
		}
		if !set.add(rule) {
			logger.Debug(map[string]any{"line": lineNum, "pattern": rule.Pattern}, "easylist_skip_duplicate")
		}
	}

	if err := sc.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "line": lineNum + 1, "error": err.Error()}, "parse_easylist_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(set.out)}, "parse_easylist_done")
	return set.out, nil
}
