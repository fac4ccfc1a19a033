package parsers

import (
	"io"
	"strings"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/common/utils"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// ParseHostsFile parses /etc/hosts-style lists into HostBlock rules.
//
// Rules:
// - Skip blank lines and lines starting with '#'
// - Split on whitespace; the second field is the hostname, the IP is ignored
// - Lines with fewer than two fields are skipped
// - Hostnames are canonicalized; duplicates keep the first occurrence
func ParseHostsFile(r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error) {
	sc := newScanner(r)
	set := newRuleSet()

	logger.Debug(map[string]any{"source": source}, "parse_hosts_start")

	lineNum := 0
	for sc.Scan() {
		lineNum++
		line := strings.TrimSpace(stripLineBOM(sc.Text()))

		if isEmpty, isComment := classifyLine(line, '#'); isEmpty || isComment {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			logger.Debug(map[string]any{"line": lineNum}, "hosts_no_hostname")
			continue
		}

		name := utils.CanonicalHost(fields[1])
		rule, err := domain.NewHostBlockRule(name, source)
		if err != nil {
			logger.Debug(map[string]any{"line": lineNum, "raw": fields[1], "error": err.Error()}, "hosts_skip_constructor_error")
			continue
		}
		if !set.add(rule) {
			logger.Debug(map[string]any{"line": lineNum, "name": name}, "hosts_skip_duplicate")
		}
	}

	if err := sc.Err(); err != nil {
		logger.Debug(map[string]any{"source": source, "line": lineNum + 1, "error": err.Error()}, "parse_hosts_scan_error")
		return nil, err
	}

	logger.Debug(map[string]any{"source": source, "count": len(set.out)}, "parse_hosts_done")
	return set.out, nil
}
