package parsers

import (
	"fmt"
	"io"

	logpkg "github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// ParseFunc turns raw list text into rules attributed to source.
type ParseFunc func(r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error)

// Table maps every ListFormat to its parser.
var Table = map[domain.ListFormat]ParseFunc{
	domain.FormatEasyList: ParseEasyList,
	domain.FormatAdGuard:  ParseEasyList,
	domain.FormatUBlock:   ParseEasyList,
	domain.FormatHosts:    ParseHostsFile,
	domain.FormatCustom:   ParseCustomList,
}

// Parse dispatches to the parser registered for format.
func Parse(format domain.ListFormat, r io.Reader, source string, logger logpkg.Logger) ([]domain.Rule, error) {
	fn, ok := Table[format]
	if !ok {
		return nil, fmt.Errorf("no parser for format %s", format)
	}
	if logger == nil {
		logger = logpkg.NewNoopLogger()
	}
	return fn(r, source, logger)
}
