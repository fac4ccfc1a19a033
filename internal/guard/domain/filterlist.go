package domain

import (
	"fmt"
	"strings"
	"time"
)

// ListFormat identifies the syntax of a filter list. The set is closed.
type ListFormat uint8

const (
	FormatEasyList ListFormat = iota
	FormatAdGuard
	FormatUBlock
	FormatHosts
	FormatCustom
)

// String returns the lower-case format name used in configuration.
func (f ListFormat) String() string {
	switch f {
	case FormatEasyList:
		return "easylist"
	case FormatAdGuard:
		return "adguard"
	case FormatUBlock:
		return "ublock"
	case FormatHosts:
		return "hosts"
	case FormatCustom:
		return "custom"
	default:
		return fmt.Sprintf("ListFormat(%d)", f)
	}
}

// IsValid returns true for the known formats.
func (f ListFormat) IsValid() bool {
	return f <= FormatCustom
}

// ParseListFormat converts a string into a ListFormat (case-insensitive).
func ParseListFormat(s string) (ListFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "easylist":
		return FormatEasyList, nil
	case "adguard":
		return FormatAdGuard, nil
	case "ublock":
		return FormatUBlock, nil
	case "hosts":
		return FormatHosts, nil
	case "custom":
		return FormatCustom, nil
	default:
		return 0, fmt.Errorf("unsupported ListFormat: %q", s)
	}
}

// FilterListMetadata describes one registered filter list and its refresh state.
// LastUpdated is zero until the first successful load. A non-empty LastError
// means the most recent refresh failed and the cached rules are stale.
type FilterListMetadata struct {
	Name        string
	Locator     string // http(s) URL, file:// URL or filesystem path
	Format      ListFormat
	LastUpdated time.Time
	LastAttempt time.Time
	LastError   string
	RuleCount   int
	Enabled     bool
	Priority    int
}

// Validate checks required fields.
func (m FilterListMetadata) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("list name must not be empty")
	}
	if !m.Format.IsValid() {
		return fmt.Errorf("unsupported ListFormat: %d", m.Format)
	}
	return nil
}

// Updated reports whether the list has ever loaded successfully.
func (m FilterListMetadata) Updated() bool { return !m.LastUpdated.IsZero() }

// Stale reports whether the last refresh attempt failed.
func (m FilterListMetadata) Stale() bool { return m.LastError != "" }
