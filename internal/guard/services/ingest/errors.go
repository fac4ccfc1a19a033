package ingest

import (
	"errors"
	"fmt"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

var (
	ErrListNotFound  = errors.New("filter list not found")
	ErrDuplicateList = errors.New("filter list already registered")
)

// FetchError reports a failed download or read of a list.
type FetchError struct {
	List    string
	Locator string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s from %s: %v", e.List, e.Locator, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError reports list text that could not be parsed.
type ParseError struct {
	List   string
	Format domain.ListFormat
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s as %s: %v", e.List, e.Format, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
