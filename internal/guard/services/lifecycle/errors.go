package lifecycle

import (
	"fmt"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

var (
	ErrSymbolNotFound     = domain.ErrSymbolNotFound
	ErrHookingUnavailable = domain.ErrHookingUnavailable
)

// HookError describes a failed resolve, install or remove of one hook.
type HookError struct {
	Op      string // "resolve", "install" or "remove"
	Name    string
	Library string
	Err     error
}

func (e *HookError) Error() string {
	return fmt.Sprintf("%s %s in %s: %v", e.Op, e.Name, e.Library, e.Err)
}

func (e *HookError) Unwrap() error { return e.Err }
