package engine

import "github.com/haukened/rr-guard/internal/guard/repos/rulestore"

// Rules yields the currently published rule snapshot. It must never return nil.
type Rules interface {
	Current() *rulestore.Snapshot
}
