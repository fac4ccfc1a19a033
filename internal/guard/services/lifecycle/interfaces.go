package lifecycle

import (
	"time"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// Hooker is the external hooking collaborator. Install returns an opaque
// token for the original function that Remove later consumes.
type Hooker interface {
	ResolveSymbol(library, name string) (uintptr, error)
	Install(addr uintptr, handler domain.RequestHandler) (uintptr, error)
	Remove(original uintptr) error
}

// Evaluator decides requests. Implemented by engine.Engine.
type Evaluator interface {
	Decide(req domain.Request) domain.Decision
}

// StatsRecorder receives per-request outcomes. Implemented by stats.Collector.
type StatsRecorder interface {
	RecordBlocked(host, reqType string)
	RecordAllowed(host, reqType string)
	ObserveLatency(d time.Duration)
}
