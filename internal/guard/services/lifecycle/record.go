package lifecycle

import (
	"sync/atomic"

	"github.com/haukened/rr-guard/internal/guard/domain"
)

// hookHandle is the host-owned resource behind an installed hook. Only a
// successful install creates one and release hands it back at most once.
type hookHandle struct {
	id       string
	original uintptr
	released atomic.Bool
}

// release calls remove exactly once across all callers. A failed remove
// re-arms the handle so a later uninstall can retry.
func (h *hookHandle) release(remove func(uintptr) error) error {
	if !h.released.CompareAndSwap(false, true) {
		return nil
	}
	if err := remove(h.original); err != nil {
		h.released.Store(false)
		return err
	}
	return nil
}

// HookRecord tracks one configured interception point.
type HookRecord struct {
	Name     string
	Library  string
	Priority int

	state  atomic.Uint32
	handle atomic.Pointer[hookHandle]
}

func newRecord(d domain.HookDescriptor) *HookRecord {
	return &HookRecord{Name: d.Name, Library: d.Library, Priority: d.Priority}
}

// State reads the install state atomically.
func (r *HookRecord) State() domain.HookState {
	return domain.HookState(r.state.Load())
}

// ID returns the identifier of the current install, or "" when not installed.
func (r *HookRecord) ID() string {
	if h := r.handle.Load(); h != nil {
		return h.id
	}
	return ""
}

func (r *HookRecord) transition(from, to domain.HookState) bool {
	return r.state.CompareAndSwap(uint32(from), uint32(to))
}

func (r *HookRecord) setState(s domain.HookState) {
	r.state.Store(uint32(s))
}

// HookStatus is a point-in-time copy of a HookRecord.
type HookStatus struct {
	ID       string
	Name     string
	Library  string
	Priority int
	State    domain.HookState
}

func (r *HookRecord) status() HookStatus {
	return HookStatus{ID: r.ID(), Name: r.Name, Library: r.Library, Priority: r.Priority, State: r.State()}
}
