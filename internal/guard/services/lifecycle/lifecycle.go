package lifecycle

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/haukened/rr-guard/internal/guard/common/clock"
	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/common/utils"
	"github.com/haukened/rr-guard/internal/guard/domain"
)

// UnknownHost is recorded for requests whose URL yields no host.
const UnknownHost = "unknown"

// Lifecycle owns the hook registry and is the single place an intercepted
// request turns into a decision plus a stats update.
//
// InstallAll and UninstallAll are serialized by an admin mutex; the request
// path never takes it.
type Lifecycle struct {
	admin   sync.Mutex
	records []*HookRecord

	hooker Hooker
	engine Evaluator
	stats  StatsRecorder
	clock  clock.Clock
	logger log.Logger
	newID  func() string

	total   atomic.Uint64
	blocked atomic.Uint64
	allowed atomic.Uint64
}

type Options struct {
	Hooks  []domain.HookDescriptor
	Hooker Hooker // nil means no hooking capability
	Engine Evaluator
	Stats  StatsRecorder
	Clock  clock.Clock
	Logger log.Logger
}

// New builds a record for every enabled descriptor, highest priority first.
// Descriptors with equal priority keep their configured order.
func New(opts Options) *Lifecycle {
	if opts.Clock == nil {
		opts.Clock = clock.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	hooks := make([]domain.HookDescriptor, 0, len(opts.Hooks))
	for _, d := range opts.Hooks {
		if !d.Enabled {
			continue
		}
		if err := d.Validate(); err != nil {
			opts.Logger.Warn(map[string]any{"name": d.Name, "library": d.Library, "error": err.Error()}, "Skipping invalid hook descriptor")
			continue
		}
		hooks = append(hooks, d)
	}
	sort.SliceStable(hooks, func(i, j int) bool { return hooks[i].Priority > hooks[j].Priority })

	l := &Lifecycle{
		hooker: opts.Hooker,
		engine: opts.Engine,
		stats:  opts.Stats,
		clock:  opts.Clock,
		logger: opts.Logger,
		newID:  uuid.NewString,
	}
	for _, d := range hooks {
		l.records = append(l.records, newRecord(d))
	}
	return l
}

// HookFailure names one hook that did not change state and why.
type HookFailure struct {
	Name    string
	Library string
	Err     error
}

// InstallReport lists the outcome of InstallAll.
type InstallReport struct {
	Installed []HookStatus
	Failed    []HookFailure
}

// UninstallReport lists the outcome of UninstallAll.
type UninstallReport struct {
	Removed []HookStatus
	Failed  []HookFailure
}

// InstallAll installs every record that is not yet installed, in priority
// order. A failing hook is logged and left Uninstalled; the rest continue.
// Without a hooking collaborator nothing is installed and
// ErrHookingUnavailable is returned alongside the report; callers may treat
// it as non-fatal.
func (l *Lifecycle) InstallAll() (InstallReport, error) {
	l.admin.Lock()
	defer l.admin.Unlock()

	var report InstallReport
	if l.hooker == nil {
		for _, r := range l.records {
			report.Failed = append(report.Failed, HookFailure{Name: r.Name, Library: r.Library, Err: ErrHookingUnavailable})
		}
		l.logger.Warn(map[string]any{"hooks": len(l.records)}, "Hooking unavailable, no hooks installed")
		return report, ErrHookingUnavailable
	}

	for _, r := range l.records {
		if r.State() == domain.HookInstalled {
			report.Installed = append(report.Installed, r.status())
			continue
		}
		if err := l.install(r); err != nil {
			l.logger.Error(map[string]any{"name": r.Name, "library": r.Library, "error": err.Error()}, "Hook install failed")
			report.Failed = append(report.Failed, HookFailure{Name: r.Name, Library: r.Library, Err: err})
			continue
		}
		st := r.status()
		l.logger.Info(map[string]any{"name": r.Name, "library": r.Library, "id": st.ID}, "Hook installed")
		report.Installed = append(report.Installed, st)
	}
	return report, nil
}

func (l *Lifecycle) install(r *HookRecord) error {
	if !r.transition(domain.HookUninstalled, domain.HookInstalling) {
		return fmt.Errorf("hook %s is %s", r.Name, r.State())
	}
	addr, err := l.hooker.ResolveSymbol(r.Library, r.Name)
	if err != nil {
		r.setState(domain.HookUninstalled)
		return &HookError{Op: "resolve", Name: r.Name, Library: r.Library, Err: err}
	}
	original, err := l.hooker.Install(addr, l.AnalyzeRequest)
	if err != nil {
		r.setState(domain.HookUninstalled)
		return &HookError{Op: "install", Name: r.Name, Library: r.Library, Err: err}
	}
	r.handle.Store(&hookHandle{id: l.newID(), original: original})
	r.setState(domain.HookInstalled)
	return nil
}

// UninstallAll removes installed hooks in reverse priority order. A failed
// removal is logged and the record stays Installed so a later call can retry.
// Calling it again once everything is removed does nothing.
func (l *Lifecycle) UninstallAll() UninstallReport {
	l.admin.Lock()
	defer l.admin.Unlock()

	var report UninstallReport
	for i := len(l.records) - 1; i >= 0; i-- {
		r := l.records[i]
		if !r.transition(domain.HookInstalled, domain.HookUninstalling) {
			continue
		}
		h := r.handle.Load()
		if err := h.release(l.hooker.Remove); err != nil {
			r.setState(domain.HookInstalled)
			herr := &HookError{Op: "remove", Name: r.Name, Library: r.Library, Err: err}
			l.logger.Error(map[string]any{"name": r.Name, "library": r.Library, "error": err.Error()}, "Hook removal failed")
			report.Failed = append(report.Failed, HookFailure{Name: r.Name, Library: r.Library, Err: herr})
			continue
		}
		st := r.status()
		r.handle.Store(nil)
		r.setState(domain.HookUninstalled)
		st.State = domain.HookUninstalled
		l.logger.Info(map[string]any{"name": r.Name, "library": r.Library, "id": st.ID}, "Hook removed")
		report.Removed = append(report.Removed, st)
	}
	return report
}

// AnalyzeRequest is the request path: count, decide, record, return.
// It never fails; a URL without a host is recorded as "unknown".
func (l *Lifecycle) AnalyzeRequest(req domain.Request) domain.Verdict {
	start := l.clock.Now()
	l.total.Add(1)

	d := l.engine.Decide(req)

	host, ok := utils.ExtractHost(req.URL)
	if !ok {
		host = UnknownHost
	}
	if d.Blocked() {
		l.blocked.Add(1)
		if l.stats != nil {
			l.stats.RecordBlocked(host, req.Type)
		}
	} else {
		l.allowed.Add(1)
		if l.stats != nil {
			l.stats.RecordAllowed(host, req.Type)
		}
	}
	if l.stats != nil {
		l.stats.ObserveLatency(l.clock.Now().Sub(start))
	}
	return d.Verdict
}

// GetCounts returns the total and blocked request counts since construction.
func (l *Lifecycle) GetCounts() (total, blocked uint64) {
	return l.total.Load(), l.blocked.Load()
}

// AllowedCount returns the allowed request count since construction.
func (l *Lifecycle) AllowedCount() uint64 { return l.allowed.Load() }

// Records returns a status copy of every hook record in install order.
func (l *Lifecycle) Records() []HookStatus {
	out := make([]HookStatus, len(l.records))
	for i, r := range l.records {
		out[i] = r.status()
	}
	return out
}

// InstalledCount returns how many records are currently Installed.
func (l *Lifecycle) InstalledCount() int {
	n := 0
	for _, r := range l.records {
		if r.State() == domain.HookInstalled {
			n++
		}
	}
	return n
}

// IsUnavailable reports whether err means no hooking collaborator was present.
func IsUnavailable(err error) bool { return errors.Is(err, ErrHookingUnavailable) }
