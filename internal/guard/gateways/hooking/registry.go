// Package hooking is an in-process hooking collaborator. A host registers
// the symbols it can intercept and routes each intercepted call through
// Dispatch; whatever handler is installed on that symbol decides the verdict.
package hooking

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/domain"
	"github.com/haukened/rr-guard/internal/guard/services/lifecycle"
)

var (
	ErrAlreadyHooked = errors.New("symbol already hooked")
	ErrUnknownHook   = errors.New("unknown hook token")
	ErrBadAddress    = errors.New("address is not a registered symbol")
)

const (
	symbolBase  uintptr = 0x1000
	symbolAlign uintptr = 0x10
)

type symbolKey struct {
	library string
	name    string
}

func keyOf(library, name string) symbolKey {
	return symbolKey{library: strings.ToLower(strings.TrimSpace(library)), name: strings.TrimSpace(name)}
}

type slot struct {
	key     symbolKey
	handler domain.RequestHandler
	token   uintptr
}

// Registry maps symbols to synthetic addresses and installed handlers.
// Dispatch only takes the read lock, so concurrent intercepted calls never
// serialize each other.
type Registry struct {
	mu        sync.RWMutex
	symbols   map[symbolKey]uintptr
	slots     map[uintptr]*slot
	originals map[uintptr]uintptr // token -> symbol address
	next      uintptr
	nextToken uintptr
	logger    log.Logger
}

func NewRegistry(logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Registry{
		symbols:   make(map[symbolKey]uintptr),
		slots:     make(map[uintptr]*slot),
		originals: make(map[uintptr]uintptr),
		next:      symbolBase,
		nextToken: 1,
		logger:    logger,
	}
}

// RegisterSymbol makes library!name resolvable and returns its address.
// Registering the same symbol again returns the existing address.
func (r *Registry) RegisterSymbol(library, name string) uintptr {
	k := keyOf(library, name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if addr, ok := r.symbols[k]; ok {
		return addr
	}
	addr := r.next
	r.next += symbolAlign
	r.symbols[k] = addr
	r.slots[addr] = &slot{key: k}
	r.logger.Debug(map[string]any{"library": k.library, "name": k.name, "addr": fmt.Sprintf("%#x", addr)}, "symbol_registered")
	return addr
}

// ResolveSymbol returns the address of a registered symbol.
func (r *Registry) ResolveSymbol(library, name string) (uintptr, error) {
	k := keyOf(library, name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.symbols[k]
	if !ok {
		return 0, fmt.Errorf("%w: %s!%s", domain.ErrSymbolNotFound, k.library, k.name)
	}
	return addr, nil
}

// Install routes calls on addr through handler and returns a token for
// Remove. A symbol carries at most one handler.
func (r *Registry) Install(addr uintptr, handler domain.RequestHandler) (uintptr, error) {
	if handler == nil {
		return 0, fmt.Errorf("install %#x: nil handler", addr)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.slots[addr]
	if !ok {
		return 0, fmt.Errorf("%w: %#x", ErrBadAddress, addr)
	}
	if s.handler != nil {
		return 0, fmt.Errorf("%w: %s!%s", ErrAlreadyHooked, s.key.library, s.key.name)
	}
	token := r.nextToken
	r.nextToken++
	s.handler = handler
	s.token = token
	r.originals[token] = addr
	return token, nil
}

// Remove detaches the handler installed under token.
func (r *Registry) Remove(original uintptr) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	addr, ok := r.originals[original]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownHook, original)
	}
	delete(r.originals, original)
	s := r.slots[addr]
	s.handler = nil
	s.token = 0
	return nil
}

// Dispatch runs an intercepted call. Calls on unknown or unhooked symbols
// pass through as Allow.
func (r *Registry) Dispatch(library, name string, req domain.Request) domain.Verdict {
	k := keyOf(library, name)
	r.mu.RLock()
	var h domain.RequestHandler
	if addr, ok := r.symbols[k]; ok {
		h = r.slots[addr].handler
	}
	r.mu.RUnlock()
	if h == nil {
		return domain.VerdictAllow
	}
	return h(req)
}

// Hooked reports whether library!name currently has a handler.
func (r *Registry) Hooked(library, name string) bool {
	k := keyOf(library, name)
	r.mu.RLock()
	defer r.mu.RUnlock()
	addr, ok := r.symbols[k]
	return ok && r.slots[addr].handler != nil
}

// Active returns the number of installed handlers.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.originals)
}

var _ lifecycle.Hooker = (*Registry)(nil)
