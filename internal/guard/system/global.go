package system

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	ErrAlreadyRunning = errors.New("request guard already running")
	ErrNotRunning     = errors.New("request guard not running")
)

var (
	running  atomic.Bool
	instance atomic.Pointer[System]
	// serializes Initialize and Shutdown; the request path never takes it
	globalMu sync.Mutex
)

// Initialize builds and starts the process-wide instance.
func Initialize(ctx context.Context, opts Options) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if running.Load() {
		return ErrAlreadyRunning
	}
	s, err := New(opts)
	if err != nil {
		return err
	}
	if err := s.Start(ctx); err != nil {
		_ = s.Close()
		return err
	}
	instance.Store(s)
	running.Store(true)
	return nil
}

// Shutdown stops the process-wide instance. A second call returns ErrNotRunning.
func Shutdown(ctx context.Context) error {
	globalMu.Lock()
	defer globalMu.Unlock()
	if !running.Load() {
		return ErrNotRunning
	}
	running.Store(false)
	s := instance.Swap(nil)
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}
	return s.Stop(ctx)
}

// Current returns the running instance, or nil.
func Current() *System {
	return instance.Load()
}

// IsRunning reports whether Initialize has succeeded and Shutdown has not run.
func IsRunning() bool { return running.Load() }

// ShouldBlock asks the running instance about one request. Without a running
// instance every request is allowed.
func ShouldBlock(rawURL, reqType, origin string) bool {
	s := instance.Load()
	if s == nil {
		return false
	}
	return s.ShouldBlock(rawURL, reqType, origin)
}
