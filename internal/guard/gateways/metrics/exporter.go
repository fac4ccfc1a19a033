package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haukened/rr-guard/internal/guard/common/log"
)

const DefaultPath = "/metrics"

// Exporter serves a private Prometheus registry over HTTP.
type Exporter struct {
	addr     string
	path     string
	registry *prometheus.Registry
	logger   log.Logger

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

type Options struct {
	Addr    string // host:port, ":0" picks a free port
	Path    string // defaults to /metrics
	Logger  log.Logger
	Runtime bool // also export Go runtime and process metrics
}

func NewExporter(c prometheus.Collector, opts Options) (*Exporter, error) {
	if opts.Path == "" {
		opts.Path = DefaultPath
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}
	if opts.Runtime {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return &Exporter{addr: opts.Addr, path: opts.Path, registry: reg, logger: opts.Logger}, nil
}

// Handler serves the registry in the Prometheus text format.
func (e *Exporter) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(e.path, promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{}))
	return mux
}

// Start binds the listener and serves in the background.
func (e *Exporter) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server != nil {
		return fmt.Errorf("metrics exporter already running")
	}
	ln, err := net.Listen("tcp", e.addr)
	if err != nil {
		return fmt.Errorf("failed to bind metrics listener on %s: %w", e.addr, err)
	}
	e.listener = ln
	e.server = &http.Server{Handler: e.Handler(), ReadHeaderTimeout: 5 * time.Second}

	e.logger.Info(map[string]any{"address": ln.Addr().String(), "path": e.path}, "Metrics exporter started")
	srv := e.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error(map[string]any{"error": err.Error()}, "Metrics exporter stopped unexpectedly")
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (e *Exporter) Addr() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.listener != nil {
		return e.listener.Addr().String()
	}
	return e.addr
}

// Stop shuts the server down, waiting for in-flight scrapes until ctx is done.
func (e *Exporter) Stop(ctx context.Context) error {
	e.mu.Lock()
	srv := e.server
	e.server = nil
	e.listener = nil
	e.mu.Unlock()
	if srv == nil {
		return nil
	}
	e.logger.Info(nil, "Metrics exporter stopped")
	return srv.Shutdown(ctx)
}
