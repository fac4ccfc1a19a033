// Package fetch downloads filter list text from http(s) URLs, file:// URLs
// and plain filesystem paths.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/haukened/rr-guard/internal/guard/common/log"
	"github.com/haukened/rr-guard/internal/guard/services/ingest"
)

const (
	errEmptyLocator      = "empty locator"
	errUnsupportedScheme = "unsupported locator scheme %q"
	errBuildRequest      = "build request: %w"
	errRequestFailed     = "request failed: %w"
	errBadStatus         = "unexpected status %d"
	errOpenFile          = "open file: %w"
	errBodyTooLarge      = "list body exceeds %d bytes"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 64 << 20
	userAgent       = "rr-guard/1 (+filter-list-fetch)"
)

// Doer is the subset of *http.Client the fetcher needs.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher opens list bodies by locator. A body is capped at MaxBytes and a
// remote fetch is bounded by Timeout unless the caller's context is shorter.
type Fetcher struct {
	client   Doer
	timeout  time.Duration
	maxBytes int64
	logger   log.Logger
}

type Options struct {
	Timeout  time.Duration
	MaxBytes int64
	Logger   log.Logger
	// injected for tests
	Client Doer
}

func New(opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxBytes
	}
	if opts.Logger == nil {
		opts.Logger = log.NewNoopLogger()
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: opts.Timeout}
	}
	return &Fetcher{
		client:   opts.Client,
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
		logger:   opts.Logger,
	}
}

// Fetch returns a reader over the list body. The caller closes it.
func (f *Fetcher) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return nil, fmt.Errorf(errEmptyLocator)
	}
	u, err := url.Parse(locator)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// no scheme, or a Windows drive letter
		return f.openFile(locator)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return f.fetchHTTP(ctx, locator)
	case "file":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}
		return f.openFile(path)
	default:
		return nil, fmt.Errorf(errUnsupportedScheme, u.Scheme)
	}
}

func (f *Fetcher) fetchHTTP(ctx context.Context, locator string) (io.ReadCloser, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf(errBuildRequest, err)
	}
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf(errRequestFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf(errBadStatus, resp.StatusCode)
	}
	f.logger.Debug(map[string]any{
		"locator": locator,
		"status":  resp.StatusCode,
		"elapsed": time.Since(start).String(),
	}, "filter_list_fetched")
	return &limitedBody{r: io.LimitReader(resp.Body, f.maxBytes+1), c: resp.Body, max: f.maxBytes, cancel: cancel}, nil
}

func (f *Fetcher) openFile(path string) (io.ReadCloser, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf(errOpenFile, err)
	}
	return &limitedBody{r: io.LimitReader(fh, f.maxBytes+1), c: fh, max: f.maxBytes}, nil
}

// limitedBody fails the read once more than max bytes arrive, so a truncated
// list is never mistaken for a complete one.
type limitedBody struct {
	r      io.Reader
	c      io.Closer
	max    int64
	n      int64
	cancel context.CancelFunc
}

func (b *limitedBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	b.n += int64(n)
	if b.n > b.max {
		return n, fmt.Errorf(errBodyTooLarge, b.max)
	}
	return n, err
}

func (b *limitedBody) Close() error {
	err := b.c.Close()
	if b.cancel != nil {
		b.cancel()
	}
	return err
}

var _ ingest.Fetcher = (*Fetcher)(nil)
