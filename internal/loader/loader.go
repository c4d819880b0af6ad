// Package loader warms route modules and feature bundles over HTTP.
//
// Loading a route fetches its document, discovers the module graph the
// document declares (modulepreload links and module scripts), and fetches
// every module with bounded concurrency. Feature bundles are plain asset
// lists. Bodies are read fully and discarded; the point is to populate the
// caches between clients and the application.
package loader

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/logging"
	"github.com/Iron-Ham/prewarm/internal/manifest"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

// maxDocumentBytes caps how much of a route document is parsed.
const maxDocumentBytes = 5 * 1024 * 1024

// Options configures an HTTPLoader.
type Options struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables rate limiting
	Burst             int
	AssetConcurrency  int
	UserAgent         string
	// Client overrides the HTTP client; Timeout is ignored when set.
	Client *http.Client
}

// HTTPLoader fetches routes and bundles from one origin. It implements
// manifest.Binder and is safe for concurrent use.
type HTTPLoader struct {
	base       *url.URL
	client     *http.Client
	limiter    *rate.Limiter
	assetLimit int
	userAgent  string
	logger     *logging.Logger

	mu      sync.Mutex
	fetched map[string]bool // asset URLs fetched successfully
}

var _ manifest.Binder = (*HTTPLoader)(nil)

// New validates opts and creates an HTTPLoader.
func New(opts Options, logger *logging.Logger) (*HTTPLoader, error) {
	if opts.BaseURL == "" {
		return nil, errors.NewConfigError("http.base_url", "a base URL is required to warm routes")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return nil, errors.NewConfigError("http.base_url", "must be an absolute http or https URL").WithCause(err)
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}

	assetLimit := opts.AssetConcurrency
	if assetLimit < 1 {
		assetLimit = 1
	}

	return &HTTPLoader{
		base:       base,
		client:     client,
		limiter:    limiter,
		assetLimit: assetLimit,
		userAgent:  opts.UserAgent,
		logger:     logger,
		fetched:    make(map[string]bool),
	}, nil
}

// RouteLoader implements manifest.Binder.
func (l *HTTPLoader) RouteLoader(r manifest.Route) prefetch.LoadFunc {
	route := r
	return func(ctx context.Context) error {
		return l.LoadRoute(ctx, route)
	}
}

// BundleLoader implements manifest.Binder.
func (l *HTTPLoader) BundleLoader(name string, f manifest.Feature) features.Bundle {
	assets := append([]string(nil), f.Assets...)
	return func(ctx context.Context) error {
		urls, err := l.resolveAll(assets)
		if err != nil {
			return err
		}
		l.logger.Debug("loading feature bundle", "feature", name, "assets", len(urls))
		return l.fetchAll(ctx, urls)
	}
}

// LoadRoute fetches the route document and every module it declares plus
// r.Modules. The document itself is always refetched; modules already
// fetched by this loader are skipped.
func (l *HTTPLoader) LoadRoute(ctx context.Context, r manifest.Route) error {
	page, err := l.base.Parse(r.Path)
	if err != nil {
		return fmt.Errorf("resolve route path %q: %w", r.Path, err)
	}

	modules, err := l.fetchDocument(ctx, page)
	if err != nil {
		return err
	}

	extra, err := l.resolveAll(r.Modules)
	if err != nil {
		return err
	}
	modules = appendUnique(modules, extra...)

	l.logger.Debug("warming route", "route", r.Name, "modules", len(modules))
	return l.fetchAll(ctx, modules)
}

// fetchDocument GETs page and returns the modules an HTML response
// declares. Non-HTML responses declare nothing.
func (l *HTTPLoader) fetchDocument(ctx context.Context, page *url.URL) ([]string, error) {
	resp, err := l.get(ctx, page.String())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/html" && mediaType != "application/xhtml+xml" {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, nil
	}

	// resp.Request.URL reflects redirects.
	modules, err := DiscoverModules(resp.Request.URL, io.LimitReader(resp.Body, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", page, err)
	}
	return modules, nil
}

// fetchAll fetches urls with bounded concurrency. The first failure is
// returned after in-flight fetches finish.
func (l *HTTPLoader) fetchAll(ctx context.Context, urls []string) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.assetLimit)

	for _, u := range urls {
		if l.wasFetched(u) {
			continue
		}
		g.Go(func() error {
			return l.fetchAsset(gctx, u)
		})
	}
	return g.Wait()
}

func (l *HTTPLoader) fetchAsset(ctx context.Context, u string) error {
	resp, err := l.get(ctx, u)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("read %s: %w", u, err)
	}

	l.mu.Lock()
	l.fetched[u] = true
	l.mu.Unlock()
	return nil
}

// get issues a rate-limited GET. Non-2xx responses are returned as
// *errors.HTTPError with the body closed.
func (l *HTTPLoader) get(ctx context.Context, u string) (*http.Response, error) {
	if l.limiter != nil {
		if err := l.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/javascript,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		resp.Body.Close()
		return nil, &errors.HTTPError{URL: u, StatusCode: resp.StatusCode}
	}
	return resp, nil
}

func (l *HTTPLoader) resolveAll(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, ref := range refs {
		u, err := l.base.Parse(strings.TrimSpace(ref))
		if err != nil {
			return nil, fmt.Errorf("resolve asset %q: %w", ref, err)
		}
		out = appendUnique(out, u.String())
	}
	return out, nil
}

func (l *HTTPLoader) wasFetched(u string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetched[u]
}

// Forget drops the fetched-asset memo so the next loads refetch everything.
func (l *HTTPLoader) Forget() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetched = make(map[string]bool)
}

// Base returns the origin routes are resolved against.
func (l *HTTPLoader) Base() string { return l.base.String() }

func appendUnique(dst []string, items ...string) []string {
	for _, it := range items {
		dup := false
		for _, d := range dst {
			if d == it {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, it)
		}
	}
	return dst
}
