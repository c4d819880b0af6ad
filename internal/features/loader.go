// Package features loads the shared library bundles ("docs", "pdf",
// "charts", "admin", "ai", "animation") that route modules depend on.
//
// Loads are best effort. A failing bundle is logged and reported, never
// retried automatically, and never prevents sibling bundles from loading.
// A bundle that loaded successfully is not loaded again until Reset.
package features

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/logging"
)

// Feature tags known to the default manifest.
const (
	Docs      = "docs"
	PDF       = "pdf"
	Charts    = "charts"
	Admin     = "admin"
	AI        = "ai"
	Animation = "animation"
)

// Bundle loads one feature's libraries.
type Bundle func(ctx context.Context) error

// Loader memoizes successful bundle loads and collapses concurrent loads of
// the same tag. It is safe for concurrent use.
type Loader struct {
	mu      sync.RWMutex
	bundles map[string]Bundle
	loaded  map[string]bool
	group   singleflight.Group
	logger  *logging.Logger
}

// NewLoader creates a Loader over bundles. A nil logger discards output.
func NewLoader(bundles map[string]Bundle, logger *logging.Logger) *Loader {
	if logger == nil {
		logger = logging.NopLogger()
	}
	l := &Loader{loaded: make(map[string]bool), logger: logger}
	l.SetBundles(bundles)
	return l
}

// SetBundles replaces the bundle table. Tags that remain present keep
// their loaded state; removed tags are forgotten.
func (l *Loader) SetBundles(bundles map[string]Bundle) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.bundles = make(map[string]Bundle, len(bundles))
	for tag, b := range bundles {
		l.bundles[tag] = b
	}
	for tag := range l.loaded {
		if _, ok := l.bundles[tag]; !ok {
			delete(l.loaded, tag)
		}
	}
}

// Load loads tags one after another. Unknown tags are skipped. The
// returned error joins one *errors.DependencyError per failed tag; callers
// that only want best-effort behavior may ignore it. Load stops early only
// if ctx is done.
func (l *Loader) Load(ctx context.Context, tags ...string) error {
	var errs []error
	for _, tag := range tags {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := l.loadOne(ctx, tag); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadConcurrently loads tags in parallel and waits for all of them. Error
// semantics match Load.
func (l *Loader) LoadConcurrently(ctx context.Context, tags ...string) error {
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, tag := range tags {
		g.Go(func() error {
			if err := l.loadOne(gctx, tag); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// Siblings keep going on failure.
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

func (l *Loader) loadOne(ctx context.Context, tag string) error {
	l.mu.RLock()
	bundle, known := l.bundles[tag]
	done := l.loaded[tag]
	l.mu.RUnlock()

	if !known {
		l.logger.Debug("skipping unknown feature", "feature", tag)
		return nil
	}
	if done {
		return nil
	}

	// The shared load runs detached from the first caller's context. A
	// caller whose context ends stops waiting; the load carries on.
	flight := l.group.DoChan(tag, func() (any, error) {
		l.mu.RLock()
		already := l.loaded[tag]
		l.mu.RUnlock()
		if already {
			return nil, nil
		}

		if err := bundle(context.WithoutCancel(ctx)); err != nil {
			l.logger.Warn("failed to load feature dependency",
				"feature", tag,
				"error", err.Error(),
				"retryable", errors.IsRetryable(err))
			return nil, err
		}

		l.mu.Lock()
		if _, ok := l.bundles[tag]; ok {
			l.loaded[tag] = true
		}
		l.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-flight:
		if res.Err != nil {
			return errors.NewDependencyError(tag, res.Err)
		}
		return nil
	case <-ctx.Done():
		return errors.NewDependencyError(tag, ctx.Err())
	}
}

// Loaded reports whether tag has loaded successfully since the last Reset.
func (l *Loader) Loaded(tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded[tag]
}

// Known reports whether tag has a bundle.
func (l *Loader) Known(tag string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.bundles[tag]
	return ok
}

// Tags returns the known tags, sorted.
func (l *Loader) Tags() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	tags := make([]string, 0, len(l.bundles))
	for tag := range l.bundles {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Reset forgets which bundles have loaded.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = make(map[string]bool)
}
