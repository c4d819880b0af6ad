package cmd

import (
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/Iron-Ham/prewarm/internal/config"
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/event"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/loader"
	"github.com/Iron-Ham/prewarm/internal/logging"
	"github.com/Iron-Ham/prewarm/internal/manifest"
	"github.com/Iron-Ham/prewarm/internal/navigation"
	"github.com/Iron-Ham/prewarm/internal/orchestrator"
	"github.com/Iron-Ham/prewarm/internal/preference"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/store"
	"github.com/Iron-Ham/prewarm/internal/tier"
)

// runtime holds the long-lived pieces shared by every session: stores,
// the HTTP loader and the memoizing feature loader.
type runtime struct {
	cfg      *config.Config
	logger   *logging.Logger
	local    *store.SQLiteStore
	session  *store.FileStore
	loader   *loader.HTTPLoader
	features *features.Loader

	mu        sync.Mutex
	manifest  *manifest.Manifest
	tracker   *preference.Tracker
	scheduler *tier.Scheduler // latest session's, refreshed on reload
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	if !cfg.Logging.Enabled {
		return logging.NopLogger(), nil
	}
	return logging.NewLoggerWithRotation(config.DataDir(), cfg.Logging.Level, logging.RotationConfig{
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
	})
}

func newRuntime(cfg *config.Config) (*runtime, error) {
	logger, err := newLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	m, err := manifest.Load(cfg.Manifest.Path)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	httpLoader, err := loader.New(loader.Options{
		BaseURL:           cfg.HTTP.BaseURL,
		Timeout:           cfg.HTTP.Timeout(),
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
		AssetConcurrency:  cfg.HTTP.AssetConcurrency,
		UserAgent:         cfg.HTTP.UserAgent,
	}, logger)
	if err != nil {
		_ = logger.Close()
		return nil, err
	}

	sessionStore, err := store.NewFileStore(cfg.Storage.ResolveSessionDir())
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	local, err := store.OpenSQLite(cfg.Storage.ResolveLocalDB())
	if err != nil {
		_ = logger.Close()
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	tracker, err := preference.NewTracker(local, m.Rules())
	if err != nil {
		_ = local.Close()
		_ = logger.Close()
		return nil, err
	}

	rt := &runtime{
		cfg:      cfg,
		logger:   logger,
		local:    local,
		session:  sessionStore,
		loader:   httpLoader,
		features: features.NewLoader(m.Bundles(httpLoader), logger),
		manifest: m,
		tracker:  tracker,
	}
	return rt, nil
}

// deviceSignals returns the configured host signals.
func (rt *runtime) deviceSignals() device.Signals {
	return device.HostSignals{
		CoresOverride: rt.cfg.Device.HardwareConcurrency,
		Effective:     rt.cfg.Device.EffectiveType,
	}
}

// newSession wires a fresh queue, scheduler and orchestrator for one page
// load. A nil sig uses the host signals.
func (rt *runtime) newSession(sig device.Signals) *orchestrator.Orchestrator {
	if sig == nil {
		sig = rt.deviceSignals()
	}
	id := uuid.NewString()
	logger := rt.logger.WithSession(id)
	bus := event.NewBus()

	queue := prefetch.NewQueue(
		prefetch.WithMaxConcurrent(rt.cfg.Prefetch.MaxConcurrent),
		prefetch.WithCacheHitThreshold(rt.cfg.Prefetch.CacheHitThreshold()),
		prefetch.WithLogger(logger),
		prefetch.WithBus(bus),
	)

	rt.mu.Lock()
	defer rt.mu.Unlock()
	sched := tier.NewScheduler(tier.SchedulerConfig{
		Table:    tier.TableFromConfig(rt.cfg.Prefetch),
		Routes:   rt.manifest.TierRoutes(rt.loader),
		Queue:    queue,
		Features: rt.features,
		Bus:      bus,
		Logger:   logger,
	})
	rt.scheduler = sched

	return orchestrator.New(orchestrator.Deps{
		Queue:       queue,
		Scheduler:   sched,
		Features:    rt.features,
		History:     navigation.NewRecorder(rt.session, rt.cfg.Prefetch.HistoryLimit),
		Preferences: rt.tracker,
		Tracker:     rt.tracker,
		Signals:     sig,
		Bus:         bus,
		Logger:      rt.logger,
		SessionID:   id,
	})
}

// applyManifest swaps in a reloaded manifest. Sessions already running
// pick up the new routes for tiers that have not fired yet. Assets are
// warmed again since their URLs may have changed.
func (rt *runtime) applyManifest(m *manifest.Manifest) {
	tracker, err := preference.NewTracker(rt.local, m.Rules())
	if err != nil {
		rt.logger.Warn("ignoring manifest with invalid preference rules", "error", err.Error())
		return
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.manifest = m
	rt.tracker = tracker
	rt.features.SetBundles(m.Bundles(rt.loader))
	rt.forgetWarmed()
	if rt.scheduler != nil {
		rt.scheduler.SetRoutes(m.TierRoutes(rt.loader))
	}
	rt.logger.Info("manifest applied", "routes", len(m.Routes.All()), "features", len(m.Features))
}

// endSession clears the per-session store and the loaded-asset memos, so
// the next page load warms everything again.
func (rt *runtime) endSession() {
	if err := rt.session.Clear(); err != nil {
		rt.logger.Warn("failed to clear session store", "error", err.Error())
	}
	rt.forgetWarmed()
}

// forgetWarmed drops the fetched-asset and loaded-bundle memos.
func (rt *runtime) forgetWarmed() {
	rt.loader.Forget()
	rt.features.Reset()
}

func (rt *runtime) Close() error {
	err := rt.local.Close()
	if cerr := rt.logger.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// loadConfig loads and validates the configuration, reporting every
// validation problem at once.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		var verrs config.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, fmt.Errorf("invalid configuration:\n%w", verrs)
		}
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}
