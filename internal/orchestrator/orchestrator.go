// Package orchestrator runs one prefetch session: it records the landing
// page, starts the critical tier, and wires the idle and interaction
// triggers that start the secondary and tertiary tiers.
//
// An Orchestrator corresponds to a single page load. It owns every timer,
// goroutine and bus subscription it creates and releases them all on Stop.
// Loads already handed to the prefetch queue are never cancelled.
package orchestrator

import (
	"context"
	"sync"

	"github.com/Iron-Ham/prewarm/internal/clock"
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/event"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/interaction"
	"github.com/Iron-Ham/prewarm/internal/logging"
	"github.com/Iron-Ham/prewarm/internal/navigation"
	"github.com/Iron-Ham/prewarm/internal/preference"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/tier"
)

// Queue is the part of *prefetch.Queue the orchestrator observes.
type Queue interface {
	IdleSource
	Metrics() prefetch.Snapshot
	ClearMetrics()
	Wait(ctx context.Context) error
}

// IdleSource signals that the client has nothing left to do.
type IdleSource interface {
	Idle() <-chan struct{}
}

// Scheduler runs tier policies. *tier.Scheduler implements it.
type Scheduler interface {
	Run(ctx context.Context, name tier.Name, sig tier.Signals) ([]prefetch.RouteDescriptor, error)
	Dispatched(name tier.Name) <-chan struct{}
	Table() tier.Table
	Stop()
}

// History records visited paths. *navigation.Recorder implements it.
type History interface {
	Record(path string) error
	History() ([]string, error)
}

// UsageTracker updates usage preferences on navigation and on
// interactions attributed to a feature. *preference.Tracker implements it.
type UsageTracker interface {
	TrackPageView(path string) (string, error)
	TrackInteraction(feature string) error
}

// Deps are the collaborators of an Orchestrator. Queue, Scheduler and
// History are required.
type Deps struct {
	Queue     Queue
	Scheduler Scheduler
	Features  tier.DependencyLoader
	History   History

	// Preferences feeds tier gates. Tracker, when set, is updated on every
	// navigation and attributed interaction; it is usually the same
	// *preference.Tracker.
	Preferences preference.Reader
	Tracker     UsageTracker

	Signals device.Signals
	// Idle overrides the idle signal. It defaults to Queue.
	Idle IdleSource

	Clock     clock.Clock
	Bus       *event.Bus
	Logger    *logging.Logger
	SessionID string
}

// Orchestrator coordinates the three prefetch tiers of one session.
// It is safe for concurrent use.
type Orchestrator struct {
	queue     Queue
	scheduler Scheduler
	features  tier.DependencyLoader
	history   History
	prefs     preference.Reader
	tracker   UsageTracker
	signals   device.Signals
	idle      IdleSource
	clock     clock.Clock
	bus       *event.Bus
	logger    *logging.Logger
	sessionID string

	mu      sync.Mutex
	started bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc
	timers  map[tier.Name]clock.Timer // trigger fallbacks
	fired   map[tier.Name]bool        // latches of Once tiers
	handle  *interaction.Handle
	wg      sync.WaitGroup
}

// New creates an Orchestrator. Optional dependencies default to host
// device signals, a real clock, a private bus and a discarding logger.
func New(d Deps) *Orchestrator {
	if d.Signals == nil {
		d.Signals = device.HostSignals{}
	}
	if d.Preferences == nil {
		d.Preferences = preference.Static{}
	}
	if d.Idle == nil {
		d.Idle = d.Queue
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Bus == nil {
		d.Bus = event.NewBus()
	}
	if d.Logger == nil {
		d.Logger = logging.NopLogger()
	}
	logger := d.Logger
	if d.SessionID != "" {
		logger = logger.WithSession(d.SessionID)
	}

	return &Orchestrator{
		queue:     d.Queue,
		scheduler: d.Scheduler,
		features:  d.Features,
		history:   d.History,
		prefs:     d.Preferences,
		tracker:   d.Tracker,
		signals:   d.Signals,
		idle:      d.Idle,
		clock:     d.Clock,
		bus:       d.Bus,
		logger:    logger,
		sessionID: d.SessionID,
		timers:    make(map[tier.Name]clock.Timer),
		fired:     make(map[tier.Name]bool),
	}
}

// Start records path as the landing page, runs the critical tier and arms
// the triggers of the others. It returns once everything is armed; tiers
// run in the background. The session outlives ctx and ends with Stop.
func (o *Orchestrator) Start(ctx context.Context, path string) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.ErrAlreadyStarted
	}
	o.started = true
	o.ctx, o.cancel = context.WithCancel(context.WithoutCancel(ctx))
	o.mu.Unlock()

	if err := o.Navigate(path); err != nil {
		o.logger.Warn("failed to record landing page", "path", path, "error", err.Error())
	}

	table := o.scheduler.Table()

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stopped {
		return nil
	}
	o.handle = interaction.Subscribe(o.bus, interaction.Actions{
		OnFirst: o.loadAnimation,
		OnSecond: func() {
			o.triggerInteraction(table.Tertiary)
		},
	})
	for _, p := range []tier.Policy{table.Critical, table.Secondary, table.Tertiary} {
		o.armLocked(p)
	}

	o.logger.Info("session started", "path", path)
	return nil
}

// armLocked wires p's trigger. o.mu must be held.
func (o *Orchestrator) armLocked(p tier.Policy) {
	switch p.Trigger {
	case tier.TriggerPageLoad:
		o.fireLocked(p, "page_load")
	case tier.TriggerIdle:
		o.armIdleLocked(p)
	case tier.TriggerInteraction:
		o.armFallbackLocked(p, "interaction_timeout")
	default:
		o.logger.Warn("tier has no trigger", "tier", string(p.Tier))
	}
}

// armIdleLocked fires p on the first idle signal observed after the
// critical tier has enqueued its routes, or after p.Fallback, whichever
// comes first. Without an idle source only the fallback applies.
func (o *Orchestrator) armIdleLocked(p tier.Policy) {
	var once sync.Once
	fire := func(reason string) {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if t, ok := o.timers[p.Tier]; ok {
				t.Stop()
				delete(o.timers, p.Tier)
			}
			o.fireLocked(p, reason)
		})
	}

	o.timers[p.Tier] = o.clock.AfterFunc(p.Fallback, func() { fire("idle_timeout") })
	if o.idle == nil {
		return
	}

	dispatched := o.scheduler.Dispatched(tier.Critical)
	o.goLocked(func(ctx context.Context) {
		select {
		case <-dispatched:
		case <-ctx.Done():
			return
		}
		select {
		case <-o.idle.Idle():
			fire("idle")
		case <-ctx.Done():
		}
	})
}

// armFallbackLocked fires p after p.Fallback unless its trigger fired
// first and p latches.
func (o *Orchestrator) armFallbackLocked(p tier.Policy, reason string) {
	o.timers[p.Tier] = o.clock.AfterFunc(p.Fallback, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.timers, p.Tier)
		o.fireLocked(p, reason)
	})
}

func (o *Orchestrator) triggerInteraction(p tier.Policy) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if p.Once {
		if t, ok := o.timers[p.Tier]; ok {
			t.Stop()
			delete(o.timers, p.Tier)
		}
	}
	o.fireLocked(p, "interaction")
}

// fireLocked runs tier p in the background. A latched tier runs at most
// once per session. o.mu must be held.
func (o *Orchestrator) fireLocked(p tier.Policy, reason string) {
	if o.stopped {
		return
	}
	if p.Once {
		if o.fired[p.Tier] {
			o.logger.Debug("tier already dispatched", "tier", string(p.Tier), "trigger", reason)
			return
		}
		o.fired[p.Tier] = true
	}
	o.goLocked(func(ctx context.Context) {
		o.runTier(ctx, p.Tier, reason)
	})
}

func (o *Orchestrator) runTier(ctx context.Context, name tier.Name, reason string) {
	log := o.logger.WithTier(string(name))
	log.Debug("tier triggered", "trigger", reason)

	selected, err := o.scheduler.Run(ctx, name, o.Signals())
	if err != nil {
		log.Debug("tier abandoned", "error", err.Error())
		return
	}
	log.Debug("tier armed", "routes", tier.Names(selected))
}

// loadAnimation warms the animation bundle on the first interaction.
func (o *Orchestrator) loadAnimation() {
	if o.features == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.goLocked(func(ctx context.Context) {
		_ = o.features.Load(ctx, features.Animation)
	})
}

// goLocked runs fn on a tracked goroutine with the session context.
// Nothing starts once the orchestrator is stopped. o.mu must be held.
func (o *Orchestrator) goLocked(fn func(ctx context.Context)) {
	if o.stopped {
		return
	}
	ctx := o.ctx
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		fn(ctx)
	}()
}

// Signals evaluates the current device, preference and navigation inputs.
// Unreadable preferences or history degrade to empty inputs.
func (o *Orchestrator) Signals() tier.Signals {
	sig := tier.Signals{Device: device.Detect(o.signals)}

	prefs, err := o.prefs.Preferences()
	if err != nil {
		o.logger.Warn("failed to read preferences", "error", err.Error())
	}
	sig.Preferences = prefs

	hist, err := o.history.History()
	if err != nil {
		o.logger.Warn("failed to read navigation history", "error", err.Error())
	}
	sig.Patterns = navigation.Analyze(hist)
	return sig
}

// Navigate records a visit to path, updates usage preferences and
// publishes a navigation event. It does not require Start.
func (o *Orchestrator) Navigate(path string) error {
	if err := o.history.Record(path); err != nil {
		return errors.Wrap(err, "record navigation")
	}
	if o.tracker != nil {
		if feature, err := o.tracker.TrackPageView(path); err != nil {
			o.logger.Warn("failed to track page view", "path", path, "error", err.Error())
		} else if feature != "" {
			o.logger.Debug("page view tracked", "path", path, "feature", feature)
		}
	}
	o.bus.Publish(event.NewNavigationEvent(path, o.clock.Now()))
	return nil
}

// Interact reports a user interaction of kind. Unknown kinds are rejected
// with ErrUnknownInteraction. A non-empty feature credits that feature's
// usage preference.
func (o *Orchestrator) Interact(kind, feature string) error {
	if err := interaction.Validate(kind); err != nil {
		return err
	}
	if !o.Started() {
		return errors.ErrNotStarted
	}
	o.bus.Publish(event.NewInteractionEvent(kind, o.clock.Now()))

	if feature != "" && o.tracker != nil {
		if err := o.tracker.TrackInteraction(feature); err != nil {
			o.logger.Warn("failed to track interaction", "feature", feature, "error", err.Error())
		}
	}
	return nil
}

// Settle blocks until every tier has enqueued its routes and the queue has
// drained, or ctx is done.
func (o *Orchestrator) Settle(ctx context.Context) error {
	if !o.Started() {
		return errors.ErrNotStarted
	}
	for _, name := range []tier.Name{tier.Critical, tier.Secondary, tier.Tertiary} {
		select {
		case <-o.scheduler.Dispatched(name):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return o.queue.Wait(ctx)
}

// Stop cancels pending tier timers, unsubscribes from interactions and
// waits for background tier work to return. Enqueued loads keep running.
// Stop is idempotent.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.started || o.stopped {
		o.mu.Unlock()
		return
	}
	o.stopped = true
	o.cancel()
	for name, t := range o.timers {
		t.Stop()
		delete(o.timers, name)
	}
	h := o.handle
	o.mu.Unlock()

	o.scheduler.Stop()
	if h != nil {
		h.Close()
	}
	o.wg.Wait()
	o.logger.Info("session stopped")
}

// Metrics returns the prefetch metrics of the session's queue.
func (o *Orchestrator) Metrics() prefetch.Snapshot { return o.queue.Metrics() }

// ClearMetrics zeroes the metrics. Loaded modules stay loaded.
func (o *Orchestrator) ClearMetrics() { o.queue.ClearMetrics() }

// History returns the recorded navigation history.
func (o *Orchestrator) History() ([]string, error) { return o.history.History() }

// Stage returns the interaction counter's stage, or StageIdle before Start.
func (o *Orchestrator) Stage() interaction.Stage {
	o.mu.Lock()
	h := o.handle
	o.mu.Unlock()
	if h == nil {
		return interaction.StageIdle
	}
	return h.Stage()
}

// SessionID returns the session identifier, if any.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// Started reports whether Start has been called.
func (o *Orchestrator) Started() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.started
}

// Stopped reports whether Stop has been called.
func (o *Orchestrator) Stopped() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopped
}
