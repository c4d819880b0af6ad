package tier

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Iron-Ham/prewarm/internal/clock"
	"github.com/Iron-Ham/prewarm/internal/event"
	"github.com/Iron-Ham/prewarm/internal/logging"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

// Enqueuer accepts routes for prefetching. *prefetch.Queue implements it.
type Enqueuer interface {
	Add(routes ...prefetch.RouteDescriptor)
}

// DependencyLoader loads feature bundles. *features.Loader implements it.
type DependencyLoader interface {
	Load(ctx context.Context, tags ...string) error
	LoadConcurrently(ctx context.Context, tags ...string) error
}

// Routes are the candidate descriptors of each tier, in declaration order.
type Routes struct {
	Critical  []prefetch.RouteDescriptor
	Secondary []prefetch.RouteDescriptor
	Tertiary  []prefetch.RouteDescriptor
}

// For returns the candidates of tier name.
func (r Routes) For(name Name) []prefetch.RouteDescriptor {
	switch name {
	case Critical:
		return r.Critical
	case Secondary:
		return r.Secondary
	case Tertiary:
		return r.Tertiary
	}
	return nil
}

// Scheduler runs tier policies against a queue.
type Scheduler struct {
	table    Table
	routes   Routes
	queue    Enqueuer
	features DependencyLoader
	clock    clock.Clock
	bus      *event.Bus
	logger   *logging.Logger

	mu         sync.Mutex
	timers     []clock.Timer
	stopped    bool
	dispatched map[Name]*dispatch
}

// dispatch tracks the enqueues still owed by the latest Run of a tier.
type dispatch struct {
	remaining int
	done      chan struct{}
	closed    bool
}

func (d *dispatch) finish() {
	if !d.closed {
		d.closed = true
		close(d.done)
	}
}

// SchedulerConfig holds the Scheduler's collaborators.
type SchedulerConfig struct {
	Table    Table
	Routes   Routes
	Queue    Enqueuer
	Features DependencyLoader
	Clock    clock.Clock
	Bus      *event.Bus
	Logger   *logging.Logger
}

// NewScheduler creates a Scheduler. Clock and Logger default to the real
// clock and a discarding logger.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger()
	}
	return &Scheduler{
		table:    cfg.Table,
		routes:   cfg.Routes,
		queue:    cfg.Queue,
		features: cfg.Features,
		clock:    cfg.Clock,
		bus:      cfg.Bus,
		logger:   cfg.Logger,
	}
}

// Critical runs the critical tier.
func (s *Scheduler) Critical(ctx context.Context, sig Signals) ([]prefetch.RouteDescriptor, error) {
	return s.Run(ctx, Critical, sig)
}

// Secondary runs the secondary tier.
func (s *Scheduler) Secondary(ctx context.Context, sig Signals) ([]prefetch.RouteDescriptor, error) {
	return s.Run(ctx, Secondary, sig)
}

// Tertiary runs the tertiary tier. Latching is the caller's concern.
func (s *Scheduler) Tertiary(ctx context.Context, sig Signals) ([]prefetch.RouteDescriptor, error) {
	return s.Run(ctx, Tertiary, sig)
}

// Run loads the tier's fixed dependencies, selects its routes, loads their
// dependencies when the policy asks for it, and arms the timers that
// enqueue them. It returns the selected routes once the timers are armed;
// enqueueing happens later on the clock. Dependency failures are logged by
// the loader and do not stop the tier. Run returns early only when ctx is
// done or the scheduler is stopped.
func (s *Scheduler) Run(ctx context.Context, name Name, sig Signals) ([]prefetch.RouteDescriptor, error) {
	p, ok := s.table.Policy(name)
	if !ok {
		return nil, nil
	}
	log := s.logger.WithTier(string(name))

	if err := s.loadFixed(ctx, p); err != nil {
		return nil, err
	}

	selected := Select(p, s.Routes().For(name), sig)
	log.Debug("tier selected routes", "routes", Names(selected), "patterns", sig.Patterns)
	if len(selected) == 0 {
		s.mu.Lock()
		s.dispatchLocked(name, true).finish()
		s.mu.Unlock()
		return selected, nil
	}

	if p.RouteDependencies && s.features != nil {
		for _, r := range selected {
			if len(r.Dependencies) == 0 {
				continue
			}
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			_ = s.features.Load(ctx, r.Dependencies...)
		}
	}

	s.arm(p, selected, sig.Device.IsLowEnd, log)
	return selected, nil
}

func (s *Scheduler) loadFixed(ctx context.Context, p Policy) error {
	if s.features == nil || (len(p.Dependencies) == 0 && len(p.Preload) == 0) {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_ = s.features.Load(gctx, p.Dependencies...)
		return nil
	})
	g.Go(func() error {
		_ = s.features.LoadConcurrently(gctx, p.Preload...)
		return nil
	})
	_ = g.Wait()
	return ctx.Err()
}

// arm schedules the enqueue of selected according to p's timing.
func (s *Scheduler) arm(p Policy, selected []prefetch.RouteDescriptor, lowEnd bool, log *logging.Logger) {
	batches := len(selected)
	if p.Step == 0 {
		batches = 1
	}
	s.mu.Lock()
	s.dispatchLocked(p.Tier, true).remaining = batches
	s.mu.Unlock()

	if p.Step == 0 {
		delay := p.DelayFor(0, lowEnd)
		s.after(delay, func() { s.enqueue(p.Tier, selected, log) })
		return
	}
	for i, r := range selected {
		s.after(p.DelayFor(i, lowEnd), func() {
			s.enqueue(p.Tier, []prefetch.RouteDescriptor{r}, log)
		})
	}
}

// dispatchLocked returns the dispatch record of name. With fresh set, a
// record left over from a completed Run is replaced. s.mu must be held.
func (s *Scheduler) dispatchLocked(name Name, fresh bool) *dispatch {
	if s.dispatched == nil {
		s.dispatched = make(map[Name]*dispatch)
	}
	d, ok := s.dispatched[name]
	if !ok || (fresh && d.closed) {
		d = &dispatch{done: make(chan struct{})}
		s.dispatched[name] = d
	}
	return d
}

// Dispatched returns a channel closed once the latest Run of name has
// enqueued every route it selected, or selected none. It stays open while
// enqueues are pending and forever if the scheduler is stopped first.
func (s *Scheduler) Dispatched(name Name) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dispatchLocked(name, false).done
}

// after runs fn after d on the scheduler's clock, or immediately when d is
// zero. Nothing runs once the scheduler is stopped.
func (s *Scheduler) after(d time.Duration, fn func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if d <= 0 {
		s.mu.Unlock()
		fn()
		return
	}
	t := s.clock.AfterFunc(d, func() {
		s.mu.Lock()
		stopped := s.stopped
		s.mu.Unlock()
		if !stopped {
			fn()
		}
	})
	s.timers = append(s.timers, t)
	s.mu.Unlock()
}

func (s *Scheduler) enqueue(name Name, routes []prefetch.RouteDescriptor, log *logging.Logger) {
	s.queue.Add(routes...)
	log.Info("tier dispatched", "routes", Names(routes))
	if s.bus != nil {
		s.bus.Publish(event.NewTierDispatchedEvent(string(name), Names(routes), s.clock.Now()))
	}

	s.mu.Lock()
	d := s.dispatchLocked(name, false)
	if d.remaining > 0 {
		d.remaining--
		if d.remaining == 0 {
			d.finish()
		}
	}
	s.mu.Unlock()
}

// Stop cancels every pending enqueue timer. Routes already enqueued keep
// loading. Stop is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
}

// Routes returns the current candidate routes.
func (s *Scheduler) Routes() Routes {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.routes
}

// SetRoutes replaces the candidate routes for subsequent runs.
func (s *Scheduler) SetRoutes(r Routes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = r
}

// Table returns the scheduler's policy table.
func (s *Scheduler) Table() Table { return s.table }
