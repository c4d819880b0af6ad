package prefetch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Iron-Ham/prewarm/internal/clock"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/event"
	"github.com/Iron-Ham/prewarm/internal/logging"
)

// Defaults applied by NewQueue.
const (
	DefaultMaxConcurrent     = 3
	DefaultCacheHitThreshold = 50 * time.Millisecond
)

// Option configures a Queue.
type Option func(*Queue)

// WithMaxConcurrent sets the number of loads allowed in flight. Values
// below 1 are ignored.
func WithMaxConcurrent(n int) Option {
	return func(q *Queue) {
		if n >= 1 {
			q.maxConcurrent = n
		}
	}
}

// WithClock sets the clock used to time loads.
func WithClock(c clock.Clock) Option {
	return func(q *Queue) {
		if c != nil {
			q.clock = c
		}
	}
}

// WithCacheHitThreshold sets the duration under which a successful load
// counts as a cache hit.
func WithCacheHitThreshold(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.cacheHitThreshold = d
		}
	}
}

// WithLogger sets the logger for load failures and debug tracing.
func WithLogger(l *logging.Logger) Option {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// WithBus publishes prefetch and queue-depth events on b.
func WithBus(b *event.Bus) Option {
	return func(q *Queue) { q.bus = b }
}

// Queue is a FIFO prefetch queue with bounded concurrency.
// It is safe for concurrent use.
type Queue struct {
	maxConcurrent     int
	cacheHitThreshold time.Duration
	clock             clock.Clock
	logger            *logging.Logger
	bus               *event.Bus

	mu      sync.Mutex
	backlog []*item
	active  int // loads in flight
	running int // run goroutines not yet finished; >= active
	nextID  uint64
	status  QueueStatus
	metrics Metrics
	idle    chan struct{} // closed once nothing is queued or loading
	drained bool          // idle has been closed
}

// NewQueue creates an empty Queue.
func NewQueue(opts ...Option) *Queue {
	q := &Queue{
		maxConcurrent:     DefaultMaxConcurrent,
		cacheHitThreshold: DefaultCacheHitThreshold,
		clock:             clock.Real(),
		logger:            logging.NopLogger(),
		idle:              make(chan struct{}),
		drained:           true,
	}
	close(q.idle)
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// MaxConcurrent returns the in-flight bound.
func (q *Queue) MaxConcurrent() int { return q.maxConcurrent }

// Add appends routes to the backlog and starts as many as free slots
// allow. It never waits for a load.
func (q *Queue) Add(routes ...RouteDescriptor) {
	if len(routes) == 0 {
		return
	}

	q.mu.Lock()
	if q.drained {
		q.idle = make(chan struct{})
		q.drained = false
	}
	for _, r := range routes {
		q.nextID++
		q.backlog = append(q.backlog, &item{id: q.nextID, route: r, status: StatusQueued})
		q.status.adjust(StatusQueued, 1)
	}
	started := q.processLocked()
	depth := q.status
	q.mu.Unlock()

	q.publishDepth(depth)
	q.start(started)
}

// processLocked moves backlog items into free slots in FIFO order and
// returns the items whose loads the caller must start. q.mu must be held.
func (q *Queue) processLocked() []*item {
	var started []*item
	for q.active < q.maxConcurrent && len(q.backlog) > 0 {
		it := q.backlog[0]
		q.backlog[0] = nil
		q.backlog = q.backlog[1:]

		if err := it.transition(StatusLoading); err != nil {
			q.logger.Error("dropping queue item", "route", it.route.Name, "error", err.Error())
			continue
		}
		q.status.move(StatusQueued, StatusLoading)
		q.active++
		q.running++
		started = append(started, it)
	}
	return started
}

func (q *Queue) start(items []*item) {
	for _, it := range items {
		go q.run(it)
	}
}

// run performs one load, records its outcome, and refills the freed slot.
func (q *Queue) run(it *item) {
	begin := q.clock.Now()
	if q.bus != nil {
		q.bus.Publish(event.NewPrefetchStartedEvent(it.route.Name, begin))
	}

	err := invoke(it.route)
	elapsed := q.clock.Since(begin)

	q.mu.Lock()
	q.active--
	var cacheHit bool
	to := StatusSucceeded
	if err == nil {
		cacheHit = q.metrics.recordSuccess(elapsed, q.cacheHitThreshold)
	} else {
		q.metrics.recordFailure()
		to = StatusFailed
	}
	if terr := it.transition(to); terr == nil {
		q.status.move(StatusLoading, to)
	}
	next := q.processLocked()
	depth := q.status
	q.mu.Unlock()

	log := q.logger.WithRoute(it.route.Name)
	var errMsg string
	if err != nil {
		errMsg = err.Error()
		loadErr := errors.NewLoadError(it.route.Name, err)
		log.Warn("prefetch failed",
			"error", loadErr.Error(),
			"retryable", errors.IsRetryable(err),
			"duration_ms", millis(elapsed))
	} else {
		log.Debug("prefetch completed", "duration_ms", millis(elapsed), "cache_hit", cacheHit)
	}

	if q.bus != nil {
		q.bus.Publish(event.NewPrefetchCompletedEvent(it.route.Name, err == nil, elapsed, cacheHit, errMsg, q.clock.Now()))
	}
	q.publishDepth(depth)
	q.start(next)
	q.markIdle()
}

// markIdle retires a finished run goroutine and closes the idle channel
// once every run has published its events and nothing is queued.
func (q *Queue) markIdle() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.running--
	if !q.drained && q.running == 0 && len(q.backlog) == 0 {
		close(q.idle)
		q.drained = true
	}
}

// invoke calls the route's loader, converting a panic into an error.
func invoke(r RouteDescriptor) (err error) {
	if r.Load == nil {
		return errors.ErrNoLoader
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("loader panicked: %v", p)
		}
	}()
	return r.Load(context.Background())
}

func (q *Queue) publishDepth(s QueueStatus) {
	if q.bus == nil {
		return
	}
	q.bus.Publish(event.NewQueueDepthChangedEvent(s.Queued, s.Loading, q.clock.Now()))
}

// Idle returns a channel that is closed once nothing is queued or loading.
// A new channel is handed out after further work is added.
func (q *Queue) Idle() <-chan struct{} {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.idle
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	select {
	case <-q.Idle():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Status returns item counts by state.
func (q *Queue) Status() QueueStatus {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.status
}

// Metrics returns a snapshot of the load metrics.
func (q *Queue) Metrics() Snapshot {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.metrics.Snapshot()
}

// ClearMetrics zeroes the load metrics. Loads already in flight report
// into the cleared counters; loaded modules stay cached.
func (q *Queue) ClearMetrics() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.metrics = Metrics{}
}
