package event

import "time"

// Event type identifiers, "category.action".
const (
	TypeNavigation        = "navigation.recorded"
	TypeInteraction       = "user.interaction"
	TypePrefetchStarted   = "prefetch.started"
	TypePrefetchCompleted = "prefetch.completed"
	TypeQueueDepthChanged = "queue.depth_changed"
	TypeTierDispatched    = "tier.dispatched"
)

// Event is the interface that all events implement.
type Event interface {
	EventType() string
	Timestamp() time.Time
}

// baseEvent is embedded in concrete events to satisfy Event.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string, at time.Time) baseEvent {
	if at.IsZero() {
		at = time.Now()
	}
	return baseEvent{eventType: eventType, timestamp: at}
}

// -----------------------------------------------------------------------------
// Session Events
// -----------------------------------------------------------------------------

// NavigationEvent is emitted after a route path is appended to the
// navigation history.
type NavigationEvent struct {
	baseEvent
	Path string
}

// NewNavigationEvent creates a NavigationEvent stamped at.
func NewNavigationEvent(path string, at time.Time) NavigationEvent {
	return NavigationEvent{baseEvent: newBaseEvent(TypeNavigation, at), Path: path}
}

// InteractionEvent is emitted for each qualifying user interaction
// (mousedown, touchstart, keydown).
type InteractionEvent struct {
	baseEvent
	Kind string
}

// NewInteractionEvent creates an InteractionEvent stamped at.
func NewInteractionEvent(kind string, at time.Time) InteractionEvent {
	return InteractionEvent{baseEvent: newBaseEvent(TypeInteraction, at), Kind: kind}
}

// -----------------------------------------------------------------------------
// Prefetch Events
// -----------------------------------------------------------------------------

// PrefetchStartedEvent is emitted when a queued route begins loading.
type PrefetchStartedEvent struct {
	baseEvent
	Route string
}

// NewPrefetchStartedEvent creates a PrefetchStartedEvent stamped at.
func NewPrefetchStartedEvent(route string, at time.Time) PrefetchStartedEvent {
	return PrefetchStartedEvent{baseEvent: newBaseEvent(TypePrefetchStarted, at), Route: route}
}

// PrefetchCompletedEvent is emitted when a route load settles.
type PrefetchCompletedEvent struct {
	baseEvent
	Route    string
	Success  bool
	Duration time.Duration
	CacheHit bool   // Only meaningful when Success is true
	Error    string // Empty on success
}

// NewPrefetchCompletedEvent creates a PrefetchCompletedEvent stamped at.
func NewPrefetchCompletedEvent(route string, success bool, d time.Duration, cacheHit bool, errMsg string, at time.Time) PrefetchCompletedEvent {
	return PrefetchCompletedEvent{
		baseEvent: newBaseEvent(TypePrefetchCompleted, at),
		Route:     route,
		Success:   success,
		Duration:  d,
		CacheHit:  cacheHit,
		Error:     errMsg,
	}
}

// QueueDepthChangedEvent is emitted when the backlog or in-flight count
// of the prefetch queue changes.
type QueueDepthChangedEvent struct {
	baseEvent
	Queued  int
	Loading int
}

// NewQueueDepthChangedEvent creates a QueueDepthChangedEvent stamped at.
func NewQueueDepthChangedEvent(queued, loading int, at time.Time) QueueDepthChangedEvent {
	return QueueDepthChangedEvent{
		baseEvent: newBaseEvent(TypeQueueDepthChanged, at),
		Queued:    queued,
		Loading:   loading,
	}
}

// Idle reports whether the queue has nothing queued or in flight.
func (e QueueDepthChangedEvent) Idle() bool {
	return e.Queued == 0 && e.Loading == 0
}

// -----------------------------------------------------------------------------
// Tier Events
// -----------------------------------------------------------------------------

// TierDispatchedEvent is emitted when a tier hands its selected routes to
// the prefetch queue.
type TierDispatchedEvent struct {
	baseEvent
	Tier   string
	Routes []string
}

// NewTierDispatchedEvent creates a TierDispatchedEvent stamped at.
func NewTierDispatchedEvent(tier string, routes []string, at time.Time) TierDispatchedEvent {
	return TierDispatchedEvent{baseEvent: newBaseEvent(TypeTierDispatched, at), Tier: tier, Routes: routes}
}
