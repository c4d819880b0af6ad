// Package interaction counts qualifying user interactions and maps each
// count to a prefetch action.
package interaction

import (
	"slices"
	"sync"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/event"
)

// Interaction kinds that are counted.
const (
	MouseDown  = "mousedown"
	TouchStart = "touchstart"
	KeyDown    = "keydown"
)

// Kinds returns the tracked interaction kinds.
func Kinds() []string {
	return []string{MouseDown, TouchStart, KeyDown}
}

// Validate returns errors.ErrUnknownInteraction for untracked kinds.
func Validate(kind string) error {
	if !slices.Contains(Kinds(), kind) {
		return errors.Wrapf(errors.ErrUnknownInteraction, "kind %q", kind)
	}
	return nil
}

// Stage is the counter state after an interaction.
type Stage int

const (
	// StageIdle means no interaction has been counted yet.
	StageIdle Stage = iota
	// StageFirst follows the first interaction: load the animation bundle.
	StageFirst
	// StageSecond follows the second interaction: fire the tertiary tier.
	StageSecond
	// StageDone follows the third interaction: stop listening.
	StageDone
)

// String returns the stage name.
func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageFirst:
		return "first"
	case StageSecond:
		return "second"
	case StageDone:
		return "done"
	default:
		return "unknown"
	}
}

// Counter is a three-step state machine. Once done it stays done.
// It is safe for concurrent use.
type Counter struct {
	mu    sync.Mutex
	stage Stage
}

// OnInteraction advances the counter and returns the new stage. It
// returns (StageDone, false) once the counter is already done.
func (c *Counter) OnInteraction() (Stage, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stage == StageDone {
		return StageDone, false
	}
	c.stage++
	return c.stage, true
}

// Stage returns the current stage.
func (c *Counter) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Actions are invoked as the counter advances. Nil actions are skipped.
// They run on the publishing goroutine and should not block.
type Actions struct {
	OnFirst  func()
	OnSecond func()
	OnDone   func()
}

// Handle owns a Counter's bus subscription.
type Handle struct {
	bus     *event.Bus
	counter *Counter
	actions Actions

	mu     sync.Mutex
	subID  string
	closed bool
}

// Subscribe attaches a new Counter to bus interaction events. The
// subscription is removed after the third interaction or on Close.
func Subscribe(bus *event.Bus, actions Actions) *Handle {
	h := &Handle{bus: bus, counter: &Counter{}, actions: actions}
	h.mu.Lock()
	h.subID = bus.Subscribe(event.TypeInteraction, h.handle)
	h.mu.Unlock()
	return h
}

func (h *Handle) handle(e event.Event) {
	ie, ok := e.(event.InteractionEvent)
	if !ok || Validate(ie.Kind) != nil {
		return
	}

	stage, advanced := h.counter.OnInteraction()
	if !advanced {
		return
	}
	switch stage {
	case StageFirst:
		call(h.actions.OnFirst)
	case StageSecond:
		call(h.actions.OnSecond)
	case StageDone:
		h.Close()
		call(h.actions.OnDone)
	}
}

func call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Stage returns the counter's current stage.
func (h *Handle) Stage() Stage { return h.counter.Stage() }

// Close unsubscribes. It is idempotent.
func (h *Handle) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	h.bus.Unsubscribe(h.subID)
}

// Closed reports whether the subscription has been removed.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
