package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/Iron-Ham/prewarm/internal/clock"
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/event"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/interaction"
	"github.com/Iron-Ham/prewarm/internal/navigation"
	"github.com/Iron-Ham/prewarm/internal/preference"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/store"
	"github.com/Iron-Ham/prewarm/internal/tier"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type harness struct {
	fake    *clock.Fake
	queue   *prefetch.Queue
	loader  *features.Loader
	tracker *preference.Tracker
	orch    *Orchestrator

	mu      sync.Mutex
	loads   map[string]int
	bundles map[string]int
	block   chan struct{} // critical loads wait on it when non-nil
}

func newHarness(t *testing.T, sig device.Signals, block chan struct{}) *harness {
	t.Helper()
	h := &harness{
		fake:    clock.NewFake(time.Unix(0, 0)),
		loads:   make(map[string]int),
		bundles: make(map[string]int),
		block:   block,
	}
	bus := event.NewBus()
	h.queue = prefetch.NewQueue(prefetch.WithClock(h.fake), prefetch.WithBus(bus))

	bundles := make(map[string]features.Bundle)
	for _, tag := range []string{features.Docs, features.AI, features.Animation, features.Charts, features.Admin} {
		bundles[tag] = func(context.Context) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.bundles[tag]++
			return nil
		}
	}
	h.loader = features.NewLoader(bundles, nil)

	sched := tier.NewScheduler(tier.SchedulerConfig{
		Table: tier.DefaultTable(),
		Routes: tier.Routes{
			Critical: []prefetch.RouteDescriptor{
				h.route("Index", "", 0.95, true),
				h.route("Login", "", 0.9, true),
				h.route("Contratos", features.Docs, 0.85, true),
			},
			Secondary: []prefetch.RouteDescriptor{
				h.route("Relatorios", features.Charts, 0.5, false, features.Charts),
				h.route("Documentos", features.Docs, 0.6, false, features.Docs),
			},
			Tertiary: []prefetch.RouteDescriptor{
				h.route("Admin", features.Admin, 0.3, false, features.Admin),
				h.route("Rare", "", 0.1, false),
			},
		},
		Queue:    h.queue,
		Features: h.loader,
		Clock:    h.fake,
		Bus:      bus,
	})

	mem := store.NewMemoryStore()
	tracker, err := preference.NewTracker(mem, nil)
	if err != nil {
		t.Fatal(err)
	}
	h.tracker = tracker

	h.orch = New(Deps{
		Queue:       h.queue,
		Scheduler:   sched,
		Features:    h.loader,
		History:     navigation.NewRecorder(mem, 0),
		Preferences: tracker,
		Tracker:     tracker,
		Signals:     sig,
		Clock:       h.fake,
		Bus:         bus,
		SessionID:   "test-session",
	})
	t.Cleanup(func() {
		h.orch.Stop()
		h.drain(t)
	})
	return h
}

func (h *harness) route(name, feature string, weight float64, critical bool, deps ...string) prefetch.RouteDescriptor {
	return prefetch.RouteDescriptor{
		Name:         name,
		Path:         "/" + name,
		Feature:      feature,
		Weight:       weight,
		Dependencies: deps,
		Load: func(context.Context) error {
			if critical && h.block != nil {
				<-h.block
			}
			h.mu.Lock()
			defer h.mu.Unlock()
			h.loads[name]++
			return nil
		},
	}
}

func (h *harness) loadCount(name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loads[name]
}

func (h *harness) bundleCount(tag string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bundles[tag]
}

func (h *harness) drain(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.queue.Wait(ctx); err != nil {
		t.Errorf("queue did not drain: %v", err)
	}
}

func (h *harness) pending() string { return fmt.Sprint(h.fake.Pending()) }

func (h *harness) hasPending(d time.Duration) bool {
	for _, p := range h.fake.Pending() {
		if p == d {
			return true
		}
	}
	return false
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestOrchestrator_TierLifecycle(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4, Effective: "4g"}, nil)

	if err := h.orch.Start(context.Background(), "/dashboard"); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitFor(t, "critical timers", func() bool { return h.pending() == "[500ms 700ms 900ms 3s 5s]" })

	if h.bundleCount(features.Docs) != 1 || h.bundleCount(features.AI) != 1 || h.bundleCount(features.Animation) != 1 {
		t.Errorf("critical libs not preloaded: %v", h.bundles)
	}

	h.fake.Advance(900 * time.Millisecond)
	waitFor(t, "critical loads", func() bool {
		return h.loadCount("Index") == 1 && h.loadCount("Login") == 1 && h.loadCount("Contratos") == 1
	})

	// The queue drains, the idle signal fires the secondary tier and its
	// fallback is cancelled.
	waitFor(t, "secondary timer", func() bool { return h.pending() == "[2s 5s]" })
	if h.bundleCount(features.Charts) != 1 {
		t.Errorf("secondary route dependencies not loaded: %v", h.bundles)
	}

	h.fake.Advance(2 * time.Second)
	waitFor(t, "secondary load", func() bool { return h.loadCount("Relatorios") == 1 })
	if h.loadCount("Documentos") != 0 {
		t.Error("docs routes are gated without a docs preference")
	}

	if err := h.orch.Interact(interaction.MouseDown, ""); err != nil {
		t.Fatal(err)
	}
	if h.orch.Stage() != interaction.StageFirst {
		t.Errorf("Stage() = %v, want first", h.orch.Stage())
	}

	if err := h.orch.Interact(interaction.KeyDown, ""); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "tertiary load", func() bool { return h.loadCount("Admin") == 1 })
	if h.loadCount("Rare") != 0 {
		t.Error("Rare is below the tertiary threshold")
	}
	waitFor(t, "tertiary fallback cancelled", func() bool { return h.pending() == "[]" })

	h.fake.Advance(5 * time.Second)
	if err := h.orch.Interact(interaction.TouchStart, ""); err != nil {
		t.Fatal(err)
	}
	if h.orch.Stage() != interaction.StageDone {
		t.Errorf("Stage() = %v, want done", h.orch.Stage())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.orch.Settle(ctx); err != nil {
		t.Fatalf("Settle() error = %v", err)
	}
	if h.loadCount("Admin") != 1 {
		t.Errorf("tertiary ran %d times, want 1", h.loadCount("Admin"))
	}

	m := h.orch.Metrics()
	if m.SuccessCount != 5 || m.ErrorCount != 0 {
		t.Errorf("Metrics() = %+v", m)
	}
	h.orch.ClearMetrics()
	if h.orch.Metrics().SuccessCount != 0 {
		t.Error("ClearMetrics() did not reset counters")
	}
}

func TestOrchestrator_SecondaryFallsBackWithoutIdle(t *testing.T) {
	block := make(chan struct{})
	h := newHarness(t, device.StaticSignals{Cores: 4}, block)
	defer close(block)

	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "critical timers", func() bool { return len(h.fake.Pending()) == 5 })

	h.fake.Advance(900 * time.Millisecond)
	if h.hasPending(2 * time.Second) {
		t.Fatal("secondary tier fired while the queue was busy")
	}

	h.fake.Advance(2100 * time.Millisecond)
	waitFor(t, "secondary timer", func() bool { return h.hasPending(2 * time.Second) })
	if h.hasPending(3 * time.Second) {
		t.Error("fallback timer should have fired")
	}
}

func TestOrchestrator_LowEndDevice(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 2}, nil)

	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "critical timers", func() bool { return h.pending() == "[1s 1.2s 1.4s 3s 5s]" })
}

func TestOrchestrator_TertiaryFallbackLatches(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 8}, nil)

	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "critical timers", func() bool { return len(h.fake.Pending()) == 5 })

	h.fake.Advance(5 * time.Second)
	waitFor(t, "tertiary load", func() bool { return h.loadCount("Admin") == 1 })

	// A later second interaction must not fire the tertiary tier again.
	_ = h.orch.Interact(interaction.MouseDown, "")
	_ = h.orch.Interact(interaction.MouseDown, "")
	h.drain(t)
	if h.loadCount("Admin") != 1 {
		t.Errorf("tertiary ran %d times, want 1", h.loadCount("Admin"))
	}
}

func TestOrchestrator_StopCancelsPendingWork(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "critical timers", func() bool { return len(h.fake.Pending()) == 5 })

	h.orch.Stop()
	h.orch.Stop()
	if h.pending() != "[]" {
		t.Errorf("pending timers after Stop = %s", h.pending())
	}

	h.fake.Advance(10 * time.Second)
	if n := h.loadCount("Index"); n != 0 {
		t.Errorf("Index loaded %d times after Stop", n)
	}
	if !h.orch.Stopped() {
		t.Error("Stopped() = false")
	}
	if err := h.orch.Start(context.Background(), "/"); !errors.Is(err, errors.ErrAlreadyStarted) {
		t.Errorf("Start() after Stop = %v", err)
	}
}

func TestOrchestrator_StartTwice(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	if err := h.orch.Start(context.Background(), "/"); !errors.Is(err, errors.ErrAlreadyStarted) {
		t.Errorf("second Start() = %v, want ErrAlreadyStarted", err)
	}
}

func TestOrchestrator_StartOutlivesContext(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if err := h.orch.Start(ctx, "/"); err != nil {
		t.Fatal(err)
	}
	cancel()

	waitFor(t, "critical timers", func() bool { return len(h.fake.Pending()) == 5 })
	h.fake.Advance(500 * time.Millisecond)
	waitFor(t, "first critical load", func() bool { return h.loadCount("Index") == 1 })
}

func TestOrchestrator_Interact(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	if err := h.orch.Interact(interaction.MouseDown, ""); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Interact() before Start = %v, want ErrNotStarted", err)
	}
	if err := h.orch.Interact("scroll", ""); !errors.Is(err, errors.ErrUnknownInteraction) {
		t.Errorf("Interact(scroll) = %v, want ErrUnknownInteraction", err)
	}
	if err := h.orch.Settle(context.Background()); !errors.Is(err, errors.ErrNotStarted) {
		t.Errorf("Settle() before Start = %v", err)
	}
	if h.orch.Stage() != interaction.StageIdle {
		t.Errorf("Stage() before Start = %v", h.orch.Stage())
	}
}

func TestOrchestrator_InteractCreditsFeature(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	if err := h.orch.Interact(interaction.MouseDown, features.Charts); !errors.Is(err, errors.ErrNotStarted) {
		t.Fatalf("Interact() before Start = %v", err)
	}
	if err := h.orch.Start(context.Background(), "/"); err != nil {
		t.Fatal(err)
	}
	for _, kind := range []string{interaction.MouseDown, interaction.KeyDown} {
		if err := h.orch.Interact(kind, features.Charts); err != nil {
			t.Fatal(err)
		}
	}
	if err := h.orch.Interact(interaction.TouchStart, ""); err != nil {
		t.Fatal(err)
	}

	prefs, err := h.tracker.Preferences()
	if err != nil {
		t.Fatal(err)
	}
	if got := prefs[features.Charts]; math.Abs(got-0.4) > 1e-9 {
		t.Errorf("charts preference = %v, want 0.4", got)
	}
	if len(prefs) != 1 {
		t.Errorf("Preferences() = %v, want only charts", prefs)
	}
}

func TestOrchestrator_NavigateFeedsSignals(t *testing.T) {
	h := newHarness(t, device.StaticSignals{Cores: 4}, nil)

	for _, p := range []string{"/contratos/1", "/documentos/2"} {
		if err := h.orch.Navigate(p); err != nil {
			t.Fatal(err)
		}
	}

	hist, err := h.orch.History()
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(hist) != "[/contratos/1 /documentos/2]" {
		t.Errorf("History() = %v", hist)
	}

	sig := h.orch.Signals()
	if !navigation.Has(sig.Patterns, navigation.PatternDocument) {
		t.Errorf("Patterns = %v, want document", sig.Patterns)
	}
	if got := sig.Preferences[features.Docs]; math.Abs(got-0.2) > 1e-9 {
		t.Errorf("docs preference = %v, want 0.2", got)
	}
	if sig.Device.IsLowEnd || sig.Device.ConnectionType != device.UnknownConnection {
		t.Errorf("Device = %+v", sig.Device)
	}
}
