package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_AdvanceFiresInDeadlineOrder(t *testing.T) {
	f := NewFake(epoch)

	var order []string
	f.AfterFunc(300*time.Millisecond, func() { order = append(order, "c") })
	f.AfterFunc(100*time.Millisecond, func() { order = append(order, "a") })
	f.AfterFunc(200*time.Millisecond, func() { order = append(order, "b") })

	f.Advance(150 * time.Millisecond)
	if len(order) != 1 || order[0] != "a" {
		t.Fatalf("after 150ms fired %v, want [a]", order)
	}

	f.Advance(time.Second)
	want := []string{"a", "b", "c"}
	if len(order) != len(want) {
		t.Fatalf("fired %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d] = %q, want %q", i, order[i], want[i])
		}
	}
	if got := f.Since(epoch); got != 1150*time.Millisecond {
		t.Errorf("Since(epoch) = %v, want 1.15s", got)
	}
}

func TestFake_NowDuringCallbackIsDeadline(t *testing.T) {
	f := NewFake(epoch)

	var seen time.Time
	f.AfterFunc(250*time.Millisecond, func() { seen = f.Now() })
	f.Advance(time.Second)

	if want := epoch.Add(250 * time.Millisecond); !seen.Equal(want) {
		t.Errorf("Now() inside callback = %v, want %v", seen, want)
	}
}

func TestFake_Stop(t *testing.T) {
	f := NewFake(epoch)

	fired := false
	timer := f.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("first Stop should report true")
	}
	if timer.Stop() {
		t.Error("second Stop should report false")
	}

	f.Advance(2 * time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
	if len(f.Pending()) != 0 {
		t.Errorf("Pending() = %v, want empty", f.Pending())
	}
}

func TestFake_NestedTimersWithinWindow(t *testing.T) {
	f := NewFake(epoch)

	count := 0
	f.AfterFunc(100*time.Millisecond, func() {
		count++
		f.AfterFunc(100*time.Millisecond, func() { count++ })
	})

	f.Advance(250 * time.Millisecond)
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestFake_Delays(t *testing.T) {
	f := NewFake(epoch)
	f.AfterFunc(500*time.Millisecond, func() {})
	f.AfterFunc(0, func() {})

	got := f.Delays()
	if len(got) != 2 || got[0] != 500*time.Millisecond || got[1] != 0 {
		t.Errorf("Delays() = %v, want [500ms 0s]", got)
	}
}
