package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake is a manually advanced Clock. Callbacks registered with AfterFunc
// run synchronously inside Advance, in deadline order, once the fake time
// reaches their deadline. It is safe for concurrent use.
type Fake struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
	nextID int
}

type fakeTimer struct {
	f       *Fake
	id      int
	when    time.Time
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

// NewFake returns a Fake starting at the given instant.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

// Now returns the current fake time.
func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Since returns the fake time elapsed since t.
func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// AfterFunc registers fn to run once the fake time has advanced by d.
// A non-positive d fires on the next Advance call, including Advance(0).
func (f *Fake) AfterFunc(d time.Duration, fn func()) Timer {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	t := &fakeTimer{
		f:     f,
		id:    f.nextID,
		when:  f.now.Add(d),
		delay: d,
		fn:    fn,
	}
	f.timers = append(f.timers, t)
	return t
}

// Advance moves the fake time forward by d and fires every timer whose
// deadline is reached. Timers registered by fired callbacks are honored if
// their deadline also falls within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	target := f.now.Add(d)
	f.mu.Unlock()

	for {
		f.mu.Lock()
		next := f.nextDueLocked(target)
		if next == nil {
			f.now = target
			f.mu.Unlock()
			return
		}
		if next.when.After(f.now) {
			f.now = next.when
		}
		next.fired = true
		fn := next.fn
		f.mu.Unlock()

		fn()
	}
}

// nextDueLocked returns the earliest pending timer due at or before target.
// Ties are broken by registration order.
func (f *Fake) nextDueLocked(target time.Time) *fakeTimer {
	var best *fakeTimer
	for _, t := range f.timers {
		if t.stopped || t.fired || t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Pending returns the delays of timers that have neither fired nor been
// stopped, ordered by deadline.
func (f *Fake) Pending() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	var pending []*fakeTimer
	for _, t := range f.timers {
		if !t.stopped && !t.fired {
			pending = append(pending, t)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].when.Before(pending[j].when) })

	delays := make([]time.Duration, len(pending))
	for i, t := range pending {
		delays[i] = t.delay
	}
	return delays
}

// Delays returns the requested delay of every timer ever registered, in
// registration order.
func (f *Fake) Delays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()

	delays := make([]time.Duration, len(f.timers))
	for i, t := range f.timers {
		delays[i] = t.delay
	}
	return delays
}

func (t *fakeTimer) Stop() bool {
	t.f.mu.Lock()
	defer t.f.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}
