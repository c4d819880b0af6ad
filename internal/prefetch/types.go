package prefetch

import (
	"context"
	"fmt"

	"github.com/Iron-Ham/prewarm/internal/errors"
)

// LoadFunc warms one route module. It should return once the module (and
// whatever it statically imports) is cached.
type LoadFunc func(ctx context.Context) error

// RouteDescriptor is a statically declared prefetch candidate.
type RouteDescriptor struct {
	Name         string   // Stable identifier used in logs and metrics
	Path         string   // Application path, e.g. "/contratos"
	Load         LoadFunc // Performs the load
	Feature      string   // Optional feature tag ("docs", "pdf", ...)
	Weight       float64  // Prior likelihood of use, 0..1
	Dependencies []string // Feature tags loaded before the route
}

// ItemStatus is the lifecycle state of one enqueued descriptor.
type ItemStatus string

const (
	// StatusQueued indicates the item is waiting for a free slot.
	StatusQueued ItemStatus = "queued"
	// StatusLoading indicates the item's load is in flight.
	StatusLoading ItemStatus = "loading"
	// StatusSucceeded indicates the load completed without error.
	StatusSucceeded ItemStatus = "succeeded"
	// StatusFailed indicates the load returned an error or panicked.
	StatusFailed ItemStatus = "failed"
)

// String returns the string representation of the status.
func (s ItemStatus) String() string {
	return string(s)
}

// IsTerminal returns true if this status represents a final state.
func (s ItemStatus) IsTerminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// ErrInvalidTransition is returned when an item is moved to a state its
// current state cannot reach.
var ErrInvalidTransition = errors.New("invalid status transition")

var transitions = map[ItemStatus][]ItemStatus{
	StatusQueued:  {StatusLoading},
	StatusLoading: {StatusSucceeded, StatusFailed},
}

// item is one enqueued descriptor.
type item struct {
	id     uint64
	route  RouteDescriptor
	status ItemStatus
}

func (it *item) transition(to ItemStatus) error {
	for _, allowed := range transitions[it.status] {
		if allowed == to {
			it.status = to
			return nil
		}
	}
	return fmt.Errorf("%w: cannot move %s from %s to %s", ErrInvalidTransition, it.route.Name, it.status, to)
}

// QueueStatus is a snapshot of item counts by state. Terminal counts
// accumulate for the lifetime of the queue.
type QueueStatus struct {
	Queued    int `json:"queued"`
	Loading   int `json:"loading"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
}

// Pending returns the number of items not yet settled.
func (s QueueStatus) Pending() int {
	return s.Queued + s.Loading
}

func (s *QueueStatus) move(from, to ItemStatus) {
	s.adjust(from, -1)
	s.adjust(to, 1)
}

func (s *QueueStatus) adjust(st ItemStatus, delta int) {
	switch st {
	case StatusQueued:
		s.Queued += delta
	case StatusLoading:
		s.Loading += delta
	case StatusSucceeded:
		s.Succeeded += delta
	case StatusFailed:
		s.Failed += delta
	}
}
