// Package navigation records the routes visited during a session and
// derives simple transition patterns from that history.
package navigation

import (
	"fmt"
	"sync"

	"github.com/Iron-Ham/prewarm/internal/store"
)

// DefaultHistoryLimit is the number of paths kept when no limit is given.
const DefaultHistoryLimit = 10

// Recorder appends visited paths to a bounded history kept in a session
// store under store.KeyRecentPages. It is safe for concurrent use within
// one process; cross-process writers are serialized by the store.
type Recorder struct {
	mu    sync.Mutex
	store store.Store
	limit int
}

// NewRecorder creates a Recorder over s. A non-positive limit uses
// DefaultHistoryLimit.
func NewRecorder(s store.Store, limit int) *Recorder {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &Recorder{store: s, limit: limit}
}

// Record appends path to the history, evicting the oldest entries beyond
// the limit, and persists the result.
func (r *Recorder) Record(path string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	history, err := r.load()
	if err != nil {
		return err
	}

	history = append(history, path)
	if len(history) > r.limit {
		history = history[len(history)-r.limit:]
	}

	if err := r.store.Set(store.KeyRecentPages, history); err != nil {
		return fmt.Errorf("persist navigation history: %w", err)
	}
	return nil
}

// History returns the recorded paths, most recent last. A missing history
// is returned as an empty slice.
func (r *Recorder) History() ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.load()
}

// Limit returns the maximum history length.
func (r *Recorder) Limit() int { return r.limit }

func (r *Recorder) load() ([]string, error) {
	var history []string
	if _, err := r.store.Get(store.KeyRecentPages, &history); err != nil {
		return nil, fmt.Errorf("read navigation history: %w", err)
	}
	if history == nil {
		history = []string{}
	}
	return history, nil
}
