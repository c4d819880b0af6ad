// Package preference tracks per-feature usage ratios in the long-lived
// local store. The secondary tier reads them to decide whether document
// routes are worth warming.
package preference

import (
	"fmt"
	"math"
	"sync"

	"github.com/gobwas/glob"

	"github.com/Iron-Ham/prewarm/internal/store"
)

// Increments applied per tracked signal. Ratios are capped at 1.
const (
	PageViewWeight    = 0.1
	InteractionWeight = 0.2
)

// Rule maps paths matching Pattern (gobwas/glob syntax) to Feature.
type Rule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Feature string `yaml:"feature" json:"feature"`
}

// DefaultRules returns the built-in path classification. Rules are tried in
// order; the first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: "*admin*", Feature: "admin"},
		{Pattern: "{*document*,*contrato*}", Feature: "docs"},
		{Pattern: "{*pdf*,*gerar*}", Feature: "pdf"},
		{Pattern: "{*chart*,*dashboard*}", Feature: "charts"},
		{Pattern: "{*ai*,*prompt*}", Feature: "ai"},
	}
}

type compiledRule struct {
	g       glob.Glob
	feature string
}

// Reader exposes the stored preference ratios.
type Reader interface {
	Preferences() (map[string]float64, error)
}

// Tracker reads and updates the preference map stored under
// store.KeyUserPreferences. It is safe for concurrent use.
type Tracker struct {
	mu    sync.Mutex
	store store.Store
	rules []compiledRule
}

// NewTracker compiles rules and returns a Tracker over s. Nil rules use
// DefaultRules.
func NewTracker(s store.Store, rules []Rule) (*Tracker, error) {
	if rules == nil {
		rules = DefaultRules()
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		g, err := glob.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compile preference rule %q: %w", r.Pattern, err)
		}
		compiled = append(compiled, compiledRule{g: g, feature: r.Feature})
	}
	return &Tracker{store: s, rules: compiled}, nil
}

// FeatureForPath returns the feature the first matching rule assigns to
// path, or "" when none matches.
func (t *Tracker) FeatureForPath(path string) string {
	for _, r := range t.rules {
		if r.g.Match(path) {
			return r.feature
		}
	}
	return ""
}

// Preferences implements Reader. A missing map is returned empty.
func (t *Tracker) Preferences() (map[string]float64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.load()
}

// TrackPageView credits the feature path maps to, if any. It returns the
// credited feature.
func (t *Tracker) TrackPageView(path string) (string, error) {
	feature := t.FeatureForPath(path)
	if feature == "" {
		return "", nil
	}
	return feature, t.bump(feature, PageViewWeight)
}

// TrackInteraction credits feature directly.
func (t *Tracker) TrackInteraction(feature string) error {
	if feature == "" {
		return nil
	}
	return t.bump(feature, InteractionWeight)
}

func (t *Tracker) bump(feature string, by float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	prefs, err := t.load()
	if err != nil {
		return err
	}
	prefs[feature] = math.Min(1, prefs[feature]+by)

	if err := t.store.Set(store.KeyUserPreferences, prefs); err != nil {
		return fmt.Errorf("persist preferences: %w", err)
	}
	return nil
}

func (t *Tracker) load() (map[string]float64, error) {
	var prefs map[string]float64
	if _, err := t.store.Get(store.KeyUserPreferences, &prefs); err != nil {
		return nil, fmt.Errorf("read preferences: %w", err)
	}
	if prefs == nil {
		prefs = make(map[string]float64)
	}
	return prefs, nil
}

// Static is a fixed Reader.
type Static map[string]float64

// Preferences implements Reader.
func (s Static) Preferences() (map[string]float64, error) {
	out := make(map[string]float64, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out, nil
}
