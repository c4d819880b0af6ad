// Package tier decides which route descriptors each prefetch tier warms
// and when it hands them to the prefetch queue.
//
// Every tier is described by a row of a declarative [Table]. One function,
// [Select], applies a row's weight threshold, pattern overrides and
// preference gates to a route list, and one [Scheduler] turns a row's
// timing into clock timers.
package tier

import (
	"time"

	"github.com/Iron-Ham/prewarm/internal/config"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/navigation"
)

// Name identifies a tier.
type Name string

const (
	Critical  Name = "critical"
	Secondary Name = "secondary"
	Tertiary  Name = "tertiary"
)

// Trigger is the signal that starts a tier.
type Trigger string

const (
	// TriggerPageLoad fires when the session starts.
	TriggerPageLoad Trigger = "page_load"
	// TriggerIdle fires on the first idle signal, or after the policy's
	// Fallback when no idle signal arrives in time.
	TriggerIdle Trigger = "idle"
	// TriggerInteraction fires on the second user interaction, or after
	// the policy's Fallback, whichever comes first.
	TriggerInteraction Trigger = "interaction"
)

// Override lowers (or raises) the threshold for routes of Feature when the
// navigation history exhibits Pattern.
type Override struct {
	Pattern   string
	Feature   string
	Threshold float64
}

// Gate skips routes of Feature unless the stored usage ratio for
// Preference is strictly greater than Min.
type Gate struct {
	Feature    string
	Preference string
	Min        float64
}

// Policy is one row of the tier table.
type Policy struct {
	Tier    Name
	Trigger Trigger
	// Fallback bounds how long the trigger waits for its signal.
	Fallback time.Duration
	// Once latches the tier so it dispatches at most once per session.
	Once bool

	// Threshold is the exclusive minimum route weight.
	Threshold float64
	Overrides []Override
	Gates     []Gate
	// Unweighted skips Threshold and Overrides so every route is kept,
	// including zero-weight ones. Gates still apply.
	Unweighted bool

	// Delay is the wait between selection and enqueueing. LowEndDelay
	// replaces it on low-end devices when non-zero.
	Delay       time.Duration
	LowEndDelay time.Duration
	// Step staggers routes: route i is enqueued at Delay + i*Step. With a
	// zero Step all routes are enqueued together.
	Step time.Duration

	// Dependencies load sequentially before selection; Preload loads
	// concurrently alongside them.
	Dependencies []string
	Preload      []string
	// RouteDependencies loads each selected route's own dependencies,
	// one route after another, before enqueueing.
	RouteDependencies bool
}

// DelayFor returns when the route at index i is enqueued.
func (p Policy) DelayFor(i int, lowEnd bool) time.Duration {
	base := p.Delay
	if lowEnd && p.LowEndDelay > 0 {
		base = p.LowEndDelay
	}
	return base + time.Duration(i)*p.Step
}

// Table holds the three tier policies.
type Table struct {
	Critical  Policy
	Secondary Policy
	Tertiary  Policy
}

// Policy returns the row for name.
func (t Table) Policy(name Name) (Policy, bool) {
	switch name {
	case Critical:
		return t.Critical, true
	case Secondary:
		return t.Secondary, true
	case Tertiary:
		return t.Tertiary, true
	}
	return Policy{}, false
}

// DefaultTable returns the built-in policies with default timings.
func DefaultTable() Table {
	return TableFromConfig(config.Default().Prefetch)
}

// TableFromConfig builds the policy table, taking timings from cfg.
func TableFromConfig(cfg config.PrefetchConfig) Table {
	return Table{
		Critical: Policy{
			Tier:         Critical,
			Trigger:      TriggerPageLoad,
			Unweighted:   true,
			Delay:        cfg.CriticalDelay(),
			LowEndDelay:  cfg.LowEndCriticalDelay(),
			Step:         cfg.StepDelay(),
			Dependencies: []string{features.Docs, features.Animation},
			Preload:      []string{features.Docs, features.AI, features.Animation},
		},
		Secondary: Policy{
			Tier:      Secondary,
			Trigger:   TriggerIdle,
			Fallback:  cfg.IdleTimeout(),
			Threshold: 0.2,
			Gates: []Gate{
				{Feature: features.Docs, Preference: features.Docs, Min: 0.3},
			},
			Delay:             cfg.SecondaryDelay(),
			RouteDependencies: true,
		},
		Tertiary: Policy{
			Tier:      Tertiary,
			Trigger:   TriggerInteraction,
			Fallback:  cfg.TertiaryDelay(),
			Once:      true,
			Threshold: 0.15,
			Overrides: []Override{
				{Pattern: navigation.PatternAdmin, Feature: features.Admin, Threshold: 0.05},
				{Pattern: navigation.PatternDocument, Feature: features.Docs, Threshold: 0.1},
			},
			RouteDependencies: true,
		},
	}
}
