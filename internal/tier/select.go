package tier

import (
	"github.com/Iron-Ham/prewarm/internal/device"
	"github.com/Iron-Ham/prewarm/internal/navigation"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

// Signals are the behavioral inputs a policy is evaluated against.
type Signals struct {
	Device      device.Capabilities
	Preferences map[string]float64
	Patterns    []string
}

// Select returns the routes that pass p, in their original order.
//
// A route's threshold is p.Threshold unless the first Override whose
// pattern is present and whose feature matches the route applies. A route
// whose feature has a Gate is dropped unless the gate's preference exceeds
// its minimum. A route survives when its weight is strictly greater than
// its threshold, or always when p is unweighted. Dropped routes are not
// deferred to a later tier.
func Select(p Policy, routes []prefetch.RouteDescriptor, sig Signals) []prefetch.RouteDescriptor {
	selected := make([]prefetch.RouteDescriptor, 0, len(routes))
	for _, r := range routes {
		if gated(p.Gates, r, sig.Preferences) {
			continue
		}
		if p.Unweighted || r.Weight > threshold(p, r, sig.Patterns) {
			selected = append(selected, r)
		}
	}
	return selected
}

func threshold(p Policy, r prefetch.RouteDescriptor, patterns []string) float64 {
	for _, o := range p.Overrides {
		if r.Feature == o.Feature && navigation.Has(patterns, o.Pattern) {
			return o.Threshold
		}
	}
	return p.Threshold
}

func gated(gates []Gate, r prefetch.RouteDescriptor, prefs map[string]float64) bool {
	for _, g := range gates {
		if r.Feature == g.Feature && !(prefs[g.Preference] > g.Min) {
			return true
		}
	}
	return false
}

// Names returns the route names, for logging.
func Names(routes []prefetch.RouteDescriptor) []string {
	names := make([]string, len(routes))
	for i, r := range routes {
		names[i] = r.Name
	}
	return names
}
