// Package manifest declares the routes and feature bundles prewarm warms.
//
// A manifest is a YAML document with a features table (asset lists per
// feature tag), the three tiers' route lists in declaration order, and
// optional preference rules. A built-in manifest describing the
// contract-management application is embedded in the binary.
package manifest

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/preference"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/tier"
)

//go:embed default.yaml
var defaultManifest []byte

// Manifest is a parsed route manifest.
type Manifest struct {
	Features        map[string]Feature `yaml:"features"`
	Routes          RouteSet           `yaml:"routes"`
	PreferenceRules []preference.Rule  `yaml:"preference_rules,omitempty"`
}

// Feature is one bundle's asset list.
type Feature struct {
	Assets []string `yaml:"assets"`
}

// Route is one route declaration.
type Route struct {
	Name         string   `yaml:"name"`
	Path         string   `yaml:"path"`
	Weight       float64  `yaml:"weight"`
	Feature      string   `yaml:"feature,omitempty"`
	Dependencies []string `yaml:"dependencies,omitempty"`
	// Modules lists module URLs fetched in addition to those discovered
	// in the route document.
	Modules []string `yaml:"modules,omitempty"`
}

// RouteSet holds the candidate routes of each tier.
type RouteSet struct {
	Critical  []Route `yaml:"critical"`
	Secondary []Route `yaml:"secondary"`
	Tertiary  []Route `yaml:"tertiary"`
}

// All returns every route, critical first.
func (s RouteSet) All() []Route {
	all := make([]Route, 0, len(s.Critical)+len(s.Secondary)+len(s.Tertiary))
	all = append(all, s.Critical...)
	all = append(all, s.Secondary...)
	return append(all, s.Tertiary...)
}

// Default returns the embedded manifest.
func Default() *Manifest {
	m, err := Parse(defaultManifest)
	if err != nil {
		panic(fmt.Sprintf("embedded manifest is invalid: %v", err))
	}
	return m
}

// Load reads and parses the manifest at path. An empty path returns the
// embedded manifest.
func Load(path string) (*Manifest, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewConfigError("manifest.path", "cannot read manifest").WithCause(err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Parse decodes and validates a manifest. Unknown fields are rejected.
func Parse(data []byte) (*Manifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var m Manifest
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrManifestInvalid, err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Validate checks names, weights and feature references. All problems are
// reported together.
func (m *Manifest) Validate() error {
	var errs []error
	fail := func(field, msg string) {
		errs = append(errs, errors.NewConfigError(field, msg).WithCause(errors.ErrManifestInvalid))
	}

	for name, f := range m.Features {
		if len(f.Assets) == 0 {
			fail("features."+name, "feature has no assets")
		}
	}

	seen := make(map[string]bool)
	check := func(tierName string, routes []Route) {
		for i, r := range routes {
			field := fmt.Sprintf("routes.%s[%d]", tierName, i)
			switch {
			case r.Name == "":
				fail(field, "route name is required")
			case seen[r.Name]:
				fail(field, fmt.Sprintf("duplicate route name %q", r.Name))
			}
			seen[r.Name] = true

			if r.Path == "" {
				fail(field, "route path is required")
			}
			if r.Weight < 0 || r.Weight > 1 {
				fail(field, fmt.Sprintf("weight %v outside [0, 1]", r.Weight))
			}
			for _, dep := range r.Dependencies {
				if _, ok := m.Features[dep]; !ok {
					fail(field, fmt.Sprintf("unknown dependency %q", dep))
				}
			}
		}
	}
	check("critical", m.Routes.Critical)
	check("secondary", m.Routes.Secondary)
	check("tertiary", m.Routes.Tertiary)

	return errors.Join(errs...)
}

// Binder turns declarations into load functions. The HTTP loader
// implements it.
type Binder interface {
	RouteLoader(r Route) prefetch.LoadFunc
	BundleLoader(name string, f Feature) features.Bundle
}

// Descriptors binds routes to load functions, preserving order.
func Descriptors(routes []Route, b Binder) []prefetch.RouteDescriptor {
	out := make([]prefetch.RouteDescriptor, len(routes))
	for i, r := range routes {
		out[i] = prefetch.RouteDescriptor{
			Name:         r.Name,
			Path:         r.Path,
			Load:         b.RouteLoader(r),
			Feature:      r.Feature,
			Weight:       r.Weight,
			Dependencies: append([]string(nil), r.Dependencies...),
		}
	}
	return out
}

// TierRoutes binds every tier's routes.
func (m *Manifest) TierRoutes(b Binder) tier.Routes {
	return tier.Routes{
		Critical:  Descriptors(m.Routes.Critical, b),
		Secondary: Descriptors(m.Routes.Secondary, b),
		Tertiary:  Descriptors(m.Routes.Tertiary, b),
	}
}

// Bundles binds every feature.
func (m *Manifest) Bundles(b Binder) map[string]features.Bundle {
	out := make(map[string]features.Bundle, len(m.Features))
	for name, f := range m.Features {
		out[name] = b.BundleLoader(name, f)
	}
	return out
}

// Rules returns the manifest's preference rules, or nil to use the
// defaults.
func (m *Manifest) Rules() []preference.Rule {
	if len(m.PreferenceRules) == 0 {
		return nil
	}
	return m.PreferenceRules
}
