package manifest

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/prewarm/internal/errors"
	"github.com/Iron-Ham/prewarm/internal/features"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
)

type stubBinder struct {
	routes  []string
	bundles []string
}

func (b *stubBinder) RouteLoader(r Route) prefetch.LoadFunc {
	b.routes = append(b.routes, r.Path)
	return func(context.Context) error { return nil }
}

func (b *stubBinder) BundleLoader(name string, _ Feature) features.Bundle {
	b.bundles = append(b.bundles, name)
	return func(context.Context) error { return nil }
}

func TestDefault(t *testing.T) {
	m := Default()

	assert.Len(t, m.Routes.Critical, 3)
	assert.Len(t, m.Routes.Secondary, 5)
	assert.Len(t, m.Routes.Tertiary, 10)
	assert.Len(t, m.Features, 6)

	assert.Equal(t, "index", m.Routes.Critical[0].Name)
	assert.Equal(t, 0.95, m.Routes.Critical[0].Weight)
	assert.Equal(t, []string{"pdf", "docs"}, m.Routes.Secondary[3].Dependencies)
	assert.Equal(t, "not-found", m.Routes.Tertiary[9].Name)
	assert.Nil(t, m.Rules(), "default manifest uses the built-in preference rules")
}

func TestManifest_TierRoutes(t *testing.T) {
	m := Default()
	b := &stubBinder{}

	routes := m.TierRoutes(b)
	require.Len(t, routes.Secondary, 5)
	assert.Equal(t, "gerar-documento", routes.Secondary[3].Name)
	assert.Equal(t, features.PDF, routes.Secondary[3].Feature)
	assert.NotNil(t, routes.Secondary[3].Load)
	assert.Len(t, b.routes, 18)

	bundles := m.Bundles(b)
	assert.Len(t, bundles, 6)
	assert.Contains(t, bundles, features.Animation)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown field", "routes:\n  critical:\n    - {name: a, path: /a, weight: 0.5, colour: red}\n", "colour"},
		{"missing name", "routes:\n  critical:\n    - {path: /a, weight: 0.5}\n", "route name is required"},
		{"duplicate name", "routes:\n  critical:\n    - {name: a, path: /a, weight: 0.5}\n  tertiary:\n    - {name: a, path: /b, weight: 0.1}\n", "duplicate route name"},
		{"weight out of range", "routes:\n  secondary:\n    - {name: a, path: /a, weight: 1.5}\n", "outside [0, 1]"},
		{"unknown dependency", "routes:\n  secondary:\n    - {name: a, path: /a, weight: 0.5, dependencies: [video]}\n", `unknown dependency "video"`},
		{"empty feature", "features:\n  docs: {assets: []}\n", "feature has no assets"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrManifestInvalid), "error should wrap ErrManifestInvalid: %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParse_PreferenceRules(t *testing.T) {
	m, err := Parse([]byte("preference_rules:\n  - {pattern: '/reports/*', feature: charts}\n"))
	require.NoError(t, err)
	require.Len(t, m.Rules(), 1)
	assert.Equal(t, "charts", m.Rules()[0].Feature)
}

func TestLoad(t *testing.T) {
	t.Run("empty path uses default", func(t *testing.T) {
		m, err := Load("")
		require.NoError(t, err)
		assert.Len(t, m.Routes.All(), 18)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		var cfgErr *errors.ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "manifest.path", cfgErr.Field)
	})

	t.Run("file on disk", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "routes.yaml")
		data := "features:\n  docs: {assets: [/d.js]}\nroutes:\n  critical:\n    - {name: home, path: /, weight: 1, dependencies: [docs]}\n"
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		m, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "home", m.Routes.Critical[0].Name)
	})

	t.Run("invalid file names the path", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("routes: [oops"), 0644))

		_, err := Load(path)
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), path))
	})
}
