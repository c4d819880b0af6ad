package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/prewarm/internal/api"
	"github.com/Iron-Ham/prewarm/internal/config"
	"github.com/Iron-Ham/prewarm/internal/manifest"
	"github.com/Iron-Ham/prewarm/internal/prefetch"
	"github.com/Iron-Ham/prewarm/internal/store"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

// isolate points config and data directories at a temp dir and resets
// viper between tests.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	viper.Reset()
	t.Cleanup(viper.Reset)
	return dir
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "prewarm" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "prewarm")
	}

	expected := []string{"run", "serve", "metrics", "history", "config"}
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
}

func TestConfigInitAndPath(t *testing.T) {
	isolate(t)

	out, err := executeCommand(rootCmd, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, config.ConfigFile())

	data, err := os.ReadFile(config.ConfigFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "critical_delay_ms: 500")

	_, err = executeCommand(rootCmd, "config", "init")
	assert.Error(t, err, "init must not overwrite an existing file")
}

func TestDefaultConfigFileLoads(t *testing.T) {
	isolate(t)
	config.SetDefaults()
	viper.SetConfigType("yaml")
	require.NoError(t, viper.ReadConfig(strings.NewReader(defaultConfigFile)))

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestHistory_ReportsSessionAndPreferences(t *testing.T) {
	isolate(t)
	config.SetDefaults()
	cfg := config.Default()

	sessionStore, err := store.NewFileStore(cfg.Storage.ResolveSessionDir())
	require.NoError(t, err)
	require.NoError(t, sessionStore.Set(store.KeyRecentPages, []string{"/contratos", "/documentos/1"}))

	local, err := store.OpenSQLite(cfg.Storage.ResolveLocalDB())
	require.NoError(t, err)
	require.NoError(t, local.Set(store.KeyUserPreferences, map[string]float64{"docs": 0.4}))
	require.NoError(t, local.Close())

	out, err := executeCommand(rootCmd, "history", "--json")
	require.NoError(t, err)

	var report historyReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, []string{"/contratos", "/documentos/1"}, report.Paths)
	assert.Equal(t, []string{"document"}, report.Patterns)
	assert.InDelta(t, 0.4, report.Preferences["docs"], 1e-9)

	_, err = executeCommand(rootCmd, "history", "--clear", "--json=false")
	require.NoError(t, err)
	var paths []string
	found, err := sessionStore.Get(store.KeyRecentPages, &paths)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMetrics_QueriesDaemon(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/metrics", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.MetricsResponse{
			SessionID: "abc",
			Metrics:   prefetch.Snapshot{SuccessCount: 4, CacheHits: 2, CacheHitRatePercent: 50},
		})
	}))
	defer srv.Close()

	out, err := executeCommand(rootCmd, "metrics", "--addr", strings.TrimPrefix(srv.URL, "http://"), "--json=false", "--clear=false")
	require.NoError(t, err)
	assert.Contains(t, out, "Succeeded: 4")
	assert.Contains(t, out, "Cache hits: 2 (50.0%)")
}

func TestMetrics_ReportsAPIError(t *testing.T) {
	isolate(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: api.ErrorDetail{Code: api.ErrCodeNoSession, Message: "orchestrator not started"}})
	}))
	defer srv.Close()

	c := &apiClient{base: srv.URL, http: srv.Client()}
	err := c.do(context.Background(), http.MethodGet, "/api/v1/metrics", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), api.ErrCodeNoSession)
}

func TestRuntime_RunsSessionAgainstOrigin(t *testing.T) {
	isolate(t)
	config.SetDefaults()

	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write([]byte("export {}"))
	}))
	defer origin.Close()

	cfg := config.Default()
	cfg.HTTP.BaseURL = origin.URL
	cfg.Logging.Enabled = false
	cfg.Prefetch.CriticalDelayMs = 1
	cfg.Prefetch.LowEndCriticalDelayMs = 1
	cfg.Prefetch.StepDelayMs = 1
	cfg.Prefetch.SecondaryDelayMs = 1
	cfg.Prefetch.IdleTimeoutMs = 50
	cfg.Prefetch.TertiaryDelayMs = 50

	rt, err := newRuntime(cfg)
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	orch := rt.newSession(nil)
	require.NoError(t, orch.Start(context.Background(), "/"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, orch.Settle(ctx))
	orch.Stop()

	m := orch.Metrics()
	assert.Zero(t, m.ErrorCount)
	assert.Positive(t, m.SuccessCount)
	assert.LessOrEqual(t, m.SuccessCount, len(manifest.Default().Routes.All()))

	hist, err := orch.History()
	require.NoError(t, err)
	assert.Equal(t, []string{"/"}, hist)

	rt.endSession()
	hist, err = orch.History()
	require.NoError(t, err)
	assert.Empty(t, hist)
}

func TestRuntime_EndSessionAndReloadRewarmAssets(t *testing.T) {
	isolate(t)
	config.SetDefaults()

	var mu sync.Mutex
	hits := make(map[string]int)
	count := func(path string) int {
		mu.Lock()
		defer mu.Unlock()
		return hits[path]
	}
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits[r.URL.Path]++
		mu.Unlock()
		w.Header().Set("Content-Type", "text/javascript")
		_, _ = w.Write([]byte("export {}"))
	}))
	defer origin.Close()

	cfg := config.Default()
	cfg.HTTP.BaseURL = origin.URL
	cfg.Logging.Enabled = false

	rt, err := newRuntime(cfg)
	require.NoError(t, err)
	defer func() { _ = rt.Close() }()

	const docsAsset = "/assets/libs/documentLibs.js"
	ctx := context.Background()
	route := manifest.Route{Name: "extra", Path: "/extra", Modules: []string{"/assets/extra.js"}}

	require.NoError(t, rt.features.Load(ctx, "docs"))
	require.NoError(t, rt.loader.LoadRoute(ctx, route))
	require.NoError(t, rt.features.Load(ctx, "docs"))
	require.NoError(t, rt.loader.LoadRoute(ctx, route))
	assert.Equal(t, 1, count(docsAsset), "bundles are memoized within a session")
	assert.Equal(t, 1, count("/assets/extra.js"), "modules are memoized within a session")

	rt.endSession()
	require.NoError(t, rt.features.Load(ctx, "docs"))
	require.NoError(t, rt.loader.LoadRoute(ctx, route))
	assert.Equal(t, 2, count(docsAsset))
	assert.Equal(t, 2, count("/assets/extra.js"))

	rt.applyManifest(manifest.Default())
	require.NoError(t, rt.features.Load(ctx, "docs"))
	require.NoError(t, rt.loader.LoadRoute(ctx, route))
	assert.Equal(t, 3, count(docsAsset))
	assert.Equal(t, 3, count("/assets/extra.js"))
}
