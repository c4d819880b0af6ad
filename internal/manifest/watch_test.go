package manifest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, path, name string) {
	t.Helper()
	data := []byte("routes:\n  critical:\n    - {name: " + name + ", path: /, weight: 1}\n")
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prewarm-routes.yaml")
	writeManifest(t, path, "first")

	reloaded := make(chan *Manifest, 4)
	w, err := Watch(path, func(m *Manifest) { reloaded <- m }, nil)
	require.NoError(t, err)
	defer w.Stop()

	// An invalid edit is ignored.
	require.NoError(t, os.WriteFile(path, []byte("routes: [broken"), 0644))
	time.Sleep(3 * reloadDebounce)

	writeManifest(t, path, "second")

	deadline := time.After(5 * time.Second)
	for {
		select {
		case m := <-reloaded:
			if m.Routes.Critical[0].Name == "second" {
				return
			}
		case <-deadline:
			t.Fatal("manifest change was not picked up")
		}
	}
}

func TestWatcher_IgnoresSiblingFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routes.yaml")
	writeManifest(t, path, "only")

	reloaded := make(chan *Manifest, 1)
	w, err := Watch(path, func(m *Manifest) { reloaded <- m }, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0644))

	select {
	case <-reloaded:
		t.Error("unrelated file should not trigger a reload")
	case <-time.After(3 * reloadDebounce):
	}

	w.Stop()
	w.Stop()
	assert.NotNil(t, w)
}
