package manifest

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/prewarm/internal/logging"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a manifest file when it changes and hands valid
// manifests to a callback. Invalid edits are logged and ignored, so the
// last good manifest stays in effect.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload func(*Manifest)
	logger   *logging.Logger

	stopCh   chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// Watch starts watching path. The directory is watched rather than the
// file so that editors which replace the file on save are handled.
func Watch(path string, onReload func(*Manifest), logger *logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.NopLogger()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = fw.Close()
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		logger:   logger.With("manifest", abs),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	debounce := time.NewTimer(0)
	<-debounce.C
	defer debounce.Stop()

	for {
		select {
		case <-w.stopCh:
			return

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(reloadDebounce)

		case <-debounce.C:
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("manifest watcher error", "error", err.Error())
		}
	}
}

func (w *Watcher) reload() {
	m, err := Load(w.path)
	if err != nil {
		w.logger.Warn("ignoring invalid manifest", "error", err.Error())
		return
	}
	w.logger.Info("manifest reloaded", "routes", len(m.Routes.All()))
	if w.onReload != nil {
		w.onReload(m)
	}
}

// Stop ends the watch loop and waits for it to exit. It is idempotent.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		_ = w.watcher.Close()
	})
	<-w.done
}
