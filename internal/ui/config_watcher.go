package ui

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/oseligman/claude-autoyes/internal/logging"
)

var uiLog = logging.ForComponent(logging.CompUI)

// ConfigWatcher watches the config file for external edits (another TUI,
// the CLI, or a hand edit) and signals the UI to reload. The containing
// directory is watched rather than the file itself because atomic saves
// replace the file, which drops a direct watch.
type ConfigWatcher struct {
	configPath string
	watcher    *fsnotify.Watcher

	changeCh  chan struct{}
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewConfigWatcher creates and starts a watcher for the given config path.
// Returns nil if the watch cannot be established; the UI falls back to its
// periodic refresh.
func NewConfigWatcher(configPath string) *ConfigWatcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		uiLog.Warn("config_watcher_init_failed", slog.String("error", err.Error()))
		return nil
	}
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		uiLog.Warn("config_watcher_add_failed", slog.String("error", err.Error()))
		_ = watcher.Close()
		return nil
	}

	w := &ConfigWatcher{
		configPath: configPath,
		watcher:    watcher,
		changeCh:   make(chan struct{}, 1),
		closeCh:    make(chan struct{}),
	}
	go w.watchLoop()
	return w
}

// Changes delivers one signal per (debounced) burst of config writes.
func (w *ConfigWatcher) Changes() <-chan struct{} {
	return w.changeCh
}

// Close shuts the watcher down. Safe to call more than once.
func (w *ConfigWatcher) Close() {
	w.closeOnce.Do(func() {
		close(w.closeCh)
		_ = w.watcher.Close()
	})
}

func (w *ConfigWatcher) watchLoop() {
	// Debounce timer: coalesce the write+rename burst of an atomic save
	var debounce *time.Timer

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.configPath {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}

			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, func() {
				select {
				case w.changeCh <- struct{}{}:
				default:
				}
			})

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			uiLog.Warn("config_watcher_error", slog.String("error", err.Error()))
		}
	}
}
