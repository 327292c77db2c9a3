package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceDelay is the default delay for debouncing file system events.
const DebounceDelay = 100 * time.Millisecond

// Watcher reloads a configuration file into a Live when it changes.
//
// The directory holding the file is watched rather than the file itself, so
// editors that save by writing a new file and renaming it over the old one
// are seen. Bursts of events are debounced. A file that fails to parse is
// reported and the previous configuration stays in effect.
type Watcher struct {
	path string
	live *Live

	watcher *fsnotify.Watcher
	logger  *slog.Logger

	mu            sync.Mutex
	debounceDelay time.Duration
	debounceTimer *time.Timer
	onReload      func(*Config, error)
	closed        bool

	done    chan struct{}
	stopped chan struct{}
}

// NewWatcher creates a watcher for path feeding live.
// Call Start to begin watching and Close when done.
func NewWatcher(path string, live *Live, logger *slog.Logger) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		path:          abs,
		live:          live,
		watcher:       fw,
		logger:        logger,
		debounceDelay: DebounceDelay,
		done:          make(chan struct{}),
		stopped:       make(chan struct{}),
	}, nil
}

// SetDebounceDelay sets the debounce delay for batching rapid changes.
func (w *Watcher) SetDebounceDelay(d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.debounceDelay = d
}

// OnReload registers fn to be called after every reload attempt with the
// new configuration, or with the error that kept the old one.
func (w *Watcher) OnReload(fn func(*Config, error)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onReload = fn
}

// Start adds the watch and begins the event processing loop.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.eventLoop()
	return nil
}

// Close stops the watcher. After Close returns no more reloads happen.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	err := w.watcher.Close()
	<-w.stopped
	return err
}

func (w *Watcher) eventLoop() {
	defer close(w.stopped)

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != w.path {
		return
	}
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("Config file changed", "path", event.Name, "op", event.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debounceDelay, w.reload)
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.debounceTimer = nil
	fn := w.onReload
	w.mu.Unlock()

	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("Config reload failed, keeping previous configuration", "path", w.path, "error", err)
	} else {
		cfg.ApplyEnv()
		w.live.Set(cfg)
		w.logger.Info("Config reloaded", "path", w.path)
	}
	if fn != nil {
		fn(cfg, err)
	}
}
