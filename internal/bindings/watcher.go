package bindings

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"motorcortex/internal/logging"
)

// Watcher reloads the store when the binding files change on disk, so
// edits made by the desktop client or by hand take effect without a
// restart. It watches the data directory rather than the files themselves
// because atomic writers replace files by rename.
type Watcher struct {
	watcher  *fsnotify.Watcher
	store    *Store
	dirs     []string
	names    map[string]bool // file base names we react to
	onReload func()

	mu          sync.Mutex
	running     bool
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
}

// NewWatcher builds a watcher over the store's files. onReload, when not
// nil, runs after each successful reload.
func NewWatcher(store *Store, onReload func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	bindingsPath, hotkeysPath := store.Paths()
	dirs := []string{filepath.Dir(bindingsPath)}
	if hd := filepath.Dir(hotkeysPath); hd != dirs[0] {
		dirs = append(dirs, hd)
	}

	return &Watcher{
		watcher: fw,
		store:   store,
		dirs:    dirs,
		names: map[string]bool{
			filepath.Base(bindingsPath): true,
			filepath.Base(hotkeysPath):  true,
		},
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a goroutine
// until Stop or context cancellation.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, dir := range w.dirs {
		if err := w.watcher.Add(dir); err != nil {
			// The data dir may not exist until the first save.
			logging.BindingsWarn("watch %s failed: %v", dir, err)
			continue
		}
		logging.Bindings("watching %s", dir)
	}

	go w.run(ctx)
	return nil
}

// Stop halts the event loop and closes the underlying watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh

	if err := w.watcher.Close(); err != nil {
		logging.BindingsWarn("close watcher: %v", err)
	}
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	// Batches rapid saves so one editor write triggers one reload.
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
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
			logging.BindingsWarn("watcher error: %v", err)
		case <-ticker.C:
			w.processDebounced()
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !w.names[filepath.Base(event.Name)] {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	logging.BindingsDebug("%s on %s", event.Op, filepath.Base(event.Name))

	w.mu.Lock()
	w.debounceMap[filepath.Base(event.Name)] = time.Now()
	w.mu.Unlock()
}

func (w *Watcher) processDebounced() {
	w.mu.Lock()
	now := time.Now()
	settled := 0
	for name, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			delete(w.debounceMap, name)
			settled++
		}
	}
	w.mu.Unlock()

	if settled == 0 {
		return
	}

	if err := w.store.Load(); err != nil {
		logging.BindingsWarn("reload after change failed: %v", err)
		return
	}
	logging.Bindings("reloaded after file change")
	if w.onReload != nil {
		w.onReload()
	}
}
