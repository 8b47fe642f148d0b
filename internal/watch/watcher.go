// Package watch monitors a PRD file on disk and reports content
// changes by hash. Editors save through temp-file renames, so the
// watcher subscribes to the PRD's parent directory and filters events
// down to the PRD's own name.
package watch

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"prpforge/internal/logging"
	"prpforge/internal/store"

	"github.com/fsnotify/fsnotify"
)

// ChangeFunc is invoked after the PRD's content hash moves. Both
// hashes are short PRD hashes as used in session directory names.
type ChangeFunc func(oldHash, newHash string)

// Stats tracks watcher activity.
type Stats struct {
	EventsSeen    int
	Reloads       int
	Changes       int
	Errors        int
	LastEventTime time.Time
	LastEventOp   string
}

// PRDWatcher watches one PRD file and debounces rapid saves before
// re-hashing it.
type PRDWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	prdPath     string
	prdDir      string
	prdBase     string
	onChange    ChangeFunc
	lastHash    string
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stats       Stats
}

// NewPRDWatcher seeds the watcher with the PRD's current hash. The
// PRD must be readable; a PRD that fails the size floor is rejected
// the same way session creation would reject it.
func NewPRDWatcher(prdPath string, onChange ChangeFunc) (*PRDWatcher, error) {
	abs, err := filepath.Abs(prdPath)
	if err != nil {
		return nil, err
	}
	data, err := store.ReadPRD(abs)
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &PRDWatcher{
		watcher:     fw,
		prdPath:     abs,
		prdDir:      filepath.Dir(abs),
		prdBase:     filepath.Base(abs),
		onChange:    onChange,
		lastHash:    store.HashPRD(data),
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the event loop runs in a
// goroutine until Stop or context cancellation.
func (w *PRDWatcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.prdDir); err != nil {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
		return err
	}
	logging.Watch("watching %s (hash %s)", w.prdPath, w.LastHash())

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for the event loop to exit.
func (w *PRDWatcher) Stop() {
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
		logging.Watch("error closing watcher: %v", err)
	}
	logging.Watch("stopped watching %s", w.prdPath)
}

// IsWatching reports whether the event loop is running.
func (w *PRDWatcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// LastHash returns the most recently observed PRD hash.
func (w *PRDWatcher) LastHash() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastHash
}

// GetStats returns a snapshot of watcher activity.
func (w *PRDWatcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *PRDWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	debounceTicker := time.NewTicker(100 * time.Millisecond)
	defer debounceTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
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
			logging.Watch("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-debounceTicker.C:
			w.processDebouncedEvents()
		}
	}
}

// handleEvent records a PRD event for debounced processing. Remove
// and Rename are kept because atomic saves replace the file; the
// recheck sorts out whether a readable PRD is back in place.
func (w *PRDWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Base(event.Name) != w.prdBase {
		return
	}

	var op string
	switch {
	case event.Op&fsnotify.Create != 0:
		op = "create"
	case event.Op&fsnotify.Write != 0:
		op = "write"
	case event.Op&fsnotify.Remove != 0:
		op = "remove"
	case event.Op&fsnotify.Rename != 0:
		op = "rename"
	default:
		return
	}

	w.mu.Lock()
	w.stats.EventsSeen++
	w.stats.LastEventTime = time.Now()
	w.stats.LastEventOp = op
	w.debounceMap[event.Name] = time.Now()
	w.mu.Unlock()
}

// processDebouncedEvents rechecks the PRD once events have settled
// past the debounce window.
func (w *PRDWatcher) processDebouncedEvents() {
	w.mu.Lock()
	now := time.Now()
	settled := false
	for path, eventTime := range w.debounceMap {
		if now.Sub(eventTime) >= w.debounceDur {
			settled = true
			delete(w.debounceMap, path)
		}
	}
	w.mu.Unlock()

	if settled {
		w.recheck()
	}
}

// recheck re-reads the PRD and fires the callback when its hash moved.
func (w *PRDWatcher) recheck() {
	data, err := store.ReadPRD(w.prdPath)
	if err != nil {
		if errors.Is(err, store.ErrPRDNotFound) {
			// Mid-save rename window; the create event will bring us back.
			return
		}
		logging.Watch("prd unreadable after change: %v", err)
		w.mu.Lock()
		w.stats.Errors++
		w.mu.Unlock()
		return
	}

	newHash := store.HashPRD(data)

	w.mu.Lock()
	w.stats.Reloads++
	oldHash := w.lastHash
	if newHash == oldHash {
		w.mu.Unlock()
		return
	}
	w.lastHash = newHash
	w.stats.Changes++
	cb := w.onChange
	w.mu.Unlock()

	logging.Watch("prd hash changed %s -> %s", oldHash, newHash)
	if cb != nil {
		cb(oldHash, newHash)
	}
}
