// Package watcher provides directory creation-event watching for the
// intake pipeline.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileEvent represents a file created in the watched directory.
type FileEvent struct {
	Path      string
	Timestamp time.Time
}

// CreateWatcher emits an event for every file created in a single
// directory (non-recursive), backed by fsnotify.
type CreateWatcher struct {
	fw *fsnotify.Watcher

	mu      sync.Mutex
	stopped bool
}

// NewCreateWatcher creates a watcher. Call Watch to start it.
func NewCreateWatcher() (*CreateWatcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	return &CreateWatcher{fw: fw}, nil
}

// Watch subscribes to creation events for dir and returns a channel of
// events. The channel is closed when the context is cancelled, Stop is
// called, or the underlying notification stream ends.
//
// Whether a file moved into the directory (e.g. a rollback restore)
// produces a Create event depends on the fsnotify backend; on Linux a
// rename into a watched directory does. Callers should not assume it.
func (w *CreateWatcher) Watch(ctx context.Context, dir string) (<-chan FileEvent, error) {
	if err := w.fw.Add(dir); err != nil {
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	events := make(chan FileEvent, 100)
	go w.forward(ctx, events)
	return events, nil
}

// Stop closes the watcher and releases its resources.
func (w *CreateWatcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	return w.fw.Close()
}

func (w *CreateWatcher) forward(ctx context.Context, events chan<- FileEvent) {
	defer close(events)

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			select {
			case events <- FileEvent{Path: event.Name, Timestamp: time.Now()}:
			case <-ctx.Done():
				return
			}

		case _, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			// Transient backend errors are dropped; the watch itself
			// stays registered.
		}
	}
}
