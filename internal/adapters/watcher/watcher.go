// Package watcher re-runs work when geometry files in a directory change.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// DefaultDebounce is used when Config.Debounce is not set.
const DefaultDebounce = 500 * time.Millisecond

// Event represents a settled change to a geometry file.
type Event struct {
	Path      string
	Operation Operation
}

// Operation represents the type of file operation.
type Operation int

// File operation types.
const (
	OpCreate Operation = iota
	OpModify
	OpDelete
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "create"
	case OpModify:
		return "modify"
	case OpDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// Handler is called once per settled file event.
type Handler func(ctx context.Context, event Event) error

type pendingEvent struct {
	timestamp time.Time
	op        Operation
}

// Config holds watcher configuration.
type Config struct {
	Paths    []string
	Debounce time.Duration
}

// Watcher watches directories for geometry file changes. Events for one file
// are coalesced until the file has been quiet for the debounce interval.
// Result files written next to their inputs are ignored.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	handler   Handler
	logger    *slog.Logger
	paths     []string
	debounce  time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new file watcher.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating watcher: %w", err)
	}

	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}

	return &Watcher{
		fsWatcher: fsWatcher,
		handler:   handler,
		logger:    logger,
		paths:     cfg.Paths,
		debounce:  cfg.Debounce,
		pending:   make(map[string]*pendingEvent),
		done:      make(chan struct{}),
	}, nil
}

// Start watches the configured paths until ctx is done. At least one path
// must be watchable.
func (w *Watcher) Start(ctx context.Context) error {
	var errs []error
	watched := 0
	for _, path := range w.paths {
		absPath, err := filepath.Abs(path)
		if err == nil {
			err = w.fsWatcher.Add(absPath)
		}
		if err != nil {
			w.logger.Warn("failed to watch path", "path", path, "error", err)
			errs = append(errs, err)
			continue
		}
		watched++
		w.logger.Info("watching directory", "path", absPath)
	}
	if watched == 0 {
		return fmt.Errorf("no watchable paths: %w", errors.Join(errs...))
	}

	w.wg.Add(2)
	go w.eventLoop(ctx)
	go w.debounceLoop(ctx)

	return nil
}

// Stop closes the watcher and waits for a running handler to return.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.done)
		err = w.fsWatcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) eventLoop(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleFsEvent(event)

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

func (w *Watcher) handleFsEvent(event fsnotify.Event) {
	if !output.IsInputFile(event.Name) {
		return
	}

	w.logger.Debug("file event", "path", event.Name, "op", event.Op.String())
	w.record(event.Name, fsnotifyOpToOperation(event.Op), time.Now())
}

// record adds or refreshes the pending event for path. A delete wins over
// earlier operations; a create after a delete restores create.
func (w *Watcher) record(path string, op Operation, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()

	existing, ok := w.pending[path]
	if !ok {
		w.pending[path] = &pendingEvent{timestamp: now, op: op}
		return
	}

	existing.timestamp = now
	switch {
	case existing.op == OpDelete && op == OpCreate:
		existing.op = OpCreate
	case op == OpDelete:
		existing.op = OpDelete
	}
}

func (w *Watcher) debounceLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(max(w.debounce/5, 10*time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.done:
			return

		case now := <-ticker.C:
			for _, event := range w.settled(now) {
				w.dispatch(ctx, event)
			}
		}
	}
}

// settled removes and returns the events that have been quiet for the
// debounce interval.
func (w *Watcher) settled(now time.Time) []Event {
	w.mu.Lock()
	defer w.mu.Unlock()

	var events []Event
	for path, pending := range w.pending {
		if now.Sub(pending.timestamp) < w.debounce {
			continue
		}
		delete(w.pending, path)
		events = append(events, Event{Path: path, Operation: pending.op})
	}
	return events
}

// dispatch runs the handler. Events are handled one at a time, in the
// debounce goroutine.
func (w *Watcher) dispatch(ctx context.Context, e Event) {
	w.logger.Info("processing file event", "path", e.Path, "operation", e.Operation.String())

	if err := w.handler(ctx, e); err != nil {
		w.logger.Error("handler error",
			"path", e.Path,
			"operation", e.Operation.String(),
			"error", err,
		)
	}
}

// fsnotifyOpToOperation converts fsnotify.Op to our Operation type.
func fsnotifyOpToOperation(op fsnotify.Op) Operation {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return OpDelete
	case op.Has(fsnotify.Create):
		return OpCreate
	default:
		return OpModify
	}
}
