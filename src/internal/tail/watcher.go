// FILE: wiretap/src/internal/tail/watcher.go
package tail

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/lixenwraith/log"
)

// Watcher signals that the record log may have grown. Signals coalesce: any
// number of file events between two receives produce a single signal.
type Watcher struct {
	path         string
	pollInterval time.Duration
	changes      chan struct{}
	logger       *log.Logger

	fsEvents atomic.Uint64
	polls    atomic.Uint64
}

// NewWatcher creates a watcher for path. A zero poll interval disables the
// polling backstop and relies on file system events alone.
func NewWatcher(path string, pollInterval time.Duration, logger *log.Logger) *Watcher {
	return &Watcher{
		path:         path,
		pollInterval: pollInterval,
		changes:      make(chan struct{}, 1),
		logger:       logger,
	}
}

// Changes delivers change signals
func (w *Watcher) Changes() <-chan struct{} {
	return w.changes
}

// Run watches until ctx is cancelled. The containing directory is watched so
// the file may be created or replaced after startup.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fsw.Close()

	absPath, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", w.path, err)
	}
	dir := filepath.Dir(absPath)
	name := filepath.Base(absPath)

	if err := fsw.Add(dir); err != nil {
		if w.pollInterval <= 0 {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		w.logger.Warn("msg", "File system events unavailable, polling only",
			"component", "watcher",
			"directory", dir,
			"error", err)
	}

	var tick <-chan time.Time
	if w.pollInterval > 0 {
		ticker := time.NewTicker(w.pollInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	w.logger.Debug("msg", "Watching record log",
		"component", "watcher",
		"path", absPath,
		"poll_interval", w.pollInterval)

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.fsEvents.Add(1)
				w.signal()
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("msg", "File watcher error",
				"component", "watcher",
				"path", absPath,
				"error", err)
			w.signal()
		case <-tick:
			w.polls.Add(1)
			w.signal()
		}
	}
}

func (w *Watcher) signal() {
	select {
	case w.changes <- struct{}{}:
	default:
	}
}

// WatcherStats counts the triggers behind emitted signals
type WatcherStats struct {
	FileEvents uint64
	Polls      uint64
}

// GetStats returns trigger counters
func (w *Watcher) GetStats() WatcherStats {
	return WatcherStats{
		FileEvents: w.fsEvents.Load(),
		Polls:      w.polls.Load(),
	}
}
