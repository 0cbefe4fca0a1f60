// Package watch turns file-system change events on the tracker file into
// refresh triggers, so edits made by the external reporting tool show up
// without waiting for the next scheduled refresh.
//
// Watching is strictly best-effort: network shares often emit no events
// at all, and the scheduler remains the fallback. Bursts of writes are
// debounced into a single trigger.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"feedtrack/internal/logging"
)

// DefaultDebounce is how long the watcher waits for a write burst to
// settle before triggering.
const DefaultDebounce = 500 * time.Millisecond

// Watcher triggers a callback when the watched resource file changes.
type Watcher struct {
	debounce time.Duration
	onChange func()
	logger   *slog.Logger
}

// New creates a Watcher calling onChange after each settled change burst.
// debounce <= 0 uses DefaultDebounce.
func New(debounce time.Duration, onChange func(), logger *slog.Logger) *Watcher {
	logger = logging.Default(logger)
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		debounce: debounce,
		onChange: onChange,
		logger:   logger.With("component", "watch"),
	}
}

// Watch blocks watching dir for changes to the named file until ctx is
// cancelled. Create, write and rename events count as changes; other
// files in the directory are ignored.
func (w *Watcher) Watch(ctx context.Context, dir, name string) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("watch %q: %w", dir, err)
	}
	w.logger.Info("watching", "dir", dir, "file", name)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if !ev.Op.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			w.logger.Debug("change detected", "op", ev.Op.String())
			if timer == nil {
				timer = time.AfterFunc(w.debounce, w.onChange)
			} else {
				timer.Reset(w.debounce)
			}

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}
