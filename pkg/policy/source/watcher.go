package source

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a FileSource when its backing file changes. Events are
// debounced so editors that write-then-rename do not trigger reload
// storms.
type Watcher struct {
	source   *FileSource
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *slog.Logger
}

// DefaultDebounceInterval is the quiet period after a file event before
// a reload is attempted.
const DefaultDebounceInterval = 100 * time.Millisecond

// NewWatcher builds a watcher over the source's policy file.
func NewWatcher(source *FileSource, debounce time.Duration) (*Watcher, error) {
	if debounce <= 0 {
		debounce = DefaultDebounceInterval
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory rather than the file: rename-based saves
	// replace the inode and would silently detach a file watch.
	if err := fw.Add(filepath.Dir(source.Path())); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", source.Path(), err)
	}

	return &Watcher{
		source:   source,
		watcher:  fw,
		debounce: debounce,
		logger:   slog.Default().With("component", "policy.source"),
	}, nil
}

// Watch blocks processing file events until the context is cancelled.
func (w *Watcher) Watch(ctx context.Context) error {
	defer w.watcher.Close()

	w.logger.Info("policy file watcher started",
		"path", w.source.Path(),
		"debounce_ms", w.debounce.Milliseconds(),
	)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("policy file watcher stopped")
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.relevant(event) {
				continue
			}
			// Restart the debounce window on every relevant event.
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}

		case <-timerC:
			timer, timerC = nil, nil
			if err := w.source.Reload(); err != nil {
				// Keep the last good rule set; evaluation must not be
				// affected by a broken edit.
				w.logger.Error("policy reload failed, keeping previous rules",
					"path", w.source.Path(),
					"error", err,
				)
				continue
			}
			w.logger.Info("policy rules reloaded",
				"path", w.source.Path(),
				"rule_count", len(w.source.Rules()),
			)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("policy file watch error", "error", err)
		}
	}
}

// relevant filters events down to writes of the watched file.
func (w *Watcher) relevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(w.source.Path()) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}
