package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/workflow"
)

// Batch runs one batch. *workflow.Runner satisfies it.
type Batch interface {
	Run(ctx context.Context, req workflow.Request) (workflow.Summary, error)
}

// Watcher triggers batches on source tree changes.
type Watcher struct {
	root     string
	batch    Batch
	debounce time.Duration
	logger   *slog.Logger
}

// Option customizes a Watcher.
type Option func(*Watcher)

// WithDebounce overrides watch.debounce_seconds.
func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		w.debounce = d
	}
}

// New constructs a Watcher over cfg.Paths.SourceDir.
func New(cfg *config.Config, batch Batch, logger *slog.Logger, opts ...Option) *Watcher {
	w := &Watcher{
		root:     cfg.Paths.SourceDir,
		batch:    batch,
		debounce: cfg.DebounceInterval(),
		logger:   logging.NewComponentLogger(logger, "watch"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches until ctx is cancelled. It returns nil on cancellation and an
// error only when the watcher itself cannot be set up.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := w.addTree(fsw, w.root); err != nil {
		return faults.Wrap(faults.ErrMissingSource, "watch", "add", w.root, err)
	}
	w.logger.Info("watching source tree",
		logging.String("root", w.root),
		logging.Duration("debounce", w.debounce),
		logging.String(logging.FieldEventType, "watch_started"),
	)

	w.runBatch(ctx)

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return errors.New("watcher event channel closed")
			}
			if !w.relevant(event) {
				continue
			}
			if event.Has(fsnotify.Create) {
				// New directories need their own watch; errors here mean the
				// path vanished again or is not a directory.
				_ = w.addTree(fsw, event.Name)
			}
			w.logger.Debug("source change", logging.String("path", event.Name), logging.String("op", event.Op.String()))
			timer.Reset(w.debounce)
		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("watcher error channel closed")
			}
			logging.WarnWithContext(w.logger, "filesystem watcher error", "watch_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches if the tree is large"),
				logging.String(logging.FieldImpact, "some changes may be missed until the next batch"),
			)
		case <-timer.C:
			w.runBatch(ctx)
		}
	}
}

func (w *Watcher) runBatch(ctx context.Context) {
	summary, err := w.batch.Run(ctx, workflow.Request{Trigger: "watch"})
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		return
	case errors.Is(err, workflow.ErrBusy):
		logging.WarnWithContext(w.logger, "batch skipped; another batch holds the lock", "watch_batch_busy",
			logging.String(logging.FieldErrorHint, "wait for the other mediaprep process to finish"),
			logging.String(logging.FieldImpact, "changes are picked up by the next trigger"),
		)
		return
	default:
		logging.ErrorWithContext(w.logger, "batch failed", "watch_batch_failed",
			logging.Error(err),
			logging.String(logging.FieldRunID, summary.RunID),
			logging.String(logging.FieldErrorHint, "fix the reported error; the watcher keeps running"),
		)
		return
	}
	if len(summary.Selected) > 0 {
		w.logger.Info("watch batch finished",
			logging.String(logging.FieldRunID, summary.RunID),
			logging.Int("succeeded", len(summary.Succeeded)),
			logging.Int("failed", len(summary.Failed)),
		)
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	return !strings.HasPrefix(filepath.Base(event.Name), ".")
}

func (w *Watcher) addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
