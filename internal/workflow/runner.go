package workflow

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mediaprep/internal/config"
	"mediaprep/internal/encoding"
	"mediaprep/internal/faults"
	"mediaprep/internal/ledger"
	"mediaprep/internal/logging"
	"mediaprep/internal/mediatool"
	"mediaprep/internal/meta"
	"mediaprep/internal/metrics"
	"mediaprep/internal/notifications"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/staging"
)

// LockFileName is created in meta_dir while a batch runs.
const LockFileName = ".mediaprep.lock"

const staleWorkDirAge = 24 * time.Hour

// ErrBusy reports that another process holds the batch lock.
var ErrBusy = errors.New("another batch is already running")

// Request selects what a batch processes.
type Request struct {
	// Names restricts the batch to these items. Empty means all.
	Names []string
	// Order overrides encode.order when set.
	Order string
	// Trigger labels the run in the ledger ("encode", "watch").
	Trigger string
}

// Runner executes batches. A Runner is safe to reuse across runs but runs
// must not overlap.
type Runner struct {
	cfg      *config.Config
	tool     mediatool.Tool
	ledger   *ledger.Store
	notifier notifications.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger

	shuffle func([]string)
	newID   func() string
}

// Option customizes a Runner.
type Option func(*Runner)

// WithTool replaces the ffmpeg-backed media tool.
func WithTool(tool mediatool.Tool) Option {
	return func(r *Runner) {
		r.tool = tool
	}
}

// WithLedger records runs and item results in store.
func WithLedger(store *ledger.Store) Option {
	return func(r *Runner) {
		r.ledger = store
	}
}

// WithNotifier replaces the notifier built from config.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) {
		r.notifier = n
	}
}

// WithMetrics records run, item and step metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) {
		r.metrics = m
	}
}

// WithShuffle replaces the permutation used by the random order.
func WithShuffle(fn func([]string)) Option {
	return func(r *Runner) {
		r.shuffle = fn
	}
}

// New constructs a Runner for cfg.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "workflow"),
		notifier: notifications.NewService(cfg),
		shuffle: func(names []string) {
			rand.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.tool == nil {
		r.tool = mediatool.NewFFmpeg(cfg, logger, mediatool.WithMetrics(r.metrics))
	}
	return r
}

// Run executes one batch. Item failures are reported in the Summary; the
// returned error is set only when the batch itself could not run or was
// aborted by a storage fault or cancellation.
func (r *Runner) Run(ctx context.Context, req Request) (Summary, error) {
	started := time.Now()
	summary := Summary{
		RunID:     r.newID(),
		Trigger:   req.Trigger,
		StartedAt: started,
	}
	if summary.Trigger == "" {
		summary.Trigger = "encode"
	}
	logger := r.logger.With(logging.String(logging.FieldRunID, summary.RunID))

	if err := r.cfg.EnsureDirectories(); err != nil {
		return summary, faults.Wrap(faults.ErrStorage, "workflow", "prepare", "create storage roots", err)
	}

	lock, err := AcquireLock(r.cfg.Paths.MetaDir)
	if err != nil {
		return summary, err
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			logger.Warn("failed to release batch lock", logging.Error(err))
		}
	}()

	if err := r.runPreflightChecks(ctx, logger); err != nil {
		return summary, err
	}
	r.housekeeping(ctx, logger)

	scanned, err := scan.NewScanner(r.logger).Scan(ctx, r.cfg.Paths.SourceDir)
	if err != nil {
		return summary, err
	}
	summary.Scanned = len(scanned.Collections)
	summary.Rejected = scanned.Rejected

	metaStore, err := meta.NewStore(r.cfg.Paths.MetaDir, r.logger)
	if err != nil {
		return summary, err
	}
	processedStore, err := processed.NewStore(r.cfg.Paths.ProcessedDir)
	if err != nil {
		return summary, err
	}

	candidates, unknown := filterNames(scanned, req.Names)
	summary.Unknown = unknown
	for _, name := range unknown {
		logging.WarnWithContext(logger, "requested item not found in source scan", "item_unknown",
			logging.String(logging.FieldItem, name),
			logging.String(logging.FieldErrorHint, "check the name against `mediaprep scan`"),
			logging.String(logging.FieldImpact, "item is not encoded"),
		)
	}

	records, err := r.fingerprint(logger, scanned, candidates, metaStore, &summary)
	if err != nil {
		return summary, err
	}

	pending := selectPending(candidates, scanned, records, processedStore)
	order := req.Order
	if order == "" {
		order = r.cfg.Encode.Order
	}
	r.applyOrder(order, pending)
	summary.Selected = pending

	r.startRun(ctx, logger, &summary)

	enc := encoding.New(r.cfg, r.tool, metaStore, processedStore, r.logger, encoding.WithMetrics(r.metrics))
	runErr := r.encodeAll(ctx, logger, enc, scanned, records, &summary)

	summary.Duration = time.Since(started)
	summary.Aborted = runErr != nil
	r.finishRun(ctx, logger, &summary, runErr)
	return summary, runErr
}

func (r *Runner) housekeeping(ctx context.Context, logger *slog.Logger) {
	logging.CleanupOldLogs(logger, r.cfg.Paths.LogDir, r.cfg.Logging.RetentionDays)
	if r.ledger != nil && r.cfg.Logging.RetentionDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -r.cfg.Logging.RetentionDays)
		if removed, err := r.ledger.Prune(ctx, cutoff); err != nil {
			r.warnLedger(logger, err)
		} else if removed > 0 {
			logger.Debug("pruned run history", logging.Int("runs", int(removed)))
		}
	}
	cleaned := staging.CleanStale(ctx, r.cfg.Paths.StagingDir, staleWorkDirAge, logger)
	if len(cleaned.Removed) > 0 {
		logger.Info("removed stale work directories",
			logging.Int("count", len(cleaned.Removed)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
}

// fingerprint diffs each candidate against its sidecar and persists the
// flagged actions before any encoding starts, so a crash mid-batch leaves the
// work visible to the next run.
func (r *Runner) fingerprint(logger *slog.Logger, scanned scan.Result, names []string, store *meta.Store, summary *Summary) (map[string]*meta.Record, error) {
	records := make(map[string]*meta.Record, len(names))
	for _, name := range names {
		itemLogger := logging.ForItem(logger, name)
		rec := store.Load(name)
		changed, err := rec.AssociateFileCollection(scanned.Collections[name])
		if err != nil {
			err = faults.Wrap(faults.ErrMissingSource, "workflow", "fingerprint", name, err)
			summary.addFailure(ItemFailure{Name: name, Step: "fingerprint", Kind: faults.Kind(err), Err: err})
			logging.WarnWithContext(itemLogger, "unable to fingerprint sources", "fingerprint_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "source files changed during the scan; re-run"),
				logging.String(logging.FieldImpact, "item skipped this run"),
			)
			continue
		}
		if len(changed) > 0 {
			itemLogger.Info("source files changed",
				logging.Strings("files", changed),
				logging.Strings("actions", actionNames(rec.Actions)),
				logging.String(logging.FieldEventType, "source_changed"),
			)
		}
		if err := store.Save(rec); err != nil {
			if faults.Fatal(err) {
				return nil, err
			}
			summary.addFailure(ItemFailure{Name: name, Step: "fingerprint", Kind: faults.Kind(err), Err: err})
			continue
		}
		records[name] = rec
	}
	return records, nil
}

func (r *Runner) encodeAll(ctx context.Context, logger *slog.Logger, enc *encoding.Encoder, scanned scan.Result, records map[string]*meta.Record, summary *Summary) error {
	if len(summary.Selected) == 0 {
		return ctx.Err()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.WorkerCount())
	var mu sync.Mutex

	for _, name := range summary.Selected {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			itemStart := time.Now()
			result, err := enc.Encode(gctx, scanned.Collections[name], records[name])
			itemEnd := time.Now()

			if err != nil && gctx.Err() != nil && errors.Is(err, gctx.Err()) {
				// Interrupted items keep their persisted actions for the next run.
				return nil
			}

			mu.Lock()
			if err != nil {
				summary.addFailure(ItemFailure{Name: name, Step: string(result.FailedStep), Kind: faults.Kind(err), Err: err})
			} else {
				summary.Succeeded = append(summary.Succeeded, name)
			}
			mu.Unlock()

			r.metrics.ObserveItem(err == nil, kindLabel(err))
			r.recordItem(ctx, logger, summary.RunID, result, err, itemStart, itemEnd)

			if err != nil && faults.Fatal(err) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

func (r *Runner) applyOrder(order string, names []string) {
	switch order {
	case config.OrderRandom:
		r.shuffle(names)
	case config.OrderNone:
	default:
		sortNames(names)
	}
}

func kindLabel(err error) string {
	if err == nil {
		return ""
	}
	return faults.Kind(err)
}

func actionNames(actions []meta.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
