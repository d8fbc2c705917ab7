package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"mediaprep/internal/encoding"
	"mediaprep/internal/faults"
	"mediaprep/internal/ledger"
	"mediaprep/internal/logging"
	"mediaprep/internal/preflight"
	"mediaprep/internal/scan"
)

var runPreflight = preflight.RunAll

// ItemFailure describes one item that did not finish.
type ItemFailure struct {
	Name string
	Step string
	Kind string
	Err  error
}

// Summary is the outcome of one batch.
type Summary struct {
	RunID     string
	Trigger   string
	StartedAt time.Time
	Duration  time.Duration
	Scanned   int
	Rejected  []scan.Rejection
	Unknown   []string
	Selected  []string
	Succeeded []string
	Failed    []ItemFailure
	Aborted   bool
}

// OK reports whether every selected item succeeded.
func (s Summary) OK() bool {
	return !s.Aborted && len(s.Failed) == 0
}

func (s *Summary) addFailure(f ItemFailure) {
	s.Failed = append(s.Failed, f)
}

func (r *Runner) runPreflightChecks(ctx context.Context, logger *slog.Logger) error {
	var failures []string
	for _, result := range runPreflight(ctx, r.cfg) {
		switch {
		case result.Passed:
			logger.Debug("preflight check passed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
			)
		case result.Optional:
			logging.WarnWithContext(logger, "optional preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "verify the configured service is reachable"),
				logging.String(logging.FieldImpact, "feature degraded for this run"),
			)
		default:
			logging.ErrorWithContext(logger, "preflight check failed", "preflight_failed",
				logging.String("check", result.Name),
				logging.String("detail", result.Detail),
				logging.String(logging.FieldErrorHint, "fix the reported directory and re-run"),
			)
			failures = append(failures, fmt.Sprintf("%s: %s", result.Name, result.Detail))
		}
	}
	if len(failures) > 0 {
		return faults.Wrap(faults.ErrStorage, "workflow", "preflight", strings.Join(failures, "; "), nil)
	}
	return nil
}

func (r *Runner) startRun(ctx context.Context, logger *slog.Logger, summary *Summary) {
	r.metrics.StartRun(len(summary.Selected), len(summary.Rejected))
	logger.Info("batch started",
		logging.String("trigger", summary.Trigger),
		logging.Int("scanned", summary.Scanned),
		logging.Int("rejected", len(summary.Rejected)),
		logging.Int("pending", len(summary.Selected)),
		logging.Int("workers", r.cfg.WorkerCount()),
		logging.String(logging.FieldEventType, "batch_started"),
	)

	if r.ledger != nil {
		err := r.ledger.StartRun(ctx, ledger.Run{
			ID:        summary.RunID,
			Trigger:   summary.Trigger,
			StartedAt: summary.StartedAt,
			Selected:  len(summary.Selected),
			Rejected:  len(summary.Rejected),
		})
		if err != nil {
			r.warnLedger(logger, err)
		}
	}

	if len(summary.Selected) == 0 {
		return
	}
	if err := r.notifier.NotifyBatchStarted(ctx, len(summary.Selected)); err != nil {
		r.warnNotify(logger, err)
	}
}

func (r *Runner) recordItem(ctx context.Context, logger *slog.Logger, runID string, result encoding.Result, itemErr error, started, finished time.Time) {
	if r.ledger == nil {
		return
	}
	entry := ledger.ItemResult{
		RunID:      runID,
		Item:       result.Name,
		Status:     ledger.ItemSucceeded,
		SourceHash: result.SourceHash,
		Published:  len(result.Published),
		StartedAt:  started,
		FinishedAt: finished,
	}
	if itemErr != nil {
		entry.Status = ledger.ItemFailed
		entry.FailedStep = string(result.FailedStep)
		entry.ErrorKind = faults.Kind(itemErr)
		entry.Error = itemErr.Error()
	}
	if err := r.ledger.RecordItem(context.WithoutCancel(ctx), entry); err != nil {
		r.warnLedger(logger, err)
	}
}

func (r *Runner) finishRun(ctx context.Context, logger *slog.Logger, summary *Summary, runErr error) {
	status := ledger.RunCompleted
	if runErr != nil {
		status = ledger.RunAborted
	}
	finished := summary.StartedAt.Add(summary.Duration)
	// Ledger and notifications still go out when the batch was cancelled.
	detached := context.WithoutCancel(ctx)

	if r.ledger != nil {
		run := ledger.Run{
			ID:         summary.RunID,
			FinishedAt: finished,
			Status:     status,
			Succeeded:  len(summary.Succeeded),
			Failed:     len(summary.Failed),
		}
		if runErr != nil {
			run.Error = runErr.Error()
		}
		if err := r.ledger.FinishRun(detached, run); err != nil {
			r.warnLedger(logger, err)
		}
	}

	if runErr != nil {
		logging.ErrorWithContext(logger, "batch aborted", "batch_aborted",
			logging.Error(runErr),
			logging.String("error_kind", faults.Kind(runErr)),
			logging.Int("succeeded", len(summary.Succeeded)),
			logging.Int("failed", len(summary.Failed)),
			logging.String(logging.FieldErrorHint, abortHint(runErr)),
		)
		if !errors.Is(runErr, context.Canceled) {
			if err := r.notifier.NotifyError(detached, runErr, "batch "+summary.RunID); err != nil {
				r.warnNotify(logger, err)
			}
		}
		return
	}

	r.metrics.FinishRun(finished)
	logger.Info("batch complete",
		logging.Int("selected", len(summary.Selected)),
		logging.Int("succeeded", len(summary.Succeeded)),
		logging.Int("failed", len(summary.Failed)),
		logging.Duration("elapsed", summary.Duration),
		logging.String(logging.FieldEventType, "batch_completed"),
	)
	if len(summary.Selected) == 0 {
		return
	}
	if err := r.notifier.NotifyBatchCompleted(detached, len(summary.Succeeded), len(summary.Failed), summary.Duration); err != nil {
		r.warnNotify(logger, err)
	}
}

func (r *Runner) warnLedger(logger *slog.Logger, err error) {
	logging.WarnWithContext(logger, "run ledger write failed", "ledger_write_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check log_dir permissions; delete runs.db to reset"),
		logging.String(logging.FieldImpact, "status history is incomplete"),
	)
}

func (r *Runner) warnNotify(logger *slog.Logger, err error) {
	if errors.Is(err, context.Canceled) {
		logger.Debug("shutting down, notification not sent")
		return
	}
	logging.WarnWithContext(logger, "notification failed", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
		logging.String(logging.FieldImpact, "push notification was not delivered"),
	)
}

func abortHint(err error) string {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "batch interrupted; pending items resume on the next run"
	case faults.Fatal(err):
		return "check meta_dir, processed_dir and staging_dir permissions and free space"
	default:
		return "see the error for details"
	}
}
