package encoding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/mediatool"
	"mediaprep/internal/meta"
	"mediaprep/internal/metrics"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/staging"
	"mediaprep/internal/subtitles"
)

// Step names one stage of the per-item pipeline.
type Step string

const (
	StepSourceHash Step = "source_hash"
	StepVideo      Step = "video"
	StepSubtitle   Step = "subtitle"
	StepPreview    Step = "preview"
	StepThumbnails Step = "thumbnails"
	StepTags       Step = "tags"
)

// Steps lists the pipeline in execution order.
var Steps = []Step{StepSourceHash, StepVideo, StepSubtitle, StepPreview, StepThumbnails, StepTags}

// Result describes what one Encode call did.
type Result struct {
	Name       string
	SourceHash string
	Published  []processed.File
	Skipped    []Step
	FailedStep Step
}

// Encoder runs the artifact pipeline for one item at a time. It is safe for
// concurrent use on distinct items.
type Encoder struct {
	cfg       *config.Config
	tool      mediatool.Tool
	meta      *meta.Store
	processed *processed.Store
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// Option customizes an Encoder.
type Option func(*Encoder)

// WithMetrics records step durations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Encoder) {
		e.metrics = m
	}
}

// New constructs an Encoder.
func New(cfg *config.Config, tool mediatool.Tool, metaStore *meta.Store, processedStore *processed.Store, logger *slog.Logger, opts ...Option) *Encoder {
	e := &Encoder{
		cfg:       cfg,
		tool:      tool,
		meta:      metaStore,
		processed: processedStore,
		logger:    logging.NewComponentLogger(logger, "encoder"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// job carries the state shared by the steps of one Encode call.
type job struct {
	enc        *Encoder
	collection *scan.Collection
	record     *meta.Record
	work       *staging.WorkDir
	logger     *slog.Logger
	result     *Result

	subs       []subtitles.Subtitle
	subsLoaded bool
}

// Encode runs every step for c, updating rec in memory. rec is saved with its
// pending actions cleared only after all steps succeed. A save refused with
// faults.ErrConflict is returned as the item's error.
func (e *Encoder) Encode(ctx context.Context, c *scan.Collection, rec *meta.Record) (Result, error) {
	result := Result{Name: c.Name}
	logger := logging.ForItem(e.logger, c.Name)

	work, err := staging.NewWorkDir(e.cfg.Paths.StagingDir, c.Name)
	if err != nil {
		return result, err
	}
	defer func() {
		if err := work.Remove(); err != nil {
			logging.WarnWithContext(logger, "failed to remove work directory", "workdir_cleanup_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "scratch files remain until stale cleanup"),
			)
		}
	}()

	j := &job{enc: e, collection: c, record: rec, work: work, logger: logger, result: &result}
	runners := map[Step]func(context.Context) (bool, error){
		StepSourceHash: j.sourceHash,
		StepVideo:      j.primaryVideo,
		StepSubtitle:   j.subtitleTrack,
		StepPreview:    j.preview,
		StepThumbnails: j.thumbnails,
		StepTags:       j.tags,
	}

	for _, step := range Steps {
		if err := ctx.Err(); err != nil {
			result.FailedStep = step
			return result, err
		}
		stepLogger := logger.With(logging.String(logging.FieldStep, string(step)))
		j.logger = stepLogger

		start := time.Now()
		skipped, err := runners[step](ctx)
		elapsed := time.Since(start)
		if err != nil {
			result.FailedStep = step
			logging.ErrorWithContext(stepLogger, "encode step failed", "encode_step_failed",
				logging.Error(err),
				logging.String("error_kind", faults.Kind(err)),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)
			return result, err
		}
		if skipped {
			result.Skipped = append(result.Skipped, step)
			stepLogger.Debug("encode step skipped; artifacts already published")
			continue
		}
		e.metrics.ObserveStep(string(step), elapsed)
		stepLogger.Info("encode step complete", logging.Duration("elapsed", elapsed))
	}
	j.logger = logger

	// A retry that skipped every media step still owes the record its source details.
	if rec.SourceDetails == (meta.SourceDetails{}) {
		if _, err := j.probeSources(ctx); err != nil {
			result.FailedStep = StepVideo
			logging.ErrorWithContext(logger, "source inspection failed", "encode_step_failed",
				logging.Error(err),
				logging.String("error_kind", faults.Kind(err)),
				logging.String(logging.FieldErrorHint, hintFor(err)),
			)
			return result, err
		}
	}

	rec.ClearActions()
	if err := e.meta.Save(rec); err != nil {
		return result, err
	}
	logger.Info("item encoded",
		logging.String("source_hash", result.SourceHash),
		logging.Int("published", len(result.Published)),
		logging.Int("skipped_steps", len(result.Skipped)),
		logging.String(logging.FieldEventType, "item_encoded"),
	)
	return result, nil
}

func (j *job) publish(file processed.File, scratch string) error {
	if err := file.Move(scratch); err != nil {
		return err
	}
	j.result.Published = append(j.result.Published, file)
	j.logger.Debug("artifact published", logging.String("artifact", file.Name()))
	return nil
}

func hintFor(err error) string {
	switch {
	case errors.Is(err, faults.ErrParse):
		return "fix or replace the malformed source file"
	case errors.Is(err, faults.ErrProbe):
		return "source may be damaged; check it plays and has a duration"
	case errors.Is(err, faults.ErrExternalTool):
		return "inspect the ffmpeg diagnostics in the error"
	case errors.Is(err, faults.ErrMissingSource):
		return "source files changed during the run; re-scan"
	case errors.Is(err, faults.ErrStorage):
		return "check processed_dir and staging_dir permissions and free space"
	default:
		return fmt.Sprintf("item left pending (%s)", faults.Kind(err))
	}
}
