package verify

import (
	"context"
	"log/slog"

	"mediaprep/internal/config"
	"mediaprep/internal/logging"
	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/workflow"
)

// Finding is one record with missing artifacts.
type Finding struct {
	Name    string
	Missing []processed.File
	Actions []meta.Action
}

// Report summarizes a Check.
type Report struct {
	Checked    int
	Complete   int
	Unhashed   []string
	Incomplete []Finding
}

var actionForKind = map[processed.Kind]meta.Action{
	processed.KindVideo:    meta.ActionVideo,
	processed.KindPreview:  meta.ActionPreview,
	processed.KindSubtitle: meta.ActionSubtitle,
	processed.KindImage:    meta.ActionThumbnails,
	processed.KindTags:     meta.ActionTags,
}

// Check inspects every sidecar. The tag copy is expected only for items whose
// current scan has a tag source. Unless dryRun is set, records with missing
// artifacts are saved with the corresponding actions added.
func Check(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (Report, error) {
	logger = logging.NewComponentLogger(logger, "verify")
	lock, err := workflow.AcquireLock(cfg.Paths.MetaDir)
	if err != nil {
		return Report{}, err
	}
	defer func() { _ = lock.Unlock() }()

	metaStore, err := meta.NewStore(cfg.Paths.MetaDir, logger)
	if err != nil {
		return Report{}, err
	}
	processedStore, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		return Report{}, err
	}
	names, err := metaStore.Names()
	if err != nil {
		return Report{}, err
	}
	scanned, err := scan.NewScanner(logger).Scan(ctx, cfg.Paths.SourceDir)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		rec := metaStore.Load(name)
		if rec.SourceHash == "" {
			report.Unhashed = append(report.Unhashed, name)
			continue
		}
		c := scanned.Collections[name]
		withTags := c != nil && c.File(scan.RoleTags) != nil
		missing := processed.Missing(processedStore.Expected(rec.SourceHash, withTags))
		if len(missing) == 0 {
			report.Complete++
			continue
		}

		finding := Finding{Name: name, Missing: missing, Actions: actionsFor(missing)}
		report.Incomplete = append(report.Incomplete, finding)
		logging.WarnWithContext(logging.ForItem(logger, name), "item is missing processed files", "artifacts_missing",
			logging.Int("missing", len(missing)),
			logging.Strings("actions", actionStrings(finding.Actions)),
			logging.String(logging.FieldErrorHint, "run `mediaprep encode` to regenerate"),
			logging.String(logging.FieldImpact, "importer will skip this item"),
		)
		if dryRun {
			continue
		}
		rec.AddActions(finding.Actions...)
		if err := metaStore.Save(rec); err != nil {
			return report, err
		}
	}
	return report, nil
}

func actionsFor(missing []processed.File) []meta.Action {
	seen := make(map[meta.Action]bool)
	var out []meta.Action
	for _, action := range meta.AllActions {
		for _, f := range missing {
			if actionForKind[f.Kind] == action && !seen[action] {
				seen[action] = true
				out = append(out, action)
			}
		}
	}
	return out
}

func actionStrings(actions []meta.Action) []string {
	out := make([]string, len(actions))
	for i, a := range actions {
		out[i] = string(a)
	}
	return out
}
