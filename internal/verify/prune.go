package verify

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"

	"mediaprep/internal/config"
	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/workflow"
)

// PruneResult lists processed files that no record references.
type PruneResult struct {
	Unreferenced []string
	Removed      []string
}

// Prune deletes processed files not derivable from any sidecar's source
// hash. Items with pending work also keep the artifacts of their current
// source content, which a failed batch may already have published. With
// dryRun set nothing is removed.
func Prune(ctx context.Context, cfg *config.Config, dryRun bool, logger *slog.Logger) (PruneResult, error) {
	logger = logging.NewComponentLogger(logger, "prune")
	lock, err := workflow.AcquireLock(cfg.Paths.MetaDir)
	if err != nil {
		return PruneResult{}, err
	}
	defer func() { _ = lock.Unlock() }()

	metaStore, err := meta.NewStore(cfg.Paths.MetaDir, logger)
	if err != nil {
		return PruneResult{}, err
	}
	processedStore, err := processed.NewStore(cfg.Paths.ProcessedDir)
	if err != nil {
		return PruneResult{}, err
	}
	names, err := metaStore.Names()
	if err != nil {
		return PruneResult{}, err
	}

	scanned, err := scan.NewScanner(logger).Scan(ctx, cfg.Paths.SourceDir)
	if err != nil {
		return PruneResult{}, err
	}

	keep := make(map[string]struct{})
	for _, name := range names {
		rec := metaStore.Load(name)
		hashes := []string{rec.SourceHash}
		if c, ok := scanned.Collections[name]; ok && (len(rec.Actions) > 0 || rec.SourceHash == "") {
			current, err := c.SourceHash()
			if err != nil {
				return PruneResult{}, faults.Wrap(faults.ErrMissingSource, "prune", "hash sources", name, err)
			}
			hashes = append(hashes, current)
		}
		for _, hash := range hashes {
			for _, f := range processedStore.AllFor(hash) {
				keep[f.Path] = struct{}{}
			}
		}
	}

	unreferenced, err := processedStore.Unreferenced(keep)
	if err != nil {
		return PruneResult{}, err
	}
	result := PruneResult{Unreferenced: unreferenced}
	if dryRun {
		return result, nil
	}
	for _, path := range unreferenced {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return result, faults.Wrap(faults.ErrStorage, "prune", "remove", path, err)
		}
		result.Removed = append(result.Removed, path)
	}
	logger.Info("pruned processed files",
		logging.Int("removed", len(result.Removed)),
		logging.String(logging.FieldEventType, "prune_completed"),
	)
	return result, nil
}

// Unmatched scans the source tree and returns sidecar paths whose item no
// longer exists there.
func Unmatched(ctx context.Context, cfg *config.Config, logger *slog.Logger) ([]string, error) {
	scanned, err := scan.NewScanner(logger).Scan(ctx, cfg.Paths.SourceDir)
	if err != nil {
		return nil, err
	}
	metaStore, err := meta.NewStore(cfg.Paths.MetaDir, logger)
	if err != nil {
		return nil, err
	}
	for _, name := range scanned.Names() {
		metaStore.Load(name)
	}
	// Rejected items still exist in the source tree.
	for _, rejected := range scanned.Rejected {
		metaStore.Load(rejected.Name)
	}
	return metaStore.Unmatched()
}
