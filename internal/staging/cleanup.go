package staging

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"mediaprep/internal/logging"
)

// Leftover is one work directory found under staging_dir.
type Leftover struct {
	Name string
	Item string
	Path string
	// LastActivity is the newest modification time of the directory or
	// anything inside it.
	LastActivity time.Time
	Size         int64
}

// CleanStaleResult lists the work directories removed by CleanStale and the
// ones that could not be inspected or removed.
type CleanStaleResult struct {
	Removed []string
	Errors  []CleanupError
}

// CleanupError pairs a directory path with its cleanup error.
type CleanupError struct {
	Path  string
	Error error
}

// ListDirectories returns the work directories under stagingDir, least
// recently active first. Entries not named like a work directory are left
// out. A missing or unset stagingDir yields nil.
func ListDirectories(stagingDir string) ([]Leftover, error) {
	leftovers, _, err := scanLeftovers(stagingDir)
	return leftovers, err
}

// CleanStale removes work directories with no activity for maxAge. Only
// directories named by NewWorkDir are considered.
func CleanStale(ctx context.Context, stagingDir string, maxAge time.Duration, logger *slog.Logger) CleanStaleResult {
	if logger == nil {
		logger = logging.NewNop()
	}
	var result CleanStaleResult

	leftovers, inspectErrs, err := scanLeftovers(stagingDir)
	if err != nil {
		result.Errors = append(result.Errors, CleanupError{Path: stagingDir, Error: err})
		return result
	}
	result.Errors = append(result.Errors, inspectErrs...)

	cutoff := time.Now().Add(-maxAge)
	for _, dir := range leftovers {
		if ctx.Err() != nil {
			return result
		}
		if !dir.LastActivity.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(dir.Path); err != nil {
			result.Errors = append(result.Errors, CleanupError{Path: dir.Path, Error: err})
			logging.WarnWithContext(logger, "failed to remove stale work directory", "staging_cleanup_failed",
				logging.String(logging.FieldItem, dir.Item),
				logging.String("path", dir.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check staging_dir permissions"),
				logging.String(logging.FieldImpact, "disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dir.Path)
		logger.Info("removed stale work directory",
			logging.String(logging.FieldItem, dir.Item),
			logging.String("path", dir.Path),
			logging.Duration("idle", time.Since(dir.LastActivity)),
			logging.String(logging.FieldEventType, "staging_cleanup"),
		)
	}
	return result
}

func scanLeftovers(stagingDir string) ([]Leftover, []CleanupError, error) {
	stagingDir = strings.TrimSpace(stagingDir)
	if stagingDir == "" {
		return nil, nil, nil
	}
	entries, err := os.ReadDir(stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	var (
		leftovers []Leftover
		failures  []CleanupError
	)
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		item, ok := ItemFromWorkDir(entry.Name())
		if !ok {
			continue
		}
		dir := Leftover{Name: entry.Name(), Item: item, Path: filepath.Join(stagingDir, entry.Name())}
		if err := measure(&dir); err != nil {
			failures = append(failures, CleanupError{Path: dir.Path, Error: err})
			continue
		}
		leftovers = append(leftovers, dir)
	}
	sort.SliceStable(leftovers, func(i, j int) bool {
		return leftovers[i].LastActivity.Before(leftovers[j].LastActivity)
	})
	return leftovers, failures, nil
}

// measure fills in size and last activity. Files vanishing mid-walk are
// ignored; a running encode may be removing its own scratch files.
func measure(dir *Leftover) error {
	return filepath.WalkDir(dir.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.ModTime().After(dir.LastActivity) {
			dir.LastActivity = info.ModTime()
		}
		if !d.IsDir() {
			dir.Size += info.Size()
		}
		return nil
	})
}
