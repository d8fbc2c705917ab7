package preflight

import (
	"context"
	"strings"

	"mediaprep/internal/config"
)

// Result reports the outcome of a single preflight check. Optional checks
// cover features a batch can run without.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Source directory", cfg.Paths.SourceDir, ReadOnly),
		CheckDirectoryAccess("Meta directory", cfg.Paths.MetaDir, ReadWrite),
		CheckDirectoryAccess("Processed directory", cfg.Paths.ProcessedDir, ReadWrite),
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir, ReadWrite),
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		ntfy := CheckNtfy(ctx, cfg.Notifications.NtfyTopic, cfg.NotificationTimeout())
		ntfy.Optional = true
		results = append(results, ntfy)
	}

	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
