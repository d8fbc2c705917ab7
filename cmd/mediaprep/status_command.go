package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"mediaprep/internal/ledger"
	"mediaprep/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var runLimit int
	var failedOnly bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the latest result per item and recent runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withLedger(func(store *ledger.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)

				runs, err := store.RecentRuns(cmd.Context(), runLimit)
				if err != nil {
					return err
				}
				results, err := store.LatestResults(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded yet")
					return nil
				}

				fmt.Fprintln(out, renderSectionHeader("Recent runs", colorize))
				runRows := make([][]string, 0, len(runs))
				for _, run := range runs {
					elapsed := "-"
					if !run.FinishedAt.IsZero() {
						elapsed = formatElapsed(run.FinishedAt.Sub(run.StartedAt))
					}
					runRows = append(runRows, []string{
						run.ID[:min(8, len(run.ID))],
						run.Trigger,
						formatTimestamp(run.StartedAt),
						elapsed,
						run.Status,
						strconv.Itoa(run.Selected),
						strconv.Itoa(run.Succeeded),
						strconv.Itoa(run.Failed),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Trigger", "Started", "Elapsed", "Status", "Selected", "OK", "Failed"},
					runRows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignRight, alignRight, alignRight},
				))

				itemRows := make([][]string, 0, len(results))
				for _, r := range results {
					if failedOnly && r.Status != ledger.ItemFailed {
						continue
					}
					itemRows = append(itemRows, []string{
						r.Item,
						r.Status,
						formatTimestamp(r.FinishedAt),
						shortHash(r.SourceHash),
						dash(r.FailedStep),
						dash(r.ErrorKind),
					})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderSectionHeader("Items", colorize))
				if len(itemRows) == 0 {
					fmt.Fprintln(out, "No matching item results")
				} else {
					fmt.Fprintln(out, renderTable(
						[]string{"Item", "Result", "Finished", "Source hash", "Step", "Kind"},
						itemRows,
						nil,
					))
				}
				return renderWorkDirs(out, ctx.config.Paths.StagingDir, colorize)
			})
		},
	}

	cmd.Flags().IntVar(&runLimit, "runs", 5, "Number of recent runs to show")
	cmd.Flags().BoolVar(&failedOnly, "failed", false, "Only list items whose latest result failed")
	return cmd
}

func dash(value string) string {
	if value == "" {
		return "-"
	}
	return value
}

// renderWorkDirs lists leftover per-item work directories. A running batch
// removes its own on completion, so anything shown here outside a batch was
// left by an interrupted process.
func renderWorkDirs(out io.Writer, stagingDir string, colorize bool) error {
	dirs, err := staging.ListDirectories(stagingDir)
	if err != nil {
		return fmt.Errorf("list work directories: %w", err)
	}
	if len(dirs) == 0 {
		return nil
	}
	rows := make([][]string, 0, len(dirs))
	for _, dir := range dirs {
		rows = append(rows, []string{
			dir.Item,
			dir.Name,
			formatTimestamp(dir.LastActivity),
			humanize.IBytes(uint64(max(dir.Size, 0))),
		})
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, renderSectionHeader("Work directories", colorize))
	fmt.Fprintln(out, renderTable(
		[]string{"Item", "Directory", "Last activity", "Size"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}
