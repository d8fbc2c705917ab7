package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"mediaprep/internal/processed"
	"mediaprep/internal/verify"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check processed files and re-flag items with missing artifacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			report, err := verify.Check(cmd.Context(), cfg, dryRun, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Checked %s: %d complete, %d incomplete, %d never encoded\n",
				plural(report.Checked, "record", "records"),
				report.Complete,
				len(report.Incomplete),
				len(report.Unhashed),
			)
			if len(report.Incomplete) == 0 {
				return nil
			}
			rows := make([][]string, 0, len(report.Incomplete))
			for _, f := range report.Incomplete {
				rows = append(rows, []string{f.Name, missingKinds(f.Missing), actionList(f)})
			}
			fmt.Fprintln(out, renderTable([]string{"Item", "Missing", "Flagged"}, rows, nil))
			if dryRun {
				fmt.Fprintln(out, "Dry run: no records changed")
			} else {
				fmt.Fprintln(out, "Run `mediaprep encode` to regenerate the flagged artifacts")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report without updating records")
	return cmd
}

func newUnmatchedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unmatched",
		Short: "List meta sidecars whose item is gone from the source tree",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			orphans, err := verify.Unmatched(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(orphans) == 0 {
				fmt.Fprintln(out, "No unmatched sidecars")
				return nil
			}
			for _, path := range orphans {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}
}

func newPruneCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove processed files no record references",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			result, err := verify.Prune(cmd.Context(), cfg, dryRun, logger)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(result.Unreferenced) == 0 {
				fmt.Fprintln(out, "Processed store is clean")
				return nil
			}
			if dryRun {
				for _, path := range result.Unreferenced {
					fmt.Fprintln(out, path)
				}
				fmt.Fprintf(out, "Would remove %s\n", plural(len(result.Unreferenced), "file", "files"))
				return nil
			}
			fmt.Fprintf(out, "Removed %s\n", plural(len(result.Removed), "file", "files"))
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List files without removing them")
	return cmd
}

func missingKinds(files []processed.File) string {
	counts := make(map[processed.Kind]int)
	var order []processed.Kind
	for _, f := range files {
		if counts[f.Kind] == 0 {
			order = append(order, f.Kind)
		}
		counts[f.Kind]++
	}
	parts := make([]string, 0, len(order))
	for _, kind := range order {
		if counts[kind] > 1 {
			parts = append(parts, fmt.Sprintf("%s x%d", kind, counts[kind]))
		} else {
			parts = append(parts, string(kind))
		}
	}
	return strings.Join(parts, ", ")
}

func actionList(f verify.Finding) string {
	parts := make([]string, len(f.Actions))
	for i, a := range f.Actions {
		parts[i] = string(a)
	}
	return strings.Join(parts, ", ")
}
