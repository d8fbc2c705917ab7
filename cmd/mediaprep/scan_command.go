package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/workflow"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "List source items and whether they need encoding",
		Long: "Scan the source tree and report each media item, its member files and\n" +
			"whether a batch would encode it. Nothing is written.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			result, err := scan.NewScanner(logger).Scan(cmd.Context(), cfg.Paths.SourceDir)
			if err != nil {
				return err
			}
			metaStore, err := meta.NewStore(cfg.Paths.MetaDir, logger)
			if err != nil {
				return err
			}
			processedStore, err := processed.NewStore(cfg.Paths.ProcessedDir)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(result.Collections) == 0 && len(result.Rejected) == 0 {
				fmt.Fprintf(out, "No media items found under %s\n", cfg.Paths.SourceDir)
				return nil
			}

			rows := make([][]string, 0, len(result.Collections))
			for _, name := range result.Names() {
				c := result.Collections[name]
				rec := metaStore.Load(name)
				state := "up to date"
				preview := rec.Clone()
				changed, hashErr := preview.AssociateFileCollection(c)
				switch {
				case hashErr != nil:
					state = "unreadable"
				case len(changed) > 0 || workflow.NeedsWork(preview, c, processedStore):
					state = "pending"
				}
				rows = append(rows, []string{
					name,
					string(c.Primary.Role()),
					strconv.Itoa(len(c.Files)),
					memberExts(c),
					state,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Item", "Primary", "Files", "Members", "State"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
			))

			if len(result.Rejected) > 0 {
				fmt.Fprintln(out)
				rejected := make([][]string, 0, len(result.Rejected))
				for _, r := range result.Rejected {
					rejected = append(rejected, []string{r.Name, strings.Join(r.Paths, "\n"), r.Err.Error()})
				}
				fmt.Fprintln(out, renderTable([]string{"Rejected", "Paths", "Reason"}, rejected, nil))
			}
			return nil
		},
	}
}

func memberExts(c *scan.Collection) string {
	exts := make([]string, 0, len(c.Files))
	for _, f := range c.Files {
		exts = append(exts, f.Ext)
	}
	return strings.Join(exts, ",")
}
