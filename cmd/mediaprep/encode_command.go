package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"mediaprep/internal/config"
	"mediaprep/internal/ledger"
	"mediaprep/internal/workflow"
)

// runnerOptions lets tests swap the media tool without touching PATH.
var runnerOptions []workflow.Option

func newEncodeCommand(ctx *commandContext) *cobra.Command {
	var order string

	cmd := &cobra.Command{
		Use:   "encode [NAME...]",
		Short: "Run one batch over pending items",
		Long: "Scan the source tree, flag changed items and encode every item with\n" +
			"pending work. Pass item names to restrict the batch.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			switch order {
			case "", config.OrderSorted, config.OrderRandom, config.OrderNone:
			default:
				return fmt.Errorf("invalid --order %q (want sorted, random or none)", order)
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}

			return ctx.withLedger(func(store *ledger.Store) error {
				opts := append([]workflow.Option{workflow.WithLedger(store)}, runnerOptions...)
				runner := workflow.New(cfg, logger, opts...)
				summary, runErr := runner.Run(cmd.Context(), workflow.Request{
					Names:   args,
					Order:   order,
					Trigger: "encode",
				})
				printSummary(cmd.OutOrStdout(), summary)
				if runErr != nil {
					return runErr
				}
				if len(summary.Failed) > 0 {
					return fmt.Errorf("%s failed", plural(len(summary.Failed), "item", "items"))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&order, "order", "", "Processing order: sorted, random or none (default from encode.order)")
	return cmd
}

func printSummary(out io.Writer, summary workflow.Summary) {
	if summary.RunID == "" {
		return
	}
	for _, name := range summary.Unknown {
		fmt.Fprintf(out, "Unknown item: %s\n", name)
	}
	if len(summary.Selected) == 0 && len(summary.Failed) == 0 {
		fmt.Fprintf(out, "Nothing to encode (%s scanned)\n", plural(summary.Scanned, "item", "items"))
		return
	}

	fmt.Fprintf(out, "Run %s: %d succeeded, %d failed of %d selected in %s\n",
		summary.RunID,
		len(summary.Succeeded),
		len(summary.Failed),
		len(summary.Selected),
		formatElapsed(summary.Duration),
	)
	if len(summary.Failed) > 0 {
		rows := make([][]string, 0, len(summary.Failed))
		for _, f := range summary.Failed {
			rows = append(rows, []string{f.Name, f.Step, f.Kind, firstLine(f.Err)})
		}
		fmt.Fprintln(out, renderTable([]string{"Item", "Step", "Kind", "Error"}, rows, nil))
	}
	if len(summary.Rejected) > 0 {
		fmt.Fprintf(out, "%s rejected by the scan; run `mediaprep scan` for details\n",
			plural(len(summary.Rejected), "item", "items"))
	}
}

func firstLine(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if idx := strings.IndexByte(msg, '\n'); idx >= 0 {
		msg = msg[:idx]
	}
	const maxLen = 120
	if len(msg) > maxLen {
		msg = msg[:maxLen-3] + "..."
	}
	return msg
}
