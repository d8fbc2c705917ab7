package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"mediaprep/internal/fileutil"
	"mediaprep/internal/subtitles"
)

func newSubtitleCommand(ctx *commandContext) *cobra.Command {
	subtitleCmd := &cobra.Command{
		Use:   "subtitle",
		Short: "Subtitle utilities",
	}
	subtitleCmd.AddCommand(newSubtitleConvertCommand(ctx))
	return subtitleCmd
}

func newSubtitleConvertCommand(ctx *commandContext) *cobra.Command {
	var fontSize int
	var width, height int

	cmd := &cobra.Command{
		Use:         "convert <input> <output>",
		Short:       "Convert an SRT or SSA file to SRT or SSA",
		Long:        "The output format follows the output extension: .srt writes SubRip,\n.ssa or .ass writes the styled overlay script used for rendering.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		Args:        cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, output := strings.TrimSpace(args[0]), strings.TrimSpace(args[1])
			subs, err := subtitles.ParseFile(input)
			if err != nil {
				return err
			}

			var rendered string
			switch strings.ToLower(filepath.Ext(output)) {
			case ".srt":
				rendered = subtitles.CreateSRT(subs)
			case ".ssa", ".ass":
				size := fontSize
				if size <= 0 {
					// Config is optional here; fall back to the built-in size.
					if cfg, err := ctx.ensureConfig(); err == nil {
						size = cfg.Encode.SubtitleFontSize
					}
				}
				rendered = subtitles.CreateSSA(subs, subtitles.SSAOptions{
					FontSize: size,
					PlayResX: width,
					PlayResY: height,
				})
			default:
				return fmt.Errorf("unsupported output extension %q (want .srt, .ssa or .ass)", filepath.Ext(output))
			}

			if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
				return fmt.Errorf("create output directory: %w", err)
			}
			if err := fileutil.WriteFileAtomic(output, []byte(rendered), 0o644); err != nil {
				return fmt.Errorf("write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", output, plural(len(subs), "cue", "cues"))
			return nil
		},
	}

	cmd.Flags().IntVar(&fontSize, "font-size", 0, "SSA font size (default from encode.subtitle_font_size)")
	cmd.Flags().IntVar(&width, "width", 0, "SSA PlayResX")
	cmd.Flags().IntVar(&height, "height", 0, "SSA PlayResY")
	return cmd
}
