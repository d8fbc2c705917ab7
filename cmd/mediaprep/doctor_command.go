package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"mediaprep/internal/notifications"
	"mediaprep/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check external tools and directory access",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			if err := cfg.EnsureDirectories(); err != nil {
				fmt.Fprintln(out, renderStatusLine("Storage roots", statusError, err.Error(), colorize))
			}

			problems := 0
			fmt.Fprintln(out, renderSectionHeader("Tools", colorize))
			for _, status := range preflight.CheckSystemDeps(cmd.Context(), cfg) {
				switch {
				case status.Available:
					detail := status.Detail
					if status.Path != "" {
						detail = fmt.Sprintf("%s (%s)", detail, status.Path)
					}
					fmt.Fprintln(out, renderStatusLine(status.Name, statusOK, detail, colorize))
				case status.Optional:
					fmt.Fprintln(out, renderStatusLine(status.Name, statusWarn, status.Detail, colorize))
				default:
					problems++
					fmt.Fprintln(out, renderStatusLine(status.Name, statusError, status.Detail, colorize))
				}
			}

			fmt.Fprintln(out, renderSectionHeader("Directories and services", colorize))
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				switch {
				case result.Passed:
					fmt.Fprintln(out, renderStatusLine(result.Name, statusOK, result.Detail, colorize))
				case result.Optional:
					fmt.Fprintln(out, renderStatusLine(result.Name, statusWarn, result.Detail, colorize))
				default:
					problems++
					fmt.Fprintln(out, renderStatusLine(result.Name, statusError, result.Detail, colorize))
				}
			}
			if cfg.Notifications.NtfyTopic == "" {
				fmt.Fprintln(out, renderStatusLine("ntfy", statusInfo, "notifications disabled", colorize))
			}

			if problems > 0 {
				return fmt.Errorf("doctor found %s", plural(problems, "problem", "problems"))
			}
			fmt.Fprintln(out, "All checks passed")
			return nil
		},
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Notifications.NtfyTopic == "" {
				return errors.New("notifications.ntfy_topic is not set")
			}
			if err := notifications.NewService(cfg).TestNotification(cmd.Context()); err != nil {
				return fmt.Errorf("send test notification: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
			return nil
		},
	}
}
