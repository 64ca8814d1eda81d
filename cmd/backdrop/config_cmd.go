// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Load the configuration from defaults, file and environment and validate it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintln(out, "configuration valid")
			_, _ = fmt.Fprintf(out, "  driver:     %s\n", cfg.Driver)
			_, _ = fmt.Fprintf(out, "  listen:     %s\n", cfg.Listen)
			_, _ = fmt.Fprintf(out, "  fade:       %s\n", cfg.Playback.FadeDuration)
			_, _ = fmt.Fprintf(out, "  threshold:  %s\n", cfg.Playback.Timing().SwitchThreshold())
			_, _ = fmt.Fprintf(out, "  watchdog:   %s (stall after %s)\n", cfg.Playback.WatchdogInterval, cfg.Playback.StallThreshold)
			return nil
		},
	})
	return cmd
}
