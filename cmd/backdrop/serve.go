// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"github.com/spf13/cobra"

	"github.com/ManuGH/backdrop/internal/daemon"
	"github.com/ManuGH/backdrop/internal/health"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/version"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the layout page and drive playback until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			log.Configure(log.Config{
				Level:   cfg.LogLevel,
				Output:  cmd.ErrOrStderr(),
				Version: version.Version,
			})

			ctx, stop := daemon.WaitForShutdown()
			defer stop()

			if err := health.PerformStartupChecks(ctx, cfg); err != nil {
				return err
			}
			return daemon.New(cfg).Run(ctx)
		},
	}
}
