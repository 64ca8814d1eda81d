// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command backdrop runs the dual-buffer background video controller.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ManuGH/backdrop/internal/config"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/version"
)

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "backdrop",
		Short: "Seamless looping background video with crossfades and self-healing playback",
		Long: `backdrop keeps a muted background clip looping without visible gaps.

Two media slots take turns: shortly before the visible clip ends the hidden one
restarts and fades in. A watchdog resumes or reloads playback that stalls.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(opts.envFile, cmd.Flags().Changed("env-file")); err != nil {
				return err
			}
			log.Configure(log.Config{
				Level:   opts.logLevel,
				Output:  cmd.ErrOrStderr(),
				Version: version.Version,
			})
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("BACKDROP_CONFIG"), "path to the YAML config file")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file loaded before the configuration")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level override (trace, debug, info, warn, error)")

	root.AddCommand(
		newServeCmd(opts),
		newSoakCmd(),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return root
}

// loadEnvFile applies a dotenv file without overriding variables already set.
// A missing default file is fine; a missing explicit one is an error.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// loadConfig runs the loader and applies the effective log level.
func loadConfig(opts *rootOptions) (config.AppConfig, error) {
	cfg, err := config.NewLoader(opts.configPath, version.Version).Load()
	if err != nil {
		return cfg, err
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	return cfg, nil
}
