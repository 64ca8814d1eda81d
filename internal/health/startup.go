// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/backdrop/internal/config"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/styling"
)

// PerformStartupChecks validates the environment and dependencies before starting the server.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")
	logger.Info().Msg("running pre-flight startup checks")

	if err := checkMediaDir(logger, cfg.MediaDir); err != nil {
		return fmt.Errorf("media directory check failed: %w", err)
	}
	if err := checkStylesheet(logger, cfg); err != nil {
		return fmt.Errorf("stylesheet check failed: %w", err)
	}
	if err := checkDriver(logger, cfg); err != nil {
		return fmt.Errorf("driver check failed: %w", err)
	}

	logger.Info().Msg("all startup checks passed")
	return nil
}

func checkMediaDir(logger zerolog.Logger, path string) error {
	if path == "" {
		logger.Warn().Msg("no media directory configured; /videos/ is not served")
		return nil
	}
	entries, err := os.ReadDir(path)
	if err != nil {
		return err
	}
	clips := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".webm", ".mp4", ".m4v", ".ogv":
			clips++
		}
	}
	if clips == 0 {
		logger.Warn().Str(log.FieldPath, path).Msg("media directory holds no video clips")
	} else {
		logger.Info().Str(log.FieldPath, path).Int("clips", clips).Msg("media directory is readable")
	}
	return nil
}

// checkStylesheet makes sure an operator stylesheet declares the fade, since
// the controller and the CSS transition must agree on it.
func checkStylesheet(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.Stylesheet == "" {
		return nil
	}
	fade, err := styling.LoadFade(cfg.Stylesheet)
	if err != nil {
		return err
	}
	if fade != cfg.Playback.FadeDuration {
		logger.Info().
			Str(log.FieldPath, cfg.Stylesheet).
			Dur("stylesheet_fade", fade).
			Dur("configured_fade", cfg.Playback.FadeDuration).
			Msg("stylesheet fade overrides configured fade")
	}
	return nil
}

func checkDriver(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.Driver != config.DriverBrowser {
		logger.Info().Str("driver", cfg.Driver).Msg("using simulated media")
		return nil
	}
	if cfg.Browser.ControlURL != "" {
		logger.Info().Str(log.FieldURL, cfg.Browser.ControlURL).Msg("attaching to running browser")
		return nil
	}
	if cfg.Browser.Bin != "" {
		if _, err := exec.LookPath(cfg.Browser.Bin); err != nil {
			return fmt.Errorf("browser binary not found (%s): %w", cfg.Browser.Bin, err)
		}
		logger.Info().Str("bin", cfg.Browser.Bin).Msg("browser binary available")
	}
	return nil
}
