// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/backdrop/internal/telemetry"
	"github.com/ManuGH/backdrop/internal/validate"
)

// Validate validates an AppConfig using the centralized validation package
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("LogLevel", cfg.LogLevel)
	v.ListenAddr("Listen", cfg.Listen)
	v.OneOf("Driver", cfg.Driver, []string{DriverSim, DriverBrowser})

	if cfg.WebDir != "" {
		v.Directory("WebDir", cfg.WebDir)
	}
	if cfg.MediaDir != "" {
		v.Directory("MediaDir", cfg.MediaDir)
	}
	if cfg.Stylesheet != "" {
		v.File("Stylesheet", cfg.Stylesheet)
	}

	v.Custom("Playback", cfg.Playback, func(any) error {
		return cfg.Playback.Timing().Validate()
	})
	v.Duration("Playback.FadeDuration", cfg.Playback.FadeDuration, time.Millisecond, time.Minute)

	switch cfg.Driver {
	case DriverBrowser:
		if strings.TrimSpace(cfg.Browser.ControlURL) != "" {
			v.URL("Browser.ControlURL", cfg.Browser.ControlURL, []string{"ws", "wss", "http", "https"})
		}
		if strings.TrimSpace(cfg.Browser.PageURL) != "" {
			v.URL("Browser.PageURL", cfg.Browser.PageURL, []string{"http", "https"})
		}
	case DriverSim:
		v.Duration("Sim.ClipDuration", cfg.Sim.ClipDuration, 0, 0)
		v.Duration("Sim.TickInterval", cfg.Sim.TickInterval, time.Millisecond, time.Minute)
		v.FloatRange("Sim.Speed", cfg.Sim.Speed, 0.01, 1000)
	}

	if cfg.RateLimit.Enabled {
		v.Positive("RateLimit.RequestsPerMinute", cfg.RateLimit.RequestsPerMinute)
	}

	if cfg.Telemetry.Enabled {
		v.NotEmpty("Telemetry.ServiceName", cfg.Telemetry.ServiceName)
		v.OneOf("Telemetry.Exporter", cfg.Telemetry.Exporter, []string{telemetry.ExporterGRPC, telemetry.ExporterHTTP})
		v.NotEmpty("Telemetry.Endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("Telemetry.SamplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}
