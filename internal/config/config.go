// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config provides configuration management for backdrop.
package config

import (
	"time"

	"github.com/ManuGH/backdrop/internal/media/browser"
	"github.com/ManuGH/backdrop/internal/media/sim"
	"github.com/ManuGH/backdrop/internal/playback"
	"github.com/ManuGH/backdrop/internal/telemetry"
)

// Media drivers.
const (
	DriverSim     = "sim"
	DriverBrowser = "browser"
)

// AppConfig is the effective configuration after defaults, file and environment
// have been merged.
type AppConfig struct {
	Version  string
	LogLevel string

	// Listen is the HTTP listen address for the layout page and the API.
	Listen string
	// WebDir overrides the embedded layout page and stylesheet.
	WebDir string
	// MediaDir is served under /videos/.
	MediaDir string
	// Stylesheet is the file the fade duration is read from; empty uses the embedded one.
	Stylesheet string

	Driver   string
	Playback PlaybackConfig
	Browser  BrowserConfig
	Sim      SimConfig

	RateLimit RateLimitConfig
	Telemetry TelemetryConfig
}

// PlaybackConfig holds the controller tunables.
type PlaybackConfig struct {
	FadeDuration      time.Duration
	LeadFraction      float64
	LeadMin           time.Duration
	LeadMax           time.Duration
	PollInterval      time.Duration
	ReadyTimeout      time.Duration
	CleanupMargin     time.Duration
	ReentryWindow     time.Duration
	WatchdogInterval  time.Duration
	StallThreshold    time.Duration
	ProgressTolerance time.Duration
	BackoffBase       time.Duration
	BackoffMax        time.Duration
	OpTimeout         time.Duration
}

// Timing converts the configuration into controller timing.
func (p PlaybackConfig) Timing() playback.Timing {
	return playback.Timing(p)
}

func playbackFromTiming(t playback.Timing) PlaybackConfig {
	return PlaybackConfig(t)
}

// BrowserConfig selects the Chromium instance driving the layout page.
type BrowserConfig struct {
	ControlURL string
	Bin        string
	Headless   bool
	Flags      []string
	// PageURL defaults to the layout page served on Listen.
	PageURL string
}

// Session converts the configuration for the browser driver.
func (b BrowserConfig) Session() browser.Config {
	return browser.Config{
		ControlURL: b.ControlURL,
		Bin:        b.Bin,
		Headless:   b.Headless,
		Flags:      append([]string(nil), b.Flags...),
		PageURL:    b.PageURL,
	}
}

// SimConfig shapes the simulated media.
type SimConfig struct {
	ClipDuration time.Duration
	TickInterval time.Duration
	Speed        float64
}

// Player converts the configuration for the simulated driver.
func (s SimConfig) Player() sim.Config {
	return sim.Config{ClipDuration: s.ClipDuration, TickInterval: s.TickInterval, Speed: s.Speed}
}

// RateLimitConfig limits requests to the API routes per client IP.
type RateLimitConfig struct {
	Enabled           bool
	RequestsPerMinute int
}

// TelemetryConfig controls OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	Exporter     string
	Endpoint     string
	SamplingRate float64
}

// Provider converts the configuration for the telemetry package.
func (t TelemetryConfig) Provider(version, driver string) telemetry.Config {
	return telemetry.Config{
		Enabled:        t.Enabled,
		ServiceName:    t.ServiceName,
		ServiceVersion: version,
		Driver:         driver,
		Environment:    t.Environment,
		ExporterType:   t.Exporter,
		Endpoint:       t.Endpoint,
		SamplingRate:   t.SamplingRate,
	}
}
