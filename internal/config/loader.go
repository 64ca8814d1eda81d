// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ManuGH/backdrop/internal/playback"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // every BACKDROP_* key the loader looked at
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envLookup(key string) (string, bool) {
	l.ConsumedEnvKeys[key] = struct{}{}
	return os.LookupEnv(key)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// The result is validated before it is returned.
func (l *Loader) Load() (AppConfig, error) {
	cfg := AppConfig{}
	l.setDefaults(&cfg)

	if l.configPath != "" {
		fileCfg, err := l.loadFile(l.configPath)
		if err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
		if err := l.mergeFileConfig(&cfg, fileCfg); err != nil {
			return cfg, fmt.Errorf("merge file config: %w", err)
		}
	}

	l.mergeEnvConfig(&cfg)
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (l *Loader) setDefaults(cfg *AppConfig) {
	cfg.LogLevel = "info"
	cfg.Listen = ":8080"
	cfg.Driver = DriverSim
	cfg.Playback = playbackFromTiming(playback.DefaultTiming())
	cfg.Browser = BrowserConfig{
		Headless: true,
		Flags:    []string{"autoplay-policy=no-user-gesture-required"},
	}
	cfg.Sim = SimConfig{
		ClipDuration: 10 * time.Second,
		TickInterval: 250 * time.Millisecond,
		Speed:        1,
	}
	cfg.RateLimit = RateLimitConfig{Enabled: true, RequestsPerMinute: 120}
	cfg.Telemetry = TelemetryConfig{
		ServiceName:  "backdrop",
		Environment:  "production",
		Exporter:     "grpc",
		Endpoint:     "localhost:4317",
		SamplingRate: 1.0,
	}
}

// loadFile loads configuration from a YAML file with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string) (*FileConfig, error) {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("%w: %s (only YAML supported)", ErrUnsupportedFormat, ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data)
}

func decodeStrict(data []byte) (*FileConfig, error) {
	var fileCfg FileConfig
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(&fileCfg); err != nil {
		if errors.Is(err, io.EOF) {
			return &FileConfig{}, nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return nil, fmt.Errorf("strict config parse error: %w: %w", ErrUnknownConfigField, err)
		}
		return nil, fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, ErrMultipleDocuments
	}
	return &fileCfg, nil
}

// mergeFileConfig overlays the values present in the file.
func (l *Loader) mergeFileConfig(dst *AppConfig, src *FileConfig) error {
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
	if src.Listen != "" {
		dst.Listen = src.Listen
	}
	if src.WebDir != "" {
		dst.WebDir = expandEnv(src.WebDir)
	}
	if src.MediaDir != "" {
		dst.MediaDir = expandEnv(src.MediaDir)
	}
	if src.Stylesheet != "" {
		dst.Stylesheet = expandEnv(src.Stylesheet)
	}
	if src.Driver != "" {
		dst.Driver = src.Driver
	}

	if err := mergeFilePlayback(&dst.Playback, src.Playback); err != nil {
		return err
	}

	b := src.Browser
	if b.ControlURL != "" {
		dst.Browser.ControlURL = b.ControlURL
	}
	if b.Bin != "" {
		dst.Browser.Bin = expandEnv(b.Bin)
	}
	if b.Headless != nil {
		dst.Browser.Headless = *b.Headless
	}
	if b.Flags != nil {
		dst.Browser.Flags = append([]string(nil), b.Flags...)
	}
	if b.PageURL != "" {
		dst.Browser.PageURL = b.PageURL
	}

	if err := parseDurationInto("sim.clipDuration", src.Sim.ClipDuration, &dst.Sim.ClipDuration); err != nil {
		return err
	}
	if err := parseDurationInto("sim.tickInterval", src.Sim.TickInterval, &dst.Sim.TickInterval); err != nil {
		return err
	}
	if src.Sim.Speed != nil {
		dst.Sim.Speed = *src.Sim.Speed
	}

	if src.RateLimit.Enabled != nil {
		dst.RateLimit.Enabled = *src.RateLimit.Enabled
	}
	if src.RateLimit.RequestsPerMinute != nil {
		dst.RateLimit.RequestsPerMinute = *src.RateLimit.RequestsPerMinute
	}

	t := src.Telemetry
	if t.Enabled != nil {
		dst.Telemetry.Enabled = *t.Enabled
	}
	if t.ServiceName != "" {
		dst.Telemetry.ServiceName = t.ServiceName
	}
	if t.Environment != "" {
		dst.Telemetry.Environment = t.Environment
	}
	if t.Exporter != "" {
		dst.Telemetry.Exporter = t.Exporter
	}
	if t.Endpoint != "" {
		dst.Telemetry.Endpoint = t.Endpoint
	}
	if t.SamplingRate != nil {
		dst.Telemetry.SamplingRate = *t.SamplingRate
	}
	return nil
}

func mergeFilePlayback(dst *PlaybackConfig, src PlaybackFileConfig) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"playback.fade", src.Fade, &dst.FadeDuration},
		{"playback.leadMin", src.LeadMin, &dst.LeadMin},
		{"playback.leadMax", src.LeadMax, &dst.LeadMax},
		{"playback.pollInterval", src.PollInterval, &dst.PollInterval},
		{"playback.readyTimeout", src.ReadyTimeout, &dst.ReadyTimeout},
		{"playback.cleanupMargin", src.CleanupMargin, &dst.CleanupMargin},
		{"playback.reentryWindow", src.ReentryWindow, &dst.ReentryWindow},
		{"playback.watchdogInterval", src.WatchdogInterval, &dst.WatchdogInterval},
		{"playback.stallThreshold", src.StallThreshold, &dst.StallThreshold},
		{"playback.progressTolerance", src.ProgressTolerance, &dst.ProgressTolerance},
		{"playback.backoffBase", src.BackoffBase, &dst.BackoffBase},
		{"playback.backoffMax", src.BackoffMax, &dst.BackoffMax},
		{"playback.opTimeout", src.OpTimeout, &dst.OpTimeout},
	}
	for _, f := range fields {
		if err := parseDurationInto(f.name, f.raw, f.dst); err != nil {
			return err
		}
	}
	if src.LeadFraction != nil {
		dst.LeadFraction = *src.LeadFraction
	}
	return nil
}

func parseDurationInto(field, raw string, dst *time.Duration) error {
	if raw == "" {
		return nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, raw, err)
	}
	*dst = d
	return nil
}

// mergeEnvConfig applies BACKDROP_* overrides (highest priority).
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.LogLevel = l.envString("BACKDROP_LOG_LEVEL", cfg.LogLevel)
	cfg.Listen = l.envString("BACKDROP_LISTEN", cfg.Listen)
	cfg.WebDir = l.envString("BACKDROP_WEB_DIR", cfg.WebDir)
	cfg.MediaDir = l.envString("BACKDROP_MEDIA_DIR", cfg.MediaDir)
	cfg.Stylesheet = l.envString("BACKDROP_STYLESHEET", cfg.Stylesheet)
	cfg.Driver = l.envString("BACKDROP_DRIVER", cfg.Driver)

	p := &cfg.Playback
	p.FadeDuration = l.envDuration("BACKDROP_FADE", p.FadeDuration)
	p.LeadFraction = l.envFloat("BACKDROP_LEAD_FRACTION", p.LeadFraction)
	p.LeadMin = l.envDuration("BACKDROP_LEAD_MIN", p.LeadMin)
	p.LeadMax = l.envDuration("BACKDROP_LEAD_MAX", p.LeadMax)
	p.PollInterval = l.envDuration("BACKDROP_POLL_INTERVAL", p.PollInterval)
	p.ReadyTimeout = l.envDuration("BACKDROP_READY_TIMEOUT", p.ReadyTimeout)
	p.CleanupMargin = l.envDuration("BACKDROP_CLEANUP_MARGIN", p.CleanupMargin)
	p.ReentryWindow = l.envDuration("BACKDROP_REENTRY_WINDOW", p.ReentryWindow)
	p.WatchdogInterval = l.envDuration("BACKDROP_WATCHDOG_INTERVAL", p.WatchdogInterval)
	p.StallThreshold = l.envDuration("BACKDROP_STALL_THRESHOLD", p.StallThreshold)
	p.ProgressTolerance = l.envDuration("BACKDROP_PROGRESS_TOLERANCE", p.ProgressTolerance)
	p.BackoffBase = l.envDuration("BACKDROP_BACKOFF_BASE", p.BackoffBase)
	p.BackoffMax = l.envDuration("BACKDROP_BACKOFF_MAX", p.BackoffMax)
	p.OpTimeout = l.envDuration("BACKDROP_OP_TIMEOUT", p.OpTimeout)

	b := &cfg.Browser
	b.ControlURL = l.envString("BACKDROP_BROWSER_CONTROL_URL", b.ControlURL)
	b.Bin = l.envString("BACKDROP_BROWSER_BIN", b.Bin)
	b.Headless = l.envBool("BACKDROP_BROWSER_HEADLESS", b.Headless)
	if v, ok := l.envLookup("BACKDROP_BROWSER_FLAGS"); ok && v != "" {
		b.Flags = parseList(v)
	}
	b.PageURL = l.envString("BACKDROP_BROWSER_PAGE_URL", b.PageURL)

	s := &cfg.Sim
	s.ClipDuration = l.envDuration("BACKDROP_SIM_CLIP", s.ClipDuration)
	s.TickInterval = l.envDuration("BACKDROP_SIM_TICK", s.TickInterval)
	s.Speed = l.envFloat("BACKDROP_SIM_SPEED", s.Speed)

	cfg.RateLimit.Enabled = l.envBool("BACKDROP_RATELIMIT_ENABLED", cfg.RateLimit.Enabled)
	cfg.RateLimit.RequestsPerMinute = l.envInt("BACKDROP_RATELIMIT_RPM", cfg.RateLimit.RequestsPerMinute)

	t := &cfg.Telemetry
	t.Enabled = l.envBool("BACKDROP_TELEMETRY_ENABLED", t.Enabled)
	t.ServiceName = l.envString("BACKDROP_TELEMETRY_SERVICE", t.ServiceName)
	t.Environment = l.envString("BACKDROP_TELEMETRY_ENVIRONMENT", t.Environment)
	t.Exporter = l.envString("BACKDROP_TELEMETRY_EXPORTER", t.Exporter)
	t.Endpoint = l.envString("BACKDROP_TELEMETRY_ENDPOINT", t.Endpoint)
	t.SamplingRate = l.envFloat("BACKDROP_TELEMETRY_SAMPLING", t.SamplingRate)
}
