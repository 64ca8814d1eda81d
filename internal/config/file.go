// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

// FileConfig mirrors the YAML file. Durations are Go duration strings ("1.5s");
// pointer fields distinguish "unset" from the zero value.
type FileConfig struct {
	LogLevel   string `yaml:"logLevel,omitempty"`
	Listen     string `yaml:"listen,omitempty"`
	WebDir     string `yaml:"webDir,omitempty"`
	MediaDir   string `yaml:"mediaDir,omitempty"`
	Stylesheet string `yaml:"stylesheet,omitempty"`
	Driver     string `yaml:"driver,omitempty"`

	Playback  PlaybackFileConfig  `yaml:"playback,omitempty"`
	Browser   BrowserFileConfig   `yaml:"browser,omitempty"`
	Sim       SimFileConfig       `yaml:"sim,omitempty"`
	RateLimit RateLimitFileConfig `yaml:"rateLimit,omitempty"`
	Telemetry TelemetryFileConfig `yaml:"telemetry,omitempty"`
}

// PlaybackFileConfig holds controller tunables.
type PlaybackFileConfig struct {
	Fade              string   `yaml:"fade,omitempty"` // e.g. "1.5s"; the stylesheet wins when it declares one
	LeadFraction      *float64 `yaml:"leadFraction,omitempty"`
	LeadMin           string   `yaml:"leadMin,omitempty"`
	LeadMax           string   `yaml:"leadMax,omitempty"`
	PollInterval      string   `yaml:"pollInterval,omitempty"` // "0s" disables polling
	ReadyTimeout      string   `yaml:"readyTimeout,omitempty"`
	CleanupMargin     string   `yaml:"cleanupMargin,omitempty"`
	ReentryWindow     string   `yaml:"reentryWindow,omitempty"`
	WatchdogInterval  string   `yaml:"watchdogInterval,omitempty"`
	StallThreshold    string   `yaml:"stallThreshold,omitempty"`
	ProgressTolerance string   `yaml:"progressTolerance,omitempty"`
	BackoffBase       string   `yaml:"backoffBase,omitempty"`
	BackoffMax        string   `yaml:"backoffMax,omitempty"`
	OpTimeout         string   `yaml:"opTimeout,omitempty"`
}

// BrowserFileConfig selects the Chromium instance.
type BrowserFileConfig struct {
	ControlURL string   `yaml:"controlURL,omitempty"`
	Bin        string   `yaml:"bin,omitempty"`
	Headless   *bool    `yaml:"headless,omitempty"`
	Flags      []string `yaml:"flags,omitempty"`
	PageURL    string   `yaml:"pageURL,omitempty"`
}

// SimFileConfig shapes the simulated clip.
type SimFileConfig struct {
	ClipDuration string   `yaml:"clipDuration,omitempty"`
	TickInterval string   `yaml:"tickInterval,omitempty"`
	Speed        *float64 `yaml:"speed,omitempty"`
}

// RateLimitFileConfig limits API requests.
type RateLimitFileConfig struct {
	Enabled           *bool `yaml:"enabled,omitempty"`
	RequestsPerMinute *int  `yaml:"requestsPerMinute,omitempty"`
}

// TelemetryFileConfig controls tracing.
type TelemetryFileConfig struct {
	Enabled      *bool    `yaml:"enabled,omitempty"`
	ServiceName  string   `yaml:"serviceName,omitempty"`
	Environment  string   `yaml:"environment,omitempty"`
	Exporter     string   `yaml:"exporter,omitempty"` // grpc | http
	Endpoint     string   `yaml:"endpoint,omitempty"`
	SamplingRate *float64 `yaml:"samplingRate,omitempty"`
}
