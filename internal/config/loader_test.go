// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/backdrop/internal/playback"
	"github.com/ManuGH/backdrop/internal/validate"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backdrop.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader("", "v1.2.3").Load()
	require.NoError(t, err)

	assert.Equal(t, "v1.2.3", cfg.Version)
	assert.Equal(t, ":8080", cfg.Listen)
	assert.Equal(t, DriverSim, cfg.Driver)
	if diff := cmp.Diff(playback.DefaultTiming(), cfg.Playback.Timing()); diff != "" {
		t.Errorf("default timing mismatch (-want +got):\n%s", diff)
	}
	assert.True(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	media := t.TempDir()
	path := writeConfig(t, `
logLevel: debug
listen: "127.0.0.1:9000"
mediaDir: `+media+`
driver: browser
playback:
  fade: 2s
  leadFraction: 0.25
  pollInterval: 0s
  stallThreshold: 30s
browser:
  controlURL: ws://127.0.0.1:9222/devtools/browser/abc
  headless: false
  flags: ["disable-gpu"]
rateLimit:
  enabled: false
telemetry:
  enabled: true
  exporter: http
  endpoint: collector:4318
  samplingRate: 0.5
`)

	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)

	want := playback.DefaultTiming()
	want.FadeDuration = 2 * time.Second
	want.LeadFraction = 0.25
	want.PollInterval = 0
	want.StallThreshold = 30 * time.Second
	if diff := cmp.Diff(want, cfg.Playback.Timing()); diff != "" {
		t.Errorf("timing mismatch (-want +got):\n%s", diff)
	}

	wantBrowser := BrowserConfig{
		ControlURL: "ws://127.0.0.1:9222/devtools/browser/abc",
		Headless:   false,
		Flags:      []string{"disable-gpu"},
	}
	if diff := cmp.Diff(wantBrowser, cfg.Browser); diff != "" {
		t.Errorf("browser mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, media, cfg.MediaDir)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "http", cfg.Telemetry.Exporter)
	assert.InDelta(t, 0.5, cfg.Telemetry.SamplingRate, 1e-9)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "playback:\n  fade: 2s\nsim:\n  speed: 4\n")
	t.Setenv("BACKDROP_FADE", "800ms")
	t.Setenv("BACKDROP_SIM_SPEED", "10")
	t.Setenv("BACKDROP_BROWSER_FLAGS", "disable-gpu, mute-audio,,")
	t.Setenv("BACKDROP_RATELIMIT_RPM", "not-a-number")

	l := NewLoader(path, "dev")
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 800*time.Millisecond, cfg.Playback.FadeDuration)
	assert.InDelta(t, 10.0, cfg.Sim.Speed, 1e-9)
	assert.Equal(t, []string{"disable-gpu", "mute-audio"}, cfg.Browser.Flags)
	assert.Equal(t, 120, cfg.RateLimit.RequestsPerMinute, "invalid env value keeps the previous one")

	assert.Contains(t, l.ConsumedEnvKeys, "BACKDROP_FADE")
	assert.Contains(t, l.ConsumedEnvKeys, "BACKDROP_BROWSER_FLAGS")
}

func TestLoad_StrictRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "playback:\n  fadeDuration: 2s\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnknownConfigField)
}

func TestLoad_RejectsMultipleDocuments(t *testing.T) {
	path := writeConfig(t, "logLevel: info\n---\nlogLevel: debug\n")
	_, err := NewLoader(path, "dev").Load()
	assert.ErrorIs(t, err, ErrMultipleDocuments)
}

func TestLoad_RejectsNonYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backdrop.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))
	_, err := NewLoader(path, "dev").Load()
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestLoad_EmptyFile(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := NewLoader(path, "dev").Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestLoad_InvalidDurationInFile(t *testing.T) {
	path := writeConfig(t, "playback:\n  watchdogInterval: soon\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "playback.watchdogInterval")
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, "driver: vlc\nplayback:\n  backoffBase: 30s\n  backoffMax: 10s\n")
	_, err := NewLoader(path, "dev").Load()
	require.Error(t, err)

	var verr validate.ValidationError
	require.True(t, errors.As(err, &verr))
	fields := make([]string, 0, len(verr.Errors()))
	for _, e := range verr.Errors() {
		fields = append(fields, e.Field)
	}
	assert.ElementsMatch(t, []string{"Driver", "Playback"}, fields)
}

func TestValidate_TelemetryOnlyWhenEnabled(t *testing.T) {
	cfg, err := NewLoader("", "dev").Load()
	require.NoError(t, err)

	cfg.Telemetry.Exporter = "zipkin"
	assert.NoError(t, Validate(cfg))

	cfg.Telemetry.Enabled = true
	assert.Error(t, Validate(cfg))
}

func TestValidate_BrowserURLs(t *testing.T) {
	cfg, err := NewLoader("", "dev").Load()
	require.NoError(t, err)
	cfg.Driver = DriverBrowser
	cfg.Browser.PageURL = "file:///tmp/index.html"
	assert.Error(t, Validate(cfg))

	cfg.Browser.PageURL = "http://127.0.0.1:8080/"
	assert.NoError(t, Validate(cfg))
}

func TestConversions(t *testing.T) {
	cfg, err := NewLoader("", "v9").Load()
	require.NoError(t, err)

	tc := cfg.Telemetry.Provider(cfg.Version, cfg.Driver)
	assert.Equal(t, "v9", tc.ServiceVersion)
	assert.Equal(t, "grpc", tc.ExporterType)

	sc := cfg.Sim.Player()
	assert.Equal(t, 10*time.Second, sc.ClipDuration)

	cfg.Browser.Flags = []string{"a"}
	bc := cfg.Browser.Session()
	bc.Flags[0] = "b"
	assert.Equal(t, "a", cfg.Browser.Flags[0], "session config must not alias flags")
}
