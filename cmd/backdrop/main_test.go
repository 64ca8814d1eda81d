// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "backdrop v")
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.yaml")
	require.NoError(t, os.WriteFile(good, []byte("driver: sim\nplayback:\n  fade: 2s\n"), 0o600))

	out, _, err := execute(t, "--config", good, "config", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration valid")
	assert.Contains(t, out, "fade:       2s")

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("driver: vlc\n"), 0o600))
	_, _, err = execute(t, "--config", bad, "config", "validate")
	assert.Error(t, err)

	unknown := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknown, []byte("fade: 2s\n"), 0o600))
	_, _, err = execute(t, "--config", unknown, "config", "validate")
	assert.Error(t, err)
}

func TestEnvFile(t *testing.T) {
	t.Setenv("BACKDROP_DRIVER", "")
	require.NoError(t, os.Unsetenv("BACKDROP_DRIVER"))

	dir := t.TempDir()
	env := filepath.Join(dir, "backdrop.env")
	require.NoError(t, os.WriteFile(env, []byte("BACKDROP_DRIVER=browser\nBACKDROP_BROWSER_CONTROL_URL=ws://127.0.0.1:9222/devtools/browser/x\n"), 0o600))
	t.Cleanup(func() {
		_ = os.Unsetenv("BACKDROP_DRIVER")
		_ = os.Unsetenv("BACKDROP_BROWSER_CONTROL_URL")
	})

	var stdout bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", env, "config", "validate"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, stdout.String(), "driver:     browser")
}

func TestEnvFile_ExplicitMissing(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "missing.env"), "version"})
	assert.Error(t, cmd.Execute())
}

func TestLoadEnvFile_DefaultMissing(t *testing.T) {
	assert.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), ".env"), false))
}

func TestSoak_Passes(t *testing.T) {
	if testing.Short() {
		t.Skip("soak runs the controller in wall time")
	}
	out := filepath.Join(t.TempDir(), "report.json")
	_, stderr, err := execute(t, "soak", "--duration", "1500ms", "--out", out)
	require.NoError(t, err, stderr)
	assert.Contains(t, stderr, "Verdict: PASS")

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	var report Report
	require.NoError(t, json.Unmarshal(raw, &report))

	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, verdictPass, report.Summary.Verdict)
	require.Len(t, report.ScenarioResults, len(scenarios))
	for _, sc := range report.ScenarioResults {
		assert.True(t, sc.Pass, "%s: %+v", sc.Name, sc.Failures)
		assert.Positive(t, sc.Observations["samples"], sc.Name)
	}
	assert.Less(t, report.DurationSeconds, (30 * time.Second).Seconds())
}
