// SPDX-License-Identifier: MIT

// Package health serves the liveness and readiness endpoints. Liveness stays green
// while the process runs; readiness follows the playback controller.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/playback"
	"github.com/ManuGH/backdrop/internal/styling"
)

// Status represents the overall health/readiness status
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult represents the result of a component health check
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Checker defines the interface for health checks
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
}

// PlaybackSummary is the part of the controller snapshot shown on the health endpoints.
type PlaybackSummary struct {
	ViewID                string `json:"view_id"`
	State                 string `json:"state"`
	Foreground            int    `json:"foreground"`
	PageVisible           bool   `json:"page_visible"`
	Transitions           uint64 `json:"transitions"`
	Recoveries            uint64 `json:"recoveries"`
	ConsecutiveRecoveries int    `json:"consecutive_recoveries"`
	Fade                  string `json:"fade"`
}

func summarize(s playback.Snapshot) *PlaybackSummary {
	if !s.Running {
		return nil
	}
	return &PlaybackSummary{
		ViewID:                s.ViewID,
		State:                 s.State.String(),
		Foreground:            s.Foreground,
		PageVisible:           s.PageVisible,
		Transitions:           s.Transitions,
		Recoveries:            s.Recoveries,
		ConsecutiveRecoveries: s.ConsecutiveRecoveries,
		Fade:                  s.FadeDuration.String(),
	}
}

// Report is the body of both endpoints.
type Report struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready"`
	Version   string                 `json:"version,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Playback  *PlaybackSummary       `json:"playback,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Manager runs the registered checkers for the health endpoints.
type Manager struct {
	version  string
	snapshot func() playback.Snapshot

	mu       sync.RWMutex
	checkers []Checker
}

// NewManager creates a manager. snapshot feeds the playback summary and may be nil.
func NewManager(version string, snapshot func() playback.Snapshot) *Manager {
	return &Manager{version: version, snapshot: snapshot}
}

// RegisterChecker adds a health checker to the manager
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Evaluate runs every checker. An unhealthy check makes the report not ready;
// a degraded one keeps it ready.
func (m *Manager) Evaluate(ctx context.Context) Report {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	r := Report{
		Status:    StatusHealthy,
		Ready:     true,
		Version:   m.version,
		Timestamp: time.Now(),
	}
	if m.snapshot != nil {
		r.Playback = summarize(m.snapshot())
	}
	if len(checkers) == 0 {
		return r
	}

	r.Checks = make(map[string]CheckResult, len(checkers))
	for _, c := range checkers {
		res := c.Check(ctx)
		r.Checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			r.Status = StatusUnhealthy
			r.Ready = false
		case StatusDegraded:
			if r.Status == StatusHealthy {
				r.Status = StatusDegraded
			}
		}
	}
	return r
}

// ServeHealth is the liveness endpoint. It always answers 200; checks are only
// listed with ?verbose=true.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	rep := m.Evaluate(r.Context())
	if r.URL.Query().Get("verbose") != "true" {
		rep.Checks = nil
	}
	m.write(w, r, "health", http.StatusOK, rep)
}

// ServeReady is the readiness endpoint: 503 while any check is unhealthy.
func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	rep := m.Evaluate(r.Context())
	code := http.StatusOK
	if !rep.Ready {
		code = http.StatusServiceUnavailable
	}
	m.write(w, r, "readiness", code, rep)
}

func (m *Manager) write(w http.ResponseWriter, r *http.Request, kind string, code int, rep Report) {
	logger := log.WithComponentFromContext(r.Context(), kind)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(rep); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, kind+".encode_error").Msg("failed to encode health response")
		return
	}
	logger.Debug().
		Str(log.FieldEvent, kind+".checked").
		Str("status", string(rep.Status)).
		Bool("ready", rep.Ready).
		Msg("health answered")
}

// StylesheetChecker verifies that the operator stylesheet still declares a fade.
// A broken edit only degrades: the controller keeps the last valid fade.
type StylesheetChecker struct {
	path string
}

// NewStylesheetChecker creates a checker for the stylesheet at path.
func NewStylesheetChecker(path string) *StylesheetChecker {
	return &StylesheetChecker{path: path}
}

func (c *StylesheetChecker) Name() string {
	return "stylesheet"
}

func (c *StylesheetChecker) Check(context.Context) CheckResult {
	fade, err := styling.LoadFade(c.path)
	switch {
	case err == nil:
		return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("fade %s", fade)}
	case errors.Is(err, styling.ErrNoFade):
		return CheckResult{Status: StatusDegraded, Message: c.path, Error: err.Error()}
	default:
		return CheckResult{Status: StatusUnhealthy, Message: c.path, Error: err.Error()}
	}
}

// PlaybackChecker reports the controller's state. A controller that is not
// running is unhealthy; one that keeps failing recoveries or has not shown
// progress for a while is degraded.
type PlaybackChecker struct {
	snapshot   func() playback.Snapshot
	staleAfter time.Duration
	maxRetries int
	now        func() time.Time
}

// NewPlaybackChecker creates a checker over a snapshot source. staleAfter is
// usually the stall threshold; maxRetries is the consecutive recovery count
// from which the check degrades.
func NewPlaybackChecker(snapshot func() playback.Snapshot, staleAfter time.Duration, maxRetries int) *PlaybackChecker {
	return &PlaybackChecker{
		snapshot:   snapshot,
		staleAfter: staleAfter,
		maxRetries: maxRetries,
		now:        time.Now,
	}
}

func (c *PlaybackChecker) Name() string {
	return "playback"
}

func (c *PlaybackChecker) Check(context.Context) CheckResult {
	s := c.snapshot()

	if !s.Running {
		return CheckResult{Status: StatusUnhealthy, Message: "controller not running"}
	}
	if c.maxRetries > 0 && s.ConsecutiveRecoveries >= c.maxRetries {
		return CheckResult{
			Status:  StatusDegraded,
			Message: fmt.Sprintf("%d consecutive recoveries", s.ConsecutiveRecoveries),
		}
	}
	if s.State == playback.StateRecovering {
		return CheckResult{Status: StatusDegraded, Message: "recovery in progress"}
	}

	// Hidden pages legitimately stop progressing.
	if s.PageVisible && c.staleAfter > 0 && !s.LastProgressAt.IsZero() {
		if age := c.now().Sub(s.LastProgressAt); age > c.staleAfter {
			return CheckResult{
				Status:  StatusDegraded,
				Message: fmt.Sprintf("no progress for %s", age.Round(time.Second)),
			}
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: fmt.Sprintf("%s on slot %d", s.State, s.Foreground),
	}
}
