// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/backdrop/internal/media/sim"
	"github.com/ManuGH/backdrop/internal/playback"
)

// Report is the machine-readable soak result.
type Report struct {
	RunID           string           `json:"run_id"`
	StartedAt       time.Time        `json:"started_at"`
	EndedAt         time.Time        `json:"ended_at"`
	DurationSeconds float64          `json:"duration_s"`
	ScenarioResults []ScenarioResult `json:"scenario_results"`
	Summary         Summary          `json:"summary"`
}

// ScenarioResult captures one scenario.
type ScenarioResult struct {
	Name         string           `json:"name"`
	Pass         bool             `json:"pass"`
	Observations map[string]int64 `json:"observations"`
	Failures     []Failure        `json:"failures"`
}

// Failure is a violated rule.
type Failure struct {
	Time    time.Time `json:"time"`
	RuleID  string    `json:"rule_id"`
	Message string    `json:"message"`
}

// Summary aggregates the scenario outcomes.
type Summary struct {
	PassedScenarios int    `json:"passed_scenarios"`
	FailedScenarios int    `json:"failed_scenarios"`
	Verdict         string `json:"verdict"`
}

const (
	verdictPass = "PASS"
	verdictFail = "FAIL"
)

var errSoakFailed = errors.New("soak failed")

type soakOptions struct {
	duration time.Duration
	out      string
}

func newSoakCmd() *cobra.Command {
	opts := soakOptions{}
	cmd := &cobra.Command{
		Use:   "soak",
		Short: "Run the controller against simulated media and report invariant violations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			report := runSoak(cmd.Context(), opts.duration)

			if opts.out != "" {
				var buf bytes.Buffer
				if err := encodeReport(&buf, report); err != nil {
					return err
				}
				if err := writeReportFile(opts.out, buf.Bytes()); err != nil {
					return err
				}
			} else if err := encodeReport(cmd.OutOrStdout(), report); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Verdict: %s (%d passed, %d failed)\n",
				report.Summary.Verdict, report.Summary.PassedScenarios, report.Summary.FailedScenarios)
			if report.Summary.Verdict != verdictPass {
				return errSoakFailed
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&opts.duration, "duration", 3*time.Second, "run time of the steady scenarios")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the JSON report to this file instead of stdout")
	return cmd
}

func encodeReport(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

type scenario struct {
	name string
	clip time.Duration
	run  func(ctx context.Context, h *harness, d time.Duration)
}

var scenarios = []scenario{
	{name: "steady_loop", clip: 500 * time.Millisecond, run: steadyLoop},
	{name: "refused_resume_escalates", clip: time.Minute, run: refusedResumeEscalates},
	{name: "hidden_page_defers_recovery", clip: time.Minute, run: hiddenPageDefersRecovery},
	{name: "fade_change", clip: 500 * time.Millisecond, run: fadeChange},
}

func runSoak(ctx context.Context, d time.Duration) Report {
	if ctx == nil {
		ctx = context.Background()
	}
	report := Report{RunID: uuid.NewString(), StartedAt: time.Now().UTC()}
	for _, sc := range scenarios {
		res := runScenario(ctx, sc, d)
		if res.Pass {
			report.Summary.PassedScenarios++
		} else {
			report.Summary.FailedScenarios++
		}
		report.ScenarioResults = append(report.ScenarioResults, res)
	}
	report.EndedAt = time.Now().UTC()
	report.DurationSeconds = report.EndedAt.Sub(report.StartedAt).Seconds()
	report.Summary.Verdict = verdictPass
	if report.Summary.FailedScenarios > 0 {
		report.Summary.Verdict = verdictFail
	}
	return report
}

func soakTiming() playback.Timing {
	t := playback.DefaultTiming()
	t.FadeDuration = 100 * time.Millisecond
	t.LeadMin = 20 * time.Millisecond
	t.LeadMax = 100 * time.Millisecond
	t.PollInterval = 50 * time.Millisecond
	t.ReadyTimeout = 100 * time.Millisecond
	t.CleanupMargin = 20 * time.Millisecond
	t.ReentryWindow = 20 * time.Millisecond
	t.WatchdogInterval = 100 * time.Millisecond
	t.StallThreshold = 300 * time.Millisecond
	t.BackoffBase = 100 * time.Millisecond
	t.BackoffMax = time.Second
	t.OpTimeout = 200 * time.Millisecond
	return t
}

// harness is one controller over simulated media plus the invariant sampler.
type harness struct {
	player *sim.Player
	ctrl   *playback.Controller
	timing playback.Timing

	mu       sync.Mutex
	failures []Failure
	samples  int64
}

func (h *harness) fail(rule, format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures = append(h.failures, Failure{Time: time.Now().UTC(), RuleID: rule, Message: fmt.Sprintf(format, args...)})
}

// check records a failure unless cond holds.
func (h *harness) check(cond bool, rule, format string, args ...any) bool {
	if !cond {
		h.fail(rule, format, args...)
	}
	return cond
}

// waitFor polls cond until it holds or d elapses.
func (h *harness) waitFor(ctx context.Context, d time.Duration, cond func(playback.Snapshot) bool) bool {
	deadline := time.NewTimer(d)
	defer deadline.Stop()
	tick := time.NewTicker(10 * time.Millisecond)
	defer tick.Stop()
	for {
		if cond(h.ctrl.Snapshot()) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-deadline.C:
			return cond(h.ctrl.Snapshot())
		case <-tick.C:
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// sample verifies that a settled controller shows exactly the foreground slot.
func (h *harness) sample(ctx context.Context) error {
	tick := time.NewTicker(5 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
		}
		snap := h.ctrl.Snapshot()
		h.mu.Lock()
		h.samples++
		h.mu.Unlock()
		if !snap.Running || snap.State != playback.StateIdle {
			continue
		}
		visible := 0
		for _, v := range snap.Visible {
			if v {
				visible++
			}
		}
		if visible != 1 || !snap.Visible[snap.Foreground] {
			h.fail("single_visible_slot", "idle with visible=%v foreground=%d", snap.Visible, snap.Foreground)
			return nil
		}
	}
}

func runScenario(parent context.Context, sc scenario, d time.Duration) ScenarioResult {
	h := &harness{
		player: sim.NewPlayer(sim.Config{ClipDuration: sc.clip, TickInterval: 20 * time.Millisecond}),
		timing: soakTiming(),
	}
	h.ctrl = playback.New(h.player.Buffers(),
		playback.WithTiming(h.timing),
		playback.WithLogger(zerolog.Nop()),
		playback.WithViewID("soak-"+sc.name),
	)

	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.player.Run(gctx) })
	g.Go(func() error { return h.ctrl.Run(gctx) })
	g.Go(func() error { return h.sample(gctx) })

	if h.waitFor(gctx, 2*time.Second, func(s playback.Snapshot) bool { return s.Running }) {
		sc.run(gctx, h, d)
	} else {
		h.fail("controller_start", "controller did not start")
	}

	cancel()
	if err := g.Wait(); err != nil {
		h.fail("controller_exit", "run returned %v", err)
	}
	snap := h.ctrl.Snapshot()
	h.check(!snap.Running, "controller_exit", "snapshot still running after stop")

	plays0, reloads0 := h.player.Slot(0).Stats()
	plays1, reloads1 := h.player.Slot(1).Stats()
	h.mu.Lock()
	defer h.mu.Unlock()
	return ScenarioResult{
		Name: sc.name,
		Pass: len(h.failures) == 0,
		Observations: map[string]int64{
			"transitions": int64(snap.Transitions),
			"recoveries":  int64(snap.Recoveries),
			"plays":       int64(plays0 + plays1),
			"reloads":     int64(reloads0 + reloads1),
			"samples":     h.samples,
		},
		Failures: append([]Failure{}, h.failures...),
	}
}

func steadyLoop(ctx context.Context, h *harness, d time.Duration) {
	sleepCtx(ctx, d)
	snap := h.ctrl.Snapshot()
	h.check(snap.Transitions >= 2, "loop_continues", "only %d transitions in %s", snap.Transitions, d)
	h.check(snap.Recoveries == 0, "no_spurious_recovery", "%d recoveries on healthy media", snap.Recoveries)
}

func refusedResumeEscalates(ctx context.Context, h *harness, _ time.Duration) {
	fg := h.ctrl.Foreground()
	slot := h.player.Slot(fg)
	slot.RefusePlays(1)
	slot.Fail(playback.EventStalled)

	if !h.check(h.waitFor(ctx, 5*time.Second, func(s playback.Snapshot) bool { return s.Recoveries >= 1 }),
		"recovery_started", "no recovery after a stall") {
		return
	}
	before, _ := slot.Status(context.Background())
	sleepCtx(ctx, 5*h.timing.PollInterval)
	after, _ := slot.Status(context.Background())
	h.check(after.Position > before.Position && !after.Paused, "playback_resumed",
		"position %s -> %s paused=%v after recovery", before.Position, after.Position, after.Paused)

	_, reloads := slot.Stats()
	h.check(reloads == 1, "escalates_to_reload", "expected one reload, got %d", reloads)
}

func hiddenPageDefersRecovery(ctx context.Context, h *harness, _ time.Duration) {
	h.ctrl.SetVisible(false)
	if !h.check(h.waitFor(ctx, time.Second, func(s playback.Snapshot) bool { return !s.PageVisible }),
		"visibility_applied", "page never reported hidden") {
		return
	}

	slot := h.player.Slot(h.ctrl.Foreground())
	slot.RefusePlays(1)
	slot.Fail(playback.EventStalled)

	sleepCtx(ctx, 3*h.timing.StallThreshold)
	h.check(h.ctrl.Snapshot().Recoveries == 0, "hidden_no_recovery", "recovery ran while the page was hidden")

	h.ctrl.SetVisible(true)
	h.check(h.waitFor(ctx, 5*time.Second, func(s playback.Snapshot) bool { return s.Recoveries >= 1 }),
		"recovery_on_visible", "no recovery after the page became visible")
}

func fadeChange(ctx context.Context, h *harness, d time.Duration) {
	const fade = 150 * time.Millisecond
	h.ctrl.SetFadeDuration(fade)
	if !h.check(h.waitFor(ctx, time.Second, func(s playback.Snapshot) bool { return s.FadeDuration == fade }),
		"fade_applied", "fade duration not applied") {
		return
	}
	start := h.ctrl.Snapshot().Transitions
	h.check(h.waitFor(ctx, d+2*time.Second, func(s playback.Snapshot) bool { return s.Transitions >= start+2 }),
		"loop_continues", "transitions stalled after a fade change")
}
