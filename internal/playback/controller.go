// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/metrics"
	"github.com/ManuGH/backdrop/internal/telemetry"
)

// ErrAlreadyRunning is returned when Run is called on a controller that was already mounted.
var ErrAlreadyRunning = errors.New("playback controller already running")

const inboxSize = 128

// Recovery reasons.
const (
	ReasonNoProgress = "no_progress"
	ReasonMediaFatal = "media_fatal"
	ReasonVisibility = "visibility"
)

// Switch triggers.
const (
	TriggerProgress = "progress"
	TriggerPoll     = "poll"
	TriggerEnded    = "ended"
	TriggerWatchdog = "watchdog"
)

// Option configures a Controller.
type Option func(*Controller)

// WithTiming overrides the default timing.
func WithTiming(t Timing) Option {
	return func(c *Controller) { c.timing = t }
}

// WithLogger sets the logger; the view ID is attached automatically.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithViewID sets the identifier used in logs, metrics and traces.
func WithViewID(id string) Option {
	return func(c *Controller) { c.viewID = id }
}

// WithClock replaces the wall clock, for tests.
func WithClock(cl Clock) Option {
	return func(c *Controller) { c.clock = cl }
}

// Controller is the dual-buffer playback controller of one mounted view.
type Controller struct {
	buffers [2]Buffer
	timing  Timing
	clock   Clock
	logger  zerolog.Logger
	tracer  trace.Tracer
	viewID  string

	inbox   chan message
	stopped chan struct{}
	// pending counts queued messages, messages being handled and running tasks.
	pending  atomic.Int64
	running  atomic.Bool
	disposed atomic.Bool
	tasks    sync.WaitGroup
	taskCtx  context.Context
	snap     atomic.Pointer[Snapshot]

	// Everything below is owned by the loop goroutine.
	state        State
	active       int
	visible      [2]bool
	pageVisible  bool
	seq          uint64
	transition   *transition
	rec          recoveryState
	watchdogGen  uint64
	watchdog     Stopper
	pollGen      uint64
	poll         Stopper
	sampling     bool
	pollSampling bool
	resuming     bool
	transitions  uint64
	recoveries   uint64
}

// New creates a controller for the two slots. Slot 0 starts in the foreground.
func New(buffers [2]Buffer, opts ...Option) *Controller {
	c := &Controller{
		buffers:     buffers,
		timing:      DefaultTiming(),
		clock:       realClock{},
		logger:      xglog.WithComponent("playback"),
		tracer:      telemetry.Tracer("playback"),
		inbox:       make(chan message, inboxSize),
		stopped:     make(chan struct{}),
		pageVisible: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.viewID == "" {
		c.viewID = uuid.New().String()
	}
	c.logger = c.logger.With().Str(xglog.FieldViewID, c.viewID).Logger()
	c.publish()
	return c
}

// ViewID returns the identifier of this controller.
func (c *Controller) ViewID() string {
	return c.viewID
}

// Snapshot returns the last published state.
func (c *Controller) Snapshot() Snapshot {
	return *c.snap.Load()
}

// Foreground returns the index of the slot currently in the foreground.
func (c *Controller) Foreground() int {
	return c.snap.Load().Foreground
}

// SetVisible reports the page visibility. Hidden pages suspend the watchdog.
func (c *Controller) SetVisible(visible bool) {
	c.post(visibilityMsg{visible: visible})
}

// SetFadeDuration updates the crossfade duration, e.g. after the stylesheet changed.
// It takes effect from the next transition on.
func (c *Controller) SetFadeDuration(d time.Duration) {
	c.post(fadeMsg{fade: d})
}

// Run mounts the controller and blocks until ctx is cancelled. On return every
// listener, timer and task has been torn down.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	if err := c.timing.Validate(); err != nil {
		c.running.Store(false)
		return err
	}

	taskCtx, cancel := context.WithCancel(ctx)
	c.taskCtx = taskCtx

	var unsubscribe [2]func()
	for i, b := range c.buffers {
		slot := i
		unsubscribe[i] = b.Subscribe(func(ev Event) {
			c.post(mediaMsg{slot: slot, ev: ev})
		})
	}

	c.mount()

	for {
		select {
		case <-ctx.Done():
			c.teardown(cancel, unsubscribe)
			return nil
		case m := <-c.inbox:
			c.handle(m)
			c.publish()
			c.pending.Add(-1)
		}
	}
}

func (c *Controller) teardown(cancel context.CancelFunc, unsubscribe [2]func()) {
	c.disposed.Store(true)
	close(c.stopped)

	for _, s := range []Stopper{c.watchdog, c.poll} {
		if s != nil {
			s.Stop()
		}
	}
	if tr := c.transition; tr != nil {
		if tr.cleanup != nil {
			tr.cleanup.Stop()
		}
		if tr.release != nil {
			tr.release.Stop()
		}
	}
	for _, unsub := range unsubscribe {
		if unsub != nil {
			unsub()
		}
	}

	cancel()
	c.tasks.Wait()

	snap := c.buildSnapshot()
	snap.Running = false
	c.snap.Store(&snap)
	metrics.DeletePlaybackView(c.viewID)

	c.logger.Info().Str(xglog.FieldEvent, "playback.unmounted").
		Uint64("transitions", c.transitions).
		Uint64("recoveries", c.recoveries).
		Msg("playback controller stopped")
}

// mount starts slot 0 and arms the periodic triggers.
func (c *Controller) mount() {
	now := c.clock.Now()
	c.rec.lastProgressAt = now
	c.visible = [2]bool{c.active == 0, c.active == 1}

	c.logger.Info().Str(xglog.FieldEvent, "playback.mounted").
		Dur("fade", c.timing.FadeDuration).
		Dur("switch_threshold", c.timing.SwitchThreshold()).
		Msg("playback controller started")

	fg, bg := c.active, 1-c.active
	t := c.timing
	c.resuming = true
	c.spawn(func(ctx context.Context) message {
		_ = c.call(ctx, t, func(ctx context.Context) error { return c.buffers[bg].SetForeground(ctx, false) })
		_ = c.call(ctx, t, func(ctx context.Context) error { return c.buffers[fg].SetForeground(ctx, true) })
		return resumeResultMsg{slot: fg, reason: "startup", ok: c.safePlay(ctx, t, c.buffers[fg])}
	})

	c.armWatchdog()
	c.armPoll()
	c.publish()
}

// post queues a message for the loop. Posts after teardown are dropped.
func (c *Controller) post(m message) {
	if c.disposed.Load() {
		return
	}
	c.pending.Add(1)
	select {
	case c.inbox <- m:
	case <-c.stopped:
		c.pending.Add(-1)
	}
}

// spawn runs fn outside the loop; a non-nil result is posted back.
// Only the loop goroutine may call spawn.
func (c *Controller) spawn(fn func(ctx context.Context) message) {
	c.pending.Add(1)
	c.tasks.Add(1)
	go func() {
		defer c.tasks.Done()
		defer c.pending.Add(-1)
		if m := fn(c.taskCtx); m != nil {
			c.post(m)
		}
	}()
}

// after posts m once d has elapsed on the controller clock.
func (c *Controller) after(d time.Duration, m message) Stopper {
	return c.clock.AfterFunc(d, func() { c.post(m) })
}

func (c *Controller) handle(m message) {
	switch m := m.(type) {
	case mediaMsg:
		c.onMedia(m)
	case visibilityMsg:
		c.onVisibility(m.visible)
	case fadeMsg:
		c.onFade(m.fade)
	case watchdogTickMsg:
		c.onWatchdogTick(m)
	case pollTickMsg:
		c.onPollTick(m)
	case sampleMsg:
		c.onSample(m)
	case switchResultMsg:
		c.onSwitchResult(m)
	case cleanupDueMsg:
		c.onCleanupDue(m)
	case cleanupDoneMsg:
		c.onCleanupDone(m)
	case releaseDueMsg:
		c.onReleaseDue(m)
	case recoveryResultMsg:
		c.onRecoveryResult(m)
	case resumeResultMsg:
		c.onResumeResult(m)
	default:
		c.logger.Warn().Str(xglog.FieldEvent, "playback.unknown_message").Msgf("unhandled message %T", m)
	}
}

func (c *Controller) onMedia(m mediaMsg) {
	if m.slot != c.active {
		metrics.RecordStaleEvent(m.ev.Kind.String())
		c.logger.Debug().Str(xglog.FieldEvent, "playback.stale_event").
			Int(xglog.FieldSlot, m.slot).
			Str("kind", m.ev.Kind.String()).
			Msg("ignoring event from inactive slot")
		return
	}

	switch k := m.ev.Kind; {
	case k == EventProgress:
		c.observeProgress(m.ev.Status)
		c.evaluateSwitch(m.ev.Status, TriggerProgress)
	case k == EventEnded:
		c.requestSwitch(TriggerEnded)
	case k == EventPaused:
		c.onActivePaused(m.ev.Status)
	case k.Fatal():
		if !c.pageVisible {
			c.rec.faultWhileHidden = true
			return
		}
		c.startRecovery(ReasonMediaFatal)
	}
}

// onActivePaused handles spurious pauses of the foreground slot.
func (c *Controller) onActivePaused(st Status) {
	if !c.pageVisible || c.state != StateIdle {
		return
	}
	if st.Ended || c.inSwitchWindow(st) {
		// The slot paused because it reached the end; the scheduler owns that.
		return
	}
	c.softResume("pause")
}

func (c *Controller) onVisibility(visible bool) {
	if visible == c.pageVisible {
		return
	}
	c.pageVisible = visible
	c.logger.Debug().Str(xglog.FieldEvent, "playback.visibility").Bool("visible", visible).Msg("page visibility changed")

	if !visible {
		c.disarmWatchdog()
		return
	}

	// Time spent hidden does not count towards the stall threshold.
	c.rec.lastProgressAt = c.clock.Now()
	c.armWatchdog()
	c.sample(sampleVisibility)
}

func (c *Controller) onFade(d time.Duration) {
	if d <= 0 || d == c.timing.FadeDuration {
		return
	}
	old := c.timing.FadeDuration
	c.timing.FadeDuration = d
	c.logger.Info().Str(xglog.FieldEvent, "playback.fade_changed").
		Dur("old", old).
		Dur("new", d).
		Dur("switch_threshold", c.timing.SwitchThreshold()).
		Msg("fade duration updated")
}

// sample reads the active slot's status in a task. purpose decides what
// happens with the result.
func (c *Controller) sample(purpose samplePurpose) {
	slot := c.active
	t := c.timing
	c.spawn(func(ctx context.Context) message {
		st, err := c.status(ctx, t, c.buffers[slot])
		return sampleMsg{purpose: purpose, slot: slot, status: st, err: err}
	})
}

func (c *Controller) onSample(m sampleMsg) {
	switch m.purpose {
	case samplePoll:
		c.pollSampling = false
	case sampleWatchdog:
		c.sampling = false
	}
	if m.slot != c.active {
		return
	}
	if m.err != nil {
		c.logger.Debug().Err(m.err).Str(xglog.FieldEvent, "playback.sample_failed").Int(xglog.FieldSlot, m.slot).Msg("status read failed")
		return
	}

	switch m.purpose {
	case samplePoll:
		c.observeProgress(m.status)
		c.evaluateSwitch(m.status, TriggerPoll)
	case sampleWatchdog:
		c.watchdogCheck(m.status)
	case sampleVisibility:
		c.visibilityCheck(m.status)
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.logger.Debug().Str(xglog.FieldEvent, "playback.state").
		Str(xglog.FieldOldState, c.state.String()).
		Str(xglog.FieldNewState, s.String()).
		Msg("state changed")
	c.state = s
}

func (c *Controller) buildSnapshot() Snapshot {
	var lastRecovery *time.Time
	if !c.rec.lastAttemptAt.IsZero() {
		at := c.rec.lastAttemptAt
		lastRecovery = &at
	}
	return Snapshot{
		ViewID:                c.viewID,
		Running:               c.running.Load() && !c.disposed.Load(),
		State:                 c.state,
		Foreground:            c.active,
		Visible:               c.visible,
		PageVisible:           c.pageVisible,
		ConsecutiveRecoveries: c.rec.consecutive,
		LastPosition:          c.rec.lastPosition,
		LastProgressAt:        c.rec.lastProgressAt,
		LastRecoveryAt:        lastRecovery,
		Transitions:           c.transitions,
		Recoveries:            c.recoveries,
		FadeDuration:          c.timing.FadeDuration,
	}
}

func (c *Controller) publish() {
	snap := c.buildSnapshot()
	c.snap.Store(&snap)
	metrics.SetPlaybackState(c.viewID, c.state.String())
	metrics.SetPlaybackForeground(c.viewID, c.active)
	metrics.SetConsecutiveRecoveries(c.viewID, c.rec.consecutive)
}

// call runs one media operation under the per-call timeout.
func (c *Controller) call(ctx context.Context, t Timing, op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, t.OpTimeout)
	defer cancel()
	return op(ctx)
}

func (c *Controller) status(ctx context.Context, t Timing, b Buffer) (Status, error) {
	var st Status
	err := c.call(ctx, t, func(ctx context.Context) error {
		var err error
		st, err = b.Status(ctx)
		return err
	})
	return st, err
}

// safePlay starts b and reports whether it is actually playing afterwards.
func (c *Controller) safePlay(ctx context.Context, t Timing, b Buffer) bool {
	if err := c.call(ctx, t, b.Play); err != nil {
		return false
	}
	st, err := c.status(ctx, t, b)
	return err == nil && !st.Paused
}

// waitReady waits for metadata or canplay, giving up after ReadyTimeout.
// A timeout is not an error: the caller proceeds anyway.
func (c *Controller) waitReady(ctx context.Context, t Timing, b Buffer) {
	ctx, cancel := context.WithTimeout(ctx, t.ReadyTimeout)
	defer cancel()
	_ = b.WaitReady(ctx)
}
