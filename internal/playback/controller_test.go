// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func (b *mockBuffer) refuse(n int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refusePlays = n
}

func TestController_MountStartsFirstSlot(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 0, snap.Foreground)
	assert.Equal(t, StateIdle, snap.State)
	assert.Equal(t, [2]bool{true, false}, snap.Visible)
	assert.True(t, snap.PageVisible)

	plays, _, _ := h.bufs[0].counts()
	assert.Equal(t, 1, plays)
	assert.True(t, h.bufs[0].isForeground())
	assert.False(t, h.bufs[1].isForeground())

	plays, _, _ = h.bufs[1].counts()
	assert.Zero(t, plays, "standby slot must stay idle until the first switch")
}

func TestController_SwitchTriggerScenarioA(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()
	b0, b1 := h.bufs[0], h.bufs[1]

	b0.progress(7800 * time.Millisecond)
	h.settle()
	assert.Equal(t, 0, h.ctrl.Foreground(), "2.2s remaining is outside the 2.1s window")

	b0.progress(7900 * time.Millisecond)
	h.settle()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 1, snap.Foreground)
	assert.Equal(t, StateTransitioning, snap.State)
	assert.Equal(t, uint64(1), snap.Transitions)
	assert.Equal(t, [2]bool{false, true}, snap.Visible)
	assert.Equal(t, time.Duration(0), snap.LastPosition)

	assert.Equal(t, []time.Duration{0}, b1.seekLog())
	plays, _, _ := b1.counts()
	assert.Equal(t, 1, plays)
	assert.True(t, b1.isForeground())
	assert.False(t, b0.isForeground())

	// Outgoing slot keeps playing through the fade.
	_, pauses, _ := b0.counts()
	assert.Zero(t, pauses)

	h.advance(1620 * time.Millisecond)
	_, pauses, _ = b0.counts()
	assert.Equal(t, 1, pauses)
	assert.Equal(t, []time.Duration{0}, b0.seekLog())
	assert.Equal(t, StateTransitioning, h.ctrl.Snapshot().State, "re-entry window still open")

	h.advance(150 * time.Millisecond)
	assert.Equal(t, StateIdle, h.ctrl.Snapshot().State)
}

func TestController_SwitchFiresOncePerCycle(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()
	b0, b1 := h.bufs[0], h.bufs[1]

	b0.progress(7900 * time.Millisecond)
	b0.progress(8000 * time.Millisecond)
	b0.progress(8500 * time.Millisecond)
	b0.update(func(s *Status) { s.Position = 10 * time.Second; s.Ended = true; s.Paused = true })
	b0.emit(EventEnded)
	h.settle()

	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Transitions)
	assert.Equal(t, 1, h.ctrl.Foreground())

	// A late end-of-media from the superseded slot changes nothing.
	b0.emit(EventEnded)
	h.advance(2 * time.Second)

	snap := h.ctrl.Snapshot()
	assert.Equal(t, uint64(1), snap.Transitions)
	assert.Equal(t, 1, snap.Foreground)
	assert.Equal(t, StateIdle, snap.State)
	plays, _, _ := b1.counts()
	assert.Equal(t, 1, plays)

	// Next loop boundary switches back.
	b1.progress(7900 * time.Millisecond)
	h.settle()
	snap = h.ctrl.Snapshot()
	assert.Equal(t, uint64(2), snap.Transitions)
	assert.Equal(t, 0, snap.Foreground)
}

func TestController_UnknownDurationWaitsForEnd(t *testing.T) {
	h := newHarness(t, testTiming(), 0)
	h.start()
	b0 := h.bufs[0]

	b0.progress(9 * time.Second)
	h.advance(time.Second)
	assert.Equal(t, 0, h.ctrl.Foreground())

	b0.update(func(s *Status) { s.Ended = true; s.Paused = true })
	b0.emit(EventEnded)
	h.settle()
	assert.Equal(t, 1, h.ctrl.Foreground())
}

func TestController_ShortClipSwitchesOnEnd(t *testing.T) {
	h := newHarness(t, testTiming(), 2*time.Second)
	h.start()
	b0 := h.bufs[0]

	b0.progress(500 * time.Millisecond)
	h.settle()
	assert.Equal(t, 0, h.ctrl.Foreground(), "clip shorter than the switch threshold")

	b0.update(func(s *Status) { s.Position = 2 * time.Second; s.Ended = true; s.Paused = true })
	b0.emit(EventEnded)
	h.settle()
	assert.Equal(t, 1, h.ctrl.Foreground())
}

func TestController_SwitchAbortsWhenStandbyRefusesPlay(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()
	b0, b1 := h.bufs[0], h.bufs[1]
	b1.refuse(1)

	b0.progress(7900 * time.Millisecond)
	h.settle()

	snap := h.ctrl.Snapshot()
	assert.Equal(t, 0, snap.Foreground)
	assert.Equal(t, StateIdle, snap.State)
	assert.Zero(t, snap.Transitions)
	assert.Equal(t, [2]bool{true, false}, snap.Visible)
	assert.False(t, b1.isForeground())
	assert.True(t, b0.isForeground())

	// A later trigger retries.
	b0.progress(8000 * time.Millisecond)
	h.settle()
	assert.Equal(t, 1, h.ctrl.Foreground())
}

func TestController_SwitchProceedsAfterReadyTimeout(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()
	h.bufs[1].blockReady = true

	h.bufs[0].progress(7900 * time.Millisecond)
	h.settle()
	assert.Equal(t, 1, h.ctrl.Foreground())
}

func TestController_RecoveryIgnoredDuringTransition(t *testing.T) {
	timing := testTiming()
	timing.ReadyTimeout = 200 * time.Millisecond
	h := newHarness(t, timing, 10*time.Second)
	h.start()
	b0 := h.bufs[0]
	h.bufs[1].blockReady = true

	b0.progress(7900 * time.Millisecond)
	b0.emit(EventError)
	h.settle()

	snap := h.ctrl.Snapshot()
	assert.Zero(t, snap.Recoveries)
	assert.Equal(t, 1, snap.Foreground)
}

func TestController_StallRecoveryScenarioB(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	b0 := h.bufs[0]
	start := h.clock.Now()

	b0.progress(5 * time.Second)
	h.settle()

	h.advance(19900 * time.Millisecond)
	assert.Zero(t, h.ctrl.Snapshot().Recoveries)

	h.advance(100 * time.Millisecond)
	snap := h.ctrl.Snapshot()
	require.Equal(t, uint64(1), snap.Recoveries)
	require.NotNil(t, snap.LastRecoveryAt)
	assert.Equal(t, start.Add(20*time.Second), *snap.LastRecoveryAt)
	assert.Zero(t, snap.ConsecutiveRecoveries, "soft resume succeeded")

	h.advance(5 * time.Second)
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries)

	plays, _, reloads := b0.counts()
	assert.Equal(t, 2, plays, "mount plus one soft resume")
	assert.Zero(t, reloads, "soft resume is tried first")
}

func TestController_BackoffScenarioC(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(5 * time.Second)
	h.settle()
	b0.refuse(1000)

	start := h.clock.Now()
	b0.emit(EventError)
	h.settle()

	snap := h.ctrl.Snapshot()
	require.Equal(t, uint64(1), snap.Recoveries)
	assert.Equal(t, 1, snap.ConsecutiveRecoveries)
	_, _, reloads := b0.counts()
	assert.Equal(t, 1, reloads, "failed soft resume escalates to reload")
	assert.Contains(t, b0.seekLog(), 5*time.Second)

	h.advance(2 * time.Second)
	b0.emit(EventError)
	h.settle()
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries)

	h.advance(1950 * time.Millisecond)
	b0.emit(EventError)
	h.settle()
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries)

	h.advance(50 * time.Millisecond)
	b0.emit(EventError)
	h.settle()
	snap = h.ctrl.Snapshot()
	require.Equal(t, uint64(2), snap.Recoveries)
	assert.Equal(t, 4*time.Second, snap.LastRecoveryAt.Sub(start))
	assert.Equal(t, 2, snap.ConsecutiveRecoveries)

	h.advance(7950 * time.Millisecond)
	b0.emit(EventError)
	h.settle()
	assert.Equal(t, uint64(2), h.ctrl.Snapshot().Recoveries)

	h.advance(50 * time.Millisecond)
	b0.emit(EventError)
	h.settle()
	snap = h.ctrl.Snapshot()
	require.Equal(t, uint64(3), snap.Recoveries)
	assert.Equal(t, 12*time.Second, snap.LastRecoveryAt.Sub(start))
}

func TestController_ProgressResetsRecoveryCounter(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(5 * time.Second)
	h.settle()
	b0.refuse(1000)

	b0.emit(EventError)
	h.settle()
	h.advance(2 * time.Second)
	b0.emit(EventError)
	h.settle()
	h.advance(2 * time.Second)
	b0.emit(EventError)
	h.settle()
	require.Equal(t, 2, h.ctrl.Snapshot().ConsecutiveRecoveries)

	b0.refuse(0)
	b0.update(func(s *Status) { s.Paused = false })
	b0.progress(6 * time.Second)
	h.settle()
	assert.Zero(t, h.ctrl.Snapshot().ConsecutiveRecoveries)
}

func TestController_HiddenPageScenarioD(t *testing.T) {
	h := newHarness(t, testTiming(), 2*time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(5 * time.Second)
	h.settle()

	h.ctrl.SetVisible(false)
	h.settle()
	b0.emit(EventStalled)
	h.advance(60 * time.Second)

	snap := h.ctrl.Snapshot()
	assert.False(t, snap.PageVisible)
	assert.Zero(t, snap.Recoveries)

	h.ctrl.SetVisible(true)
	h.settle()
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries, "fault seen while hidden is handled once")

	h.advance(time.Second)
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries)
}

func TestController_VisibilityRegainedResumesOnce(t *testing.T) {
	h := newHarness(t, testTiming(), 2*time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(5 * time.Second)
	h.settle()

	h.ctrl.SetVisible(false)
	h.settle()
	b0.update(func(s *Status) { s.Paused = true })
	h.advance(30 * time.Second)
	plays, _, _ := b0.counts()
	require.Equal(t, 1, plays)

	h.ctrl.SetVisible(true)
	h.settle()
	plays, _, _ = b0.counts()
	assert.Equal(t, 2, plays)
	assert.Equal(t, uint64(1), h.ctrl.Snapshot().Recoveries)

	h.advance(time.Second)
	plays, _, _ = b0.counts()
	assert.Equal(t, 2, plays)
}

func TestController_VisibleAgainWithoutFaultDoesNothing(t *testing.T) {
	h := newHarness(t, testTiming(), 2*time.Minute)
	h.start()
	h.bufs[0].progress(5 * time.Second)
	h.settle()

	h.ctrl.SetVisible(false)
	h.settle()
	h.ctrl.SetVisible(true)
	h.settle()

	assert.Zero(t, h.ctrl.Snapshot().Recoveries)
	plays, _, _ := h.bufs[0].counts()
	assert.Equal(t, 1, plays)
}

func TestController_SpuriousPauseIsResumed(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(3 * time.Second)
	h.settle()

	b0.update(func(s *Status) { s.Paused = true })
	b0.emit(EventPaused)
	h.settle()

	plays, _, _ := b0.counts()
	assert.Equal(t, 2, plays)
	st, _ := b0.Status(context.Background())
	assert.False(t, st.Paused)
	assert.Zero(t, h.ctrl.Snapshot().Recoveries)
}

func TestController_WatchdogResumesPausedSlot(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	b0 := h.bufs[0]
	b0.progress(3 * time.Second)
	h.settle()

	b0.update(func(s *Status) { s.Paused = true })
	h.advance(10 * time.Second)

	plays, _, reloads := b0.counts()
	assert.Equal(t, 2, plays)
	assert.Zero(t, reloads)
	assert.Zero(t, h.ctrl.Snapshot().Recoveries, "paused slot gets a plain resume")
}

func TestController_WatchdogSwitchesEndedSlot(t *testing.T) {
	timing := testTiming()
	timing.PollInterval = 0
	h := newHarness(t, timing, 10*time.Second)
	h.start()

	// End reached without an event.
	h.bufs[0].update(func(s *Status) { s.Position = 10 * time.Second; s.Ended = true; s.Paused = true })
	h.advance(10 * time.Second)

	assert.Equal(t, 1, h.ctrl.Foreground())
	assert.Zero(t, h.ctrl.Snapshot().Recoveries)
}

func TestController_PollCatchesMissedProgressEvents(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()

	h.bufs[0].update(func(s *Status) { s.Position = 8 * time.Second })
	h.advance(500 * time.Millisecond)

	assert.Equal(t, 1, h.ctrl.Foreground())
}

func TestController_SetFadeDuration(t *testing.T) {
	h := newHarness(t, testTiming(), 10*time.Second)
	h.start()
	b0 := h.bufs[0]

	h.ctrl.SetFadeDuration(3 * time.Second)
	h.settle()
	assert.Equal(t, 3*time.Second, h.ctrl.Snapshot().FadeDuration)

	b0.progress(5900 * time.Millisecond)
	h.settle()
	assert.Equal(t, 0, h.ctrl.Foreground())

	b0.progress(6 * time.Second)
	h.settle()
	assert.Equal(t, 1, h.ctrl.Foreground())

	h.advance(3 * time.Second)
	_, pauses, _ := b0.counts()
	assert.Zero(t, pauses, "cleanup waits for the longer fade")
	h.advance(300 * time.Millisecond)
	_, pauses, _ = b0.counts()
	assert.Equal(t, 1, pauses)
}

func TestController_StaleEventsIgnored(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()

	h.bufs[1].emit(EventError)
	h.bufs[1].emit(EventEnded)
	h.settle()

	snap := h.ctrl.Snapshot()
	assert.Zero(t, snap.Recoveries)
	assert.Zero(t, snap.Transitions)
	assert.Equal(t, 0, snap.Foreground)
}

func TestController_RunTwice(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()

	err := h.ctrl.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestController_InvalidTiming(t *testing.T) {
	timing := testTiming()
	timing.FadeDuration = 0
	h := newHarness(t, timing, time.Minute)

	err := h.ctrl.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTiming)

	// A rejected mount leaves the controller startable.
	err = h.ctrl.Run(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTiming)
	assert.NotErrorIs(t, err, ErrAlreadyRunning)
	assert.False(t, h.ctrl.Snapshot().Running)
}

func TestController_Teardown(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()
	h.bufs[0].progress(5 * time.Second)
	h.settle()

	h.stop()

	assert.False(t, h.ctrl.Snapshot().Running)
	assert.Zero(t, h.bufs[0].subscribers())
	assert.Zero(t, h.bufs[1].subscribers())

	// Nothing may react after unmount.
	h.clock.Advance(time.Minute)
	h.ctrl.SetVisible(false)
	h.ctrl.SetFadeDuration(time.Second)
	assert.Zero(t, h.ctrl.pending.Load())

	plays, _, _ := h.bufs[0].counts()
	assert.Equal(t, 1, plays)
}

func TestController_DefaultViewID(t *testing.T) {
	c := New([2]Buffer{newMockBuffer(0), newMockBuffer(0)})
	assert.NotEmpty(t, c.ViewID())
	assert.Equal(t, c.ViewID(), c.Snapshot().ViewID)
	assert.False(t, c.Snapshot().Running)
}

func TestSnapshot_LastRecoveryOmittedUntilFirstAttempt(t *testing.T) {
	h := newHarness(t, testTiming(), time.Minute)
	h.start()

	raw, err := json.Marshal(h.ctrl.Snapshot())
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "last_recovery_at")

	h.bufs[0].emit(EventStalled)
	h.settle()

	snap := h.ctrl.Snapshot()
	require.NotNil(t, snap.LastRecoveryAt)
	raw, err = json.Marshal(snap)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"last_recovery_at":"`)
}
