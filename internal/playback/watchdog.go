// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"time"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/metrics"
)

// armWatchdog schedules the next watchdog tick. Bumping the generation
// invalidates ticks that were already queued.
func (c *Controller) armWatchdog() {
	c.disarmWatchdog()
	if !c.pageVisible {
		return
	}
	c.watchdogGen++
	c.watchdog = c.after(c.timing.WatchdogInterval, watchdogTickMsg{gen: c.watchdogGen})
}

func (c *Controller) disarmWatchdog() {
	if c.watchdog != nil {
		c.watchdog.Stop()
		c.watchdog = nil
	}
	c.watchdogGen++
}

func (c *Controller) armPoll() {
	if c.timing.PollInterval <= 0 {
		return
	}
	c.pollGen++
	c.poll = c.after(c.timing.PollInterval, pollTickMsg{gen: c.pollGen})
}

func (c *Controller) onPollTick(m pollTickMsg) {
	if m.gen != c.pollGen {
		return
	}
	c.armPoll()
	if !c.pageVisible || c.state != StateIdle || c.pollSampling {
		return
	}
	c.pollSampling = true
	c.sample(samplePoll)
}

func (c *Controller) onWatchdogTick(m watchdogTickMsg) {
	if m.gen != c.watchdogGen {
		metrics.RecordWatchdogTick("stale")
		return
	}
	c.armWatchdog()

	if !c.pageVisible {
		metrics.RecordWatchdogTick("hidden")
		return
	}
	if c.state != StateIdle || c.sampling {
		metrics.RecordWatchdogTick("busy")
		return
	}
	c.sampling = true
	c.sample(sampleWatchdog)
}

// observeProgress updates the progress bookkeeping and reports whether the
// position moved forward beyond the tolerance.
func (c *Controller) observeProgress(st Status) bool {
	delta := st.Position - c.rec.lastPosition
	switch {
	case delta > c.timing.ProgressTolerance:
		c.rec.lastPosition = st.Position
		c.rec.lastProgressAt = c.clock.Now()
		if c.rec.consecutive != 0 {
			c.logger.Info().Str(xglog.FieldEvent, "playback.progress_resumed").
				Int(xglog.FieldAttempt, c.rec.consecutive).
				Dur(xglog.FieldPosition, st.Position).
				Msg("playback progressing again")
		}
		c.rec.consecutive = 0
		return true
	case delta < -c.timing.ProgressTolerance:
		// Rewound; compare from the new position without counting it as progress.
		c.rec.lastPosition = st.Position
	}
	return false
}

func (c *Controller) watchdogCheck(st Status) {
	if c.state != StateIdle {
		metrics.RecordWatchdogTick("busy")
		return
	}

	if st.Paused || st.Ended {
		if st.Ended || c.inSwitchWindow(st) {
			metrics.RecordWatchdogTick("switch")
			c.requestSwitch(TriggerWatchdog)
			return
		}
		metrics.RecordWatchdogTick("resume")
		c.softResume("watchdog")
		return
	}

	if c.observeProgress(st) {
		metrics.RecordWatchdogTick("progress")
		return
	}

	stalledFor := c.clock.Now().Sub(c.rec.lastProgressAt)
	if stalledFor < c.timing.StallThreshold {
		metrics.RecordWatchdogTick("waiting")
		return
	}

	metrics.RecordWatchdogTick("stalled")
	c.logger.Warn().Str(xglog.FieldEvent, "playback.stall_detected").
		Int(xglog.FieldSlot, c.active).
		Dur(xglog.FieldPosition, st.Position).
		Dur(xglog.FieldDuration, stalledFor.Round(time.Millisecond)).
		Msg("no playback progress")
	c.startRecovery(ReasonNoProgress)
}

// visibilityCheck runs once after the page becomes visible again.
func (c *Controller) visibilityCheck(st Status) {
	if c.state != StateIdle {
		return
	}

	fault := c.rec.faultWhileHidden
	c.rec.faultWhileHidden = false

	if st.Ended || (st.Paused && c.inSwitchWindow(st)) {
		c.requestSwitch(TriggerWatchdog)
		return
	}
	if !st.Paused && !fault {
		return
	}
	if !c.startRecovery(ReasonVisibility) && st.Paused {
		// Backoff window still open; one plain resume attempt instead.
		c.softResume(ReasonVisibility)
	}
}
