// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/metrics"
	"github.com/ManuGH/backdrop/internal/telemetry"
)

// inSwitchWindow reports whether st is close enough to the end for a crossfade.
// Clips no longer than the switch threshold never enter the window; their
// end-of-media event drives the switch instead.
func (c *Controller) inSwitchWindow(st Status) bool {
	if !st.DurationKnown() {
		return false
	}
	threshold := c.timing.SwitchThreshold()
	if st.Duration <= threshold {
		return false
	}
	return st.Remaining() <= threshold
}

func (c *Controller) evaluateSwitch(st Status, trigger string) {
	if c.state != StateIdle || !c.inSwitchWindow(st) {
		return
	}
	c.requestSwitch(trigger)
}

// requestSwitch starts a crossfade unless one is already in flight.
func (c *Controller) requestSwitch(trigger string) {
	if c.state != StateIdle {
		c.logger.Debug().Str(xglog.FieldEvent, "playback.switch_suppressed").
			Str(xglog.FieldTrigger, trigger).
			Str("state", c.state.String()).
			Msg("switch already in progress")
		return
	}

	c.seq++
	tr := &transition{
		seq:       c.seq,
		from:      c.active,
		to:        1 - c.active,
		trigger:   trigger,
		startedAt: c.clock.Now(),
	}
	c.transition = tr
	c.setState(StateTransitioning)
	c.visible[tr.to] = true

	c.logger.Info().Str(xglog.FieldEvent, "playback.switch_start").
		Int(xglog.FieldFrom, tr.from).
		Int(xglog.FieldTo, tr.to).
		Str(xglog.FieldTrigger, trigger).
		Msg("crossfade started")

	t := c.timing
	in, out := c.buffers[tr.to], c.buffers[tr.from]
	viewID := c.viewID
	c.spawn(func(ctx context.Context) message {
		ctx, span := c.tracer.Start(ctx, "playback.switch",
			trace.WithAttributes(telemetry.SwitchAttributes(viewID, tr.from, tr.to, trigger)...))
		defer span.End()

		res := switchResultMsg{seq: tr.seq}

		// Rewind the standby slot and start fading it in over the outgoing one.
		if err := c.call(ctx, t, func(ctx context.Context) error { return in.Seek(ctx, 0) }); err != nil {
			span.AddEvent("seek failed")
		}
		_ = c.call(ctx, t, func(ctx context.Context) error { return in.SetForeground(ctx, true) })

		c.waitReady(ctx, t, in)

		if !c.safePlay(ctx, t, in) {
			_ = c.call(ctx, t, func(ctx context.Context) error { return in.SetForeground(ctx, false) })
			res.err = fmt.Errorf("slot %d did not start playing", tr.to)
			span.SetStatus(codes.Error, res.err.Error())
			span.SetAttributes(telemetry.OutcomeAttribute("aborted"))
			return res
		}

		_ = c.call(ctx, t, func(ctx context.Context) error { return out.SetForeground(ctx, false) })
		span.SetAttributes(telemetry.OutcomeAttribute("committed"))
		res.ok = true
		return res
	})
}

func (c *Controller) onSwitchResult(m switchResultMsg) {
	tr := c.transition
	if tr == nil || tr.seq != m.seq || tr.committed {
		return
	}

	if !m.ok {
		c.visible[tr.to] = false
		c.transition = nil
		c.setState(StateIdle)
		metrics.RecordTransition(tr.trigger, "aborted")
		c.logger.Warn().Err(m.err).Str(xglog.FieldEvent, "playback.switch_aborted").
			Int(xglog.FieldFrom, tr.from).
			Int(xglog.FieldTo, tr.to).
			Str(xglog.FieldTrigger, tr.trigger).
			Msg("crossfade aborted, keeping current slot")
		return
	}

	now := c.clock.Now()
	tr.committed = true
	c.active = tr.to
	c.visible[tr.from] = false
	c.visible[tr.to] = true
	c.rec.lastPosition = 0
	c.rec.lastProgressAt = now
	c.transitions++
	metrics.RecordTransition(tr.trigger, "committed")

	c.logger.Info().Str(xglog.FieldEvent, "playback.switch_commit").
		Int(xglog.FieldFrom, tr.from).
		Int(xglog.FieldTo, tr.to).
		Str(xglog.FieldTrigger, tr.trigger).
		Dur(xglog.FieldDuration, now.Sub(tr.startedAt)).
		Msg("crossfade committed")

	tr.cleanup = c.after(c.timing.CleanupDelay(), cleanupDueMsg{seq: tr.seq})
}

// onCleanupDue pauses and rewinds the outgoing slot once its fade-out is over.
func (c *Controller) onCleanupDue(m cleanupDueMsg) {
	tr := c.transition
	if tr == nil || tr.seq != m.seq {
		return
	}
	tr.cleanup = nil

	t := c.timing
	out := c.buffers[tr.from]
	c.spawn(func(ctx context.Context) message {
		_ = c.call(ctx, t, out.Pause)
		_ = c.call(ctx, t, func(ctx context.Context) error { return out.Seek(ctx, 0) })
		return cleanupDoneMsg{seq: m.seq}
	})
}

func (c *Controller) onCleanupDone(m cleanupDoneMsg) {
	tr := c.transition
	if tr == nil || tr.seq != m.seq {
		return
	}
	tr.release = c.after(c.timing.ReentryWindow, releaseDueMsg{seq: m.seq})
}

func (c *Controller) onReleaseDue(m releaseDueMsg) {
	tr := c.transition
	if tr == nil || tr.seq != m.seq {
		return
	}
	c.transition = nil
	c.setState(StateIdle)
	c.logger.Debug().Str(xglog.FieldEvent, "playback.switch_done").
		Int(xglog.FieldSlot, c.active).
		Msg("standby slot prepared")
}
