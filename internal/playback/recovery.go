// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/metrics"
	"github.com/ManuGH/backdrop/internal/telemetry"
)

// startRecovery runs the recovery strategy on the active slot and reports whether
// an attempt was started. Attempts inside the backoff window are skipped.
func (c *Controller) startRecovery(reason string) bool {
	if c.state != StateIdle {
		return false
	}

	now := c.clock.Now()
	backoff := c.timing.Backoff(c.rec.consecutive)
	if !c.rec.lastAttemptAt.IsZero() {
		if since := now.Sub(c.rec.lastAttemptAt); since < backoff {
			metrics.RecordRecovery(reason, "skipped")
			c.logger.Debug().Str(xglog.FieldEvent, "playback.recovery_skipped").
				Str(xglog.FieldReason, reason).
				Dur(xglog.FieldBackoff, backoff).
				Dur("since_last", since).
				Msg("recovery within backoff window")
			return false
		}
	}

	c.rec.consecutive++
	c.rec.lastAttemptAt = now
	c.recoveries++
	c.seq++
	c.setState(StateRecovering)

	slot := c.active
	attempt := c.rec.consecutive
	seq := c.seq
	fallback := c.rec.lastPosition
	t := c.timing
	b := c.buffers[slot]
	viewID := c.viewID

	c.logger.Warn().Str(xglog.FieldEvent, "playback.recovery_start").
		Int(xglog.FieldSlot, slot).
		Str(xglog.FieldReason, reason).
		Int(xglog.FieldAttempt, attempt).
		Dur(xglog.FieldBackoff, backoff).
		Msg("recovering playback")

	c.spawn(func(ctx context.Context) message {
		ctx, span := c.tracer.Start(ctx, "playback.recover",
			trace.WithAttributes(telemetry.RecoveryAttributes(viewID, slot, reason, attempt)...))
		defer span.End()

		res := recoveryResultMsg{seq: seq, slot: slot, reason: reason}

		resumeAt := fallback
		if st, err := c.status(ctx, t, b); err == nil && st.Position > 0 {
			resumeAt = st.Position
		}

		if c.safePlay(ctx, t, b) {
			res.outcome = outcomeSoft
			res.status, _ = c.status(ctx, t, b)
			span.SetAttributes(telemetry.OutcomeAttribute(string(res.outcome)))
			return res
		}

		_ = c.call(ctx, t, b.Reload)
		c.waitReady(ctx, t, b)
		if resumeAt > 0 {
			if err := c.call(ctx, t, func(ctx context.Context) error { return b.Seek(ctx, resumeAt) }); err != nil {
				span.AddEvent("seek failed")
			}
		}

		res.outcome = outcomeHard
		if !c.safePlay(ctx, t, b) {
			res.outcome = outcomeHardFailed
			span.SetStatus(codes.Error, "playback did not resume")
		}
		if st, err := c.status(ctx, t, b); err == nil {
			res.status = st
		} else {
			res.status.Position = resumeAt
		}
		span.SetAttributes(telemetry.OutcomeAttribute(string(res.outcome)))
		return res
	})
	return true
}

func (c *Controller) onRecoveryResult(m recoveryResultMsg) {
	if c.state != StateRecovering || m.seq != c.seq {
		return
	}
	c.setState(StateIdle)
	metrics.RecordRecovery(m.reason, string(m.outcome))

	now := c.clock.Now()
	ev := c.logger.Info()
	if m.outcome == outcomeHardFailed {
		ev = c.logger.Warn()
	}
	ev.Str(xglog.FieldEvent, "playback.recovery_done").
		Int(xglog.FieldSlot, m.slot).
		Str(xglog.FieldReason, m.reason).
		Str("outcome", string(m.outcome)).
		Int(xglog.FieldAttempt, c.rec.consecutive).
		Dur(xglog.FieldPosition, m.status.Position).
		Msg("recovery finished")

	if m.slot != c.active {
		return
	}
	if m.outcome == outcomeSoft {
		c.rec.consecutive = 0
	}
	// Hard outcomes are recorded optimistically; the counter keeps the backoff growing
	// until real progress is observed.
	c.rec.lastPosition = m.status.Position
	c.rec.lastProgressAt = now
}

// softResume is the best-effort resume used by the watchdog. It never
// escalates and is not subject to backoff.
func (c *Controller) softResume(reason string) {
	if c.state != StateIdle || c.resuming {
		return
	}
	c.resuming = true
	slot := c.active
	t := c.timing
	b := c.buffers[slot]
	c.spawn(func(ctx context.Context) message {
		return resumeResultMsg{slot: slot, reason: reason, ok: c.safePlay(ctx, t, b)}
	})
}

func (c *Controller) onResumeResult(m resumeResultMsg) {
	c.resuming = false
	metrics.RecordSoftResume(m.reason, m.ok)
	if !m.ok {
		c.logger.Debug().Str(xglog.FieldEvent, "playback.resume_refused").
			Int(xglog.FieldSlot, m.slot).
			Str(xglog.FieldReason, m.reason).
			Msg("soft resume did not start playback")
		return
	}
	if m.slot == c.active {
		c.rec.lastProgressAt = c.clock.Now()
	}
}
