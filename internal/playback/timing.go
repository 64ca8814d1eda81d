// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidTiming is returned by Timing.Validate.
var ErrInvalidTiming = errors.New("invalid playback timing")

// Timing holds every tunable of the controller. The defaults were tuned for
// short WebM/MP4 background loops and are not load-bearing for correctness.
type Timing struct {
	// FadeDuration must match the CSS opacity transition of the slots.
	FadeDuration time.Duration
	// LeadFraction scales FadeDuration into the extra lead margin, clamped to [LeadMin, LeadMax].
	LeadFraction float64
	LeadMin      time.Duration
	LeadMax      time.Duration

	// PollInterval samples the active slot in addition to progress events. Zero disables polling.
	PollInterval time.Duration
	// ReadyTimeout bounds every wait for metadata/canplay.
	ReadyTimeout time.Duration
	// CleanupMargin is added to FadeDuration before the outgoing slot is paused and rewound.
	CleanupMargin time.Duration
	// ReentryWindow keeps the transition guard up after cleanup.
	ReentryWindow time.Duration

	WatchdogInterval  time.Duration
	StallThreshold    time.Duration
	ProgressTolerance time.Duration

	BackoffBase time.Duration
	BackoffMax  time.Duration

	// OpTimeout bounds every individual media call.
	OpTimeout time.Duration
}

// DefaultTiming returns the stock tuning.
func DefaultTiming() Timing {
	return Timing{
		FadeDuration:      1500 * time.Millisecond,
		LeadFraction:      0.4,
		LeadMin:           350 * time.Millisecond,
		LeadMax:           time.Second,
		PollInterval:      500 * time.Millisecond,
		ReadyTimeout:      1500 * time.Millisecond,
		CleanupMargin:     120 * time.Millisecond,
		ReentryWindow:     150 * time.Millisecond,
		WatchdogInterval:  10 * time.Second,
		StallThreshold:    20 * time.Second,
		ProgressTolerance: 50 * time.Millisecond,
		BackoffBase:       2 * time.Second,
		BackoffMax:        20 * time.Second,
		OpTimeout:         3 * time.Second,
	}
}

// LeadMargin returns the extra lead added to the fade window.
func (t Timing) LeadMargin() time.Duration {
	lead := time.Duration(math.Round(float64(t.FadeDuration) * t.LeadFraction))
	if lead < t.LeadMin {
		lead = t.LeadMin
	}
	if t.LeadMax > 0 && lead > t.LeadMax {
		lead = t.LeadMax
	}
	return lead
}

// SwitchThreshold is the remaining playback time at which a crossfade starts.
func (t Timing) SwitchThreshold() time.Duration {
	return t.FadeDuration + t.LeadMargin()
}

// CleanupDelay is how long the outgoing slot keeps rendering after a switch commits.
func (t Timing) CleanupDelay() time.Duration {
	return t.FadeDuration + t.CleanupMargin
}

// Backoff returns the minimum spacing enforced after the given number of
// consecutive recovery attempts: min(BackoffMax, BackoffBase * 2^consecutive).
func (t Timing) Backoff(consecutive int) time.Duration {
	if consecutive < 0 {
		consecutive = 0
	}
	d := t.BackoffBase
	for i := 0; i < consecutive; i++ {
		if d >= t.BackoffMax {
			break
		}
		d *= 2
	}
	if d > t.BackoffMax {
		d = t.BackoffMax
	}
	return d
}

// Validate checks the invariants the controller relies on.
func (t Timing) Validate() error {
	switch {
	case t.FadeDuration <= 0:
		return fmt.Errorf("%w: fade duration must be positive", ErrInvalidTiming)
	case t.LeadFraction < 0:
		return fmt.Errorf("%w: lead fraction must not be negative", ErrInvalidTiming)
	case t.LeadMin < 0 || (t.LeadMax > 0 && t.LeadMax < t.LeadMin):
		return fmt.Errorf("%w: lead bounds [%s, %s] are inconsistent", ErrInvalidTiming, t.LeadMin, t.LeadMax)
	case t.PollInterval < 0:
		return fmt.Errorf("%w: poll interval must not be negative", ErrInvalidTiming)
	case t.ReadyTimeout <= 0 || t.OpTimeout <= 0:
		return fmt.Errorf("%w: ready and call timeouts must be positive", ErrInvalidTiming)
	case t.CleanupMargin < 0 || t.ReentryWindow < 0:
		return fmt.Errorf("%w: cleanup margin and re-entry window must not be negative", ErrInvalidTiming)
	case t.WatchdogInterval <= 0:
		return fmt.Errorf("%w: watchdog interval must be positive", ErrInvalidTiming)
	case t.StallThreshold <= 0:
		return fmt.Errorf("%w: stall threshold must be positive", ErrInvalidTiming)
	case t.ProgressTolerance < 0:
		return fmt.Errorf("%w: progress tolerance must not be negative", ErrInvalidTiming)
	case t.BackoffBase <= 0 || t.BackoffMax < t.BackoffBase:
		return fmt.Errorf("%w: backoff base %s must be positive and not exceed max %s", ErrInvalidTiming, t.BackoffBase, t.BackoffMax)
	}
	return nil
}
