// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package metrics holds the Prometheus collectors exported by backdrop.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	playbackState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backdrop_playback_state",
		Help: "Controller state by view (idle/transitioning/recovering; active state=1, others 0)",
	}, []string{"view", "state"})

	playbackForeground = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backdrop_playback_foreground_slot",
		Help: "Index of the slot currently in the foreground",
	}, []string{"view"})

	playbackConsecutiveRecoveries = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "backdrop_playback_consecutive_recoveries",
		Help: "Recovery attempts since the last confirmed playback progress",
	}, []string{"view"})

	playbackTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_playback_transitions_total",
		Help: "Crossfade transitions by trigger and result (committed/aborted)",
	}, []string{"trigger", "result"})

	playbackRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_playback_recoveries_total",
		Help: "Recovery attempts by reason and outcome (soft/hard/hard_failed/skipped_backoff/skipped_busy)",
	}, []string{"reason", "outcome"})

	playbackSoftResumes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_playback_soft_resumes_total",
		Help: "Best-effort resume attempts outside the recovery strategy",
	}, []string{"reason", "result"})

	playbackStaleEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_playback_stale_events_total",
		Help: "Media events discarded because they came from a slot that is no longer active",
	}, []string{"kind"})

	playbackWatchdogTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_playback_watchdog_ticks_total",
		Help: "Watchdog ticks by outcome",
	}, []string{"outcome"})

	stylingReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backdrop_styling_reloads_total",
		Help: "Stylesheet fade-duration reloads by result",
	}, []string{"result"})
)

var playbackStates = []string{"idle", "transitioning", "recovering"}

// SetPlaybackState records the active controller state for a view.
func SetPlaybackState(view, state string) {
	for _, s := range playbackStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		playbackState.WithLabelValues(view, s).Set(value)
	}
}

// SetPlaybackForeground records which slot is in the foreground.
func SetPlaybackForeground(view string, slot int) {
	playbackForeground.WithLabelValues(view).Set(float64(slot))
}

// SetConsecutiveRecoveries records the current consecutive recovery counter.
func SetConsecutiveRecoveries(view string, n int) {
	playbackConsecutiveRecoveries.WithLabelValues(view).Set(float64(n))
}

// DeletePlaybackView drops the per-view gauges when a controller is torn down.
func DeletePlaybackView(view string) {
	for _, s := range playbackStates {
		playbackState.DeleteLabelValues(view, s)
	}
	playbackForeground.DeleteLabelValues(view)
	playbackConsecutiveRecoveries.DeleteLabelValues(view)
}

// RecordTransition counts a finished crossfade attempt.
func RecordTransition(trigger, result string) {
	playbackTransitions.WithLabelValues(trigger, result).Inc()
}

// RecordRecovery counts a recovery attempt or a skipped one.
func RecordRecovery(reason, outcome string) {
	playbackRecoveries.WithLabelValues(reason, outcome).Inc()
}

// RecordSoftResume counts a best-effort resume.
func RecordSoftResume(reason string, ok bool) {
	result := "failed"
	if ok {
		result = "playing"
	}
	playbackSoftResumes.WithLabelValues(reason, result).Inc()
}

// RecordStaleEvent counts a discarded media event.
func RecordStaleEvent(kind string) {
	playbackStaleEvents.WithLabelValues(kind).Inc()
}

// RecordWatchdogTick counts a watchdog tick outcome.
func RecordWatchdogTick(outcome string) {
	playbackWatchdogTicks.WithLabelValues(outcome).Inc()
}

// RecordStylingReload counts a stylesheet reload.
func RecordStylingReload(ok bool) {
	result := "error"
	if ok {
		result = "ok"
	}
	stylingReloads.WithLabelValues(result).Inc()
}
