// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Common attribute keys for consistent tracing across the application.
const (
	// Playback attributes
	PlaybackViewKey    = "playback.view_id"
	PlaybackFromKey    = "playback.from_slot"
	PlaybackToKey      = "playback.to_slot"
	PlaybackSlotKey    = "playback.slot"
	PlaybackTriggerKey = "playback.trigger"
	PlaybackReasonKey  = "playback.reason"
	PlaybackAttemptKey = "playback.attempt"
	PlaybackOutcomeKey = "playback.outcome"

	// DriverKey is a resource attribute naming the media driver.
	DriverKey = "backdrop.driver"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// SwitchAttributes creates crossfade span attributes.
func SwitchAttributes(viewID string, from, to int, trigger string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(PlaybackViewKey, viewID),
		attribute.Int(PlaybackFromKey, from),
		attribute.Int(PlaybackToKey, to),
		attribute.String(PlaybackTriggerKey, trigger),
	}
}

// RecoveryAttributes creates recovery span attributes.
func RecoveryAttributes(viewID string, slot int, reason string, attempt int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(PlaybackSlotKey, slot),
		attribute.String(PlaybackReasonKey, reason),
		attribute.Int(PlaybackAttemptKey, attempt),
	}
	if viewID != "" {
		attrs = append(attrs, attribute.String(PlaybackViewKey, viewID))
	}
	return attrs
}

// OutcomeAttribute tags a span with the outcome of the traced step.
func OutcomeAttribute(outcome string) attribute.KeyValue {
	return attribute.String(PlaybackOutcomeKey, outcome)
}

// ErrorAttributes creates error-related span attributes.
func ErrorAttributes(_ error, errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
