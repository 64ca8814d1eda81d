// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldRequestID = "request_id"
	FieldViewID    = "view_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Playback fields
	FieldSlot     = "slot"
	FieldFrom     = "from"
	FieldTo       = "to"
	FieldTrigger  = "trigger"
	FieldReason   = "reason"
	FieldPosition = "position"
	FieldDuration = "duration"
	FieldAttempt  = "attempt"
	FieldBackoff  = "backoff"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
)
