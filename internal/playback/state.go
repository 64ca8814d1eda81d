// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import "time"

// State is the controller's finite-state machine position.
type State int

const (
	StateIdle State = iota
	StateTransitioning
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTransitioning:
		return "transitioning"
	case StateRecovering:
		return "recovering"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name in JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Snapshot is an immutable copy of the controller state, published after every
// handled message.
type Snapshot struct {
	ViewID     string `json:"view_id"`
	Running    bool   `json:"running"`
	State      State  `json:"state"`
	Foreground int    `json:"foreground"`
	// Visible is the target opacity of each slot. Both are set while the incoming
	// slot starts; the outgoing one drops out when the switch commits.
	Visible     [2]bool `json:"visible"`
	PageVisible bool    `json:"page_visible"`

	ConsecutiveRecoveries int           `json:"consecutive_recoveries"`
	LastPosition          time.Duration `json:"last_position_ns"`
	LastProgressAt        time.Time     `json:"last_progress_at"`
	// LastRecoveryAt is nil until the first recovery attempt.
	LastRecoveryAt        *time.Time    `json:"last_recovery_at,omitempty"`

	Transitions uint64 `json:"transitions"`
	Recoveries  uint64 `json:"recoveries"`

	FadeDuration time.Duration `json:"fade_duration_ns"`
}

// recoveryState is the bookkeeping behind stall detection and backoff.
type recoveryState struct {
	consecutive    int
	lastAttemptAt  time.Time
	lastPosition   time.Duration
	lastProgressAt time.Time
	// faultWhileHidden remembers a fatal media signal suppressed while the page was hidden.
	faultWhileHidden bool
}

// transition tracks the crossfade in flight.
type transition struct {
	seq       uint64
	from, to  int
	trigger   string
	startedAt time.Time
	committed bool
	cleanup   Stopper
	release   Stopper
}
