// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"
	"time"
)

// Status is a point-in-time observation of a Buffer.
type Status struct {
	Position time.Duration
	// Duration is zero or negative while the media length is unknown.
	Duration time.Duration
	Paused   bool
	Ended    bool
}

// DurationKnown reports whether the media length has been reported.
func (s Status) DurationKnown() bool {
	return s.Duration > 0
}

// Remaining returns the time left until the end of the media.
func (s Status) Remaining() time.Duration {
	return s.Duration - s.Position
}

// EventKind classifies media events.
type EventKind int

const (
	EventProgress EventKind = iota
	EventEnded
	EventPaused
	EventStalled
	EventError
	EventEmptied
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventEnded:
		return "ended"
	case EventPaused:
		return "paused"
	case EventStalled:
		return "stalled"
	case EventError:
		return "error"
	case EventEmptied:
		return "emptied"
	default:
		return "unknown"
	}
}

// Fatal reports whether the event signals a broken media pipeline.
func (k EventKind) Fatal() bool {
	return k == EventStalled || k == EventError || k == EventEmptied
}

// Event is a notification emitted by a Buffer.
type Event struct {
	Kind EventKind
	// Status carries whatever the buffer knew when the event fired.
	Status Status
}

// Buffer is one playback slot. Implementations wrap a real media element
// (browser <video>) or a simulation.
//
// Calls may block; the controller always passes a bounded context. Play must
// keep the element muted and inline so autoplay policies allow it.
type Buffer interface {
	Play(ctx context.Context) error
	Pause(ctx context.Context) error
	Seek(ctx context.Context, pos time.Duration) error
	// Reload tears down and rebuilds the media pipeline.
	Reload(ctx context.Context) error
	// WaitReady returns once metadata is loaded or the element can play.
	WaitReady(ctx context.Context) error
	Status(ctx context.Context) (Status, error)
	// SetForeground toggles the visual fade-in (true) or fade-out (false) of the slot.
	SetForeground(ctx context.Context, foreground bool) error
	// Subscribe registers fn for media events and returns a function that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}
