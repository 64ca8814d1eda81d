// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package browser

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ysmood/gson"

	"github.com/ManuGH/backdrop/internal/playback"
)

var errMalformedEvent = errors.New("malformed bridge event")

// bridgeEvent is one message posted by the page through the runtime binding.
type bridgeEvent struct {
	visibility bool
	visible    bool

	slot  int
	event playback.Event
}

var eventKinds = map[string]playback.EventKind{
	"timeupdate": playback.EventProgress,
	"ended":      playback.EventEnded,
	"pause":      playback.EventPaused,
	"stalled":    playback.EventStalled,
	"error":      playback.EventError,
	"emptied":    playback.EventEmptied,
}

func decodeEvent(payload string) (bridgeEvent, error) {
	j := gson.NewFrom(payload)
	if j.Nil() {
		return bridgeEvent{}, fmt.Errorf("%w: empty payload", errMalformedEvent)
	}

	name := j.Get("kind").Str()
	if name == "visibility" {
		return bridgeEvent{visibility: true, visible: j.Get("visible").Bool()}, nil
	}

	kind, ok := eventKinds[name]
	if !ok {
		return bridgeEvent{}, fmt.Errorf("%w: unknown kind %q", errMalformedEvent, name)
	}
	slot := j.Get("slot").Int()
	if slot != 0 && slot != 1 {
		return bridgeEvent{}, fmt.Errorf("%w: slot %d out of range", errMalformedEvent, slot)
	}
	return bridgeEvent{
		slot:  slot,
		event: playback.Event{Kind: kind, Status: decodeStatus(j)},
	}, nil
}

// decodeStatus reads the media state fields shared by events and status calls.
func decodeStatus(j gson.JSON) playback.Status {
	pos := seconds(j.Get("position").Num())
	if pos < 0 {
		pos = 0
	}
	return playback.Status{
		Position: pos,
		Duration: seconds(j.Get("duration").Num()),
		Paused:   j.Get("paused").Bool(),
		Ended:    j.Get("ended").Bool(),
	}
}

// seconds converts a media element time; NaN and infinities mean unknown.
func seconds(s float64) time.Duration {
	if math.IsNaN(s) || math.IsInf(s, 0) || s < 0 {
		return -1
	}
	return time.Duration(math.Round(s * float64(time.Second)))
}
