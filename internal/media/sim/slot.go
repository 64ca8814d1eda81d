// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package sim provides in-process media slots that behave like browser video
// elements, including the ways those fail.
package sim

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuGH/backdrop/internal/playback"
)

// ErrPlayRefused mirrors a rejected play() promise, e.g. an autoplay policy denial.
var ErrPlayRefused = errors.New("sim: play refused")

// Slot is a simulated video element. Time only moves when Tick is called.
type Slot struct {
	mu sync.Mutex

	index      int
	duration   time.Duration
	position   time.Duration
	paused     bool
	ended      bool
	foreground bool
	muted      bool

	stalled     bool
	refusePlays int
	readyDelay  time.Duration
	loaded      bool

	plays   int
	reloads int

	subs   map[int]func(playback.Event)
	nextID int
}

// NewSlot creates a paused slot holding a clip of the given duration.
// A non-positive duration simulates media whose length is not known.
func NewSlot(index int, duration time.Duration) *Slot {
	return &Slot{
		index:    index,
		duration: duration,
		paused:   true,
		loaded:   true,
		subs:     make(map[int]func(playback.Event)),
	}
}

// Index returns the slot number.
func (s *Slot) Index() int { return s.index }

func (s *Slot) Play(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.plays++
	s.muted = true
	if s.refusePlays > 0 {
		s.refusePlays--
		s.mu.Unlock()
		return ErrPlayRefused
	}
	if s.ended {
		s.position = 0
		s.ended = false
	}
	s.paused = false
	s.mu.Unlock()
	return nil
}

func (s *Slot) Pause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	wasPlaying := !s.paused
	s.paused = true
	s.mu.Unlock()
	if wasPlaying {
		s.emit(playback.EventPaused)
	}
	return nil
}

func (s *Slot) Seek(ctx context.Context, pos time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if pos < 0 {
		pos = 0
	}
	if s.duration > 0 && pos > s.duration {
		pos = s.duration
	}
	s.position = pos
	s.ended = false
	return nil
}

// Reload rebuilds the pipeline: position resets and stall faults clear.
func (s *Slot) Reload(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	s.position = 0
	s.paused = true
	s.ended = false
	s.stalled = false
	s.loaded = s.readyDelay == 0
	return nil
}

func (s *Slot) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	delay := s.readyDelay
	loaded := s.loaded
	s.mu.Unlock()
	if loaded {
		return nil
	}

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		s.mu.Lock()
		s.loaded = true
		s.mu.Unlock()
		return nil
	}
}

func (s *Slot) Status(ctx context.Context) (playback.Status, error) {
	if err := ctx.Err(); err != nil {
		return playback.Status{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked(), nil
}

func (s *Slot) SetForeground(ctx context.Context, foreground bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.foreground = foreground
	return nil
}

func (s *Slot) Subscribe(fn func(playback.Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs, id)
	}
}

// Tick advances playback by dt and emits the resulting progress or
// end-of-media event.
func (s *Slot) Tick(dt time.Duration) {
	s.mu.Lock()
	if s.paused || s.ended || s.stalled {
		s.mu.Unlock()
		return
	}
	s.position += dt
	kind := playback.EventProgress
	if s.duration > 0 && s.position >= s.duration {
		s.position = s.duration
		s.ended = true
		s.paused = true
		kind = playback.EventEnded
	}
	s.mu.Unlock()
	s.emit(kind)
}

// Stall freezes the position while the slot keeps reporting that it plays.
func (s *Slot) Stall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stalled = true
}

// RefusePlays makes the next n Play calls fail.
func (s *Slot) RefusePlays(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refusePlays = n
}

// SetReadyDelay makes WaitReady after the next Reload take d.
func (s *Slot) SetReadyDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readyDelay = d
}

// Fail stalls the pipeline and emits a fatal media event of the given kind.
func (s *Slot) Fail(kind playback.EventKind) {
	s.mu.Lock()
	s.stalled = true
	s.mu.Unlock()
	s.emit(kind)
}

// Interrupt pauses the slot the way a browser does when it suspends media.
func (s *Slot) Interrupt() {
	s.mu.Lock()
	wasPlaying := !s.paused
	s.paused = true
	s.mu.Unlock()
	if wasPlaying {
		s.emit(playback.EventPaused)
	}
}

// Stats reports how often the slot was asked to play and to reload.
func (s *Slot) Stats() (plays, reloads int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays, s.reloads
}

// Foreground reports whether the slot is faded in.
func (s *Slot) Foreground() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.foreground
}

// Muted reports whether playback was started with the autoplay-safe flags.
func (s *Slot) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

func (s *Slot) statusLocked() playback.Status {
	return playback.Status{
		Position: s.position,
		Duration: s.duration,
		Paused:   s.paused,
		Ended:    s.ended,
	}
}

func (s *Slot) emit(kind playback.EventKind) {
	s.mu.Lock()
	ev := playback.Event{Kind: kind, Status: s.statusLocked()}
	fns := make([]func(playback.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
