// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/ysmood/gson"

	"github.com/ManuGH/backdrop/internal/playback"
)

// ErrNotPlaying is returned when play() resolved but the element stayed paused.
var ErrNotPlaying = errors.New("video element did not start")

// ErrNotReady is returned when the element did not load metadata in time.
var ErrNotReady = errors.New("video element not ready")

const defaultReadyWait = 1500 * time.Millisecond

// Slot is one <video> element of the layout page.
type Slot struct {
	index int
	page  *rod.Page

	mu     sync.Mutex
	subs   map[int]func(playback.Event)
	nextID int
}

func newSlot(index int, page *rod.Page) *Slot {
	return &Slot{index: index, page: page, subs: make(map[int]func(playback.Event))}
}

func (s *Slot) call(ctx context.Context, method string, args ...interface{}) (gson.JSON, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           fmt.Sprintf(`(...args) => window.__backdrop.%s(%d, ...args)`, method, s.index),
		JSArgs:       args,
		ByValue:      true,
		AwaitPromise: true,
		UserGesture:  true,
	})
	if err != nil {
		return gson.JSON{}, fmt.Errorf("slot %d %s: %w", s.index, method, err)
	}
	return res.Value, nil
}

func (s *Slot) Play(ctx context.Context) error {
	v, err := s.call(ctx, "play")
	if err != nil {
		return err
	}
	if !v.Bool() {
		return fmt.Errorf("slot %d: %w", s.index, ErrNotPlaying)
	}
	return nil
}

func (s *Slot) Pause(ctx context.Context) error {
	_, err := s.call(ctx, "pause")
	return err
}

func (s *Slot) Seek(ctx context.Context, pos time.Duration) error {
	_, err := s.call(ctx, "seek", pos.Seconds())
	return err
}

func (s *Slot) Reload(ctx context.Context) error {
	_, err := s.call(ctx, "reload")
	return err
}

// WaitReady waits in the page until the deadline of ctx.
func (s *Slot) WaitReady(ctx context.Context) error {
	wait := defaultReadyWait
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return ErrNotReady
	}
	v, err := s.call(ctx, "ready", wait.Milliseconds())
	if err != nil {
		return err
	}
	if !v.Bool() {
		return fmt.Errorf("slot %d: %w", s.index, ErrNotReady)
	}
	return nil
}

func (s *Slot) Status(ctx context.Context) (playback.Status, error) {
	v, err := s.call(ctx, "status")
	if err != nil {
		return playback.Status{}, err
	}
	return decodeStatus(v), nil
}

func (s *Slot) SetForeground(ctx context.Context, foreground bool) error {
	_, err := s.call(ctx, "foreground", foreground)
	return err
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

func (s *Slot) deliver(ev playback.Event) {
	s.mu.Lock()
	fns := make([]func(playback.Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
