// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type mockClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*mockTimer
}

type mockTimer struct {
	clock   *mockClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *mockTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newMockClock() *mockClock {
	return &mockClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (m *mockClock) Now() time.Time { m.mu.Lock(); defer m.mu.Unlock(); return m.now }

func (m *mockClock) AfterFunc(d time.Duration, f func()) Stopper {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{clock: m, at: m.now.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Advance moves the clock forward, firing due timers in order.
func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		m.mu.Lock()
		var next *mockTimer
		for _, t := range m.timers {
			if t.stopped || t.fired || t.at.After(target) {
				continue
			}
			if next == nil || t.at.Before(next.at) {
				next = t
			}
		}
		if next == nil {
			m.now = target
			m.pruneLocked()
			m.mu.Unlock()
			return
		}
		next.fired = true
		if next.at.After(m.now) {
			m.now = next.at
		}
		m.mu.Unlock()
		next.f()
	}
}

func (m *mockClock) pruneLocked() {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	m.timers = live
}

var errAutoplayRefused = errors.New("play() rejected: autoplay not allowed")

type mockBuffer struct {
	mu         sync.Mutex
	status     Status
	foreground bool

	// refusePlays makes the next n Play calls fail.
	refusePlays int
	// blockReady makes WaitReady hang until its context expires.
	blockReady bool

	plays   int
	pauses  int
	reloads int
	seeks   []time.Duration

	subs   map[int]func(Event)
	nextID int
}

func newMockBuffer(duration time.Duration) *mockBuffer {
	return &mockBuffer{
		status: Status{Duration: duration, Paused: true},
		subs:   make(map[int]func(Event)),
	}
}

func (b *mockBuffer) Play(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plays++
	if b.refusePlays > 0 {
		b.refusePlays--
		return errAutoplayRefused
	}
	b.status.Paused = false
	b.status.Ended = false
	return nil
}

func (b *mockBuffer) Pause(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pauses++
	b.status.Paused = true
	return nil
}

func (b *mockBuffer) Seek(_ context.Context, pos time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seeks = append(b.seeks, pos)
	b.status.Position = pos
	b.status.Ended = false
	return nil
}

func (b *mockBuffer) Reload(context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reloads++
	b.status.Position = 0
	b.status.Paused = true
	b.status.Ended = false
	return nil
}

func (b *mockBuffer) WaitReady(ctx context.Context) error {
	b.mu.Lock()
	block := b.blockReady
	b.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (b *mockBuffer) Status(context.Context) (Status, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.status, nil
}

func (b *mockBuffer) SetForeground(_ context.Context, fg bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.foreground = fg
	return nil
}

func (b *mockBuffer) Subscribe(fn func(Event)) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *mockBuffer) emit(kind EventKind) {
	b.mu.Lock()
	ev := Event{Kind: kind, Status: b.status}
	fns := make([]func(Event), 0, len(b.subs))
	for _, fn := range b.subs {
		fns = append(fns, fn)
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// progress moves the position and emits a progress event.
func (b *mockBuffer) progress(pos time.Duration) {
	b.mu.Lock()
	b.status.Position = pos
	b.mu.Unlock()
	b.emit(EventProgress)
}

func (b *mockBuffer) update(fn func(*Status)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(&b.status)
}

func (b *mockBuffer) counts() (plays, pauses, reloads int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.plays, b.pauses, b.reloads
}

func (b *mockBuffer) seekLog() []time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]time.Duration(nil), b.seeks...)
}

func (b *mockBuffer) isForeground() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.foreground
}

func (b *mockBuffer) subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type harness struct {
	t      *testing.T
	clock  *mockClock
	bufs   [2]*mockBuffer
	ctrl   *Controller
	cancel context.CancelFunc
	done   chan error
}

func newHarness(t *testing.T, timing Timing, duration time.Duration) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		clock: newMockClock(),
		bufs:  [2]*mockBuffer{newMockBuffer(duration), newMockBuffer(duration)},
	}
	h.ctrl = New([2]Buffer{h.bufs[0], h.bufs[1]},
		WithTiming(timing),
		WithClock(h.clock),
		WithLogger(zerolog.Nop()),
		WithViewID("test-"+t.Name()),
	)
	return h
}

func (h *harness) start() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() { h.done <- h.ctrl.Run(ctx) }()

	require.Eventually(h.t, func() bool { return h.ctrl.Snapshot().Running }, 2*time.Second, time.Millisecond)
	h.settle()
	h.t.Cleanup(h.stop)
}

// settle waits until no message is queued and no task is running.
func (h *harness) settle() {
	h.t.Helper()
	if h.ctrl.pending.Load() == 0 {
		return
	}
	require.Eventually(h.t, func() bool { return h.ctrl.pending.Load() == 0 }, 2*time.Second, 100*time.Microsecond)
}

// advance moves the clock in small steps, letting the controller react to
// every timer before the next one fires.
func (h *harness) advance(d time.Duration) {
	h.t.Helper()
	const step = 50 * time.Millisecond
	for d > 0 {
		s := step
		if d < s {
			s = d
		}
		h.clock.Advance(s)
		h.settle()
		d -= s
	}
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	h.cancel = nil
	select {
	case err := <-h.done:
		require.NoError(h.t, err)
	case <-time.After(2 * time.Second):
		h.t.Fatal("controller did not stop")
	}
}

// testTiming is the default tuning with fast real-time waits.
func testTiming() Timing {
	t := DefaultTiming()
	t.ReadyTimeout = 20 * time.Millisecond
	t.OpTimeout = time.Second
	return t
}
