// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package browser drives the two video slots of the layout page in a Chromium
// instance over the DevTools protocol.
package browser

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/playback"
)

//go:embed bridge.js
var bridgeJS string

const bindingName = "backdropEmit"

// ErrNoPage is returned when no page URL is configured.
var ErrNoPage = errors.New("browser: page url is required")

// Config selects the Chromium instance and the layout page.
type Config struct {
	// ControlURL attaches to a running browser (ws://...). Empty launches one.
	ControlURL string
	// Bin is the browser binary used when launching; empty lets the launcher pick one.
	Bin      string
	Headless bool
	// Flags are extra command-line switches, e.g. "--disable-gpu" or "window-size=1920,1080".
	Flags   []string
	PageURL string
}

// Session is one layout page with its two slots.
type Session struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	slots    [2]*Slot
	logger   zerolog.Logger

	mu           sync.RWMutex
	onVisibility func(bool)

	cancel context.CancelFunc
	done   chan struct{}
}

// Open connects to (or launches) the browser, loads the page and installs the
// media bridge. ctx bounds the setup only.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.PageURL == "" {
		return nil, ErrNoPage
	}
	logger := xglog.WithComponent("browser")

	s := &Session{logger: logger, done: make(chan struct{})}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless).
			Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		for _, raw := range cfg.Flags {
			name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
			if hasVal {
				l = l.Set(flags.Flag(name), val)
			} else {
				l = l.Set(flags.Flag(name))
			}
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		controlURL = u
		s.launcher = l
	}

	sessCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	b := rod.New().ControlURL(controlURL).Context(sessCtx)
	if err := b.Connect(); err != nil {
		s.abort()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	s.browser = b

	page, err := b.Page(proto.TargetCreateTarget{URL: cfg.PageURL})
	if err != nil {
		s.abort()
		return nil, fmt.Errorf("open %s: %w", cfg.PageURL, err)
	}
	s.page = page
	if err := page.Context(ctx).WaitLoad(); err != nil {
		s.abort()
		return nil, fmt.Errorf("load %s: %w", cfg.PageURL, err)
	}

	for i := range s.slots {
		s.slots[i] = newSlot(i, page)
	}

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		s.abort()
		return nil, fmt.Errorf("add runtime binding: %w", err)
	}
	if err := s.install(ctx); err != nil {
		s.abort()
		return nil, err
	}

	wait := page.Context(sessCtx).EachEvent(
		func(ev *proto.RuntimeBindingCalled) {
			if ev.Name == bindingName {
				s.dispatch(ev.Payload)
			}
		},
		func(*proto.PageLoadEventFired) {
			// Navigation drops the bridge; the binding itself survives.
			if err := s.install(sessCtx); err != nil {
				s.logger.Error().Err(err).Str(xglog.FieldEvent, "browser.reinstall_failed").Msg("bridge reinstall failed")
			}
		},
	)
	go func() {
		defer close(s.done)
		wait()
	}()

	logger.Info().
		Str(xglog.FieldEvent, "browser.attached").
		Str(xglog.FieldURL, cfg.PageURL).
		Bool("launched", s.launcher != nil).
		Msg("layout page attached")
	return s, nil
}

func (s *Session) install(ctx context.Context) error {
	_, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:           bridgeJS,
		ByValue:      true,
		AwaitPromise: true,
	})
	if err != nil {
		return fmt.Errorf("install media bridge: %w", err)
	}
	return nil
}

func (s *Session) dispatch(payload string) {
	ev, err := decodeEvent(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str(xglog.FieldEvent, "browser.bad_event").Msg("dropping bridge event")
		return
	}
	if ev.visibility {
		s.mu.RLock()
		fn := s.onVisibility
		s.mu.RUnlock()
		if fn != nil {
			fn(ev.visible)
		}
		return
	}
	s.slots[ev.slot].deliver(ev.event)
}

// Buffers returns both slots in the form the controller consumes.
func (s *Session) Buffers() [2]playback.Buffer {
	return [2]playback.Buffer{s.slots[0], s.slots[1]}
}

// OnVisibility registers fn for page visibility changes.
func (s *Session) OnVisibility(fn func(visible bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onVisibility = fn
}

// Visible reads the current page visibility.
func (s *Session) Visible(ctx context.Context) (bool, error) {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => window.__backdrop.visible()`,
		ByValue: true,
	})
	if err != nil {
		return false, fmt.Errorf("read visibility: %w", err)
	}
	return res.Value.Bool(), nil
}

// SetFade overrides the page's fade custom property so the CSS transition
// matches the controller after the stylesheet changed on disk.
func (s *Session) SetFade(ctx context.Context, d time.Duration) error {
	res, err := s.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `(ms) => window.__backdrop.fade(ms)`,
		JSArgs:  []interface{}{d.Milliseconds()},
		ByValue: true,
	})
	if err != nil {
		return fmt.Errorf("set fade: %w", err)
	}
	s.logger.Debug().Str(xglog.FieldEvent, "browser.fade_set").
		Dur("fade", d).
		Str("css", res.Value.Str()).
		Msg("page fade updated")
	return nil
}

// Close detaches from the page and shuts down a browser this session launched.
func (s *Session) Close() error {
	var errs []error
	if err := s.page.Context(context.Background()).Close(); err != nil {
		errs = append(errs, fmt.Errorf("close page: %w", err))
	}

	s.cancel()
	<-s.done

	if s.launcher != nil {
		_ = s.browser.Context(context.Background()).Close()
		s.launcher.Kill()
	}
	s.logger.Info().Str(xglog.FieldEvent, "browser.detached").Msg("layout page detached")
	return errors.Join(errs...)
}

// abort releases whatever Open managed to acquire.
func (s *Session) abort() {
	s.cancel()
	close(s.done)
	if s.browser != nil && s.launcher != nil {
		_ = s.browser.Context(context.Background()).Close()
	}
	if s.launcher != nil {
		s.launcher.Kill()
	}
}
