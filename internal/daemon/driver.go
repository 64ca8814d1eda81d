// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package daemon

import (
	"context"
	"time"

	"github.com/ManuGH/backdrop/internal/config"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/media/browser"
	"github.com/ManuGH/backdrop/internal/media/sim"
	"github.com/ManuGH/backdrop/internal/playback"
)

// driver owns the two media slots for the lifetime of the daemon.
type driver interface {
	Buffers() [2]playback.Buffer
	// BindVisibility forwards page visibility changes, starting with the current value.
	BindVisibility(ctx context.Context, fn func(visible bool))
	// SetFade applies a changed fade duration to the rendered page.
	SetFade(ctx context.Context, d time.Duration) error
	// Run keeps the driver alive until ctx is cancelled, then releases it.
	Run(ctx context.Context) error
}

func openDriver(ctx context.Context, cfg config.AppConfig, pageURL string) (driver, error) {
	if cfg.Driver == config.DriverBrowser {
		bc := cfg.Browser.Session()
		bc.PageURL = pageURL
		s, err := browser.Open(ctx, bc)
		if err != nil {
			return nil, err
		}
		return browserDriver{s}, nil
	}
	return simDriver{sim.NewPlayer(cfg.Sim.Player())}, nil
}

type simDriver struct {
	*sim.Player
}

// A simulated page is always visible.
func (simDriver) BindVisibility(context.Context, func(bool)) {}

// SetFade is a no-op; simulated slots have no CSS transition.
func (simDriver) SetFade(context.Context, time.Duration) error { return nil }

type browserDriver struct {
	*browser.Session
}

func (b browserDriver) BindVisibility(ctx context.Context, fn func(bool)) {
	b.OnVisibility(fn)
	visible, err := b.Visible(ctx)
	if err != nil {
		log.WithComponent("daemon").Warn().Err(err).Msg("could not read initial page visibility")
		return
	}
	fn(visible)
}

func (b browserDriver) Run(ctx context.Context) error {
	<-ctx.Done()
	return b.Close()
}
