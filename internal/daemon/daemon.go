// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package daemon wires the media driver, the playback controller, the
// stylesheet watcher and the HTTP server into one lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/backdrop/internal/api"
	"github.com/ManuGH/backdrop/internal/config"
	"github.com/ManuGH/backdrop/internal/health"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/playback"
	"github.com/ManuGH/backdrop/internal/styling"
	"github.com/ManuGH/backdrop/internal/telemetry"
)

// maxRecoveriesHealthy is the consecutive recovery count from which readiness degrades.
const maxRecoveriesHealthy = 3

// Daemon runs one backdrop instance.
type Daemon struct {
	cfg    config.AppConfig
	logger zerolog.Logger

	// openDriver is replaced in tests.
	openDriver func(ctx context.Context, cfg config.AppConfig, pageURL string) (driver, error)

	ref controllerRef

	addrOnce sync.Once
	addr     string
	ready    chan struct{}
}

// New creates a daemon for an already validated configuration.
func New(cfg config.AppConfig) *Daemon {
	return &Daemon{
		cfg:        cfg,
		logger:     log.WithComponent("daemon"),
		openDriver: openDriver,
		ready:      make(chan struct{}),
	}
}

// Ready is closed once the HTTP listener is bound and the controller is running.
func (d *Daemon) Ready() <-chan struct{} {
	return d.ready
}

// Addr returns the bound HTTP address; valid after Ready.
func (d *Daemon) Addr() string {
	return d.addr
}

// Snapshot returns the controller state, or a zero snapshot before it exists.
func (d *Daemon) Snapshot() playback.Snapshot {
	return d.ref.Snapshot()
}

// Run blocks until ctx is cancelled or a component fails.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info().
		Str("version", d.cfg.Version).
		Str("listen", d.cfg.Listen).
		Str("driver", d.cfg.Driver).
		Msg("starting backdrop")

	provider, err := telemetry.NewProvider(ctx, d.cfg.Telemetry.Provider(d.cfg.Version, d.cfg.Driver))
	if err != nil {
		d.logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
	} else {
		defer func() {
			if err := provider.Shutdown(context.Background()); err != nil {
				d.logger.Error().Err(err).Msg("telemetry shutdown error")
			}
		}()
	}

	timing := d.cfg.Playback.Timing()
	stylesheet := d.stylesheetPath()
	if stylesheet != "" {
		fade, err := styling.LoadFade(stylesheet)
		if err != nil {
			return fmt.Errorf("read fade from %s: %w", stylesheet, err)
		}
		timing.FadeDuration = fade
		d.logger.Info().Str(log.FieldPath, stylesheet).Dur("fade", fade).Msg("fade duration taken from stylesheet")
	}

	hm := health.NewManager(d.cfg.Version, d.ref.Snapshot)
	hm.RegisterChecker(health.NewPlaybackChecker(d.ref.Snapshot, timing.StallThreshold, maxRecoveriesHealthy))
	if stylesheet != "" {
		hm.RegisterChecker(health.NewStylesheetChecker(stylesheet))
	}

	tracing := ""
	if d.cfg.Telemetry.Enabled {
		tracing = d.cfg.Telemetry.ServiceName
	}
	srv, err := api.New(api.Config{
		Listen:             d.cfg.Listen,
		WebDir:             d.cfg.WebDir,
		MediaDir:           d.cfg.MediaDir,
		Stylesheet:         d.cfg.Stylesheet,
		Fade:               timing.FadeDuration,
		RateLimitPerMinute: d.rateLimit(),
		TracingService:     tracing,
	}, &d.ref, hm)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", d.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", d.cfg.Listen, err)
	}
	d.addr = ln.Addr().String()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return srv.Serve(gctx, ln) })

	// The browser loads the page from our own server, so the driver opens after Serve started.
	drv, err := d.openDriver(gctx, d.cfg, d.pageURL())
	if err != nil {
		cancel()
		return errors.Join(fmt.Errorf("open %s driver: %w", d.cfg.Driver, err), waitIgnoringCancel(g))
	}

	ctrl := playback.New(drv.Buffers(), playback.WithTiming(timing))
	d.ref.set(ctrl)
	drv.BindVisibility(gctx, ctrl.SetVisible)

	g.Go(func() error { return drv.Run(gctx) })
	g.Go(func() error { return ctrl.Run(gctx) })
	if stylesheet != "" {
		watcher := styling.NewWatcher(stylesheet, func(fade time.Duration) {
			ctrl.SetFadeDuration(fade)
			d.applyPageFade(gctx, drv, fade, timing.OpTimeout)
		})
		g.Go(func() error {
			if err := watcher.Run(gctx); err != nil {
				// The controller keeps the last fade it was given.
				d.logger.Warn().Err(err).Str(log.FieldPath, stylesheet).Msg("stylesheet watcher stopped")
			}
			return nil
		})
	}

	g.Go(func() error {
		for {
			if ctrl.Snapshot().Running {
				d.addrOnce.Do(func() { close(d.ready) })
				d.logger.Info().
					Str(log.FieldViewID, ctrl.ViewID()).
					Str("addr", d.addr).
					Msg("backdrop running")
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(10 * time.Millisecond):
			}
		}
	})

	err = g.Wait()
	d.logger.Info().Msg("backdrop stopped")
	return err
}

// applyPageFade pushes fade into the loaded page. A failure leaves the page on
// its previous transition until the next reload picks up the stylesheet.
func (d *Daemon) applyPageFade(ctx context.Context, drv driver, fade, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := drv.SetFade(ctx, fade); err != nil {
		d.logger.Warn().Err(err).Dur("fade", fade).Msg("could not apply fade to page")
	}
}

// stylesheetPath is the operator stylesheet the fade is read from, if any.
func (d *Daemon) stylesheetPath() string {
	if d.cfg.Stylesheet != "" {
		return d.cfg.Stylesheet
	}
	if d.cfg.WebDir != "" {
		path := filepath.Join(d.cfg.WebDir, "backdrop.css")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

func (d *Daemon) rateLimit() int {
	if !d.cfg.RateLimit.Enabled {
		return 0
	}
	return d.cfg.RateLimit.RequestsPerMinute
}

// pageURL is the layout page the browser driver loads.
func (d *Daemon) pageURL() string {
	if d.cfg.Browser.PageURL != "" {
		return d.cfg.Browser.PageURL
	}
	host, port, err := net.SplitHostPort(d.addr)
	if err != nil {
		return "http://" + d.addr + "/"
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && ip.IsUnspecified()) {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

func waitIgnoringCancel(g *errgroup.Group) error {
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// WaitForShutdown returns a context cancelled on SIGINT or SIGTERM.
func WaitForShutdown() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// controllerRef lets the API serve before the controller exists.
type controllerRef struct {
	mu   sync.RWMutex
	ctrl *playback.Controller
}

func (r *controllerRef) set(c *playback.Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctrl = c
}

func (r *controllerRef) get() *playback.Controller {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctrl
}

func (r *controllerRef) Snapshot() playback.Snapshot {
	if c := r.get(); c != nil {
		return c.Snapshot()
	}
	return playback.Snapshot{}
}

func (r *controllerRef) SetVisible(visible bool) {
	if c := r.get(); c != nil {
		c.SetVisible(visible)
	}
}
