// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package api serves the layout page, the media clips and the playback status API.
package api

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/backdrop/internal/api/middleware"
	"github.com/ManuGH/backdrop/internal/health"
	"github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/playback"
	"github.com/ManuGH/backdrop/internal/styling"
)

//go:embed web
var embedded embed.FS

// EmbeddedStylesheet returns the stock layout stylesheet.
func EmbeddedStylesheet() []byte {
	b, err := embedded.ReadFile("web/backdrop.css")
	if err != nil {
		panic(fmt.Sprintf("embedded stylesheet missing: %v", err))
	}
	return b
}

// Playback is the part of the controller the API exposes.
type Playback interface {
	Snapshot() playback.Snapshot
	SetVisible(visible bool)
}

// Config configures the HTTP surface.
type Config struct {
	Listen string
	// WebDir replaces the embedded index.html and backdrop.css when set.
	WebDir   string
	MediaDir string
	// Stylesheet is served as /backdrop.css when set; it is the file the fade is read from.
	Stylesheet string
	// Fade is written into the embedded stylesheet so the page transition matches
	// the controller. Ignored when WebDir or Stylesheet is set.
	Fade time.Duration

	RateLimitPerMinute int // 0 disables
	TracingService     string

	ShutdownTimeout time.Duration
}

// Server is the layout and status HTTP server.
type Server struct {
	cfg      Config
	playback Playback
	health   *health.Manager
	assets   fs.FS
	css      []byte // rendered embedded stylesheet, nil when the operator supplies one
	router   chi.Router
	logger   zerolog.Logger
}

// New builds the router. pb and hm must be non-nil.
func New(cfg Config, pb Playback, hm *health.Manager) (*Server, error) {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}

	var (
		assets fs.FS
		css    []byte
	)
	if cfg.WebDir != "" {
		assets = os.DirFS(cfg.WebDir)
	} else {
		sub, err := fs.Sub(embedded, "web")
		if err != nil {
			return nil, fmt.Errorf("embedded assets: %w", err)
		}
		assets = sub
		if cfg.Stylesheet == "" {
			css = EmbeddedStylesheet()
			if cfg.Fade > 0 {
				css = styling.RewriteFade(css, cfg.Fade)
			}
		}
	}

	s := &Server{
		cfg:      cfg,
		playback: pb,
		health:   hm,
		assets:   assets,
		css:      css,
		logger:   log.WithComponent("api"),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	r.Get("/", s.handleIndex)
	r.Get("/backdrop.css", s.handleStylesheet)
	r.Handle("/videos/*", s.mediaHandler())

	r.Get("/healthz", s.health.ServeHealth)
	r.Get("/readyz", s.health.ServeReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIRateLimit(s.cfg.RateLimitPerMinute))
		r.Get("/playback", s.handlePlayback)
		r.Post("/playback/visibility", s.handleVisibility)
	})

	return r
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(log.FieldEvent, "http.listen").
			Str("addr", ln.Addr().String()).
			Msg("HTTP server listening")
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error().Err(err).Str(log.FieldEvent, "http.shutdown_failed").Msg("HTTP server shutdown error")
		_ = srv.Close()
	}
	<-errChan
	s.logger.Info().Str(log.FieldEvent, "http.stopped").Msg("HTTP server stopped")
	return nil
}
