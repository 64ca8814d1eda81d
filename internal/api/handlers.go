// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/backdrop/internal/log"
)

const maxBodyBytes = 1 << 10

// apiError is the error body of every non-2xx API response.
type apiError struct {
	Error  string `json:"error"`
	Detail string `json:"detail,omitempty"`
}

// visibilityRequest is the body of POST /api/v1/playback/visibility.
type visibilityRequest struct {
	Visible *bool `json:"visible"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFileFS(w, r, s.assets, "index.html")
}

func (s *Server) handleStylesheet(w http.ResponseWriter, r *http.Request) {
	// The fade can change at runtime; the page must not cache a stale transition.
	w.Header().Set("Cache-Control", "no-cache")
	switch {
	case s.cfg.Stylesheet != "":
		http.ServeFile(w, r, s.cfg.Stylesheet)
	case s.css != nil:
		http.ServeContent(w, r, "backdrop.css", time.Time{}, bytes.NewReader(s.css))
	default:
		http.ServeFileFS(w, r, s.assets, "backdrop.css")
	}
}

func (s *Server) mediaHandler() http.Handler {
	if s.cfg.MediaDir == "" {
		return http.NotFoundHandler()
	}
	files := http.StripPrefix("/videos/", http.FileServer(http.Dir(s.cfg.MediaDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

func (s *Server) handlePlayback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.playback.Snapshot())
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	var req visibilityRequest
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		detail := err.Error()
		if errors.Is(err, io.EOF) {
			detail = "empty body"
		}
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_request", Detail: detail})
		return
	}
	if req.Visible == nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid_request", Detail: "visible is required"})
		return
	}

	s.playback.SetVisible(*req.Visible)
	log.WithComponentFromContext(r.Context(), "api").Debug().
		Str(log.FieldEvent, "playback.visibility_reported").
		Bool("visible", *req.Visible).
		Msg("page visibility reported")
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.WithComponent("api").Error().Err(err).Str(log.FieldEvent, "api.encode_error").Msg("failed to encode response")
	}
}
