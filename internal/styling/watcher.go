// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package styling

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/metrics"
)

const defaultDebounce = 250 * time.Millisecond

// Watcher re-reads the stylesheet whenever it changes on disk and reports the
// new fade duration.
type Watcher struct {
	path     string
	debounce time.Duration
	onChange func(time.Duration)
	logger   zerolog.Logger
	last     time.Duration
}

// NewWatcher creates a watcher for the stylesheet at path. onChange is called
// from the watcher goroutine with every changed, valid duration.
func NewWatcher(path string, onChange func(time.Duration)) *Watcher {
	return &Watcher{
		path:     path,
		debounce: defaultDebounce,
		onChange: onChange,
		logger:   xglog.WithComponent("styling").With().Str(xglog.FieldPath, path).Logger(),
	}
}

// Run watches until ctx is cancelled. The parent directory is watched so that
// editors replacing the file by rename are picked up too.
func (w *Watcher) Run(ctx context.Context) error {
	if w.last == 0 {
		if d, err := LoadFade(w.path); err == nil {
			w.last = d
		}
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	dir := filepath.Dir(w.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", dir, err)
	}
	target := filepath.Base(w.path)

	w.logger.Info().
		Str(xglog.FieldEvent, "styling.watcher_started").
		Dur("fade", w.last).
		Msg("watching stylesheet for fade changes")

	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Str(xglog.FieldEvent, "styling.watcher_stopped").Msg("stylesheet watcher stopped")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Base(event.Name) != target {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				debounce.Reset(w.debounce)
			}

		case <-debounce.C:
			w.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error().Err(err).Str(xglog.FieldEvent, "styling.watcher_error").Msg("stylesheet watcher error")
		}
	}
}

func (w *Watcher) reload() {
	d, err := LoadFade(w.path)
	if err != nil {
		metrics.RecordStylingReload(false)
		w.logger.Warn().Err(err).Str(xglog.FieldEvent, "styling.reload_failed").Msg("keeping previous fade duration")
		return
	}
	metrics.RecordStylingReload(true)
	if d == w.last {
		return
	}
	w.logger.Info().
		Str(xglog.FieldEvent, "styling.fade_changed").
		Dur("old", w.last).
		Dur("new", d).
		Msg("fade duration changed")
	w.last = d
	if w.onChange != nil {
		w.onChange(d)
	}
}
