// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sim

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/backdrop/internal/log"
	"github.com/ManuGH/backdrop/internal/playback"
)

// Config describes the simulated clip.
type Config struct {
	ClipDuration time.Duration
	// TickInterval is the cadence of progress events, like a browser's timeupdate.
	TickInterval time.Duration
	// Speed scales simulated time against wall time; 1 is real time.
	Speed float64
}

// Player drives two simulated slots in wall time.
type Player struct {
	cfg    Config
	slots  [2]*Slot
	logger zerolog.Logger
}

// NewPlayer creates both slots. Zero fields fall back to a 10s clip at 250ms
// ticks in real time.
func NewPlayer(cfg Config) *Player {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 250 * time.Millisecond
	}
	if cfg.Speed <= 0 {
		cfg.Speed = 1
	}
	if cfg.ClipDuration == 0 {
		cfg.ClipDuration = 10 * time.Second
	}
	return &Player{
		cfg:    cfg,
		slots:  [2]*Slot{NewSlot(0, cfg.ClipDuration), NewSlot(1, cfg.ClipDuration)},
		logger: xglog.WithComponent("sim"),
	}
}

// Buffers returns the slots in the form the controller consumes.
func (p *Player) Buffers() [2]playback.Buffer {
	return [2]playback.Buffer{p.slots[0], p.slots[1]}
}

// Slot returns slot i for fault injection.
func (p *Player) Slot(i int) *Slot {
	return p.slots[i]
}

// Run advances both slots until ctx is cancelled.
func (p *Player) Run(ctx context.Context) error {
	p.logger.Info().
		Str(xglog.FieldEvent, "sim.start").
		Dur("clip", p.cfg.ClipDuration).
		Dur("tick", p.cfg.TickInterval).
		Float64("speed", p.cfg.Speed).
		Msg("simulated media running")

	step := time.Duration(float64(p.cfg.TickInterval) * p.cfg.Speed)
	ticker := time.NewTicker(p.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, s := range p.slots {
				s.Tick(step)
			}
		}
	}
}
