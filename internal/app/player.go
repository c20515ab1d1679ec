package app

import (
	"context"
	"log/slog"

	"github.com/bdougie/framegrab/internal/capture"
	"github.com/bdougie/framegrab/internal/models"
	"github.com/bdougie/framegrab/internal/player"
)

// Player is the playback surface the controller drives.
type Player interface {
	capture.Source
	capture.FrameNotifier

	Info() player.Info
	Play()
	Pause()
	Seek(t float64)
	OnEnd(fn func())
	Close()
}

// Opener starts a paused player for src.
type Opener func(ctx context.Context, src models.VideoSource, logger *slog.Logger) (Player, error)

// OpenPlayer opens src with ffmpeg.
func OpenPlayer(ctx context.Context, src models.VideoSource, logger *slog.Logger) (Player, error) {
	p, err := player.Open(ctx, src, logger)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Playback describes the player for rendering.
type Playback struct {
	Loaded   bool
	Paused   bool
	Ended    bool
	Position float64
	Duration float64
	Width    int
	Height   int
}
