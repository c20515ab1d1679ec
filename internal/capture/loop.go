// Package capture implements the frame sampling loop: once per elapsed
// video frame it decides whether to materialize a captured frame, and it
// keeps running while capturing is enabled and the video plays.
package capture

import (
	"context"
	"image"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/bdougie/framegrab/internal/codec"
	"github.com/bdougie/framegrab/internal/metrics"
	"github.com/bdougie/framegrab/internal/models"
)

// Source is the playing video as seen by the loop.
type Source interface {
	// Ready reports whether enough data is decoded to expose pixels.
	Ready() bool
	Dimensions() (width, height int)
	CurrentTime() float64
	Paused() bool
	Ended() bool
	// Snapshot returns the frame on screen and the playback position it
	// was presented at, read together.
	Snapshot() (image.Image, float64, error)
}

// State is the part of the session the loop reads and mutates.
type State interface {
	Capturing() bool
	SetCapturing(on bool) bool
	Interval() int
	AppendFrame(f models.CapturedFrame) error
}

// Sink receives each captured frame. It must not block; persistence and
// other side effects run on their own.
type Sink interface {
	Captured(f models.CapturedFrame)
}

// Encoder turns a snapshot into the stored image forms.
type Encoder func(image.Image) (models.Image, error)

// Loop is the capture loop for one video. Step is one invocation; Run
// drives Step from a Clock until the context is cancelled or Step asks to
// stop.
type Loop struct {
	src     Source
	state   State
	sink    Sink
	encode  Encoder
	newID   func() string
	hz      int
	logger  *slog.Logger
	elapsed atomic.Int64
}

// Option configures a Loop.
type Option func(*Loop)

// WithEncoder replaces the PNG encoder.
func WithEncoder(e Encoder) Option {
	return func(l *Loop) { l.encode = e }
}

// WithIDs replaces the uuid generator.
func WithIDs(newID func() string) Option {
	return func(l *Loop) { l.newID = newID }
}

// WithRepaintHz sets the fallback clock rate.
func WithRepaintHz(hz int) Option {
	return func(l *Loop) { l.hz = hz }
}

func NewLoop(src Source, state State, sink Sink, logger *slog.Logger, opts ...Option) *Loop {
	l := &Loop{
		src:    src,
		state:  state,
		sink:   sink,
		encode: codec.Encode,
		newID:  uuid.NewString,
		hz:     DefaultRepaintHz,
		logger: logger,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Reset zeroes the elapsed-frame counter. Call it each time capturing is
// switched on so interval counting restarts with the run.
func (l *Loop) Reset() {
	l.elapsed.Store(0)
}

// Elapsed returns the number of ticks counted since the last Reset.
func (l *Loop) Elapsed() int64 {
	return l.elapsed.Load()
}

// Run ticks the loop until ctx is cancelled or a step ends the run.
func (l *Loop) Run(ctx context.Context) {
	clock := NewClock(l.src, l.hz)
	defer clock.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-clock.Ticks():
			if !ok {
				return
			}
			if !l.Step(ctx) {
				return
			}
		}
	}
}

// Step runs one invocation and reports whether the loop should be
// scheduled again.
func (l *Loop) Step(ctx context.Context) bool {
	if ctx.Err() != nil || !l.state.Capturing() {
		return false
	}

	// Not enough data yet: keep the chain alive without counting.
	if !l.src.Ready() {
		return true
	}

	n := l.elapsed.Add(1)
	interval := int64(l.state.Interval())
	if interval < 1 {
		interval = 1
	}

	if n%interval == 0 {
		if w, h := l.src.Dimensions(); w > 0 && h > 0 {
			if err := l.captureFrame(); err != nil {
				l.logger.Error("frame capture failed", "err", err)
				metrics.CaptureErrorsTotal.Inc()
				l.state.SetCapturing(false)
				return false
			}
		}
	}

	return !l.src.Paused() && !l.src.Ended()
}

func (l *Loop) captureFrame() error {
	snap, timestamp, err := l.src.Snapshot()
	if err != nil {
		return err
	}
	img, err := l.encode(snap)
	if err != nil {
		return err
	}

	f := models.CapturedFrame{
		ID:        l.newID(),
		Timestamp: timestamp,
		Image:     img,
	}
	if err := l.state.AppendFrame(f); err != nil {
		return err
	}
	metrics.FramesCapturedTotal.Inc()

	l.logger.Debug("frame captured", "id", f.ID, "timestamp", timestamp, "elapsed", l.elapsed.Load())
	if l.sink != nil {
		l.sink.Captured(f)
	}
	return nil
}
