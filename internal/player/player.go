// Package player plays a video source in the background, keeping the most
// recently presented frame and the playback position available to readers.
package player

import (
	"context"
	"errors"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/framegrab/internal/models"
)

// ErrNotReady is returned by Snapshot before the first frame is decoded.
var ErrNotReady = errors.New("no frame decoded yet")

// Player decodes a video with ffmpeg and presents its frames in real time.
// A new Player starts paused at position zero.
type Player struct {
	src    models.VideoSource
	loc    string
	info   Info
	decode decodeFunc
	logger *slog.Logger

	ticks chan time.Time

	mu       sync.RWMutex
	frame    *image.RGBA
	position float64
	paused   bool
	ended    bool
	cancel   context.CancelFunc
	done     chan struct{}
	onEnd    func()
}

// Open probes src and returns a paused player.
func Open(ctx context.Context, src models.VideoSource, logger *slog.Logger) (*Player, error) {
	info, err := Probe(ctx, src)
	if err != nil {
		return nil, err
	}
	logger.Info("video opened", "source", src.Name(), "kind", src.Kind().String(),
		"width", info.Width, "height", info.Height, "fps", info.FPS, "duration", info.Duration)
	return newPlayer(src, info, ffmpegDecode, logger), nil
}

func newPlayer(src models.VideoSource, info Info, decode decodeFunc, logger *slog.Logger) *Player {
	loc, _ := src.Location()
	return &Player{
		src:    src,
		loc:    loc,
		info:   info,
		decode: decode,
		logger: logger,
		ticks:  make(chan time.Time, 1),
		paused: true,
	}
}

// Info returns the probed stream layout.
func (p *Player) Info() Info {
	return p.info
}

// OnEnd registers fn to run when playback reaches the end of the video.
func (p *Player) OnEnd(fn func()) {
	p.mu.Lock()
	p.onEnd = fn
	p.mu.Unlock()
}

// FrameTicks delivers one value per presented frame. Slow readers miss
// ticks rather than stall playback.
func (p *Player) FrameTicks() <-chan time.Time {
	return p.ticks
}

// Ready reports whether a frame is available.
func (p *Player) Ready() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.frame != nil
}

// Dimensions returns the natural size of the video, or zeros before the
// first frame is decoded.
func (p *Player) Dimensions() (int, int) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return 0, 0
	}
	b := p.frame.Bounds()
	return b.Dx(), b.Dy()
}

// CurrentTime returns the playback position in seconds.
func (p *Player) CurrentTime() float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.position
}

func (p *Player) Paused() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.paused
}

func (p *Player) Ended() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ended
}

// Snapshot returns the frame on screen and the playback position, read
// under one lock so they always match. Frames are never modified after
// being presented, so the image can be read without copying.
func (p *Player) Snapshot() (image.Image, float64, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.frame == nil {
		return nil, 0, ErrNotReady
	}
	return p.frame, p.position, nil
}

// Play starts or resumes playback. Playing an ended video restarts it.
func (p *Player) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.paused {
		return
	}
	if p.ended {
		p.ended = false
		p.position = 0
	}
	p.paused = false
	if p.cancel != nil {
		// decoder already exited on its own
		p.cancel()
	}
	p.start()
}

// Pause stops playback at the current position.
func (p *Player) Pause() {
	p.mu.Lock()
	if p.paused {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.mu.Unlock()

	p.stop()
}

// Seek moves playback to t seconds, keeping the paused state.
func (p *Player) Seek(t float64) {
	if t < 0 {
		t = 0
	}
	if p.info.Duration > 0 && t > p.info.Duration {
		t = p.info.Duration
	}

	p.stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = t
	p.ended = false
	if !p.paused {
		p.start()
	}
}

// Close stops decoding.
func (p *Player) Close() {
	p.mu.Lock()
	p.paused = true
	p.mu.Unlock()
	p.stop()
}

// start launches the decoder at the current position; mu must be held.
func (p *Player) start() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done
	go p.run(ctx, p.position, done)
}

// stop cancels the decoder and waits for it; mu must not be held.
func (p *Player) stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

func (p *Player) run(ctx context.Context, start float64, done chan struct{}) {
	defer close(done)

	w, h := p.info.Width, p.info.Height
	stream, err := p.decode(ctx, p.loc, start, w, h)
	if err != nil {
		p.logger.Error("failed to start decoder", "source", p.src.Name(), "err", err)
		p.finish(ctx, false)
		return
	}
	defer stream.Close()

	fps := p.info.FPS
	if fps <= 0 {
		fps = 30
	}
	frameDuration := time.Duration(float64(time.Second) / fps)
	began := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for i := 0; ; i++ {
		buf := make([]byte, w*h*4)
		if _, err := io.ReadFull(stream, buf); err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				p.logger.Error("decoding failed", "source", p.src.Name(), "err", err)
			}
			p.finish(ctx, true)
			return
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(time.Until(began.Add(time.Duration(i) * frameDuration)))
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		p.mu.Lock()
		p.frame = &image.RGBA{Pix: buf, Stride: 4 * w, Rect: image.Rect(0, 0, w, h)}
		p.position = start + float64(i)/fps
		p.mu.Unlock()

		select {
		case p.ticks <- time.Now():
		default:
		}
	}
}

// finish marks playback as stopped after the decoder exits on its own.
func (p *Player) finish(ctx context.Context, ended bool) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.paused = true
	p.ended = ended
	if ended && p.info.Duration > 0 {
		p.position = p.info.Duration
	}
	onEnd := p.onEnd
	p.mu.Unlock()

	if ended && onEnd != nil {
		go onEnd()
	}
}
