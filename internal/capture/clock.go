package capture

import "time"

// DefaultRepaintHz is the tick rate of the fallback repaint clock.
const DefaultRepaintHz = 60

// Clock schedules loop invocations. Ticks closes or stops sending when the
// clock is stopped.
type Clock interface {
	Ticks() <-chan time.Time
	Stop()
}

// FrameNotifier is implemented by sources that signal each presented
// frame, which gives decode-aligned ticks.
type FrameNotifier interface {
	FrameTicks() <-chan time.Time
}

// NewClock prefers the source's decode-aligned ticks and falls back to a
// repaint clock at hz.
func NewClock(src Source, hz int) Clock {
	if n, ok := src.(FrameNotifier); ok {
		return frameClock{ticks: n.FrameTicks()}
	}
	return NewRepaintClock(hz)
}

type frameClock struct {
	ticks <-chan time.Time
}

func (c frameClock) Ticks() <-chan time.Time { return c.ticks }

// Stop does nothing; the source owns its frame channel.
func (c frameClock) Stop() {}

// RepaintClock ticks at a fixed rate independent of the video.
type RepaintClock struct {
	ticker *time.Ticker
}

func NewRepaintClock(hz int) *RepaintClock {
	if hz <= 0 {
		hz = DefaultRepaintHz
	}
	return &RepaintClock{ticker: time.NewTicker(time.Second / time.Duration(hz))}
}

func (c *RepaintClock) Ticks() <-chan time.Time { return c.ticker.C }

func (c *RepaintClock) Stop() { c.ticker.Stop() }
