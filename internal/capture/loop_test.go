package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/framegrab/internal/models"
	"github.com/bdougie/framegrab/internal/session"
)

type fakeSource struct {
	mu       sync.Mutex
	ready    bool
	width    int
	height   int
	position float64
	paused   bool
	ended    bool
	ticks    chan time.Time
}

func newFakeSource() *fakeSource {
	return &fakeSource{ready: true, width: 4, height: 2}
}

func (s *fakeSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *fakeSource) Dimensions() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *fakeSource) CurrentTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.position += 1.0 / 30
	return s.position
}

func (s *fakeSource) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

func (s *fakeSource) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

func (s *fakeSource) Snapshot() (image.Image, float64, error) {
	w, h := s.Dimensions()
	return image.NewRGBA(image.Rect(0, 0, w, h)), s.CurrentTime(), nil
}

type notifyingSource struct {
	*fakeSource
}

func (s notifyingSource) FrameTicks() <-chan time.Time { return s.ticks }

type recordingSink struct {
	mu     sync.Mutex
	frames []models.CapturedFrame
}

func (r *recordingSink) Captured(f models.CapturedFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recordingSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fakeEncode(img image.Image) (models.Image, error) {
	b := img.Bounds()
	return models.Image{Blob: []byte{1}, DataURL: "data:image/png;base64,AQ==", MIMEType: "image/png", Width: b.Dx(), Height: b.Dy()}, nil
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("frame-%d", n)
	}
}

func setup(t *testing.T, interval int) (*Loop, *fakeSource, *session.State, *recordingSink) {
	t.Helper()
	state := session.New(interval)
	state.LoadVideo(models.LocalVideo("clip.mp4"))
	require.NoError(t, state.SetInterval(interval))
	state.SetCapturing(true)

	src := newFakeSource()
	sink := &recordingSink{}
	loop := NewLoop(src, state, sink, discardLogger(), WithEncoder(fakeEncode), WithIDs(sequentialIDs()))
	return loop, src, state, sink
}

func stepN(ctx context.Context, l *Loop, n int) {
	for i := 0; i < n; i++ {
		l.Step(ctx)
	}
}

func TestFramesProducedEqualsTicksOverInterval(t *testing.T) {
	ctx := context.Background()
	for _, interval := range []int{1, 2, 7, 30, 60} {
		for _, ticks := range []int{0, 1, 29, 30, 59, 61, 301} {
			loop, _, state, sink := setup(t, interval)
			stepN(ctx, loop, ticks)
			want := ticks / interval
			assert.Equal(t, want, state.Snapshot().CapturedCount, "interval %d ticks %d", interval, ticks)
			assert.Equal(t, want, sink.count())
		}
	}
}

func TestThirtyFrameIntervalExample(t *testing.T) {
	loop, _, state, _ := setup(t, 30)
	stepN(context.Background(), loop, 301)
	assert.Len(t, state.Snapshot().Frames, 10)
}

func TestResetRestartsIntervalCounting(t *testing.T) {
	ctx := context.Background()
	loop, _, state, _ := setup(t, 5)

	stepN(ctx, loop, 4)
	assert.Equal(t, 0, state.Snapshot().CapturedCount)

	state.SetCapturing(false)
	assert.False(t, loop.Step(ctx), "stops when capturing is off")

	state.SetCapturing(true)
	loop.Reset()
	stepN(ctx, loop, 1)
	assert.Equal(t, 0, state.Snapshot().CapturedCount, "tick 5 overall is tick 1 of the new run")

	stepN(ctx, loop, 4)
	assert.Equal(t, 1, state.Snapshot().CapturedCount)
}

func TestNotReadyDoesNotCount(t *testing.T) {
	ctx := context.Background()
	loop, src, state, _ := setup(t, 2)
	src.ready = false

	for i := 0; i < 10; i++ {
		assert.True(t, loop.Step(ctx), "keeps rescheduling while loading")
	}
	assert.Equal(t, int64(0), loop.Elapsed())
	assert.Equal(t, 0, state.Snapshot().CapturedCount)

	src.ready = true
	stepN(ctx, loop, 2)
	assert.Equal(t, 1, state.Snapshot().CapturedCount)
}

func TestZeroDimensionsSkipFrameButKeepRunning(t *testing.T) {
	ctx := context.Background()
	loop, src, state, _ := setup(t, 1)
	src.width, src.height = 0, 0

	assert.True(t, loop.Step(ctx))
	assert.True(t, loop.Step(ctx))
	assert.Equal(t, 0, state.Snapshot().CapturedCount)
	assert.Equal(t, int64(2), loop.Elapsed())
}

func TestPausedOrEndedStopsScheduling(t *testing.T) {
	ctx := context.Background()
	loop, src, state, _ := setup(t, 1)

	src.paused = true
	assert.False(t, loop.Step(ctx))
	assert.Equal(t, 1, state.Snapshot().CapturedCount, "the tick itself still captures")
	assert.True(t, state.Capturing(), "pausing does not disable capturing")

	src.paused = false
	src.ended = true
	assert.False(t, loop.Step(ctx))
}

func TestEncodeFailureForcesCapturingOff(t *testing.T) {
	ctx := context.Background()
	loop, _, state, sink := setup(t, 1)
	loop.encode = func(image.Image) (models.Image, error) {
		return models.Image{}, errors.New("tainted canvas")
	}

	assert.False(t, loop.Step(ctx))
	assert.False(t, state.Capturing())
	assert.Equal(t, 0, state.Snapshot().CapturedCount)
	assert.Equal(t, 0, sink.count())
}

func TestIntervalChangeAppliesOnNextTick(t *testing.T) {
	ctx := context.Background()
	loop, _, state, _ := setup(t, 10)

	stepN(ctx, loop, 3)
	require.NoError(t, state.SetInterval(4))
	stepN(ctx, loop, 1)
	assert.Equal(t, 1, state.Snapshot().CapturedCount, "tick 4 is a multiple of the new interval")
}

func TestCapturedFrameFields(t *testing.T) {
	ctx := context.Background()
	loop, _, state, _ := setup(t, 1)
	stepN(ctx, loop, 2)

	frames := state.Snapshot().Frames
	require.Len(t, frames, 2)
	assert.Equal(t, "frame-2", frames[0].ID, "newest first")
	assert.Equal(t, "frame-1", frames[1].ID)
	assert.Greater(t, frames[0].Timestamp, frames[1].Timestamp)
	assert.Equal(t, 4, frames[0].Image.Width)
	assert.False(t, frames[0].Analyzing)
	assert.Empty(t, frames[0].Description)
}

// presentedSource moves playback on between the clock read and the frame
// read, as a decoder presenting the next frame would.
type presentedSource struct {
	*fakeSource
}

func (s presentedSource) CurrentTime() float64 { return 99 }

func (s presentedSource) Snapshot() (image.Image, float64, error) {
	return image.NewRGBA(image.Rect(0, 0, 4, 2)), 1.5, nil
}

func TestTimestampMatchesSnapshot(t *testing.T) {
	state := session.New(1)
	state.LoadVideo(models.LocalVideo("clip.mp4"))
	state.SetCapturing(true)
	loop := NewLoop(presentedSource{newFakeSource()}, state, nil, discardLogger(), WithEncoder(fakeEncode))

	require.True(t, loop.Step(context.Background()))
	frames := state.Snapshot().Frames
	require.Len(t, frames, 1)
	assert.Equal(t, 1.5, frames[0].Timestamp)
}

func TestDefaultIDsAreUnique(t *testing.T) {
	state := session.New(1)
	state.LoadVideo(models.LocalVideo("clip.mp4"))
	state.SetCapturing(true)
	loop := NewLoop(newFakeSource(), state, nil, discardLogger(), WithEncoder(fakeEncode))

	stepN(context.Background(), loop, 50)
	seen := map[string]bool{}
	for _, f := range state.Snapshot().Frames {
		assert.False(t, seen[f.ID])
		seen[f.ID] = true
	}
	assert.Len(t, seen, 50)
}

func TestRunUsesDecodeAlignedTicks(t *testing.T) {
	state := session.New(2)
	state.LoadVideo(models.LocalVideo("clip.mp4"))
	require.NoError(t, state.SetInterval(2))
	state.SetCapturing(true)

	src := notifyingSource{newFakeSource()}
	src.ticks = make(chan time.Time)
	loop := NewLoop(src, state, nil, discardLogger(), WithEncoder(fakeEncode))

	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	for i := 0; i < 6; i++ {
		src.ticks <- time.Now()
	}
	close(src.ticks)
	<-done

	assert.Equal(t, 3, state.Snapshot().CapturedCount)
}

func TestRunEndsWhenVideoPauses(t *testing.T) {
	state := session.New(1)
	state.LoadVideo(models.LocalVideo("clip.mp4"))
	state.SetCapturing(true)

	src := notifyingSource{newFakeSource()}
	src.ticks = make(chan time.Time, 1)
	src.paused = true
	loop := NewLoop(src, state, nil, discardLogger(), WithEncoder(fakeEncode))

	src.ticks <- time.Now()
	done := make(chan struct{})
	go func() {
		loop.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("loop kept running on a paused video")
	}
	assert.Equal(t, 1, state.Snapshot().CapturedCount)
}

func TestNewClockFallsBackToRepaint(t *testing.T) {
	c := NewClock(newFakeSource(), 1000)
	defer c.Stop()
	assert.IsType(t, &RepaintClock{}, c)

	select {
	case <-c.Ticks():
	case <-time.After(time.Second):
		t.Fatal("repaint clock did not tick")
	}
}
