// Package app coordinates the session state, the player, the capture loop
// and the side channels that react to captured frames.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bdougie/framegrab/internal/analyzer"
	"github.com/bdougie/framegrab/internal/capture"
	"github.com/bdougie/framegrab/internal/clipboard"
	"github.com/bdougie/framegrab/internal/embeddings"
	"github.com/bdougie/framegrab/internal/events"
	"github.com/bdougie/framegrab/internal/metrics"
	"github.com/bdougie/framegrab/internal/models"
	"github.com/bdougie/framegrab/internal/persist"
	"github.com/bdougie/framegrab/internal/session"
	"github.com/bdougie/framegrab/internal/storage"
)

const (
	// SeekStep is how far the seek keys move playback, in seconds.
	SeekStep = 5.0

	similarLimit = 5
)

var ErrFrameNotFound = errors.New("frame not found")

var timeNow = time.Now

// Describer produces the description text for one frame.
type Describer interface {
	Describe(ctx context.Context, img models.Image) string
}

// Embedder computes image embeddings in the background.
type Embedder interface {
	GetEmbedding(id string, img models.Image) <-chan embeddings.Result
	Forget(id string)
	Close()
}

type Options struct {
	Interval         int
	RepaintHz        int
	MaxPendingWrites int
	Bucket           persist.BucketConfig

	Open       Opener
	Describer  Describer // nil when no vision model is reachable
	Catalog    storage.Catalog
	Embeddings Embedder
	Events     events.Publisher
	Clipboard  clipboard.Writer
}

// Controller turns user intents into state changes. It is the capture sink.
type Controller struct {
	state  *session.State
	opts   Options
	logger *slog.Logger

	writes *persist.Writer // frame files
	tasks  *persist.Writer // catalog and events

	// last catalog task queued per frame id
	chainMu sync.Mutex
	chains  map[string]chan struct{}

	ctx        context.Context
	cancel     context.CancelFunc
	describing sync.WaitGroup

	mu       sync.Mutex
	player   Player
	loop     *capture.Loop
	loopStop context.CancelFunc
	loopDone chan struct{}
}

func New(opts Options, logger *slog.Logger) *Controller {
	if opts.Open == nil {
		opts.Open = OpenPlayer
	}
	if opts.Catalog == nil {
		opts.Catalog = storage.NewNopCatalog()
	}
	if opts.Embeddings == nil {
		opts.Embeddings = embeddings.NewService(0)
	}
	if opts.Events == nil {
		opts.Events = events.NewNopPublisher()
	}
	if opts.Clipboard == nil {
		opts.Clipboard = clipboard.System()
	}
	if opts.MaxPendingWrites <= 0 {
		opts.MaxPendingWrites = persist.DefaultMaxPending
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:  session.New(opts.Interval),
		opts:   opts,
		logger: logger,
		writes: persist.NewWriter(opts.MaxPendingWrites, logger),
		tasks:  persist.NewWriter(opts.MaxPendingWrites, logger),
		chains: make(map[string]chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
}

// State exposes the session for rendering and subscriptions.
func (c *Controller) State() *session.State {
	return c.state
}

// OpenFile loads a local path or an http(s) URL.
func (c *Controller) OpenFile(ctx context.Context, location string) error {
	src := models.ParseVideoSource(location)
	if _, ok := src.Location(); !ok {
		return session.ErrNoVideo
	}
	return c.load(ctx, src)
}

// LoadSample loads the hosted sample video.
func (c *Controller) LoadSample(ctx context.Context) error {
	return c.load(ctx, models.RemoteVideo(models.SampleVideoURL))
}

// load opens src and swaps it in. The previous video stays loaded if src
// cannot be opened.
func (c *Controller) load(ctx context.Context, src models.VideoSource) error {
	p, err := c.opts.Open(ctx, src, c.logger)
	if err != nil {
		return fmt.Errorf("open %s: %w", src.Name(), err)
	}

	c.stopLoop()

	c.mu.Lock()
	old := c.player
	c.player = p
	c.loop = capture.NewLoop(p, c.state, c, c.logger, capture.WithRepaintHz(c.opts.RepaintHz))
	c.mu.Unlock()

	if old != nil {
		old.Close()
	}
	p.OnEnd(c.stopLoop)
	c.state.LoadVideo(src)

	c.logger.Info("video loaded", "source", src.Name(), "kind", src.Kind().String())
	return nil
}

// ToggleCapture switches capturing. Enabling restarts interval counting and
// starts playback; disabling stops the loop and pauses the video.
func (c *Controller) ToggleCapture() error {
	c.mu.Lock()
	p, loop := c.player, c.loop
	c.mu.Unlock()
	if p == nil {
		return session.ErrNoVideo
	}

	on := !c.state.Capturing()
	c.state.SetCapturing(on)

	if on {
		c.stopLoop()
		loop.Reset()
		if p.Paused() {
			p.Play()
		}
		c.startLoop()
		c.logger.Info("capture started", "interval", c.state.Interval())
		return nil
	}

	c.stopLoop()
	p.Pause()
	c.logger.Info("capture stopped", "captured", c.state.Snapshot().CapturedCount)
	return nil
}

// TogglePlayback plays or pauses. Resuming while capturing restarts the
// loop without resetting its counter.
func (c *Controller) TogglePlayback() error {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	if p == nil {
		return session.ErrNoVideo
	}

	if p.Paused() {
		p.Play()
		if c.state.Capturing() {
			c.startLoop()
		}
		return nil
	}

	c.stopLoop()
	p.Pause()
	return nil
}

// Seek moves playback by delta seconds. The capture counter continues.
func (c *Controller) Seek(delta float64) error {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	if p == nil {
		return session.ErrNoVideo
	}
	p.Seek(p.CurrentTime() + delta)
	return nil
}

func (c *Controller) SetInterval(n int) error {
	return c.state.SetInterval(n)
}

// SelectFolder grants a persistence target. An empty location means the
// user cancelled and is not an error.
func (c *Controller) SelectFolder(ctx context.Context, location string) error {
	if c.state.Capturing() {
		return session.ErrCaptureActive
	}

	target, err := persist.Grant(ctx, location, c.opts.Bucket)
	if errors.Is(err, persist.ErrCancelled) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := c.state.SetTarget(target); err != nil {
		return err
	}

	c.logger.Info("saving frames", "target", target.Name())
	return nil
}

func (c *Controller) ClearFolder() error {
	return c.state.ClearTarget()
}

// DeleteFrame removes a frame from the gallery and the catalog. Unknown ids
// are ignored.
func (c *Controller) DeleteFrame(id string) bool {
	if !c.state.DeleteFrame(id) {
		return false
	}
	c.opts.Embeddings.Forget(id)

	video := c.state.Video().Name()
	c.frameTask(id, "catalog remove "+id, func(ctx context.Context) error {
		if err := c.opts.Catalog.Remove(ctx, id); err != nil {
			metrics.CatalogErrorsTotal.WithLabelValues("remove").Inc()
			return err
		}
		return c.opts.Events.Publish(ctx, events.RoutingDeleted, events.FrameMessage{
			FrameID:    id,
			Video:      video,
			OccurredAt: timeNow().UTC(),
		})
	})
	return true
}

// Describe requests a description for a frame in the background. It reports
// false when the frame is unknown, already being analysed or described.
func (c *Controller) Describe(id string) bool {
	f, ok := c.state.BeginAnalysis(id)
	if !ok {
		return false
	}

	c.describing.Add(1)
	go func() {
		defer c.describing.Done()

		text := analyzer.ErrorText
		if c.opts.Describer != nil {
			text = c.opts.Describer.Describe(c.ctx, f.Image)
		}
		if !c.state.CompleteAnalysis(id, text) {
			// deleted while in flight
			return
		}

		video := c.state.Video().Name()
		c.frameTask(id, "catalog describe "+id, func(ctx context.Context) error {
			if err := c.opts.Catalog.Describe(ctx, id, text); err != nil {
				metrics.CatalogErrorsTotal.WithLabelValues("describe").Inc()
				return err
			}
			return c.opts.Events.Publish(ctx, events.RoutingDescribed, events.FrameMessage{
				FrameID:     id,
				Video:       video,
				Timestamp:   f.Timestamp,
				Description: text,
				OccurredAt:  timeNow().UTC(),
			})
		})
	}()
	return true
}

// Copy puts a frame on the clipboard.
func (c *Controller) Copy(ctx context.Context, id string) error {
	f, ok := c.state.Frame(id)
	if !ok {
		return ErrFrameNotFound
	}
	return clipboard.Copy(ctx, c.opts.Clipboard, f.Image)
}

// SearchSimilar returns the catalogued frames of the current video that look
// most like the given frame.
func (c *Controller) SearchSimilar(ctx context.Context, id string) ([]models.SimilarFrame, error) {
	f, ok := c.state.Frame(id)
	if !ok {
		return nil, ErrFrameNotFound
	}

	var res embeddings.Result
	select {
	case res = <-c.opts.Embeddings.GetEmbedding(id, f.Image):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Error != nil {
		return nil, fmt.Errorf("embed frame: %w", res.Error)
	}

	results, err := c.opts.Catalog.Search(ctx, storage.SearchQuery{
		Video:     c.state.Video().Name(),
		Embedding: res.Embedding,
		ExcludeID: id,
		Limit:     similarLimit,
	})
	if err != nil {
		metrics.CatalogErrorsTotal.WithLabelValues("search").Inc()
		return nil, err
	}
	return results, nil
}

// Playback reports the player state.
func (c *Controller) Playback() Playback {
	c.mu.Lock()
	p := c.player
	c.mu.Unlock()
	if p == nil {
		return Playback{}
	}

	w, h := p.Dimensions()
	return Playback{
		Loaded:   true,
		Paused:   p.Paused(),
		Ended:    p.Ended(),
		Position: p.CurrentTime(),
		Duration: p.Info().Duration,
		Width:    w,
		Height:   h,
	}
}

// PendingWrites is the number of frame files still being written.
func (c *Controller) PendingWrites() int {
	return c.writes.Pending()
}

// Close stops capture and playback, then waits for in-flight descriptions
// and writes until ctx ends.
func (c *Controller) Close(ctx context.Context) error {
	c.state.SetCapturing(false)
	c.stopLoop()

	c.mu.Lock()
	p := c.player
	c.player, c.loop = nil, nil
	c.mu.Unlock()
	if p != nil {
		p.Close()
	}

	var errs []error
	if err := c.waitDescriptions(ctx); err != nil {
		errs = append(errs, fmt.Errorf("descriptions: %w", err))
	}
	if err := c.writes.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("frame writes: %w", err))
	}
	if err := c.tasks.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("background tasks: %w", err))
	}
	c.cancel()

	c.opts.Embeddings.Close()
	if err := c.opts.Catalog.Close(); err != nil {
		errs = append(errs, fmt.Errorf("catalog: %w", err))
	}
	if err := c.opts.Events.Close(); err != nil {
		errs = append(errs, fmt.Errorf("events: %w", err))
	}
	return errors.Join(errs...)
}

func (c *Controller) waitDescriptions(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.describing.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.cancel()
		<-done
		return ctx.Err()
	}
}

// startLoop runs the capture loop unless it is already running.
func (c *Controller) startLoop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loop == nil {
		return
	}
	if c.loopDone != nil {
		select {
		case <-c.loopDone:
		default:
			return
		}
	}

	ctx, cancel := context.WithCancel(c.ctx)
	done := make(chan struct{})
	c.loopStop, c.loopDone = cancel, done

	loop := c.loop
	go func() {
		defer close(done)
		loop.Run(ctx)
	}()
}

// stopLoop cancels the capture loop and waits for it to return.
func (c *Controller) stopLoop() {
	c.mu.Lock()
	stop, done := c.loopStop, c.loopDone
	c.loopStop, c.loopDone = nil, nil
	c.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}
}

// frameTask runs fn as a background task once every task queued earlier for
// the same frame has finished, so a frame is recorded before it is
// described or removed.
func (c *Controller) frameTask(id, task string, fn func(ctx context.Context) error) {
	done := make(chan struct{})

	c.chainMu.Lock()
	prev := c.chains[id]
	c.chains[id] = done
	c.chainMu.Unlock()

	finish := func() {
		close(done)
		c.chainMu.Lock()
		if c.chains[id] == done {
			delete(c.chains, id)
		}
		c.chainMu.Unlock()
	}

	launched := c.tasks.Go(task, func(ctx context.Context) error {
		defer finish()
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return fn(ctx)
	})
	if !launched {
		finish()
	}
}

// Captured handles a frame appended by the capture loop. Nothing here
// blocks the loop.
func (c *Controller) Captured(f models.CapturedFrame) {
	name := persist.FrameFileName(f.Timestamp)
	targetName := ""
	if target, ok := c.state.Target(); ok {
		targetName = target.Name()
		c.writes.Save(target, name, f.Image.Blob)
	}

	rec := models.FrameRecord{
		ID:         f.ID,
		Video:      c.state.Video().Name(),
		Timestamp:  f.Timestamp,
		FileName:   name,
		Width:      f.Image.Width,
		Height:     f.Image.Height,
		CapturedAt: timeNow(),
	}

	c.frameTask(f.ID, "catalog record "+f.ID, func(ctx context.Context) error {
		if err := c.opts.Catalog.Record(ctx, rec); err != nil {
			metrics.CatalogErrorsTotal.WithLabelValues("record").Inc()
			return err
		}

		var res embeddings.Result
		select {
		case res = <-c.opts.Embeddings.GetEmbedding(f.ID, f.Image):
		case <-ctx.Done():
			return ctx.Err()
		}
		if res.Error != nil {
			return fmt.Errorf("embed frame: %w", res.Error)
		}
		if err := c.opts.Catalog.SetEmbedding(ctx, f.ID, res.Embedding); err != nil {
			metrics.CatalogErrorsTotal.WithLabelValues("embedding").Inc()
			return err
		}
		return nil
	})

	c.frameTask(f.ID, "publish "+f.ID, func(ctx context.Context) error {
		return c.opts.Events.Publish(ctx, events.RoutingCaptured, events.NewFrameMessage(rec, targetName))
	})
}
