package persist

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/bdougie/framegrab/internal/metrics"
)

// DefaultMaxPending bounds the tasks a Writer keeps in flight.
const DefaultMaxPending = 64

// Writer launches frame writes and other side-channel tasks without making
// the caller wait. In-flight tasks are tracked in a bounded set so shutdown
// can await them. A task that fails is logged and never retried.
type Writer struct {
	group  *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu      sync.Mutex
	pending int
	closed  bool
}

// NewWriter creates a writer allowing at most maxPending concurrent tasks.
func NewWriter(maxPending int, logger *slog.Logger) *Writer {
	if maxPending <= 0 {
		maxPending = DefaultMaxPending
	}
	g := &errgroup.Group{}
	g.SetLimit(maxPending)

	ctx, cancel := context.WithCancel(context.Background())
	return &Writer{
		group:  g,
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Save starts writing blob under name into target and returns immediately.
// It reports false when the write could not be launched.
func (w *Writer) Save(target Target, name string, blob []byte) bool {
	launched := w.Go("save "+name, func(ctx context.Context) error {
		if err := target.Write(ctx, name, blob); err != nil {
			w.logger.Error("auto-save failed for frame", "file", name, "target", target.Name(), "err", err)
			metrics.FrameWritesTotal.WithLabelValues("failed").Inc()
			return nil
		}
		w.logger.Debug("frame saved", "file", name, "target", target.Name())
		metrics.FrameWritesTotal.WithLabelValues("ok").Inc()
		return nil
	})
	if !launched {
		metrics.FrameWritesTotal.WithLabelValues("dropped").Inc()
	}
	return launched
}

// Go runs fn in the tracked set. It reports false when the set is full or
// the writer is closed; fn is then not run. A returned error is logged.
func (w *Writer) Go(task string, fn func(ctx context.Context) error) bool {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		w.logger.Warn("writer closed, task dropped", "task", task)
		return false
	}
	w.pending++
	w.mu.Unlock()
	metrics.PendingWrites.Inc()

	launched := w.group.TryGo(func() error {
		defer w.add(-1)
		if err := fn(w.ctx); err != nil {
			w.logger.Error("background task failed", "task", task, "err", err)
		}
		return nil
	})
	if !launched {
		w.add(-1)
		w.logger.Warn("too many pending tasks, task dropped", "task", task)
	}
	return launched
}

func (w *Writer) add(n int) {
	w.mu.Lock()
	w.pending += n
	w.mu.Unlock()
	metrics.PendingWrites.Add(float64(n))
}

// Pending returns the number of tasks still in flight.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.pending
}

// Drain waits for in-flight tasks. If ctx ends first the remaining tasks
// are cancelled and ctx's error is returned.
func (w *Writer) Drain(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		w.group.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		w.cancel()
		<-finished
		return ctx.Err()
	}
}

// Close refuses new tasks and drains outstanding ones.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	err := w.Drain(ctx)
	w.cancel()
	return err
}
