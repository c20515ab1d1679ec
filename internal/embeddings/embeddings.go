package embeddings

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/bdougie/framegrab/internal/codec"
	"github.com/bdougie/framegrab/internal/models"
)

// Dimensions is the length of every embedding produced by the service.
const Dimensions = 4

const queueSize = 100

var (
	ErrQueueFull = errors.New("embedding queue is full, try again later")
	ErrClosed    = errors.New("embedding service closed")
)

// Result represents the result of embedding generation
type Result struct {
	ID        string
	Embedding []float32
	Error     error
}

// Work represents a unit of embedding work
type Work struct {
	ID     string
	Image  models.Image
	Result chan<- Result
}

// Service manages embedding generation and caching
type Service struct {
	numWorkers int
	workQueue  chan Work
	cache      sync.Map // frame id -> []float32
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewService creates a new embedding service with the specified number of workers
func NewService(numWorkers int) *Service {
	if numWorkers <= 0 {
		numWorkers = 4
	}

	service := &Service{
		numWorkers: numWorkers,
		workQueue:  make(chan Work, queueSize),
	}
	service.startWorkers()

	return service
}

func (s *Service) startWorkers() {
	for i := 0; i < s.numWorkers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for work := range s.workQueue {
				if cached, ok := s.Cached(work.ID); ok {
					work.Result <- Result{ID: work.ID, Embedding: cached}
					continue
				}

				embedding, err := s.generateEmbedding(context.Background(), work.Image)
				if err == nil {
					s.cache.Store(work.ID, embedding)
				}
				work.Result <- Result{
					ID:        work.ID,
					Embedding: embedding,
					Error:     err,
				}
			}
		}()
	}
}

// GetEmbedding requests an embedding for the frame asynchronously. The
// returned channel yields exactly one result.
func (s *Service) GetEmbedding(id string, img models.Image) <-chan Result {
	resultChan := make(chan Result, 1)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		resultChan <- Result{ID: id, Error: ErrClosed}
		return resultChan
	}

	select {
	case s.workQueue <- Work{ID: id, Image: img, Result: resultChan}:
	default:
		resultChan <- Result{ID: id, Error: ErrQueueFull}
	}
	return resultChan
}

// Cached returns the embedding already computed for a frame.
func (s *Service) Cached(id string) ([]float32, bool) {
	v, ok := s.cache.Load(id)
	if !ok {
		return nil, false
	}
	embedding, ok := v.([]float32)
	return embedding, ok
}

// Forget drops a deleted frame from the cache.
func (s *Service) Forget(id string) {
	s.cache.Delete(id)
}

func (s *Service) generateEmbedding(ctx context.Context, img models.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	decoded, err := codec.Decode(img)
	if err != nil {
		return nil, fmt.Errorf("generate embedding: %w", err)
	}
	return Features(decoded), nil
}

// Features summarises the colour content of img as mean red, green and blue
// plus luminance contrast, each in [0, 1].
func Features(img image.Image) []float32 {
	b := img.Bounds()
	n := float64(b.Dx() * b.Dy())
	if n == 0 {
		return make([]float32, Dimensions)
	}

	var sumR, sumG, sumB, sumL, sumL2 float64
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA()
			fr, fg, fb := float64(r)/0xffff, float64(g)/0xffff, float64(bl)/0xffff
			l := 0.299*fr + 0.587*fg + 0.114*fb
			sumR += fr
			sumG += fg
			sumB += fb
			sumL += l
			sumL2 += l * l
		}
	}

	meanL := sumL / n
	variance := sumL2/n - meanL*meanL
	if variance < 0 {
		variance = 0
	}

	return []float32{
		float32(sumR / n),
		float32(sumG / n),
		float32(sumB / n),
		float32(math.Sqrt(variance)),
	}
}

// Close shuts down the embedding service and waits for all workers to finish
func (s *Service) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.workQueue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
