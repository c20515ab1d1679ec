package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bdougie/framegrab/internal/models"
)

const batchSize = 10 // Number of changes to batch before writing

// CatalogFile is the name of the JSON catalog inside its directory.
const CatalogFile = "frames.json"

var ErrNotFound = errors.New("frame not found in catalog")

// SearchQuery asks for the frames of one video closest to an embedding.
type SearchQuery struct {
	Video     string
	Embedding []float32
	ExcludeID string
	Limit     int
}

// Catalog defines the interface for recording captured frames and their
// descriptions
type Catalog interface {
	// Record adds a captured frame
	Record(ctx context.Context, rec models.FrameRecord) error

	// Describe attaches a description to a recorded frame
	Describe(ctx context.Context, id, description string) error

	// SetEmbedding attaches the image embedding of a recorded frame
	SetEmbedding(ctx context.Context, id string, embedding []float32) error

	// Remove deletes a frame; unknown ids are ignored
	Remove(ctx context.Context, id string) error

	// Search returns the most similar frames, best first
	Search(ctx context.Context, q SearchQuery) ([]models.SimilarFrame, error)

	// Flush ensures all pending changes are saved
	Flush() error

	Close() error
}

// fileCatalog keeps every record in memory and rewrites a JSON file in
// batches
type fileCatalog struct {
	mu      sync.Mutex
	path    string
	records map[string]models.FrameRecord
	dirty   int
}

// NewFileCatalog opens the JSON catalog in dir, loading existing records.
func NewFileCatalog(dir string) (*fileCatalog, error) {
	c := &fileCatalog{
		path:    filepath.Join(dir, CatalogFile),
		records: map[string]models.FrameRecord{},
	}

	data, err := os.ReadFile(c.path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read catalog '%s': %w", c.path, err)
	}
	if len(data) > 0 {
		var existing []models.FrameRecord
		if err := json.Unmarshal(data, &existing); err != nil {
			return nil, fmt.Errorf("failed to unmarshal catalog '%s': %w", c.path, err)
		}
		for _, rec := range existing {
			c.records[rec.ID] = rec
		}
	}
	return c, nil
}

func (c *fileCatalog) Record(ctx context.Context, rec models.FrameRecord) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records[rec.ID] = rec
	return c.changed()
}

func (c *fileCatalog) Describe(ctx context.Context, id, description string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return fmt.Errorf("describe %s: %w", id, ErrNotFound)
	}
	rec.Description = description
	c.records[id] = rec
	return c.changed()
}

func (c *fileCatalog) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[id]
	if !ok {
		return fmt.Errorf("set embedding %s: %w", id, ErrNotFound)
	}
	rec.Embedding = embedding
	c.records[id] = rec
	return c.changed()
}

func (c *fileCatalog) Remove(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return nil
	}
	delete(c.records, id)
	return c.changed()
}

func (c *fileCatalog) Search(ctx context.Context, q SearchQuery) ([]models.SimilarFrame, error) {
	c.mu.Lock()
	candidates := make([]models.FrameRecord, 0, len(c.records))
	for _, rec := range c.records {
		if rec.Video == q.Video {
			candidates = append(candidates, rec)
		}
	}
	c.mu.Unlock()

	return rank(candidates, q), nil
}

// Flush writes all pending changes to disk
func (c *fileCatalog) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flush()
}

func (c *fileCatalog) Close() error {
	return c.Flush()
}

// changed counts one change and writes to disk when the batch is full;
// mu must be held.
func (c *fileCatalog) changed() error {
	c.dirty++
	if c.dirty >= batchSize {
		return c.flush()
	}
	return nil
}

func (c *fileCatalog) flush() error {
	if c.dirty == 0 {
		return nil
	}

	all := make([]models.FrameRecord, 0, len(c.records))
	for _, rec := range c.records {
		all = append(all, rec)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CapturedAt.Equal(all[j].CapturedAt) {
			return all[i].CapturedAt.Before(all[j].CapturedAt)
		}
		return all[i].ID < all[j].ID
	})

	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for catalog: %w", err)
	}

	tmp := c.path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create catalog file: %w", err)
	}
	if err := json.NewEncoder(file).Encode(all); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close catalog file: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		return fmt.Errorf("failed to replace catalog: %w", err)
	}

	c.dirty = 0
	return nil
}

// nopCatalog discards everything
type nopCatalog struct{}

// NewNopCatalog returns a catalog that records nothing.
func NewNopCatalog() Catalog { return nopCatalog{} }

func (nopCatalog) Record(context.Context, models.FrameRecord) error      { return nil }
func (nopCatalog) Describe(context.Context, string, string) error        { return nil }
func (nopCatalog) SetEmbedding(context.Context, string, []float32) error { return nil }
func (nopCatalog) Remove(context.Context, string) error                  { return nil }
func (nopCatalog) Search(context.Context, SearchQuery) ([]models.SimilarFrame, error) {
	return nil, nil
}
func (nopCatalog) Flush() error { return nil }
func (nopCatalog) Close() error { return nil }
