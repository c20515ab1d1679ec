package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/bdougie/framegrab/internal/embeddings"
	"github.com/bdougie/framegrab/internal/models"
)

// PostgresStorage manages interaction with PostgreSQL
type PostgresStorage struct {
	pool   *pgxpool.Pool
	videos sync.Map // video name -> id
}

// NewPostgresStorage connects to PostgreSQL and makes sure the schema exists
func NewPostgresStorage(ctx context.Context, databaseURL string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := InitSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStorage{pool: pool}, nil
}

// Close closes the database connection
func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// videoID gets an existing video entry or creates a new one
func (s *PostgresStorage) videoID(ctx context.Context, videoName string) (int, error) {
	if id, ok := s.videos.Load(videoName); ok {
		return id.(int), nil
	}

	var id int
	err := s.pool.QueryRow(ctx,
		`INSERT INTO videos (name, created_at) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		videoName, time.Now()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to get video entry: %w", err)
	}

	s.videos.Store(videoName, id)
	return id, nil
}

// Record stores a captured frame
func (s *PostgresStorage) Record(ctx context.Context, rec models.FrameRecord) error {
	videoID, err := s.videoID(ctx, rec.Video)
	if err != nil {
		return err
	}

	var embedding *pgvector.Vector
	if len(rec.Embedding) > 0 {
		v := pgvector.NewVector(rec.Embedding)
		embedding = &v
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO frames
		(id, video_id, ts_seconds, file_name, width, height, description, embedding, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		rec.ID, videoID, rec.Timestamp, rec.FileName, rec.Width, rec.Height,
		rec.Description, embedding, rec.CapturedAt)
	if err != nil {
		return fmt.Errorf("failed to store frame: %w", err)
	}
	return nil
}

// Describe stores the description of a frame
func (s *PostgresStorage) Describe(ctx context.Context, id, description string) error {
	return s.update(ctx, "describe",
		`UPDATE frames SET description = $2 WHERE id = $1`, id, description)
}

// SetEmbedding stores the image embedding of a frame
func (s *PostgresStorage) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	return s.update(ctx, "set embedding",
		`UPDATE frames SET embedding = $2 WHERE id = $1`, id, pgvector.NewVector(embedding))
}

func (s *PostgresStorage) update(ctx context.Context, op, query, id string, value any) error {
	tag, err := s.pool.Exec(ctx, query, id, value)
	if err != nil {
		return fmt.Errorf("failed to %s %s: %w", op, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

// Remove deletes a frame
func (s *PostgresStorage) Remove(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM frames WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete frame: %w", err)
	}
	return nil
}

// Flush implements the Catalog interface - no-op for Postgres as we save immediately
func (s *PostgresStorage) Flush() error {
	return nil
}

// Search finds frames of the same video with similar image content
func (s *PostgresStorage) Search(ctx context.Context, q SearchQuery) ([]models.SimilarFrame, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT f.id, f.ts_seconds, f.file_name, f.description,
		1 - (f.embedding <=> $1) AS similarity
		FROM frames f
		JOIN videos v ON f.video_id = v.id
		WHERE v.name = $2 AND f.id <> $3 AND f.embedding IS NOT NULL
		ORDER BY f.embedding <=> $1, f.ts_seconds
		LIMIT $4`,
		pgvector.NewVector(q.Embedding), q.Video, q.ExcludeID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search similar frames: %w", err)
	}
	defer rows.Close()

	var results []models.SimilarFrame
	for rows.Next() {
		var result models.SimilarFrame
		if err := rows.Scan(&result.ID, &result.Timestamp, &result.FileName,
			&result.Description, &result.Similarity); err != nil {
			return nil, fmt.Errorf("failed to scan search results: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// Get returns one frame record
func (s *PostgresStorage) Get(ctx context.Context, id string) (models.FrameRecord, error) {
	var rec models.FrameRecord
	var embedding *pgvector.Vector
	err := s.pool.QueryRow(ctx,
		`SELECT f.id, v.name, f.ts_seconds, f.file_name, f.width, f.height,
		f.description, f.embedding, f.captured_at
		FROM frames f JOIN videos v ON f.video_id = v.id
		WHERE f.id = $1`, id).Scan(&rec.ID, &rec.Video, &rec.Timestamp, &rec.FileName,
		&rec.Width, &rec.Height, &rec.Description, &embedding, &rec.CapturedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return rec, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return rec, fmt.Errorf("failed to get frame: %w", err)
	}
	if embedding != nil {
		rec.Embedding = embedding.Slice()
	}
	return rec, nil
}

// InitSchema creates the database schema if it doesn't exist
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	// Check if vector extension exists
	var exists bool
	err = conn.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')").Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check for vector extension: %w", err)
	}

	if !exists {
		_, err = conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector")
		if err != nil {
			return fmt.Errorf("failed to create vector extension: %w", err)
		}
	}

	_, err = conn.Exec(ctx, fmt.Sprintf(`
        CREATE TABLE IF NOT EXISTS videos (
            id SERIAL PRIMARY KEY,
            name VARCHAR(2048) NOT NULL,
            created_at TIMESTAMPTZ NOT NULL,
            UNIQUE(name)
        );

        CREATE TABLE IF NOT EXISTS frames (
            id TEXT PRIMARY KEY,
            video_id INTEGER REFERENCES videos(id) ON DELETE CASCADE,
            ts_seconds DOUBLE PRECISION NOT NULL,
            file_name VARCHAR(255) NOT NULL,
            width INTEGER NOT NULL,
            height INTEGER NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            embedding vector(%d),
            captured_at TIMESTAMPTZ NOT NULL
        );
    `, embeddings.Dimensions))
	if err != nil {
		return fmt.Errorf("failed to create database schema: %w", err)
	}

	_, err = conn.Exec(ctx, `
        CREATE INDEX IF NOT EXISTS idx_frames_video_id ON frames(video_id);
        CREATE INDEX IF NOT EXISTS idx_frames_embedding ON frames USING hnsw (embedding vector_cosine_ops);
    `)
	if err != nil {
		return fmt.Errorf("failed to create database indexes: %w", err)
	}

	return nil
}
