package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/bdougie/framegrab/internal/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS frames (
		id TEXT PRIMARY KEY,
		video TEXT NOT NULL,
		timestamp REAL NOT NULL,
		fileName TEXT NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		embedding TEXT,
		capturedAt REAL NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_frames_video ON frames(video);
`

// SQLiteCatalog stores frame records in a local SQLite database.
type SQLiteCatalog struct {
	db *sql.DB
}

// DefaultSQLitePath returns the default database path.
func DefaultSQLitePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "framegrab", "frames.sqlite")
}

// OpenSQLite opens or creates the catalog database at path with WAL.
// ":memory:" opens a private in-memory database.
func OpenSQLite(path string) (*SQLiteCatalog, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteCatalog{db: db}, nil
}

func (s *SQLiteCatalog) Record(ctx context.Context, rec models.FrameRecord) error {
	embedding, err := encodeEmbedding(rec.Embedding)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO frames
			(id, video, timestamp, fileName, width, height, description, embedding, capturedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.Video, rec.Timestamp, rec.FileName, rec.Width, rec.Height,
		rec.Description, embedding, unixFromTime(rec.CapturedAt))
	if err != nil {
		return fmt.Errorf("insert frame: %w", err)
	}
	return nil
}

func (s *SQLiteCatalog) Describe(ctx context.Context, id, description string) error {
	return s.update(ctx, "describe", `UPDATE frames SET description = ? WHERE id = ?`, description, id)
}

func (s *SQLiteCatalog) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	encoded, err := encodeEmbedding(embedding)
	if err != nil {
		return err
	}
	return s.update(ctx, "set embedding", `UPDATE frames SET embedding = ? WHERE id = ?`, encoded, id)
}

func (s *SQLiteCatalog) update(ctx context.Context, op, query string, value any, id string) error {
	res, err := s.db.ExecContext(ctx, query, value, id)
	if err != nil {
		return fmt.Errorf("%s %s: %w", op, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%s %s: %w", op, id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteCatalog) Remove(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM frames WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete frame: %w", err)
	}
	return nil
}

// Get returns one frame record.
func (s *SQLiteCatalog) Get(ctx context.Context, id string) (models.FrameRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, video, timestamp, fileName, width, height, description, embedding, capturedAt
		FROM frames
		WHERE id = ?
	`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return models.FrameRecord{}, fmt.Errorf("get %s: %w", id, ErrNotFound)
	}
	return rec, err
}

func (s *SQLiteCatalog) Search(ctx context.Context, q SearchQuery) ([]models.SimilarFrame, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video, timestamp, fileName, width, height, description, embedding, capturedAt
		FROM frames
		WHERE video = ? AND embedding IS NOT NULL
	`, q.Video)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var records []models.FrameRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rank(records, q), nil
}

// Flush is a no-op; every change is committed immediately.
func (s *SQLiteCatalog) Flush() error {
	return nil
}

func (s *SQLiteCatalog) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (models.FrameRecord, error) {
	var rec models.FrameRecord
	var embedding sql.NullString
	var capturedAt float64
	if err := row.Scan(&rec.ID, &rec.Video, &rec.Timestamp, &rec.FileName,
		&rec.Width, &rec.Height, &rec.Description, &embedding, &capturedAt); err != nil {
		if err == sql.ErrNoRows {
			return rec, err
		}
		return rec, fmt.Errorf("scan frame: %w", err)
	}
	rec.CapturedAt = timeFromUnix(capturedAt)
	if embedding.Valid && embedding.String != "" {
		if err := json.Unmarshal([]byte(embedding.String), &rec.Embedding); err != nil {
			return rec, fmt.Errorf("decode embedding: %w", err)
		}
	}
	return rec, nil
}

func encodeEmbedding(embedding []float32) (sql.NullString, error) {
	if len(embedding) == 0 {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(embedding)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode embedding: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
