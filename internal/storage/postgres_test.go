package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func TestPostgresCatalog(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx,
		"pgvector/pgvector:pg16",
		tcpostgres.WithDatabase("frames"),
		tcpostgres.WithUsername("framegrab"),
		tcpostgres.WithPassword("framegrab"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	defer container.Terminate(ctx)

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	c, err := NewPostgresStorage(ctx, connStr)
	require.NoError(t, err)
	defer c.Close()

	exerciseCatalog(t, c)

	rec, err := c.Get(ctx, "e")
	require.NoError(t, err)
	assert.Equal(t, "bunny", rec.Video)
	assert.Equal(t, []float32{1, 0, 0, 0}, rec.Embedding)

	// schema creation is idempotent
	again, err := NewPostgresStorage(ctx, connStr)
	require.NoError(t, err)
	again.Close()
}
