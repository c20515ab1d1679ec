package persist

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFrameFileName(t *testing.T) {
	tests := []struct {
		ts   float64
		want string
	}{
		{0, "frame_0_00.png"},
		{1.5, "frame_1_50.png"},
		{12.345, "frame_12_35.png"},
		{12.344, "frame_12_34.png"},
		{3.14159, "frame_3_14.png"},
		{0.29, "frame_0_29.png"},
		{596.4567, "frame_596_46.png"},
		{-2, "frame_0_00.png"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FrameFileName(tt.ts), "timestamp %v", tt.ts)
	}
}

func TestFrameFileNameCollisions(t *testing.T) {
	assert.NotEqual(t, FrameFileName(10.10), FrameFileName(10.20))
	// Timestamps inside the same hundredth share a name.
	assert.Equal(t, FrameFileName(10.101), FrameFileName(10.104))
}

func TestOpenDirectoryAndWrite(t *testing.T) {
	dir := t.TempDir()
	d, err := OpenDirectory(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Base(dir), d.Name())

	require.NoError(t, d.Write(context.Background(), "frame_1_00.png", []byte("one")))
	require.NoError(t, d.Write(context.Background(), "frame_1_00.png", []byte("two")))

	data, err := os.ReadFile(filepath.Join(dir, "frame_1_00.png"))
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestDirectoryRejectsPathNames(t *testing.T) {
	d, err := OpenDirectory(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, d.Write(context.Background(), "../escape.png", []byte("x")))
}

func TestOpenDirectoryMissing(t *testing.T) {
	_, err := OpenDirectory(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}

func TestOpenDirectoryNotAFolder(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	_, err := OpenDirectory(file)
	assert.Error(t, err)
}

func TestOpenDirectoryReadOnly(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("root ignores directory permissions")
	}
	dir := t.TempDir()
	require.NoError(t, os.Chmod(dir, 0o555))
	defer os.Chmod(dir, 0o755)

	_, err := OpenDirectory(dir)
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestGrant(t *testing.T) {
	ctx := context.Background()

	_, err := Grant(ctx, "   ", BucketConfig{})
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = Grant(ctx, "s3://frames/run1", BucketConfig{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Grant(ctx, "ftp://host/dir", BucketConfig{})
	assert.ErrorIs(t, err, ErrUnsupported)

	target, err := Grant(ctx, t.TempDir(), BucketConfig{})
	require.NoError(t, err)
	assert.IsType(t, &Directory{}, target)
}

type fakeTarget struct {
	mu      sync.Mutex
	written map[string][]byte
	release chan struct{}
	fail    bool
}

func newFakeTarget() *fakeTarget {
	return &fakeTarget{written: map[string][]byte{}}
}

func (f *fakeTarget) Name() string { return "fake" }

func (f *fakeTarget) Write(ctx context.Context, name string, blob []byte) error {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errors.New("disk full")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written[name] = blob
	return nil
}

func (f *fakeTarget) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.written)
}

func TestWriterSaveAndDrain(t *testing.T) {
	w := NewWriter(4, discardLogger())
	target := newFakeTarget()

	assert.True(t, w.Save(target, "frame_1_00.png", []byte("a")))
	assert.True(t, w.Save(target, "frame_2_00.png", []byte("b")))

	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, 2, target.count())
	assert.Equal(t, 0, w.Pending())
}

func TestWriterBoundedSet(t *testing.T) {
	w := NewWriter(1, discardLogger())
	target := newFakeTarget()
	target.release = make(chan struct{})

	assert.True(t, w.Save(target, "frame_1_00.png", []byte("a")))
	assert.False(t, w.Save(target, "frame_2_00.png", []byte("b")), "set is full")
	assert.Equal(t, 1, w.Pending())

	close(target.release)
	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, 1, target.count())
}

func TestWriterFailureIsContained(t *testing.T) {
	w := NewWriter(2, discardLogger())
	target := newFakeTarget()
	target.fail = true

	assert.True(t, w.Save(target, "frame_1_00.png", []byte("a")))
	require.NoError(t, w.Drain(context.Background()))
	assert.Equal(t, 0, target.count())
}

func TestWriterDrainTimeoutCancelsWrites(t *testing.T) {
	w := NewWriter(2, discardLogger())
	target := newFakeTarget()
	target.release = make(chan struct{})

	assert.True(t, w.Save(target, "frame_1_00.png", []byte("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Drain(ctx), context.DeadlineExceeded)
	assert.Equal(t, 0, w.Pending())
}

func TestWriterClosedRefusesWork(t *testing.T) {
	w := NewWriter(2, discardLogger())
	require.NoError(t, w.Close(context.Background()))
	assert.False(t, w.Save(newFakeTarget(), "frame_1_00.png", []byte("a")))
}
