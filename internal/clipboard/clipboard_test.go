package clipboard

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bdougie/framegrab/internal/models"
)

type fakeWriter struct {
	got []byte
	err error
}

func (w *fakeWriter) WriteImage(ctx context.Context, png []byte) error {
	w.got = png
	return w.err
}

func TestCopyWritesBlob(t *testing.T) {
	w := &fakeWriter{}
	err := Copy(context.Background(), w, models.Image{Blob: []byte("png"), MIMEType: "image/png"})
	assert.NoError(t, err)
	assert.Equal(t, []byte("png"), w.got)
}

func TestCopyEmptyImage(t *testing.T) {
	w := &fakeWriter{}
	assert.Error(t, Copy(context.Background(), w, models.Image{}))
	assert.Nil(t, w.got)
}

func TestCopyUnsupportedType(t *testing.T) {
	err := Copy(context.Background(), &fakeWriter{}, models.Image{Blob: []byte("x"), MIMEType: "image/webp"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestCopyPropagatesFailure(t *testing.T) {
	w := &fakeWriter{err: ErrUnavailable}
	err := Copy(context.Background(), w, models.Image{Blob: []byte("png")})
	assert.True(t, errors.Is(err, ErrUnavailable))
}
