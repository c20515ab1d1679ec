package embeddings

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bdougie/framegrab/internal/codec"
	"github.com/bdougie/framegrab/internal/models"
)

func solid(c color.Color, w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func encoded(t *testing.T, img image.Image) models.Image {
	t.Helper()
	out, err := codec.Encode(img)
	require.NoError(t, err)
	return out
}

func receive(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no embedding result")
		return Result{}
	}
}

func TestFeaturesSolidColour(t *testing.T) {
	f := Features(solid(color.RGBA{R: 255, A: 255}, 3, 3))
	require.Len(t, f, Dimensions)
	assert.InDelta(t, 1.0, f[0], 1e-6)
	assert.InDelta(t, 0.0, f[1], 1e-6)
	assert.InDelta(t, 0.0, f[2], 1e-6)
	assert.InDelta(t, 0.0, f[3], 1e-6, "no contrast in a solid frame")
}

func TestFeaturesContrast(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.Set(0, 0, color.White)
	img.Set(1, 0, color.Black)

	f := Features(img)
	assert.InDelta(t, 0.5, f[0], 1e-6)
	assert.InDelta(t, 0.5, f[3], 1e-3)
}

func TestFeaturesEmptyImage(t *testing.T) {
	assert.Equal(t, make([]float32, Dimensions), Features(image.NewRGBA(image.Rect(0, 0, 0, 0))))
}

func TestServiceComputesAndCaches(t *testing.T) {
	s := NewService(2)
	defer s.Close()

	img := encoded(t, solid(color.RGBA{B: 255, A: 255}, 2, 2))
	r := receive(t, s.GetEmbedding("frame-1", img))
	require.NoError(t, r.Error)
	assert.Equal(t, "frame-1", r.ID)
	assert.InDelta(t, 1.0, r.Embedding[2], 1e-6)

	cached, ok := s.Cached("frame-1")
	require.True(t, ok)
	assert.Equal(t, r.Embedding, cached)

	// cached result wins even for a different image under the same id
	r = receive(t, s.GetEmbedding("frame-1", encoded(t, solid(color.White, 2, 2))))
	assert.Equal(t, cached, r.Embedding)

	s.Forget("frame-1")
	_, ok = s.Cached("frame-1")
	assert.False(t, ok)
}

func TestServiceBadImage(t *testing.T) {
	s := NewService(1)
	defer s.Close()

	r := receive(t, s.GetEmbedding("broken", models.Image{Blob: []byte("nope")}))
	assert.Error(t, r.Error)
	_, ok := s.Cached("broken")
	assert.False(t, ok)
}

func TestServiceClosed(t *testing.T) {
	s := NewService(1)
	s.Close()
	s.Close()

	r := receive(t, s.GetEmbedding("late", models.Image{}))
	assert.ErrorIs(t, r.Error, ErrClosed)
}
