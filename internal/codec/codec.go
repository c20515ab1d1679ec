// Package codec converts frame snapshots to the PNG representations kept for
// each captured frame.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/bdougie/framegrab/internal/models"
)

// MIMEType is the encoding tag of every captured frame.
const MIMEType = "image/png"

const dataURLPrefix = "data:" + MIMEType + ";base64,"

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// Encode renders img losslessly and returns both the blob and data URL forms.
func Encode(img image.Image) (models.Image, error) {
	if img == nil {
		return models.Image{}, fmt.Errorf("encode frame: nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return models.Image{}, fmt.Errorf("encode frame: empty bounds %v", b)
	}

	var buf bytes.Buffer
	if err := encoder.Encode(&buf, img); err != nil {
		return models.Image{}, fmt.Errorf("encode frame: %w", err)
	}
	blob := buf.Bytes()

	return models.Image{
		DataURL:  dataURLPrefix + base64.StdEncoding.EncodeToString(blob),
		Blob:     blob,
		MIMEType: MIMEType,
		Width:    b.Dx(),
		Height:   b.Dy(),
	}, nil
}

// Decode turns the blob form back into pixels.
func Decode(img models.Image) (image.Image, error) {
	decoded, err := png.Decode(bytes.NewReader(img.Blob))
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return decoded, nil
}

// BlobFromDataURL recovers the binary form from a data URL.
func BlobFromDataURL(dataURL string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(dataURL, ",")
	if !ok || !strings.HasPrefix(header, "data:") || !strings.HasSuffix(header, ";base64") {
		return nil, "", fmt.Errorf("malformed data url")
	}
	mime := strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
	if mime == "" {
		mime = MIMEType
	}
	blob, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data url: %w", err)
	}
	return blob, mime, nil
}
