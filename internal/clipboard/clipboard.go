// Package clipboard places captured frames on the system clipboard.
package clipboard

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.design/x/clipboard"

	"github.com/bdougie/framegrab/internal/models"
)

// ErrUnavailable is returned when the system clipboard cannot be used.
var ErrUnavailable = errors.New("clipboard is not available")

var (
	initOnce sync.Once
	initErr  error
)

// Writer puts one image on the clipboard.
type Writer interface {
	WriteImage(ctx context.Context, png []byte) error
}

type systemClipboard struct{}

// System returns the OS clipboard.
func System() Writer { return systemClipboard{} }

func (systemClipboard) WriteImage(ctx context.Context, png []byte) error {
	initOnce.Do(func() {
		initErr = clipboard.Init()
	})
	if initErr != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, initErr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// the returned channel reports when another program takes ownership
	clipboard.Write(clipboard.FmtImage, png)
	return nil
}

// Copy writes the frame's PNG blob to w as a single image item.
func Copy(ctx context.Context, w Writer, img models.Image) error {
	if len(img.Blob) == 0 {
		return fmt.Errorf("copy frame: empty image")
	}
	if img.MIMEType != "" && img.MIMEType != "image/png" {
		return fmt.Errorf("copy frame: %w: %s", ErrUnavailable, img.MIMEType)
	}
	if err := w.WriteImage(ctx, img.Blob); err != nil {
		return fmt.Errorf("copy frame: %w", err)
	}
	return nil
}
