// Package persist writes captured frame blobs into a user-granted location.
package persist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnsupported means the host cannot provide the requested kind of target.
	ErrUnsupported = errors.New("persistence target not supported")
	// ErrPermissionDenied means the location exists but cannot be written.
	ErrPermissionDenied = errors.New("write permission denied")
	// ErrCancelled means the user backed out of the selection.
	ErrCancelled = errors.New("selection cancelled")
)

// Target is a granted, writable location for frame files.
type Target interface {
	// Name is shown to the user while the target is active.
	Name() string
	// Write creates or overwrites name with blob.
	Write(ctx context.Context, name string, blob []byte) error
}

// FrameFileName derives the file name of a frame from its playback
// timestamp. The timestamp is rounded to two decimals (nearest, on the
// exact binary value) and the decimal point becomes an underscore, so
// 12.345 gives frame_12_35.png. Captures whose rounded timestamps coincide
// share a name and overwrite each other.
func FrameFileName(timestamp float64) string {
	if timestamp < 0 || math.IsNaN(timestamp) || math.IsInf(timestamp, 0) {
		timestamp = 0
	}
	ts := strconv.FormatFloat(timestamp, 'f', 2, 64)
	return fmt.Sprintf("frame_%s.png", strings.Replace(ts, ".", "_", 1))
}
