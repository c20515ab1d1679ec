package player

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// decodeFunc streams raw RGBA frames of w x h starting at start seconds.
type decodeFunc func(ctx context.Context, loc string, start float64, w, h int) (io.ReadCloser, error)

type ffmpegStream struct {
	*io.PipeReader
	stop func()
}

func (s *ffmpegStream) Close() error {
	s.stop()
	return s.PipeReader.Close()
}

// ffmpegDecode runs ffmpeg with rawvideo output on a pipe. The process is
// killed when ctx ends or the stream is closed.
func ffmpegDecode(ctx context.Context, loc string, start float64, w, h int) (io.ReadCloser, error) {
	pr, pw := io.Pipe()

	input := ffmpeg.KwArgs{}
	if start > 0 {
		input["ss"] = strconv.FormatFloat(start, 'f', 3, 64)
	}

	var stderr bytes.Buffer
	cmd := ffmpeg.Input(loc, input).
		Output("pipe:", ffmpeg.KwArgs{
			"format":  "rawvideo",
			"pix_fmt": "rgba",
			"s":       fmt.Sprintf("%dx%d", w, h),
		}).
		WithOutput(pw).
		WithErrorOutput(&stderr).
		Compile()

	if err := cmd.Start(); err != nil {
		pw.Close()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	exited := make(chan struct{})
	go func() {
		err := cmd.Wait()
		if err != nil && ctx.Err() == nil {
			err = fmt.Errorf("ffmpeg failed: %w\nOutput: %s", err, strings.TrimSpace(stderr.String()))
		}
		pw.CloseWithError(err)
		close(exited)
	}()

	stopCtx, stop := context.WithCancel(ctx)
	go func() {
		select {
		case <-stopCtx.Done():
			cmd.Process.Kill()
		case <-exited:
		}
	}()

	return &ffmpegStream{PipeReader: pr, stop: stop}, nil
}
