package player

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/bdougie/framegrab/internal/models"
)

const defaultProbeTimeout = 30 * time.Second

var ErrNoVideo = errors.New("no video source")

// Info describes the video stream being played.
type Info struct {
	Width    int
	Height   int
	FPS      float64
	Duration float64 // seconds, 0 when unknown
}

// Probe reads the stream layout of src with ffprobe.
func Probe(ctx context.Context, src models.VideoSource) (Info, error) {
	loc, ok := src.Location()
	if !ok {
		return Info{}, ErrNoVideo
	}

	timeout := defaultProbeTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	out, err := ffmpeg.ProbeWithTimeout(loc, timeout, ffmpeg.KwArgs{})
	if err != nil {
		return Info{}, fmt.Errorf("probe '%s': %w", loc, err)
	}
	return parseProbe([]byte(out))
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
		Duration     string `json:"duration"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbe(data []byte) (Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return Info{}, fmt.Errorf("parse probe output: %w", err)
	}

	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		if s.Width <= 0 || s.Height <= 0 {
			return Info{}, fmt.Errorf("video stream has no dimensions")
		}

		fps := parseRate(s.AvgFrameRate)
		if fps <= 0 {
			fps = parseRate(s.RFrameRate)
		}
		if fps <= 0 {
			fps = 30
		}

		duration, _ := strconv.ParseFloat(out.Format.Duration, 64)
		if duration <= 0 {
			duration, _ = strconv.ParseFloat(s.Duration, 64)
		}

		return Info{
			Width:    s.Width,
			Height:   s.Height,
			FPS:      fps,
			Duration: duration,
		}, nil
	}
	return Info{}, fmt.Errorf("no video stream found")
}

// parseRate reads ffprobe rates such as "30000/1001" or "25".
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}
