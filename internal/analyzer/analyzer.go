// Package analyzer turns captured frames into one-sentence descriptions using
// a vision model.
package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bdougie/framegrab/internal/codec"
	"github.com/bdougie/framegrab/internal/metrics"
	"github.com/bdougie/framegrab/internal/models"
)

const (
	DefaultPrompt = "Describe this video frame in one concise sentence. Focus on the main action or subject."

	NoDescription = "No description generated."
	ErrorText     = "Error analyzing frame."
)

// Describer sends one frame per request to the vision model.
type Describer struct {
	model  Model
	prompt string
	logger *slog.Logger
	tracer trace.Tracer
}

func NewDescriber(model Model, prompt string, logger *slog.Logger) *Describer {
	if prompt == "" {
		prompt = DefaultPrompt
	}
	return &Describer{
		model:  model,
		prompt: prompt,
		logger: logger,
		tracer: otel.Tracer("framegrab/analyzer"),
	}
}

// Describe always returns text: the model's reply, or one of the fallback
// strings when the reply is empty or the request fails.
func (d *Describer) Describe(ctx context.Context, img models.Image) string {
	ctx, span := d.tracer.Start(ctx, "analyzer.Describe",
		trace.WithAttributes(
			attribute.Int("frame.width", img.Width),
			attribute.Int("frame.height", img.Height),
		))
	defer span.End()

	start := time.Now()
	text, err := d.ask(ctx, img)
	metrics.DescriptionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		d.logger.Error("description request failed", "err", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.DescriptionsTotal.WithLabelValues("error").Inc()
		return ErrorText
	}

	text = strings.TrimSpace(text)
	if text == "" {
		metrics.DescriptionsTotal.WithLabelValues("empty").Inc()
		return NoDescription
	}

	metrics.DescriptionsTotal.WithLabelValues("ok").Inc()
	d.logger.Debug("frame described", "chars", len(text), "duration", time.Since(start))
	return text
}

func (d *Describer) ask(ctx context.Context, img models.Image) (string, error) {
	blob := img.Blob
	if len(blob) == 0 {
		var err error
		blob, _, err = codec.BlobFromDataURL(img.DataURL)
		if err != nil {
			return "", err
		}
	}

	path, err := writeTemp(blob)
	if err != nil {
		return "", err
	}
	defer os.Remove(path)

	return d.model.Ask(ctx, d.prompt, path)
}

// writeTemp stores the image where the agent can read it by path.
func writeTemp(blob []byte) (string, error) {
	f, err := os.CreateTemp("", "framegrab-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	if _, err := f.Write(blob); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp image: %w", err)
	}
	return f.Name(), nil
}
