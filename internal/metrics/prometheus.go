package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesCapturedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_frames_captured_total",
		Help: "Total number of frames captured across all videos",
	})

	CaptureErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "framegrab_capture_errors_total",
		Help: "Frame encoding failures that stopped a capture run",
	})

	FrameWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_frame_writes_total",
		Help: "Frame file writes, by result",
	}, []string{"result"})

	PendingWrites = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "framegrab_pending_writes",
		Help: "Frame writes launched and not yet finished",
	})

	DescriptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_descriptions_total",
		Help: "Description requests, by result",
	}, []string{"result"})

	DescriptionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "framegrab_description_duration_seconds",
		Help:    "Latency of description requests",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
	})

	CatalogErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "framegrab_catalog_errors_total",
		Help: "Catalog operations that failed, by operation",
	}, []string{"op"})
)
