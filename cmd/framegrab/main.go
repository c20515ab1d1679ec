package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/lmittmann/tint"

	"github.com/bdougie/framegrab/internal/analyzer"
	"github.com/bdougie/framegrab/internal/app"
	"github.com/bdougie/framegrab/internal/config"
	"github.com/bdougie/framegrab/internal/embeddings"
	"github.com/bdougie/framegrab/internal/events"
	"github.com/bdougie/framegrab/internal/metrics"
	"github.com/bdougie/framegrab/internal/persist"
	"github.com/bdougie/framegrab/internal/storage"
	"github.com/bdougie/framegrab/internal/tracing"
	"github.com/bdougie/framegrab/internal/ui"
)

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		if errors.Is(err, config.ErrUsage) {
			fmt.Println(err)
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "framegrab: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.ParseArgs(os.Args[1:]); err != nil {
		return err
	}

	// The TUI owns the terminal, so logs go to a file.
	logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	logger := slog.New(
		tint.NewHandler(logFile, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: "15:04:05",
			NoColor:    true,
		}),
	)

	if cfg.JaegerEndpoint != "" {
		tp, err := tracing.InitTracer(ctx, cfg.JaegerEndpoint)
		if err != nil {
			logger.Warn("tracing disabled", "err", err)
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				tp.Shutdown(shutdownCtx)
			}()
		}
	}

	if cfg.MetricsAddr != "" {
		metrics.StartMetricsServer(ctx, cfg.MetricsAddr, logger)
	}

	catalog, err := storage.Open(ctx, storage.Options{
		Driver:      cfg.CatalogDriver,
		Dir:         cfg.CatalogDir,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
	})
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}

	publisher, err := events.Open(cfg.RabbitMQURL, cfg.RabbitMQExchange)
	if err != nil {
		logger.Warn("frame events disabled", "err", err)
		publisher = events.NewNopPublisher()
	}

	// Descriptions degrade to the fallback text without a model.
	var describer app.Describer
	model, err := analyzer.NewAgent(ctx, analyzer.AgentConfig{
		BaseURL: cfg.OllamaBaseURL,
		Port:    cfg.OllamaPort,
		Model:   cfg.VisionModel,
	}, logger)
	if err != nil {
		logger.Warn("vision model unavailable, descriptions disabled", "err", err)
	} else {
		describer = analyzer.NewDescriber(model, cfg.DescribePrompt, logger)
	}

	ctrl := app.New(app.Options{
		Interval:         cfg.CaptureInterval,
		RepaintHz:        cfg.RepaintHz,
		MaxPendingWrites: cfg.MaxPendingWrites,
		Bucket: persist.BucketConfig{
			Endpoint:  cfg.MinIOEndpoint,
			AccessKey: cfg.MinIOAccessKey,
			SecretKey: cfg.MinIOSecretKey,
			UseSSL:    cfg.MinIOUseSSL,
		},
		Describer:  describer,
		Catalog:    catalog,
		Embeddings: embeddings.NewService(cfg.EmbeddingWorkers),
		Events:     publisher,
	}, logger)

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := ctrl.Close(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "err", err)
		}
		logger.Info("framegrab stopped")
	}()

	if cfg.OutputDir != "" {
		if err := ctrl.SelectFolder(ctx, cfg.OutputDir); err != nil {
			return fmt.Errorf("output folder: %w", err)
		}
	}
	if cfg.Video != "" {
		if err := ctrl.OpenFile(ctx, cfg.Video); err != nil {
			return err
		}
	}

	logger.Info("framegrab started", "catalog", cfg.CatalogDriver, "interval", cfg.CaptureInterval)

	m := ui.New(ctx, ctrl)
	defer m.Close()

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("run ui: %w", err)
	}
	return nil
}
