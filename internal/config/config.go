package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

var ErrUsage = errors.New("usage: framegrab [--video path/to/video.mp4|URL] [--output output_directory]")

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"  envDefault:"framegrab.log"`

	CaptureInterval  int `env:"CAPTURE_INTERVAL"   envDefault:"30"`
	RepaintHz        int `env:"REPAINT_HZ"         envDefault:"60"`
	MaxPendingWrites int `env:"MAX_PENDING_WRITES" envDefault:"64"`

	OllamaBaseURL  string `env:"OLLAMA_BASE_URL" envDefault:"http://localhost"`
	OllamaPort     int    `env:"OLLAMA_PORT"     envDefault:"11434"`
	VisionModel    string `env:"VISION_MODEL"    envDefault:"llama3.2-vision:11b"`
	DescribePrompt string `env:"DESCRIBE_PROMPT"`

	CatalogDriver    string `env:"CATALOG_DRIVER"    envDefault:"json"`
	CatalogDir       string `env:"CATALOG_DIR"       envDefault:"output_frames"`
	SQLitePath       string `env:"SQLITE_PATH"`
	DatabaseURL      string `env:"DATABASE_URL"`
	EmbeddingWorkers int    `env:"EMBEDDING_WORKERS" envDefault:"4"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`

	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"framegrab.frames"`

	MetricsAddr    string `env:"METRICS_ADDR"`
	JaegerEndpoint string `env:"JAEGER_ENDPOINT"`

	// set from flags
	Video     string
	OutputDir string
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ParseArgs applies the --video and --output flags.
func (c *Config) ParseArgs(args []string) error {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--video", "--output":
			if i+1 >= len(args) {
				return fmt.Errorf("%s requires a value", args[i])
			}
			if args[i] == "--video" {
				c.Video = args[i+1]
			} else {
				c.OutputDir = args[i+1]
			}
			i++
		case "-h", "--help":
			return ErrUsage
		default:
			return fmt.Errorf("unknown argument %q", args[i])
		}
	}
	return nil
}

// SlogLevel maps LOG_LEVEL onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
