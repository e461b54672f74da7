// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/clipstitch/internal/media"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidFrameSize is returned when FRAME_WIDTH or FRAME_HEIGHT is not positive and even.
	ErrInvalidFrameSize = errors.New("config: FRAME_WIDTH and FRAME_HEIGHT must be positive even numbers")
	// ErrInvalidFrameRate is returned when FRAME_RATE is not positive.
	ErrInvalidFrameRate = errors.New("config: FRAME_RATE must be positive")
	// ErrInvalidStillDuration is returned when STILL_DURATION_SEC is not positive.
	ErrInvalidStillDuration = errors.New("config: STILL_DURATION_SEC must be positive")
	// ErrInvalidConcurrency is returned when a concurrency limit is not positive.
	ErrInvalidConcurrency = errors.New("config: MAX_CONCURRENT_JOBS and COMPOSE_CONCURRENCY must be positive")
	// ErrInvalidThumbnailSize is returned when a thumbnail setting is not positive.
	ErrInvalidThumbnailSize = errors.New("config: MIN_THUMB_WIDTH and THUMB_MAX_SIZE must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	ScratchDir string `env:"SCRATCH_DIR, default=/tmp/clipstitch" json:"scratch_dir"`
	OutputDir  string `env:"OUTPUT_DIR, default=/tmp/clipstitch/out" json:"output_dir"`
	DBPath     string `env:"DB_PATH" json:"db_path,omitempty"` // Empty keeps jobs in memory

	// Tool paths, resolved through PATH when empty
	FFmpegPath  string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Composition settings
	StillDurationSec   float64 `env:"STILL_DURATION_SEC, default=3" json:"still_duration_sec"`
	FrameWidth         int     `env:"FRAME_WIDTH, default=1280" json:"frame_width"`
	FrameHeight        int     `env:"FRAME_HEIGHT, default=720" json:"frame_height"`
	FrameRate          int     `env:"FRAME_RATE, default=30" json:"frame_rate"`
	ComposeConcurrency int     `env:"COMPOSE_CONCURRENCY, default=4" json:"compose_concurrency"`

	// Export settings
	ProgressIntervalMs int `env:"PROGRESS_INTERVAL_MS, default=100" json:"progress_interval_ms"`
	MaxConcurrentJobs  int `env:"MAX_CONCURRENT_JOBS, default=3" json:"max_concurrent_jobs"`

	// Thumbnail settings
	MinThumbWidth int `env:"MIN_THUMB_WIDTH, default=40" json:"min_thumb_width"`
	ThumbMaxSize  int `env:"THUMB_MAX_SIZE, default=100" json:"thumb_max_size"`

	// Optional S3 settings for publishing exports
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidPort
	}
	// yuv420p needs even dimensions.
	if c.FrameWidth <= 0 || c.FrameHeight <= 0 || c.FrameWidth%2 != 0 || c.FrameHeight%2 != 0 {
		return ErrInvalidFrameSize
	}
	if c.FrameRate <= 0 {
		return ErrInvalidFrameRate
	}
	if c.StillDurationSec <= 0 {
		return ErrInvalidStillDuration
	}
	if c.MaxConcurrentJobs <= 0 || c.ComposeConcurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MinThumbWidth <= 0 || c.ThumbMaxSize <= 0 {
		return ErrInvalidThumbnailSize
	}
	return nil
}

// StillDuration is how long each still plays.
func (c *Config) StillDuration() media.Time {
	return media.FromSeconds(c.StillDurationSec)
}

// FrameSize is the render size of synthesized stills and exports.
func (c *Config) FrameSize() image.Point {
	return image.Pt(c.FrameWidth, c.FrameHeight)
}

// ProgressInterval is how often export progress is sampled.
func (c *Config) ProgressInterval() time.Duration {
	return time.Duration(c.ProgressIntervalMs) * time.Millisecond
}

// NewLogger creates a structured logger writing to stdout.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo creates a structured logger writing to w.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, ScratchDir: %s, OutputDir: %s, DBPath: %s, Frame: %dx%d@%d, StillDurationSec: %g, MaxConcurrentJobs: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.ScratchDir,
		c.OutputDir,
		c.DBPath,
		c.FrameWidth,
		c.FrameHeight,
		c.FrameRate,
		c.StillDurationSec,
		c.MaxConcurrentJobs,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
