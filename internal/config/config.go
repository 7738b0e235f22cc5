// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidSmoothingWindow is returned when SMOOTHING_WINDOW is not positive.
	ErrInvalidSmoothingWindow = errors.New("config: SMOOTHING_WINDOW must be positive")
	// ErrInvalidWorkers is returned when MAX_CONCURRENT_FRAMES is not positive.
	ErrInvalidWorkers = errors.New("config: MAX_CONCURRENT_FRAMES must be positive")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port int `env:"PORT, default=8080" json:"port"`

	// Storage settings
	TempDir   string `env:"TEMP_DIR, default=/tmp/stabilize" json:"temp_dir"`
	PublicDir string `env:"PUBLIC_DIR, default=/tmp/stabilize-public" json:"public_dir"`

	// Processing settings
	SmoothingWindow     int    `env:"SMOOTHING_WINDOW, default=30" json:"smoothing_window"`
	MaxConcurrentFrames int    `env:"MAX_CONCURRENT_FRAMES, default=4" json:"max_concurrent_frames"`
	FFmpegPath          string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`

	// Effect model endpoints. An empty endpoint leaves the effect
	// unregistered; requests for it fail with an unknown-effect error.
	RemoveBGEndpoint   string `env:"REMOVE_BG_ENDPOINT" json:"remove_bg_endpoint,omitempty"`
	ColorGradeEndpoint string `env:"COLOR_GRADE_ENDPOINT" json:"color_grade_endpoint,omitempty"`
	PortraitEndpoint   string `env:"PORTRAIT_ENDPOINT" json:"portrait_endpoint,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
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

// Load reads configuration from environment variables using go-envconfig.
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

// Validate checks that the loaded configuration is usable.
func (c *Config) Validate() error {
	if c.SmoothingWindow <= 0 {
		return ErrInvalidSmoothingWindow
	}
	if c.MaxConcurrentFrames <= 0 {
		return ErrInvalidWorkers
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, PublicDir: %s, SmoothingWindow: %d, MaxConcurrentFrames: %d, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.PublicDir,
		c.SmoothingWindow,
		c.MaxConcurrentFrames,
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
