package config

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/stabilize", cfg.TempDir)
	assert.Equal(t, "/tmp/stabilize-public", cfg.PublicDir)
	assert.Equal(t, 30, cfg.SmoothingWindow)
	assert.Equal(t, 4, cfg.MaxConcurrentFrames)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("PUBLIC_DIR", "/custom/public")
	t.Setenv("SMOOTHING_WINDOW", "15")
	t.Setenv("MAX_CONCURRENT_FRAMES", "8")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("REMOVE_BG_ENDPOINT", "http://models.internal/remove-bg")
	t.Setenv("COLOR_GRADE_ENDPOINT", "http://models.internal/color-grade")
	t.Setenv("PORTRAIT_ENDPOINT", "http://models.internal/portrait")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, "/custom/public", cfg.PublicDir)
	assert.Equal(t, 15, cfg.SmoothingWindow)
	assert.Equal(t, 8, cfg.MaxConcurrentFrames)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "http://models.internal/remove-bg", cfg.RemoveBGEndpoint)
	assert.Equal(t, "http://models.internal/color-grade", cfg.ColorGradeEndpoint)
	assert.Equal(t, "http://models.internal/portrait", cfg.PortraitEndpoint)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "us-east-1", cfg.S3Region)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidIntegerValues(t *testing.T) {
	t.Setenv("PORT", "not-a-number")

	// go-envconfig returns an error when parsing fails
	_, err := Load()
	require.Error(t, err)
}

func TestLoad_InvalidSmoothingWindow(t *testing.T) {
	t.Setenv("SMOOTHING_WINDOW", "0")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidSmoothingWindow)
}

func TestLoad_InvalidWorkers(t *testing.T) {
	t.Setenv("MAX_CONCURRENT_FRAMES", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidWorkers)
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:                8080,
		TempDir:             "/tmp/test",
		PublicDir:           "/tmp/public",
		SmoothingWindow:     30,
		MaxConcurrentFrames: 4,
		AWSAccessKeyID:      "access-key",
		AWSSecretAccessKey:  "secret-key",
		S3Bucket:            "bucket",
		S3Region:            "region",
		LogFormat:           "json",
		LogLevel:            "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "access-key")
	assert.NotContains(t, str, "secret-key")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{
		LogFormat: "json",
		LogLevel:  "info",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)

	// Capture output to verify it's JSON
	var buf bytes.Buffer
	handler := slog.NewJSONHandler(&buf, nil)
	testLogger := slog.New(handler)
	testLogger.Info("test message")

	// Should have JSON structure
	assert.Contains(t, buf.String(), `"msg"`)
	assert.Contains(t, buf.String(), "test message")
}

func TestConfig_NewLogger_Text(t *testing.T) {
	cfg := &Config{
		LogFormat: "text",
		LogLevel:  "debug",
	}

	logger := cfg.NewLogger()
	require.NotNil(t, logger)
	// Just verify it returns a valid logger
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		cfg := &Config{
			SmoothingWindow:     30,
			MaxConcurrentFrames: 4,
		}
		assert.NoError(t, cfg.Validate())
	})

	t.Run("zero smoothing window", func(t *testing.T) {
		cfg := &Config{
			SmoothingWindow:     0,
			MaxConcurrentFrames: 4,
		}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidSmoothingWindow)
	})

	t.Run("zero workers", func(t *testing.T) {
		cfg := &Config{
			SmoothingWindow:     30,
			MaxConcurrentFrames: 0,
		}
		assert.ErrorIs(t, cfg.Validate(), ErrInvalidWorkers)
	})
}
