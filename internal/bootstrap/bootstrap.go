// Package bootstrap provides dependency initialization for the stabilize API.
package bootstrap

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/framelab/stabilize-api/internal/audio"
	"github.com/framelab/stabilize-api/internal/config"
	"github.com/framelab/stabilize-api/internal/effect"
	"github.com/framelab/stabilize-api/internal/job"
	"github.com/framelab/stabilize-api/internal/media"
	"github.com/framelab/stabilize-api/internal/motion"
	"github.com/framelab/stabilize-api/internal/pipeline"
	"github.com/framelab/stabilize-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	PublicDir  string
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	publisher, publicDir, err := initPublisher(cfg, logger)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.TempDir, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	codec := media.NewFFmpegCodec(cfg.FFmpegPath)
	effects := initEffects(cfg, logger)

	orchestrator := pipeline.New(codec, publisher, effects, logger, pipeline.Options{
		TempDir:      cfg.TempDir,
		Window:       cfg.SmoothingWindow,
		Workers:      cfg.MaxConcurrentFrames,
		MotionParams: motion.DefaultParams(),
		AudioProber:  audio.NewFFmpegProber(cfg.FFmpegPath),
	})

	repo := job.NewMemoryRepository()
	svc := job.NewService(repo, orchestrator, logger)

	return &Dependencies{
		JobService: svc,
		PublicDir:  publicDir,
	}, nil
}

// initPublisher creates the artifact publisher based on configuration.
func initPublisher(cfg *config.Config, logger *slog.Logger) (storage.Publisher, string, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Pub, err := storage.NewS3Publisher(cfg.PublicDir, s3Cfg)
		if err != nil {
			return nil, "", fmt.Errorf("create S3 publisher: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Pub, s3Pub.PublicDir(), nil
	}

	localPub, err := storage.NewLocalPublisher(cfg.PublicDir)
	if err != nil {
		return nil, "", fmt.Errorf("create local publisher: %w", err)
	}
	logger.Info("local publishing configured",
		slog.String("public_dir", localPub.PublicDir()),
	)
	return localPub, localPub.PublicDir(), nil
}

// initEffects registers a remote effect for each configured model endpoint.
// Stabilization is built in and needs no registration.
func initEffects(cfg *config.Config, logger *slog.Logger) *effect.Registry {
	registry := effect.NewRegistry()

	endpoints := map[string]string{
		"remove-bg":   cfg.RemoveBGEndpoint,
		"color-grade": cfg.ColorGradeEndpoint,
		"portrait":    cfg.PortraitEndpoint,
	}

	for name, url := range endpoints {
		if url == "" {
			continue
		}
		fx, err := effect.NewRemote(name, url)
		if err != nil {
			logger.Warn("skipping effect with invalid endpoint",
				slog.String("effect", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		registry.Register(fx)
		logger.Info("effect registered",
			slog.String("effect", name),
			slog.String("endpoint", url),
		)
	}

	return registry
}
