package job

import (
	"context"
	"log/slog"

	"github.com/framelab/stabilize-api/internal/errs"
	"github.com/framelab/stabilize-api/internal/pipeline"
)

// Runner executes a processing request to completion. It is implemented by
// pipeline.Orchestrator and faked in tests.
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// CreateJobInput contains the parameters for creating a job.
type CreateJobInput struct {
	// InputPath is the source video path.
	InputPath string
	// Effect is the processing selector.
	Effect string
	// ReferenceImagePath optionally points at a reference image.
	ReferenceImagePath string
}

// Service coordinates job persistence and pipeline execution. One job runs
// one pipeline attempt; there are no retries.
type Service struct {
	repo   Repository
	runner Runner
	logger *slog.Logger
}

// NewService creates a job Service.
func NewService(repo Repository, runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:   repo,
		runner: runner,
		logger: logger,
	}
}

// CreateJob creates a job in IN_QUEUE status and persists it.
func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (*Job, error) {
	j := New(input.InputPath, input.Effect)
	j.ReferenceImagePath = input.ReferenceImagePath

	s.logger.Info("creating new job",
		slog.String("job_id", j.ID),
		slog.String("effect", input.Effect),
		slog.String("input_path", input.InputPath),
	)

	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return j, nil
}

// GetJob retrieves a job by ID.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.FindByID(ctx, jobID)
}

// ListJobs returns all jobs.
func (s *Service) ListJobs(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// DeleteJob removes a job from the repository.
func (s *Service) DeleteJob(ctx context.Context, jobID string) error {
	return s.repo.Delete(ctx, jobID)
}

// Process runs the pipeline for an existing job and records the outcome.
// The returned job reflects the terminal state.
func (s *Service) Process(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.FindByID(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if err := j.Start(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	result, runErr := s.runner.Run(ctx, pipeline.Request{
		InputPath:          j.InputPath,
		Effect:             j.Effect,
		ReferenceImagePath: j.ReferenceImagePath,
	})

	if runErr != nil {
		kind := errs.KindOf(runErr)
		s.logger.Error("job failed",
			slog.String("job_id", j.ID),
			slog.String("error_kind", string(kind)),
			slog.String("error", runErr.Error()),
		)
		if err := j.Fail(kind, runErr.Error()); err != nil {
			return nil, err
		}
		if err := s.repo.Save(ctx, j); err != nil {
			return nil, err
		}
		return j, nil
	}

	if err := j.Complete(result.Link, result.AbsolutePath, result.RemoteURL,
		result.OutputFrames, result.SkippedFrames, result.Warnings); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	s.logger.Info("job completed",
		slog.String("job_id", j.ID),
		slog.String("link", result.Link),
		slog.Int("output_frames", result.OutputFrames),
	)

	return j, nil
}
