// Package job provides the Job aggregate for video processing requests.
// It includes the Job entity with state machine transitions, repository
// interfaces for persistence, and the service orchestrating job execution.
package job

import (
	"errors"
	"sync"
	"time"

	"github.com/framelab/stabilize-api/internal/errs"
	"github.com/framelab/stabilize-api/internal/job/id"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusInQueue indicates the job is accepted but not yet processing.
	StatusInQueue Status = "IN_QUEUE"
	// StatusRunning indicates the job is being processed.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the job finished successfully.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the job encountered an error during execution.
	StatusFailed Status = "FAILED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusInQueue:   {StatusRunning, StatusFailed},
	StatusRunning:   {StatusCompleted, StatusFailed},
	StatusCompleted: {},
	StatusFailed:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Job represents a video processing job aggregate. All state for one request
// lives here; jobs never share mutable state with each other.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this job.
	ID string
	// Status is the current job state.
	Status Status
	// Effect is the processing selector (stabilize, remove-bg, ...).
	Effect string
	// InputPath is the source video path.
	InputPath string
	// ReferenceImagePath is an optional reference image for effects that
	// condition on one.
	ReferenceImagePath string
	// Link is the download path of the published artifact.
	Link string
	// OutputPath is the absolute path of the published artifact.
	OutputPath string
	// RemoteURL is the S3 URL when remote upload is configured.
	RemoteURL string
	// OutputFrames is the number of frames in the published video.
	OutputFrames int
	// SkippedFrames lists source frame indices dropped during processing.
	SkippedFrames []int
	// Warnings carries recovered, non-fatal conditions.
	Warnings []string
	// Error contains the failure message if the job failed.
	Error string
	// ErrorKind categorizes the failure for programmatic handling.
	ErrorKind errs.Kind
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when processing started.
	StartedAt time.Time
	// CompletedAt is when processing finished.
	CompletedAt time.Time
}

// New creates a new Job with a generated ID and initial IN_QUEUE status.
func New(inputPath, effect string) *Job {
	now := time.Now()
	return &Job{
		ID:        id.Generate(),
		Status:    StatusInQueue,
		Effect:    effect,
		InputPath: inputPath,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewWithID creates a new Job with the specified ID and initial IN_QUEUE
// status. Useful for testing or when the ID is externally generated.
func NewWithID(jobID, inputPath, effect string) *Job {
	j := New(inputPath, effect)
	j.ID = jobID
	return j
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	// Set timestamps based on state
	switch status {
	case StatusRunning:
		j.StartedAt = j.UpdatedAt
	case StatusCompleted, StatusFailed:
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// Start transitions the job from IN_QUEUE to RUNNING.
func (j *Job) Start() error {
	return j.TransitionTo(StatusRunning)
}

// Complete records the published artifact and transitions to COMPLETED.
func (j *Job) Complete(link, outputPath, remoteURL string, outputFrames int, skipped []int, warnings []string) error {
	j.mu.Lock()
	j.Link = link
	j.OutputPath = outputPath
	j.RemoteURL = remoteURL
	j.OutputFrames = outputFrames
	j.SkippedFrames = append([]int(nil), skipped...)
	j.Warnings = append([]string(nil), warnings...)
	j.mu.Unlock()
	return j.TransitionTo(StatusCompleted)
}

// Fail records the failure and transitions to FAILED.
func (j *Job) Fail(kind errs.Kind, errMsg string) error {
	j.mu.Lock()
	j.Error = errMsg
	j.ErrorKind = kind
	j.mu.Unlock()
	return j.TransitionTo(StatusFailed)
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusCompleted || j.Status == StatusFailed
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:                 j.ID,
		Status:             j.Status,
		Effect:             j.Effect,
		InputPath:          j.InputPath,
		ReferenceImagePath: j.ReferenceImagePath,
		Link:               j.Link,
		OutputPath:         j.OutputPath,
		RemoteURL:          j.RemoteURL,
		OutputFrames:       j.OutputFrames,
		SkippedFrames:      append([]int(nil), j.SkippedFrames...),
		Warnings:           append([]string(nil), j.Warnings...),
		Error:              j.Error,
		ErrorKind:          j.ErrorKind,
		CreatedAt:          j.CreatedAt,
		UpdatedAt:          j.UpdatedAt,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
	}
}
