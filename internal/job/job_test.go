package job

import (
	"testing"
	"time"

	"github.com/framelab/stabilize-api/internal/errs"
)

func TestNew(t *testing.T) {
	job := New("/videos/clip.mp4", "stabilize")

	if job.ID == "" {
		t.Error("expected job to have an ID")
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
	if job.InputPath != "/videos/clip.mp4" {
		t.Errorf("expected input path to be set, got %q", job.InputPath)
	}
	if job.Effect != "stabilize" {
		t.Errorf("expected effect to be set, got %q", job.Effect)
	}
	if job.CreatedAt.IsZero() {
		t.Error("expected CreatedAt to be set")
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}
}

func TestNewWithID(t *testing.T) {
	id := "test-job-123"
	job := NewWithID(id, "/videos/clip.mp4", "remove-bg")

	if job.ID != id {
		t.Errorf("expected ID %s, got %s", id, job.ID)
	}
	if job.Status != StatusInQueue {
		t.Errorf("expected status %s, got %s", StatusInQueue, job.Status)
	}
}

func TestJob_ValidTransitions(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		wantErr bool
	}{
		// Valid transitions
		{"IN_QUEUE to RUNNING", StatusInQueue, StatusRunning, false},
		{"IN_QUEUE to FAILED", StatusInQueue, StatusFailed, false},
		{"RUNNING to COMPLETED", StatusRunning, StatusCompleted, false},
		{"RUNNING to FAILED", StatusRunning, StatusFailed, false},
		// Invalid transitions
		{"IN_QUEUE to COMPLETED", StatusInQueue, StatusCompleted, true},
		{"COMPLETED to IN_QUEUE", StatusCompleted, StatusInQueue, true},
		{"COMPLETED to RUNNING", StatusCompleted, StatusRunning, true},
		{"FAILED to RUNNING", StatusFailed, StatusRunning, true},
		{"FAILED to COMPLETED", StatusFailed, StatusCompleted, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewWithID("test", "/in.mp4", "stabilize")
			job.Status = tt.from

			err := job.TransitionTo(tt.to)

			if tt.wantErr && err == nil {
				t.Errorf("expected error for transition %s -> %s", tt.from, tt.to)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error for transition %s -> %s: %v", tt.from, tt.to, err)
			}
		})
	}
}

func TestJob_Start(t *testing.T) {
	job := New("/in.mp4", "stabilize")
	beforeStart := time.Now()

	err := job.Start()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusRunning {
		t.Errorf("expected status %s, got %s", StatusRunning, job.Status)
	}
	if job.StartedAt.Before(beforeStart) {
		t.Error("expected StartedAt to be set after test start")
	}
}

func TestJob_Complete(t *testing.T) {
	job := New("/in.mp4", "stabilize")
	_ = job.Start()

	err := job.Complete("/assets/public/clip_stabilized_ab.mov", "/srv/public/clip_stabilized_ab.mov", "", 60, []int{5}, []string{"warn"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusCompleted {
		t.Errorf("expected status %s, got %s", StatusCompleted, job.Status)
	}
	if job.Link != "/assets/public/clip_stabilized_ab.mov" {
		t.Errorf("unexpected link %q", job.Link)
	}
	if job.OutputFrames != 60 {
		t.Errorf("expected 60 output frames, got %d", job.OutputFrames)
	}
	if len(job.SkippedFrames) != 1 || job.SkippedFrames[0] != 5 {
		t.Errorf("unexpected skipped frames %v", job.SkippedFrames)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail(t *testing.T) {
	job := New("/in.mp4", "stabilize")
	_ = job.Start()

	err := job.Fail(errs.KindInsufficientFrames, "5 frame(s) decoded")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
	if job.ErrorKind != errs.KindInsufficientFrames {
		t.Errorf("expected error kind %s, got %s", errs.KindInsufficientFrames, job.ErrorKind)
	}
	if job.Error != "5 frame(s) decoded" {
		t.Errorf("unexpected error message %q", job.Error)
	}
	if job.CompletedAt.IsZero() {
		t.Error("expected CompletedAt to be set")
	}
}

func TestJob_Fail_FromQueue(t *testing.T) {
	job := New("/in.mp4", "stabilize")

	if err := job.Fail(errs.KindPathNotFound, "no such file"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if job.Status != StatusFailed {
		t.Errorf("expected status %s, got %s", StatusFailed, job.Status)
	}
}

func TestJob_IsTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusInQueue, false},
		{StatusRunning, false},
		{StatusCompleted, true},
		{StatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			job := NewWithID("test", "/in.mp4", "stabilize")
			job.Status = tt.status
			if got := job.IsTerminal(); got != tt.terminal {
				t.Errorf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestJob_Clone(t *testing.T) {
	job := New("/in.mp4", "stabilize")
	_ = job.Start()
	_ = job.Complete("/assets/public/a.mov", "/srv/public/a.mov", "", 60, []int{1, 2}, []string{"w"})

	clone := job.Clone()

	if clone.ID != job.ID || clone.Status != job.Status || clone.Link != job.Link {
		t.Error("clone does not match original")
	}

	// Mutating the clone's slices must not affect the original.
	clone.SkippedFrames[0] = 99
	if job.SkippedFrames[0] == 99 {
		t.Error("clone shares SkippedFrames with original")
	}
}

func TestJob_GetStatus(t *testing.T) {
	job := New("/in.mp4", "stabilize")
	if job.GetStatus() != StatusInQueue {
		t.Errorf("expected %s, got %s", StatusInQueue, job.GetStatus())
	}
	_ = job.Start()
	if job.GetStatus() != StatusRunning {
		t.Errorf("expected %s, got %s", StatusRunning, job.GetStatus())
	}
}
