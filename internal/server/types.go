// Package server provides the HTTP server for the stabilize API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

// CreateJobRequest is the HTTP request body for creating a new job.
type CreateJobRequest struct {
	// VideoPath is the path of the source video on the server filesystem.
	VideoPath string `json:"video_path" validate:"required"`
	// Effect selects the processing applied to the video.
	Effect string `json:"effect" validate:"required,oneof=stabilize remove-bg color-grade portrait"`
	// ReferenceImagePath optionally points at a reference image; used by
	// color grading.
	ReferenceImagePath string `json:"reference_image_path,omitempty"`
}

// CreateJobResponse is the HTTP response after creating a job.
type CreateJobResponse struct {
	// ID is the unique identifier for the created job.
	ID string `json:"id"`
	// Status is the initial job status.
	Status string `json:"status"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	// ID is the unique identifier for the job.
	ID string `json:"id"`
	// Status is the current job status.
	Status string `json:"status"`
	// Success is set once the job reaches a terminal state.
	Success *bool `json:"success,omitempty"`
	// Link is the download path of the published video (completed jobs).
	Link string `json:"link,omitempty"`
	// AbsolutePath is the published video's location on disk (completed jobs).
	AbsolutePath string `json:"absolute_path,omitempty"`
	// RemoteURL is the S3 URL when remote upload is configured.
	RemoteURL string `json:"remote_url,omitempty"`
	// OutputFrames is the number of frames in the published video.
	OutputFrames int `json:"output_frames,omitempty"`
	// SkippedFrames lists source frame indices dropped during processing.
	SkippedFrames []int `json:"skipped_frames,omitempty"`
	// Warnings carries recovered, non-fatal conditions.
	Warnings []string `json:"warnings,omitempty"`
	// Error is the failure message (failed jobs).
	Error string `json:"error,omitempty"`
	// ErrorKind categorizes the failure for programmatic handling.
	ErrorKind string `json:"error_kind,omitempty"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
