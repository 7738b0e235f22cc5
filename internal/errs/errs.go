// Package errs provides the structured error taxonomy for pipeline jobs.
// Failures are captured close to their source as a Kind plus context; the
// orchestrator decides which kinds are fatal and which are recoverable.
package errs

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure for programmatic handling.
type Kind string

const (
	// KindPathNotFound means the requested input path does not exist.
	KindPathNotFound Kind = "PATH_NOT_FOUND"
	// KindNotARegularFile means the input path exists but is not a regular file.
	KindNotARegularFile Kind = "NOT_A_REGULAR_FILE"
	// KindDecodeFailure means the codec failed to decode the input.
	KindDecodeFailure Kind = "DECODE_FAILURE"
	// KindInsufficientFrames means fewer usable frames than the smoothing window size.
	KindInsufficientFrames Kind = "INSUFFICIENT_FRAMES"
	// KindPartialDecodeGap means some frames were skipped; the job continues
	// and reports the gap. This kind is a warning, never fatal.
	KindPartialDecodeGap Kind = "PARTIAL_DECODE_GAP"
	// KindEncodeFailure means the codec failed to encode or mux the output.
	KindEncodeFailure Kind = "ENCODE_FAILURE"
	// KindAudioExtractionFailure means audio extraction failed. It is recovered
	// automatically by synthesizing silence and never surfaces as a hard failure.
	KindAudioExtractionFailure Kind = "AUDIO_EXTRACTION_FAILURE"
	// KindInternal is the catch-all for unexpected faults.
	KindInternal Kind = "INTERNAL_ERROR"
)

// Error is a pipeline failure carrying its taxonomy kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an Error with the given kind and message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap creates an Error wrapping an underlying cause.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf extracts the Kind from an error chain. Errors outside the taxonomy
// map to KindInternal so that no failure leaves the documented surface.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindInternal
}

// IsKind reports whether the error chain carries the given kind.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
