package effect

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"io"
	"net/http"
	"time"

	"github.com/framelab/stabilize-api/internal/frames"
)

// Static errors for remote effect operations.
var (
	// ErrBaseURLRequired is returned when the model endpoint URL is missing.
	ErrBaseURLRequired = errors.New("effect: base URL is required")
	// ErrServerError is returned when the model server returns a 5xx status.
	ErrServerError = errors.New("effect: model server error")
	// ErrRequestFailed is returned for any other non-2xx response.
	ErrRequestFailed = errors.New("effect: request failed")
	// ErrEmptyResponse is returned when the model responds without a frame.
	ErrEmptyResponse = errors.New("effect: model returned no frame")
)

// Remote invokes an external learned model over HTTP: one request per
// frame, PNG in, PNG out. The model is treated as an opaque pure function;
// a job is a single attempt and no retries are performed here.
type Remote struct {
	name       string
	baseURL    string
	httpClient *http.Client
	// referenceB64 carries an optional reference image for effects that
	// condition on one, such as color grading.
	referenceB64 string
}

// RemoteOption configures a Remote effect.
type RemoteOption func(*Remote)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// WithReferenceImage attaches a base64-encoded reference image sent with
// every frame.
func WithReferenceImage(b64 string) RemoteOption {
	return func(r *Remote) {
		r.referenceB64 = b64
	}
}

// NewRemote creates a remote effect collaborator for the given selector and
// model endpoint.
func NewRemote(name, baseURL string, opts ...RemoteOption) (*Remote, error) {
	if baseURL == "" {
		return nil, ErrBaseURLRequired
	}

	r := &Remote{
		name:       name,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Compile-time checks.
var (
	_ Effect     = (*Remote)(nil)
	_ Referencer = (*Remote)(nil)
)

// WithReference implements Referencer. It returns a copy of the effect that
// attaches the reference image to every request.
func (r *Remote) WithReference(b64 string) Effect {
	clone := *r
	clone.referenceB64 = b64
	return &clone
}

// Name implements Effect.
func (r *Remote) Name() string { return r.name }

// processRequest is the JSON body sent to the model server.
type processRequest struct {
	FrameBase64     string `json:"frame_base64"`
	ReferenceBase64 string `json:"reference_base64,omitempty"`
}

// processResponse is the JSON body returned by the model server.
type processResponse struct {
	FrameBase64 string `json:"frame_base64"`
	Error       string `json:"error,omitempty"`
}

// Process sends the frame to the model and decodes the returned frame. The
// result keeps the input frame's index and timestamp.
func (r *Remote) Process(ctx context.Context, frame *frames.Frame) (*frames.Frame, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, frame.Img); err != nil {
		return nil, fmt.Errorf("effect: encode frame: %w", err)
	}

	reqBody, err := json.Marshal(processRequest{
		FrameBase64:     base64.StdEncoding.EncodeToString(buf.Bytes()),
		ReferenceBase64: r.referenceB64,
	})
	if err != nil {
		return nil, fmt.Errorf("effect: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("effect: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("effect: request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("effect: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if resp.StatusCode >= 500 {
			return nil, fmt.Errorf("%w %d: %s", ErrServerError, resp.StatusCode, string(respBody))
		}
		return nil, fmt.Errorf("%w with status %d: %s", ErrRequestFailed, resp.StatusCode, string(respBody))
	}

	var parsed processResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("effect: unmarshal response: %w", err)
	}
	if parsed.FrameBase64 == "" {
		if parsed.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRequestFailed, parsed.Error)
		}
		return nil, ErrEmptyResponse
	}

	raw, err := base64.StdEncoding.DecodeString(parsed.FrameBase64)
	if err != nil {
		return nil, fmt.Errorf("effect: decode frame base64: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("effect: decode frame png: %w", err)
	}

	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)

	return &frames.Frame{
		Index:     frame.Index,
		Timestamp: frame.Timestamp,
		Img:       rgba,
	}, nil
}
