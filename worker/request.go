package worker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Task identifiers accepted in generation requests.
const (
	TaskTextToVideo  = "t2v"
	TaskImageToVideo = "i2v"
)

// Defaults applied by Normalize when a field is absent from the payload.
// TI2V-5B is a 720P model; the resolution defaults are the landscape
// orientation of the only two sizes it supports.
const (
	DefaultWidth     = 1280
	DefaultHeight    = 704
	DefaultNumFrames = 120
	DefaultSteps     = 10
)

// Bounds enforced by Validate.
const (
	MinNumFrames = 1
	MaxNumFrames = 300
	MinSteps     = 1
	MaxSteps     = 50
)

// GenerationRequest is the job payload handed to the worker. Numeric
// fields are pointers so an explicit zero in the payload stays
// distinguishable from an absent field: nil picks up the default in
// Normalize, while an explicit out-of-range value is rejected by Validate.
type GenerationRequest struct {
	Prompt    string `json:"prompt"`
	Task      string `json:"task,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	ImagePath string `json:"image_path,omitempty"`
	Width     *int   `json:"width,omitempty"`
	Height    *int   `json:"height,omitempty"`
	NumFrames *int   `json:"num_frames,omitempty"`
	Steps     *int   `json:"steps,omitempty"`
	Seed      *int64 `json:"seed,omitempty"`
}

// GenerationResult is the payload reported back to the job platform.
type GenerationResult struct {
	Status      string `json:"status"`
	Task        string `json:"task,omitempty"`
	Resolution  string `json:"resolution,omitempty"`
	NumFrames   int    `json:"num_frames,omitempty"`
	Steps       int    `json:"steps,omitempty"`
	OutputPath  string `json:"output_path,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// FailedResult wraps an error into the failed-status payload.
func FailedResult(err error) GenerationResult {
	return GenerationResult{Status: StatusFailed, Error: err.Error()}
}

type jobEnvelope struct {
	Input json.RawMessage `json:"input"`
}

// ParseRequest decodes a job payload. The queue platform wraps payloads as
// {"input": {...}}; bare request objects are accepted as well.
func ParseRequest(data []byte) (GenerationRequest, error) {
	var envelope jobEnvelope
	if err := json.Unmarshal(data, &envelope); err == nil && len(envelope.Input) > 0 {
		data = envelope.Input
	}

	var req GenerationRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return GenerationRequest{}, fmt.Errorf("decoding request: %w", err)
	}
	return req, nil
}

// Normalize trims string fields and fills unset fields with defaults. It is
// idempotent and must run before Validate.
func (r *GenerationRequest) Normalize() {
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.Task = strings.ToLower(strings.TrimSpace(r.Task))
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	r.ImagePath = strings.TrimSpace(r.ImagePath)

	if r.Task == "" {
		r.Task = TaskTextToVideo
	}
	if r.Width == nil {
		r.Width = intPtr(DefaultWidth)
	}
	if r.Height == nil {
		r.Height = intPtr(DefaultHeight)
	}
	if r.NumFrames == nil {
		r.NumFrames = intPtr(DefaultNumFrames)
	}
	if r.Steps == nil {
		r.Steps = intPtr(DefaultSteps)
	}
}

// Resolution returns the "{width}x{height}" string reported in results.
// Call after Normalize.
func (r *GenerationRequest) Resolution() string {
	return fmt.Sprintf("%dx%d", *r.Width, *r.Height)
}

func intPtr(v int) *int { return &v }
