package worker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GenerationRequest)
		errMsg string
	}{
		{name: "valid t2v with defaults"},
		{
			name:   "valid portrait orientation",
			mutate: func(r *GenerationRequest) { r.Width, r.Height = intPtr(704), intPtr(1280) },
		},
		{
			name:   "valid i2v with image url",
			mutate: func(r *GenerationRequest) { r.Task = TaskImageToVideo; r.ImageURL = "https://example.com/cat.png" },
		},
		{
			name:   "valid i2v with image path",
			mutate: func(r *GenerationRequest) { r.Task = TaskImageToVideo; r.ImagePath = "/inputs/cat.png" },
		},
		{
			name:   "missing prompt",
			mutate: func(r *GenerationRequest) { r.Prompt = "" },
			errMsg: "prompt",
		},
		{
			name:   "unknown task",
			mutate: func(r *GenerationRequest) { r.Task = "t2i" },
			errMsg: "task must be",
		},
		{
			name:   "unsupported resolution",
			mutate: func(r *GenerationRequest) { r.Width, r.Height = intPtr(1920), intPtr(1080) },
			errMsg: "not supported",
		},
		{
			name:   "swapped dimensions are still unsupported",
			mutate: func(r *GenerationRequest) { r.Width, r.Height = intPtr(1280), intPtr(1280) },
			errMsg: "not supported",
		},
		{
			name:   "too many frames",
			mutate: func(r *GenerationRequest) { r.NumFrames = intPtr(301) },
			errMsg: "num_frames must be between",
		},
		{
			name:   "too many steps",
			mutate: func(r *GenerationRequest) { r.Steps = intPtr(51) },
			errMsg: "steps must be between",
		},
		{
			name:   "i2v without image source",
			mutate: func(r *GenerationRequest) { r.Task = TaskImageToVideo },
			errMsg: "provide one of",
		},
		{
			name: "i2v with both image sources",
			mutate: func(r *GenerationRequest) {
				r.Task = TaskImageToVideo
				r.ImageURL = "https://example.com/cat.png"
				r.ImagePath = "/inputs/cat.png"
			},
			errMsg: "only one of",
		},
		{
			name:   "i2v with unsupported url scheme",
			mutate: func(r *GenerationRequest) { r.Task = TaskImageToVideo; r.ImageURL = "ftp://example.com/cat.png" },
			errMsg: "scheme",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := GenerationRequest{Prompt: "a red fox"}
			req.Normalize()
			if tt.mutate != nil {
				tt.mutate(&req)
			}

			err := req.Validate()
			if tt.errMsg == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

// Explicit zeros in the payload are out-of-range values, not requests for
// the defaults.
func TestValidateRejectsExplicitZeros(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		errMsg  string
	}{
		{
			name:    "zero num_frames",
			payload: `{"prompt": "a red fox", "num_frames": 0}`,
			errMsg:  "num_frames must be between",
		},
		{
			name:    "zero steps",
			payload: `{"prompt": "a red fox", "steps": 0}`,
			errMsg:  "steps must be between",
		},
		{
			name:    "zero resolution",
			payload: `{"prompt": "a red fox", "width": 0, "height": 0}`,
			errMsg:  "not supported",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ParseRequest([]byte(tt.payload))
			require.NoError(t, err)
			req.Normalize()

			err = req.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestValidateAcceptsLongPrompt(t *testing.T) {
	req := GenerationRequest{Prompt: strings.Repeat("a", longPromptChars+1)}
	req.Normalize()

	require.NoError(t, req.Validate())
}

func TestValidateReturnsValidationError(t *testing.T) {
	req := GenerationRequest{}
	req.Normalize()

	err := req.Validate()
	require.Error(t, err)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}
