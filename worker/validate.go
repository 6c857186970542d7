package worker

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

const longPromptChars = 1000

// ValidationError marks a request the caller got wrong, as opposed to a
// runtime failure. The HTTP layer maps it to a 400.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// Validate checks a normalized request against the model's supported
// parameter space. The first violation is returned.
func (r *GenerationRequest) Validate() error {
	if r.Prompt == "" {
		return invalidf("\"prompt\" is required")
	}
	if len(r.Prompt) > longPromptChars {
		slog.Warn("Prompt is very long, generation may be slow", slog.Int("chars", len(r.Prompt)))
	}

	if r.Task != TaskTextToVideo && r.Task != TaskImageToVideo {
		return invalidf("task must be %q or %q, got %q", TaskTextToVideo, TaskImageToVideo, r.Task)
	}

	if !supportedResolution(*r.Width, *r.Height) {
		return invalidf("resolution %dx%d is not supported: TI2V-5B only supports 720P (1280x704 or 704x1280)", *r.Width, *r.Height)
	}

	if *r.NumFrames < MinNumFrames || *r.NumFrames > MaxNumFrames {
		return invalidf("num_frames must be between %d and %d, got %d", MinNumFrames, MaxNumFrames, *r.NumFrames)
	}

	if *r.Steps < MinSteps || *r.Steps > MaxSteps {
		return invalidf("steps must be between %d and %d, got %d", MinSteps, MaxSteps, *r.Steps)
	}
	switch {
	case *r.Steps < 5:
		slog.Warn("Very low step count may reduce output quality", slog.Int("steps", *r.Steps))
	case *r.Steps > 20:
		slog.Warn("High step count will increase generation time", slog.Int("steps", *r.Steps))
	}

	if r.Task == TaskImageToVideo {
		switch {
		case r.ImageURL == "" && r.ImagePath == "":
			return invalidf("for i2v task, provide one of \"image_url\" or \"image_path\"")
		case r.ImageURL != "" && r.ImagePath != "":
			return invalidf("provide only one of \"image_url\" or \"image_path\"")
		}
		if r.ImageURL != "" {
			if err := validateImageURL(r.ImageURL); err != nil {
				return err
			}
		}
	}

	return nil
}

func supportedResolution(width, height int) bool {
	return (width == 1280 && height == 704) || (width == 704 && height == 1280)
}

func validateImageURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return invalidf("invalid image_url: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "data":
		return nil
	default:
		return invalidf("unsupported image_url scheme %q, use http(s) or a data URL", u.Scheme)
	}
}
