package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/e-dream-ai/gpu-container-wan22/executor"
)

// ObjectStore persists a finished video and hands out a download URL for
// it. A nil store means uploads are skipped and results carry only the
// local output path.
type ObjectStore interface {
	Upload(ctx context.Context, path string) (string, error)
	PresignDownload(ctx context.Context, key string) (string, error)
}

// Worker runs generation jobs end to end: validation, input staging,
// model invocation, upload.
type Worker struct {
	generator executor.Generator
	store     ObjectStore
	fetcher   *ImageFetcher
}

func New(generator executor.Generator, store ObjectStore) *Worker {
	return &Worker{
		generator: generator,
		store:     store,
		fetcher:   NewImageFetcher(),
	}
}

// Process handles a single job. The returned GenerationResult is always
// populated; on failure it carries the error message alongside the error
// itself so callers can report either.
func (w *Worker) Process(ctx context.Context, req GenerationRequest) (GenerationResult, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return FailedResult(err), err
	}

	slog.Info("Processing generation job",
		slog.String("task", req.Task),
		slog.String("resolution", req.Resolution()),
		slog.Int("num_frames", *req.NumFrames),
		slog.Int("steps", *req.Steps))

	scratch := NewScratch()
	defer scratch.CleanupAll()

	job := executor.Job{
		Prompt:    req.Prompt,
		Width:     *req.Width,
		Height:    *req.Height,
		NumFrames: *req.NumFrames,
		Steps:     *req.Steps,
		Seed:      req.Seed,
	}

	if req.Task == TaskImageToVideo {
		dir, err := scratch.TempDir()
		if err != nil {
			return FailedResult(err), err
		}
		imagePath, err := w.fetcher.Fetch(ctx, req, dir)
		if err != nil {
			return FailedResult(err), err
		}
		slog.Info("Using input image", slog.String("path", imagePath))
		job.ImagePath = imagePath
	}

	// The output dir is not tracked by scratch: output_path must outlive
	// this call. The janitor sweeps it once it ages out.
	outputDir, err := os.MkdirTemp("", outputPrefix)
	if err != nil {
		return FailedResult(err), err
	}
	job.OutputDir = outputDir

	videoPath, err := w.generator.Generate(ctx, job)
	if err != nil {
		return FailedResult(err), err
	}
	slog.Info("Video generated", slog.String("path", videoPath))

	result := GenerationResult{
		Status:     StatusSuccess,
		Task:       req.Task,
		Resolution: req.Resolution(),
		NumFrames:  *req.NumFrames,
		Steps:      *req.Steps,
		OutputPath: videoPath,
	}

	if w.store == nil {
		slog.Warn("Object storage not configured, skipping upload")
		return result, nil
	}

	key, err := w.store.Upload(ctx, videoPath)
	if err != nil {
		err = fmt.Errorf("uploading output video: %w", err)
		return FailedResult(err), err
	}
	downloadURL, err := w.store.PresignDownload(ctx, key)
	if err != nil {
		err = fmt.Errorf("presigning download URL: %w", err)
		return FailedResult(err), err
	}
	result.DownloadURL = downloadURL

	return result, nil
}
