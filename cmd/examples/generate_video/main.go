// Package main shows how to run a generation through the Docker runner
// without going through the worker CLI.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/e-dream-ai/gpu-container-wan22/executor"
	"github.com/e-dream-ai/gpu-container-wan22/worker"
)

func main() {
	imageRef := flag.String("image", "e-dream-ai/wan22-ti2v-5b:latest", "worker container image")
	gpus := flag.String("gpus", "all", "GPUs to attach to the container")
	prompt := flag.String("prompt", "A red fox running through a snowy forest at dawn", "text prompt")
	flag.Parse()

	generator, err := executor.NewDockerGenerator(executor.Config{}, *imageRef, *gpus)
	if err != nil {
		slog.Error("Error creating generator", slog.String("error", err.Error()))
		os.Exit(1)
	}

	w := worker.New(generator, nil)

	slog.Info("Generating video", slog.String("prompt", *prompt))

	frames, steps := 48, 8
	result, err := w.Process(context.Background(), worker.GenerationRequest{
		Prompt:    *prompt,
		NumFrames: &frames,
		Steps:     &steps,
	})
	if err != nil {
		slog.Error("Error generating video", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("Output written", slog.String("outputPath", result.OutputPath))
}
