// Package main is the container entrypoint for the Wan2.2-TI2V-5B worker.
// By default it runs one job: read a payload, generate, upload, print the
// result as JSON. With -serve it exposes the worker over HTTP instead.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/e-dream-ai/gpu-container-wan22/config"
	"github.com/e-dream-ai/gpu-container-wan22/executor"
	"github.com/e-dream-ai/gpu-container-wan22/server"
	"github.com/e-dream-ai/gpu-container-wan22/storage"
	"github.com/e-dream-ai/gpu-container-wan22/worker"
)

const shutdownTimeout = 10 * time.Second

func main() {
	inputFile := flag.String("input", "", "path to a JSON job payload")
	prompt := flag.String("prompt", "", "text prompt for generation")
	task := flag.String("task", worker.TaskTextToVideo, "generation task: t2v or i2v")
	imageURL := flag.String("image-url", "", "image URL for i2v")
	imagePath := flag.String("image-path", "", "local image path for i2v")
	width := flag.Int("width", worker.DefaultWidth, "video width")
	height := flag.Int("height", worker.DefaultHeight, "video height")
	numFrames := flag.Int("num-frames", worker.DefaultNumFrames, "number of frames")
	steps := flag.Int("steps", worker.DefaultSteps, "number of denoising steps")
	seed := flag.Int64("seed", -1, "random seed, -1 picks one at random")
	serve := flag.Bool("serve", false, "run the HTTP server instead of a one-shot job")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Error loading config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	w, err := buildWorker(cfg)
	if err != nil {
		slog.Error("Error building worker", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if *serve {
		if err := runServer(cfg, w); err != nil {
			slog.Error("Server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	var req worker.GenerationRequest
	if *inputFile != "" {
		data, err := os.ReadFile(*inputFile)
		if err != nil {
			slog.Error("Error reading input file", slog.String("error", err.Error()))
			os.Exit(1)
		}
		req, err = worker.ParseRequest(data)
		if err != nil {
			slog.Error("Error parsing input file", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		if *prompt == "" {
			flag.Usage()
			slog.Error("-prompt is required when -input is not given")
			os.Exit(2)
		}
		req = worker.GenerationRequest{
			Prompt:    *prompt,
			Task:      *task,
			ImageURL:  *imageURL,
			ImagePath: *imagePath,
			Width:     width,
			Height:    height,
			NumFrames: numFrames,
			Steps:     steps,
		}
		if *seed >= 0 {
			req.Seed = seed
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := w.Process(ctx, req)

	out, merr := json.MarshalIndent(result, "", "  ")
	if merr != nil {
		slog.Error("Error encoding result", slog.String("error", merr.Error()))
		os.Exit(1)
	}
	fmt.Println(string(out))

	if err != nil {
		os.Exit(1)
	}
}

func buildWorker(cfg *config.Config) (*worker.Worker, error) {
	execCfg := executor.Config{
		Wan22Dir:   cfg.Wan22Dir,
		ModelDir:   cfg.ModelDir,
		PythonBin:  cfg.PythonBin,
		Timeout:    cfg.GenerateTimeout,
		OutputDirs: cfg.OutputDirs,
	}

	var generator executor.Generator
	var err error
	switch cfg.Runner {
	case "docker":
		generator, err = executor.NewDockerGenerator(execCfg, cfg.DockerImage, cfg.GPUs)
	case "exec":
		generator, err = executor.NewExecGenerator(execCfg)
	default:
		err = fmt.Errorf("unknown runner %q, use \"exec\" or \"docker\"", cfg.Runner)
	}
	if err != nil {
		return nil, err
	}

	// Leave the store nil when R2 is not configured: jobs then succeed
	// with a local output path and no download URL.
	var store worker.ObjectStore
	if cfg.R2Configured() {
		client, err := storage.New(context.Background(), storage.Options{
			Bucket:          cfg.R2BucketName,
			EndpointURL:     cfg.R2EndpointURL,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			UploadDirectory: cfg.R2UploadDirectory,
			PresignExpiry:   cfg.PresignExpiry(),
		})
		if err != nil {
			return nil, err
		}
		store = client
	}

	return worker.New(generator, store), nil
}

func runServer(cfg *config.Config, w *worker.Worker) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	janitor := worker.NewJanitor(cfg.ScratchMaxAge)
	if err := janitor.Start(); err != nil {
		return err
	}
	defer janitor.Stop()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.New(w).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Listening", slog.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
