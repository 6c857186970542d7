package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// ExecGenerator runs generate.py as a child process. It is the runner used
// inside the GPU image, where the worker binary and the Wan2.2 runtime
// share a filesystem.
type ExecGenerator struct {
	cfg Config
}

func NewExecGenerator(cfg Config) (*ExecGenerator, error) {
	cfg = cfg.withDefaults()

	script := filepath.Join(cfg.Wan22Dir, "generate.py")
	if _, err := os.Stat(script); err != nil {
		return nil, fmt.Errorf("generate.py not found at %s", script)
	}
	if _, err := os.Stat(cfg.ModelDir); err != nil {
		return nil, fmt.Errorf("model directory not found at %s", cfg.ModelDir)
	}

	return &ExecGenerator{cfg: cfg}, nil
}

func (g *ExecGenerator) Generate(ctx context.Context, job Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	args := commandArgs(g.cfg, job)
	cmd := exec.CommandContext(ctx, g.cfg.PythonBin, args...)
	cmd.Dir = g.cfg.Wan22Dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	slog.Info("Running generate.py",
		slog.String("size", fmt.Sprintf("%d*%d", job.Width, job.Height)),
		slog.Int("num_frames", job.NumFrames),
		slog.Int("steps", job.Steps))

	start := time.Now()
	err := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("video generation timed out after %s", g.cfg.Timeout)
	}
	if err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		slog.Error("generate.py failed",
			slog.String("error", err.Error()),
			slog.String("stderr", msg))
		return "", fmt.Errorf("video generation failed: %s", msg)
	}

	slog.Info("Generation completed", slog.String("took", time.Since(start).Round(time.Second).String()))

	// A second of slack covers filesystems with coarse mtimes.
	dirs := append([]string{job.OutputDir}, g.cfg.OutputDirs...)
	return FindOutputVideo(start.Add(-time.Second), dirs...)
}
