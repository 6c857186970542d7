package executor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRuntime lays out a generate.py and a model dir so the constructor's
// preflight checks pass, with a shell script standing in for python.
func fakeRuntime(t *testing.T, script string) Config {
	t.Helper()

	wan22Dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wan22Dir, "generate.py"), []byte("# stub"), 0o644))

	python := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(python, []byte("#!/bin/sh\n"+script), 0o755))

	return Config{
		Wan22Dir:   wan22Dir,
		ModelDir:   t.TempDir(),
		PythonBin:  python,
		Timeout:    10 * time.Second,
		OutputDirs: []string{wan22Dir},
	}
}

func TestExecGeneratorGenerate(t *testing.T) {
	// The stub writes its output into the working directory, which the
	// generator sets to the Wan2.2 dir.
	cfg := fakeRuntime(t, "printf video > output.mp4\n")

	g, err := NewExecGenerator(cfg)
	require.NoError(t, err)

	out, err := g.Generate(context.Background(), Job{
		Prompt:    "a red fox",
		Width:     1280,
		Height:    704,
		NumFrames: 120,
		Steps:     10,
		OutputDir: t.TempDir(),
	})
	require.NoError(t, err)
	require.Equal(t, filepath.Join(cfg.Wan22Dir, "output.mp4"), out)
}

func TestExecGeneratorFailureSurfacesStderr(t *testing.T) {
	cfg := fakeRuntime(t, "echo 'CUDA out of memory' >&2\nexit 3\n")

	g, err := NewExecGenerator(cfg)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Job{Prompt: "a red fox", Width: 1280, Height: 704, OutputDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "CUDA out of memory")
}

func TestExecGeneratorTimeout(t *testing.T) {
	cfg := fakeRuntime(t, "sleep 5\n")
	cfg.Timeout = 100 * time.Millisecond

	g, err := NewExecGenerator(cfg)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Job{Prompt: "a red fox", Width: 1280, Height: 704, OutputDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}

func TestExecGeneratorNoOutput(t *testing.T) {
	cfg := fakeRuntime(t, "true\n")

	g, err := NewExecGenerator(cfg)
	require.NoError(t, err)

	_, err = g.Generate(context.Background(), Job{Prompt: "a red fox", Width: 1280, Height: 704, OutputDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no generated video")
}

func TestNewExecGeneratorMissingScript(t *testing.T) {
	_, err := NewExecGenerator(Config{Wan22Dir: t.TempDir(), ModelDir: t.TempDir()})
	require.Error(t, err)
	require.Contains(t, err.Error(), "generate.py not found")
}

func TestNewExecGeneratorMissingModelDir(t *testing.T) {
	wan22Dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(wan22Dir, "generate.py"), []byte("# stub"), 0o644))

	_, err := NewExecGenerator(Config{Wan22Dir: wan22Dir, ModelDir: filepath.Join(wan22Dir, "missing")})
	require.Error(t, err)
	require.Contains(t, err.Error(), "model directory not found")
}
