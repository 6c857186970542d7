// Package executor invokes the external Wan2.2 generate.py runtime and
// locates the video it produces. Two runners exist: ExecGenerator launches
// the script as a child process inside the GPU image, DockerGenerator runs
// it in a one-shot GPU container.
package executor

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// wanTask is the generate.py task flag for the TI2V-5B checkpoint. The
// same checkpoint serves both t2v and i2v requests; i2v is selected by
// passing --image.
const wanTask = "ti2v-5B"

// Default runtime locations inside the GPU image.
const (
	DefaultWan22Dir  = "/opt/wan22"
	DefaultModelDir  = "/opt/models/wan22-ti2v-5b"
	DefaultPythonBin = "python"
	DefaultTimeout   = 3 * time.Hour
)

// defaultOutputDirs are the locations generate.py is known to write to
// when it ignores the job's own output dir.
var defaultOutputDirs = []string{
	"/opt/wan22/output",
	"/opt/wan22",
	"/opt/app/output",
}

// Job is a validated, fully defaulted generation request.
type Job struct {
	Prompt    string
	ImagePath string // empty for t2v
	OutputDir string
	Width     int
	Height    int
	NumFrames int
	Steps     int
	Seed      *int64
}

// Generator produces a video for a job and returns the local path of the
// result.
type Generator interface {
	Generate(ctx context.Context, job Job) (string, error)
}

// Config locates the Wan2.2 runtime.
type Config struct {
	Wan22Dir  string
	ModelDir  string
	PythonBin string
	Timeout   time.Duration
	// Extra directories scanned for the output video, in addition to the
	// job's own output dir.
	OutputDirs []string
}

func (c Config) withDefaults() Config {
	if c.Wan22Dir == "" {
		c.Wan22Dir = DefaultWan22Dir
	}
	if c.ModelDir == "" {
		c.ModelDir = DefaultModelDir
	}
	if c.PythonBin == "" {
		c.PythonBin = DefaultPythonBin
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if len(c.OutputDirs) == 0 {
		c.OutputDirs = defaultOutputDirs
	}
	return c
}

// commandArgs builds the generate.py argument list for a job. The returned
// slice does not include the python interpreter itself.
func commandArgs(cfg Config, job Job) []string {
	args := []string{
		filepath.Join(cfg.Wan22Dir, "generate.py"),
		"--task", wanTask,
		"--size", fmt.Sprintf("%d*%d", job.Width, job.Height),
		"--ckpt_dir", cfg.ModelDir,
		"--prompt", job.Prompt,
	}
	if job.NumFrames > 0 {
		args = append(args, "--num_frames", strconv.Itoa(job.NumFrames))
	}
	if job.Steps > 0 {
		args = append(args, "--steps", strconv.Itoa(job.Steps))
	}
	if job.Seed != nil {
		args = append(args, "--seed", strconv.FormatInt(*job.Seed, 10))
	}
	if job.ImagePath != "" {
		args = append(args, "--image", job.ImagePath)
	}
	return args
}

// Video container formats generate.py is known to emit.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".webm": true,
	".avi":  true,
	".mov":  true,
}

// FindOutputVideo returns the newest video file under dirs that was
// modified at or after newerThan. generate.py does not report where it
// writes, so the result is discovered by scanning its known output
// locations. Missing or unreadable dirs are skipped.
func FindOutputVideo(newerThan time.Time, dirs ...string) (string, error) {
	var newest string
	var newestTime time.Time

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			if !videoExtensions[strings.ToLower(filepath.Ext(path))] {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return nil
			}
			mtime := info.ModTime()
			if mtime.Before(newerThan) {
				return nil
			}
			if newest == "" || mtime.After(newestTime) {
				newest = path
				newestTime = mtime
			}
			return nil
		})
	}

	if newest == "" {
		return "", fmt.Errorf("no generated video found under %s", strings.Join(dirs, ", "))
	}
	return newest, nil
}
