package worker

import (
	"log/slog"
	"os"
	"sync"
)

// Scratch dir prefixes under the OS temp root. The janitor sweeps both
// families by the shared "wan22-" prefix.
const (
	scratchPrefix = "wan22-job-"
	outputPrefix  = "wan22-output-"
)

// Scratch tracks temporary files and directories created while serving a
// job so they are removed together when the job finishes, however it ends.
type Scratch struct {
	mu    sync.Mutex
	dirs  map[string]struct{}
	files map[string]struct{}
}

func NewScratch() *Scratch {
	return &Scratch{
		dirs:  make(map[string]struct{}),
		files: make(map[string]struct{}),
	}
}

// TempDir creates a fresh tracked directory under the OS temp root.
func (s *Scratch) TempDir() (string, error) {
	dir, err := os.MkdirTemp("", scratchPrefix)
	if err != nil {
		return "", err
	}
	s.AddDir(dir)
	return dir, nil
}

func (s *Scratch) AddDir(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[path] = struct{}{}
}

func (s *Scratch) AddFile(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[path] = struct{}{}
}

// Forget untracks a path so CleanupAll leaves it alone, e.g. when a file
// becomes the job's output.
func (s *Scratch) Forget(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.dirs, path)
	delete(s.files, path)
}

// CleanupAll removes everything tracked. Failures are logged, not returned:
// there is nothing a job can do about a leftover temp file.
func (s *Scratch) CleanupAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var files, dirs int
	for path := range s.files {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Error("Failed to remove scratch file", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		delete(s.files, path)
		files++
	}
	for path := range s.dirs {
		if err := os.RemoveAll(path); err != nil {
			slog.Error("Failed to remove scratch dir", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		delete(s.dirs, path)
		dirs++
	}

	slog.Debug("Scratch cleanup done", slog.Int("files", files), slog.Int("dirs", dirs))
}
