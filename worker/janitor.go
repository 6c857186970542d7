package worker

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Janitor periodically removes scratch directories orphaned by crashed
// jobs. Only serve mode runs one; one-shot invocations clean up inline and
// the container goes away with the job.
type Janitor struct {
	cron   *cron.Cron
	root   string
	maxAge time.Duration
}

func NewJanitor(maxAge time.Duration) *Janitor {
	return &Janitor{
		cron:   cron.New(),
		root:   os.TempDir(),
		maxAge: maxAge,
	}
}

func (j *Janitor) Start() error {
	if _, err := j.cron.AddFunc("@hourly", j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	return nil
}

func (j *Janitor) Stop() {
	j.cron.Stop()
}

func (j *Janitor) sweep() {
	removed, err := SweepScratch(j.root, j.maxAge)
	if err != nil {
		slog.Error("Scratch sweep failed", slog.String("error", err.Error()))
		return
	}
	if removed > 0 {
		slog.Info("Swept orphaned scratch dirs", slog.Int("removed", removed))
	}
}

// SweepScratch removes wan22-* directories under root whose mtime is older
// than maxAge and returns how many were removed.
func SweepScratch(root string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return 0, err
	}

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), "wan22-") {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		path := filepath.Join(root, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			slog.Error("Failed to sweep scratch dir", slog.String("path", path), slog.String("error", err.Error()))
			continue
		}
		removed++
	}
	return removed, nil
}
