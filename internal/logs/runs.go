package logs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	runLogPrefix = "ebookconverter-"
	runLogSuffix = ".log"
)

// ErrNoRunLogs reports an empty or missing log directory.
var ErrNoRunLogs = errors.New("no run logs")

// RunLog describes one per-run log file.
type RunLog struct {
	RunID    string
	Path     string
	Size     int64
	Modified time.Time
}

// RunLogs lists the run logs in dir, newest run first.
func RunLogs(dir string) ([]RunLog, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read log dir: %w", err)
	}
	var runs []RunLog
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, runLogPrefix) || !strings.HasSuffix(name, runLogSuffix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		runs = append(runs, RunLog{
			RunID:    strings.TrimSuffix(strings.TrimPrefix(name, runLogPrefix), runLogSuffix),
			Path:     filepath.Join(dir, name),
			Size:     info.Size(),
			Modified: info.ModTime(),
		})
	}
	slices.SortFunc(runs, func(a, b RunLog) int { return strings.Compare(b.RunID, a.RunID) })
	return runs, nil
}

// Find returns the log of runID, or the newest run when runID is empty.
func Find(dir, runID string) (RunLog, error) {
	runs, err := RunLogs(dir)
	if err != nil {
		return RunLog{}, err
	}
	if len(runs) == 0 {
		return RunLog{}, fmt.Errorf("%s: %w", dir, ErrNoRunLogs)
	}
	runID = strings.TrimSpace(runID)
	if runID == "" {
		return runs[0], nil
	}
	for _, run := range runs {
		if run.RunID == runID || strings.HasPrefix(run.RunID, runID) {
			return run, nil
		}
	}
	return RunLog{}, fmt.Errorf("run %q: %w", runID, os.ErrNotExist)
}
