// Package runlog owns the log file for a single analysis run. Every log line
// goes to the console and to NFDRS_log_YYYYMMDD.txt in the log directory.
package runlog

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

type RunLog struct {
	Logger *slog.Logger
	path   string
	file   *os.File
	once   sync.Once
	err    error
}

// FileName returns the log file name for a run date.
func FileName(runDate time.Time) string {
	return "NFDRS_log_" + runDate.Format("20060102") + ".txt"
}

// Open creates the run log. An empty dir logs to console only.
func Open(dir string, runDate time.Time, console io.Writer, level string) (*RunLog, error) {
	if console == nil {
		console = os.Stderr
	}
	rl := &RunLog{}
	out := console
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		rl.path = filepath.Join(dir, FileName(runDate))
		f, err := os.OpenFile(rl.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		rl.file = f
		out = io.MultiWriter(console, f)
	}
	rl.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: ParseLevel(level)}))
	return rl, nil
}

func (r *RunLog) Path() string { return r.path }

// Close flushes and closes the log file. Safe to call more than once.
func (r *RunLog) Close() error {
	r.once.Do(func() {
		if r.file == nil {
			return
		}
		if err := r.file.Sync(); err != nil {
			r.err = err
		}
		if err := r.file.Close(); err != nil && r.err == nil {
			r.err = err
		}
	})
	return r.err
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
