package runlog

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestOpen_WritesConsoleAndFile(t *testing.T) {
	dir := t.TempDir()
	var console bytes.Buffer

	rl, err := Open(dir, time.Date(2025, 9, 11, 2, 0, 0, 0, time.UTC), &console, "info")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rl.Logger.Info("station: percentile", "station", "100", "percentile", 90.0)
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rl.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	wantPath := filepath.Join(dir, "NFDRS_log_20250911.txt")
	if rl.Path() != wantPath {
		t.Errorf("Path() = %q, want %q", rl.Path(), wantPath)
	}
	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "station=100") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(console.String(), "percentile=90") {
		t.Errorf("console missing entry: %s", console.String())
	}
}

func TestOpen_ConsoleOnly(t *testing.T) {
	var console bytes.Buffer
	rl, err := Open("", time.Now(), &console, "warn")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	rl.Logger.Info("hidden")
	rl.Logger.Warn("shown")
	if err := rl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if strings.Contains(console.String(), "hidden") || !strings.Contains(console.String(), "shown") {
		t.Errorf("unexpected console output: %s", console.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
