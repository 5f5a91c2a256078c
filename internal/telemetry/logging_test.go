package telemetry

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func TestNewLogger(t *testing.T) {
	home := t.TempDir()

	logger, closer, err := NewLogger(home, "debug", true)
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	defer closer.Close()

	logger.Info("hello", "key", "value")

	data, err := os.ReadFile(filepath.Join(home, "logs", "crewd.jsonl"))
	if err != nil {
		t.Fatalf("Failed to read log file: %v", err)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("Log line is not valid JSON: %v", err)
	}
	if entry["msg"] != "hello" {
		t.Errorf("Unexpected message: %v", entry["msg"])
	}
	if entry["key"] != "value" {
		t.Errorf("Unexpected attribute: %v", entry["key"])
	}
	if _, ok := entry["timestamp"]; !ok {
		t.Error("Expected a timestamp field")
	}
	if entry["component"] != "crewd" {
		t.Errorf("Expected component crewd, got %v", entry["component"])
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
		" INFO ":  slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}
