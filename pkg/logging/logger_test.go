package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name   string
		level  string
		enable slog.Level
	}{
		{"debug level", "debug", slog.LevelDebug},
		{"warn level", "warn", slog.LevelWarn},
		{"error level", "error", slog.LevelError},
		{"default info", "", slog.LevelInfo},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := New(tt.level)
			if !logger.Enabled(ctx, tt.enable) {
				t.Fatalf("expected level %s to be enabled", tt.enable)
			}
		})
	}
}

func TestDefaultLogger(t *testing.T) {
	logger := Default()
	logger.Info("test message", "key", "value")

	ctx := context.Background()
	if !logger.Enabled(ctx, slog.LevelInfo) {
		t.Error("Default() should enable info level")
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		t.Error("Default() should not enable debug level")
	}
	if logger.Logger == nil {
		t.Fatal("Default() returned Logger with nil slog.Logger")
	}
	if logger == Default() {
		t.Error("Default() returned the same instance twice")
	}
}

func TestFatalDoesNotExitAndRendersLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "error")

	logger.Fatal("ledger balance went negative", "account_id", "acc-1")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["level"] != "FATAL" {
		t.Fatalf("expected FATAL level, got %v", entry["level"])
	}
	if entry["account_id"] != "acc-1" {
		t.Fatalf("expected account_id attr, got %v", entry["account_id"])
	}
}

func TestFatalEnabledAboveError(t *testing.T) {
	logger := NewWithWriter(&bytes.Buffer{}, "error")
	if !logger.Enabled(context.Background(), LevelFatal) {
		t.Fatal("fatal level should be enabled whenever error is")
	}
}
