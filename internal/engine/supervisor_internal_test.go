package engine

import (
	"log/slog"
	"testing"
)

func TestStderrLevel(t *testing.T) {
	tests := []struct {
		line string
		want slog.Level
	}{
		{"ERROR:root:model missing", slog.LevelError},
		{"CRITICAL failure", slog.LevelError},
		{"Traceback (most recent call last):", slog.LevelError},
		{"WARNING: low confidence", slog.LevelWarn},
		{"DEBUG tensor shape", slog.LevelDebug},
		{"loading weights", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := stderrLevel(tt.line); got != tt.want {
			t.Fatalf("stderrLevel(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
