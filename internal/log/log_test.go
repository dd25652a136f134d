package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	t.Setenv("GO_ENV", "")

	var buf bytes.Buffer
	l := New(&buf, "warn")
	l.Info("hidden")
	l.Warn("shown", "stream", "video")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info line should be filtered: %q", out)
	}
	if !strings.Contains(out, "shown") || !strings.Contains(out, "stream=video") {
		t.Errorf("warn line missing: %q", out)
	}
}

func TestNew_JSONInProduction(t *testing.T) {
	t.Setenv("GO_ENV", "production")

	var buf bytes.Buffer
	New(&buf, "info").Info("frame", "seq", 3)

	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"seq":3`) {
		t.Errorf("expected JSON output, got %q", buf.String())
	}
}

func TestLevelHelpers_UseGlobalLogger(t *testing.T) {
	t.Setenv("GO_ENV", "")

	var buf bytes.Buffer
	prev := logger
	logger = New(&buf, "debug")
	defer func() { logger = prev }()

	Debug("d", "n", 1)
	Info("i")
	Warn("w")
	Error("e")

	out := buf.String()
	for _, want := range []string{"level=DEBUG msg=d n=1", "level=INFO msg=i", "level=WARN msg=w", "level=ERROR msg=e"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}
