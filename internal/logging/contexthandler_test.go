package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestWithAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, slog.LevelDebug)

	ctx := WithAttrs(context.Background(), slog.String("run_id", "abc"))
	child := WithAttrs(ctx, slog.String("stage", "captions"))
	logger.InfoContext(child, "stage done")
	logger.InfoContext(ctx, "parent")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if expected, actual := 2, len(lines); expected != actual {
		t.Fatalf("Expected %d log lines, got %d", expected, actual)
	}
	if !strings.Contains(lines[0], "run_id=abc") || !strings.Contains(lines[0], "stage=captions") {
		t.Errorf("Expected child attrs on first line, got %q", lines[0])
	}
	if strings.Contains(lines[1], "stage=") {
		t.Errorf("Child attrs leaked into parent context: %q", lines[1])
	}
}

func TestWithAttrsOnLoggerKeepsContextAttrs(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := NewLogger(buf, slog.LevelInfo).With("component", "pipeline")

	ctx := WithAttrs(context.Background(), slog.String("run_id", "xyz"))
	logger.DebugContext(ctx, "hidden")
	logger.InfoContext(ctx, "shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Debug record should be filtered at info level")
	}
	if !strings.Contains(out, "component=pipeline") || !strings.Contains(out, "run_id=xyz") {
		t.Errorf("Expected both logger and context attrs, got %q", out)
	}
}
