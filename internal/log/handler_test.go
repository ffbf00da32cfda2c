package log_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	ctxlog "github.com/kaptiv/sequencer/internal/log"
	"github.com/kaptiv/sequencer/internal/requestid"
)

func logLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	return line
}

func TestContextHandler_AddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	ctx := requestid.WithRequestID(context.Background(), "req-123")
	logger.InfoContext(ctx, "hello")

	if got := logLine(t, &buf)["request_id"]; got != "req-123" {
		t.Errorf("request_id = %v, want req-123", got)
	}
}

func TestContextHandler_NoRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil)))

	logger.InfoContext(context.Background(), "hello")

	if _, ok := logLine(t, &buf)["request_id"]; ok {
		t.Error("request_id must be absent without one in the context")
	}
}

func TestContextHandler_CustomExtractor(t *testing.T) {
	var buf bytes.Buffer
	tenant := func(_ context.Context) []slog.Attr {
		return []slog.Attr{slog.String("owner_id", "owner-1")}
	}
	logger := slog.New(ctxlog.NewContextHandler(slog.NewJSONHandler(&buf, nil), tenant))

	logger.InfoContext(context.Background(), "hello")

	line := logLine(t, &buf)
	if line["owner_id"] != "owner-1" {
		t.Errorf("owner_id = %v, want owner-1", line["owner_id"])
	}
	if _, ok := line["request_id"]; ok {
		t.Error("explicit extractors replace the default set")
	}
}
