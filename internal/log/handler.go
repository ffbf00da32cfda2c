package log

import (
	"context"
	"log/slog"

	"github.com/kaptiv/sequencer/internal/requestid"
)

// Extractor pulls zero or more attributes out of a context. Used to enrich
// records with request-scoped values without threading them through every
// call site.
type Extractor func(ctx context.Context) []slog.Attr

// RequestID extracts the request_id set by the HTTP middleware.
func RequestID(ctx context.Context) []slog.Attr {
	if id := requestid.FromContext(ctx); id != "" {
		return []slog.Attr{slog.String("request_id", id)}
	}
	return nil
}

// ContextHandler wraps an slog.Handler and runs each extractor against the
// record's context before delegating to inner.
type ContextHandler struct {
	inner      slog.Handler
	extractors []Extractor
}

func NewContextHandler(inner slog.Handler, extractors ...Extractor) *ContextHandler {
	if len(extractors) == 0 {
		extractors = []Extractor{RequestID}
	}
	return &ContextHandler{inner: inner, extractors: extractors}
}

func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	for _, extract := range h.extractors {
		if attrs := extract(ctx); len(attrs) > 0 {
			r.AddAttrs(attrs...)
		}
	}
	return h.inner.Handle(ctx, r)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{inner: h.inner.WithAttrs(attrs), extractors: h.extractors}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), extractors: h.extractors}
}
