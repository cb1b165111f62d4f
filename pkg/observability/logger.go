package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

const (
	attrTraceID = "trace_id"
	attrSpanID  = "span_id"
	attrService = "service"
	attrEnv     = "env"
	attrMode    = "mode"

	redacted = "[redacted]"
)

// secretKeys are log attribute keys whose values are never written. The
// Bugzilla API key and the Socorro token are configured per service.
var secretKeys = []string{"token", "api_key", "apikey", "password", "authorization", "auth-token"}

// spanContextHandler stamps records with the ids of the span found in
// their context.
type spanContextHandler struct {
	slog.Handler
}

// Handle adds trace_id and span_id when ctx carries a valid span.
func (h spanContextHandler) Handle(ctx context.Context, record slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		record.AddAttrs(
			slog.String(attrTraceID, sc.TraceID().String()),
			slog.String(attrSpanID, sc.SpanID().String()),
		)
	}

	err := h.Handler.Handle(ctx, record)
	if err != nil {
		return fmt.Errorf("log handler: %w", err)
	}

	return nil
}

func (h spanContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanContextHandler{h.Handler.WithAttrs(attrs)}
}

func (h spanContextHandler) WithGroup(name string) slog.Handler {
	return spanContextHandler{h.Handler.WithGroup(name)}
}

func hideSecrets(_ []string, a slog.Attr) slog.Attr {
	if slices.Contains(secretKeys, strings.ToLower(a.Key)) {
		return slog.String(a.Key, redacted)
	}

	return a
}

// NewLogger builds the mozdata logger writing to w. Service attributes are
// attached at the top level, outside any group.
func NewLogger(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel, ReplaceAttr: hideSecrets}

	var base slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogJSON {
		base = slog.NewJSONHandler(w, opts)
	}

	attrs := []slog.Attr{
		slog.String(attrService, cfg.ServiceName),
		slog.String(attrMode, string(cfg.Mode)),
	}

	if cfg.Environment != "" {
		attrs = append(attrs, slog.String(attrEnv, cfg.Environment))
	}

	return slog.New(spanContextHandler{base.WithAttrs(attrs)})
}
