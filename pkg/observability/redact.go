package observability

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// attrAction is what the redactor does with one span attribute.
type attrAction int

const (
	attrDrop attrAction = iota
	attrKeep
	// attrMask keeps the attribute with the email addresses of its string
	// value masked.
	attrMask
)

// attrRules are matched in order against the attribute key; the first
// prefix that matches decides. Keys matching no rule are dropped.
var attrRules = []struct {
	prefix string
	action attrAction
}{
	{"user.", attrDrop},
	{"auth.", attrDrop},
	{"email", attrDrop},
	{"http.request.header", attrDrop},
	{"request.body", attrDrop},
	{"response.body", attrDrop},
	{"url.", attrMask},
	{"bug.", attrMask},
	{"mozdata.", attrMask},
	{"mcp.", attrMask},
	{"error", attrMask},
	{"http.", attrKeep},
	{"server.", attrKeep},
	{"connection.", attrKeep},
	{"query.", attrKeep},
	{"product.", attrKeep},
	{"analysis.", attrKeep},
}

func actionFor(key string) attrAction {
	for _, rule := range attrRules {
		if strings.HasPrefix(key, rule.prefix) {
			return rule.action
		}
	}

	return attrDrop
}

// emailPattern also matches URL-encoded addresses, as found in Bugzilla
// user searches.
var emailPattern = regexp.MustCompile(`([A-Za-z0-9._+-])[A-Za-z0-9._%+-]*(@|%40)([A-Za-z0-9-]+(?:\.[A-Za-z0-9-]+)+)`)

// MaskEmails keeps the first letter of the local part of every email
// address in s: "dbaron@dbaron.org" becomes "d***@dbaron.org".
func MaskEmails(s string) string {
	return emailPattern.ReplaceAllString(s, "${1}***${2}${3}")
}

// redactor is a SpanProcessor that applies attrRules before handing
// spans to its delegate. Reporters, assignees and patch authors are
// identified by email, which must not reach the collector.
type redactor struct {
	delegate sdktrace.SpanProcessor
	logger   *slog.Logger
}

// NewRedactingProcessor wraps delegate. When logger is non-nil every
// dropped key is logged at debug level.
func NewRedactingProcessor(delegate sdktrace.SpanProcessor, logger *slog.Logger) sdktrace.SpanProcessor {
	return &redactor{delegate: delegate, logger: logger}
}

// OnStart delegates to the wrapped processor.
func (r *redactor) OnStart(parent context.Context, s sdktrace.ReadWriteSpan) {
	r.delegate.OnStart(parent, s)
}

// OnEnd hands a redacted view of s to the wrapped processor.
func (r *redactor) OnEnd(s sdktrace.ReadOnlySpan) {
	r.delegate.OnEnd(&redactedSpan{ReadOnlySpan: s, attrs: r.redact(s.Attributes())})
}

// Shutdown delegates to the wrapped processor.
func (r *redactor) Shutdown(ctx context.Context) error {
	err := r.delegate.Shutdown(ctx)
	if err != nil {
		return fmt.Errorf("redactor shutdown: %w", err)
	}

	return nil
}

// ForceFlush delegates to the wrapped processor.
func (r *redactor) ForceFlush(ctx context.Context) error {
	err := r.delegate.ForceFlush(ctx)
	if err != nil {
		return fmt.Errorf("redactor flush: %w", err)
	}

	return nil
}

func (r *redactor) redact(attrs []attribute.KeyValue) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))

	for _, kv := range attrs {
		switch actionFor(string(kv.Key)) {
		case attrKeep:
			out = append(out, kv)
		case attrMask:
			if kv.Value.Type() == attribute.STRING {
				kv = kv.Key.String(MaskEmails(kv.Value.AsString()))
			}

			out = append(out, kv)
		default:
			if r.logger != nil {
				r.logger.Debug("span attribute dropped", "key", string(kv.Key))
			}
		}
	}

	return out
}

// redactedSpan serves the attributes computed once in OnEnd.
type redactedSpan struct {
	sdktrace.ReadOnlySpan

	attrs []attribute.KeyValue
}

// Attributes returns the redacted attributes.
func (s *redactedSpan) Attributes() []attribute.KeyValue {
	return s.attrs
}
