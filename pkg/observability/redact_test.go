package observability_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

func TestRedactingProcessor(t *testing.T) {
	t.Parallel()

	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(
		observability.NewRedactingProcessor(sdktrace.NewSimpleSpanProcessor(exporter), nil)))

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.SetAttributes(
		attribute.String("mozdata.product", "Firefox"),
		attribute.Int("bug.id", 1234),
		attribute.String("bug.assignee", "philringnalda@gmail.com"),
		attribute.String("url.full", "https://bugzilla.mozilla.org/rest/user?match=dbaron%40dbaron.org"),
		attribute.String("http.request.method", "GET"),
		attribute.String("email", "someone@mozilla.com"),
		attribute.String("user.name", "someone"),
		attribute.String("auth.token", "secret"),
		attribute.String("random.key", "x"),
		attribute.Bool("error", true),
	)
	span.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	got := map[string]attribute.Value{}
	for _, kv := range spans[0].Attributes {
		got[string(kv.Key)] = kv.Value
	}

	assert.ElementsMatch(t,
		[]string{"mozdata.product", "bug.id", "bug.assignee", "url.full", "http.request.method", "error"},
		keysOf(got))
	assert.Equal(t, "p***@gmail.com", got["bug.assignee"].AsString())
	assert.Equal(t, "https://bugzilla.mozilla.org/rest/user?match=d***%40dbaron.org", got["url.full"].AsString())
	assert.Equal(t, int64(1234), got["bug.id"].AsInt64())

	require.NoError(t, tp.Shutdown(context.Background()))
}

func keysOf(m map[string]attribute.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}

func TestMaskEmails(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]string{
		"dbaron@dbaron.org":                     "d***@dbaron.org",
		"r=shaver@mozilla.org, gerv@mozilla.org": "r=s***@mozilla.org, g***@mozilla.org",
		"no address here":                       "no address here",
		"mozilla-central":                       "mozilla-central",
	} {
		assert.Equal(t, want, observability.MaskEmails(in), in)
	}
}
