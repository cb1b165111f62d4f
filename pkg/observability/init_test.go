package observability_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

func TestInit_NoopByDefault(t *testing.T) {
	t.Parallel()

	providers, err := observability.Init(context.Background(), observability.DefaultConfig())
	require.NoError(t, err)

	assert.NotNil(t, providers.Tracer)
	assert.NotNil(t, providers.Meter)
	assert.NotNil(t, providers.Logger)
	assert.Nil(t, providers.MetricsHandler)

	require.NoError(t, providers.Shutdown(context.Background()))
	require.NoError(t, providers.Shutdown(context.Background()))
}

func TestInit_PrometheusHandler(t *testing.T) {
	t.Parallel()

	cfg := observability.DefaultConfig()
	cfg.Prometheus = true

	providers, err := observability.Init(context.Background(), cfg)
	require.NoError(t, err)

	t.Cleanup(func() { _ = providers.Shutdown(context.Background()) })

	red, err := observability.NewREDMetrics(providers.Meter)
	require.NoError(t, err)

	red.RecordRequest(context.Background(), "hg.mozilla.org", observability.StatusOK, 0)

	require.NotNil(t, providers.MetricsHandler)

	rec := httptest.NewRecorder()
	providers.MetricsHandler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "mozdata_client_requests")
}

func TestParseOTLPHeaders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{name: "empty", raw: "", want: nil},
		{name: "single", raw: "authorization=Bearer x", want: map[string]string{"authorization": "Bearer x"}},
		{name: "multiple", raw: " a = 1 ,b=2", want: map[string]string{"a": "1", "b": "2"}},
		{name: "invalid", raw: "novalue", want: nil},
		{name: "mixed", raw: "novalue,x-scope=mozdata", want: map[string]string{"x-scope": "mozdata"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, observability.ParseOTLPHeaders(tt.raw))
		})
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, observability.ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, observability.ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, observability.ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, observability.ParseLevel("chatty"))
	assert.Equal(t, slog.LevelWarn+2, observability.ParseLevel("warn+2"))
}

func TestNewLogger_AddsServiceAttributes(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true
	cfg.Environment = "test"

	logger := observability.NewLogger(&buf, cfg)
	logger.Info("hello", "bug", 42)

	out := buf.String()
	assert.Contains(t, out, `"service":"mozdata"`)
	assert.Contains(t, out, `"mode":"cli"`)
	assert.Contains(t, out, `"env":"test"`)
	assert.Contains(t, out, `"bug":42`)
}

func TestNewLogger_TraceContext(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true

	_, tracer := newTestTracer()
	ctx, span := tracer.Start(context.Background(), "op")

	observability.NewLogger(&buf, cfg).InfoContext(ctx, "inside")
	span.End()

	assert.Contains(t, buf.String(), span.SpanContext().TraceID().String())
}

func TestNewLogger_HidesSecrets(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	cfg := observability.DefaultConfig()
	cfg.LogJSON = true

	observability.NewLogger(&buf, cfg).Info("configured", "token", "bz-secret", "Api_Key", "k", "url", "https://bugzilla.mozilla.org")

	out := buf.String()
	assert.NotContains(t, out, "bz-secret")
	assert.Contains(t, out, `"token":"[redacted]"`)
	assert.Contains(t, out, `"Api_Key":"[redacted]"`)
	assert.Contains(t, out, `"url":"https://bugzilla.mozilla.org"`)
}

func TestServeMetrics(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	addr, err := observability.ServeMetrics(ctx, "127.0.0.1:0", handler, slog.Default())
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr.String()+"/metrics", http.NoBody)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
