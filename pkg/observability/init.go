package observability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	noopmetric "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"
)

const instrumentationName = "mozdata"

// Standard OTel sampler variables, honoured unless DebugTrace is set.
const (
	envTracesSampler    = "OTEL_TRACES_SAMPLER"
	envTracesSamplerArg = "OTEL_TRACES_SAMPLER_ARG"
)

// Providers bundles what Init built.
type Providers struct {
	Tracer trace.Tracer
	Meter  metric.Meter
	Logger *slog.Logger

	// MetricsHandler is the Prometheus scrape handler, nil unless
	// Config.Prometheus is set.
	MetricsHandler http.Handler

	// Shutdown flushes the exporters. Later calls are no-ops.
	Shutdown func(ctx context.Context) error
}

// Init builds the tracer, meter and logger for cfg and installs them as the
// OTel globals. With neither an OTLP endpoint nor Prometheus, tracing and
// metrics are no-ops.
func Init(ctx context.Context, cfg Config) (Providers, error) {
	res, err := newResource(ctx, cfg)
	if err != nil {
		return Providers{}, err
	}

	var closers []func(context.Context) error

	tp, err := newTracerProvider(ctx, cfg, res, &closers)
	if err != nil {
		return Providers{}, fmt.Errorf("build tracer provider: %w", err)
	}

	mp, handler, err := newMeterProvider(ctx, cfg, res, &closers)
	if err != nil {
		return Providers{}, errors.Join(fmt.Errorf("build meter provider: %w", err), closeAll(ctx, closers))
	}

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	timeout := cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	var once sync.Once

	shutdown := func(ctx context.Context) error {
		var err error

		once.Do(func() {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			err = closeAll(ctx, closers)
		})

		return err
	}

	return Providers{
		Tracer:         tp.Tracer(instrumentationName),
		Meter:          mp.Meter(instrumentationName),
		Logger:         NewLogger(os.Stderr, cfg),
		MetricsHandler: handler,
		Shutdown:       shutdown,
	}, nil
}

func closeAll(ctx context.Context, closers []func(context.Context) error) error {
	errs := make([]error, 0, len(closers))
	for _, c := range closers {
		errs = append(errs, c(ctx))
	}

	return errors.Join(errs...)
}

func newResource(ctx context.Context, cfg Config) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{semconv.ServiceName(cfg.ServiceName)}

	for _, opt := range []struct {
		value string
		attr  func(string) attribute.KeyValue
	}{
		{cfg.ServiceVersion, semconv.ServiceVersion},
		{cfg.Environment, semconv.DeploymentEnvironment},
		{string(cfg.Mode), attribute.Key("app.mode").String},
	} {
		if opt.value != "" {
			attrs = append(attrs, opt.attr(opt.value))
		}
	}

	res, err := resource.New(ctx, resource.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("build otel resource: %w", err)
	}

	return res, nil
}

// grpcOptions maps the shared OTLP settings onto one exporter's options.
func grpcOptions[O any](cfg Config, endpoint func(string) O, insecure func() O, headers func(map[string]string) O) []O {
	opts := []O{endpoint(cfg.OTLPEndpoint)}

	if cfg.OTLPInsecure {
		opts = append(opts, insecure())
	}

	if len(cfg.OTLPHeaders) > 0 {
		opts = append(opts, headers(cfg.OTLPHeaders))
	}

	return opts
}

func newTracerProvider(
	ctx context.Context, cfg Config, res *resource.Resource, closers *[]func(context.Context) error,
) (trace.TracerProvider, error) {
	if cfg.OTLPEndpoint == "" {
		return nooptrace.NewTracerProvider(), nil
	}

	exporter, err := otlptracegrpc.New(ctx, grpcOptions(cfg,
		otlptracegrpc.WithEndpoint, otlptracegrpc.WithInsecure, otlptracegrpc.WithHeaders)...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	var redactLog *slog.Logger
	if cfg.DebugTrace {
		redactLog = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(NewRedactingProcessor(sdktrace.NewBatchSpanProcessor(exporter), redactLog)),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg)),
	)
	*closers = append(*closers, tp.Shutdown)

	return tp, nil
}

// samplers are the OTEL_TRACES_SAMPLER values understood, fed the ratio
// from OTEL_TRACES_SAMPLER_ARG.
var samplers = map[string]func(ratio float64) sdktrace.Sampler{
	"always_on":    func(float64) sdktrace.Sampler { return sdktrace.AlwaysSample() },
	"always_off":   func(float64) sdktrace.Sampler { return sdktrace.NeverSample() },
	"traceidratio": sdktrace.TraceIDRatioBased,
	"parentbased_always_on": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	},
	"parentbased_always_off": func(float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.NeverSample())
	},
	"parentbased_traceidratio": func(ratio float64) sdktrace.Sampler {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	},
}

func sampler(cfg Config) sdktrace.Sampler {
	if cfg.DebugTrace {
		return sdktrace.AlwaysSample()
	}

	if build, ok := samplers[os.Getenv(envTracesSampler)]; ok {
		ratio, err := strconv.ParseFloat(os.Getenv(envTracesSamplerArg), 64)
		if err != nil {
			ratio = 1
		}

		return build(ratio)
	}

	if cfg.SampleRatio > 0 {
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRatio))
	}

	return sdktrace.ParentBased(sdktrace.AlwaysSample())
}

func newMeterProvider(
	ctx context.Context, cfg Config, res *resource.Resource, closers *[]func(context.Context) error,
) (metric.MeterProvider, http.Handler, error) {
	if cfg.OTLPEndpoint == "" && !cfg.Prometheus {
		return noopmetric.NewMeterProvider(), nil, nil
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		exporter, err := otlpmetricgrpc.New(ctx, grpcOptions(cfg,
			otlpmetricgrpc.WithEndpoint, otlpmetricgrpc.WithInsecure, otlpmetricgrpc.WithHeaders)...)
		if err != nil {
			return nil, nil, fmt.Errorf("create metric exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)))
	}

	var handler http.Handler

	if cfg.Prometheus {
		registry := prometheus.NewRegistry()

		reader, err := promexporter.New(promexporter.WithRegisterer(registry))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}

		opts = append(opts, sdkmetric.WithReader(reader))
		handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	*closers = append(*closers, mp.Shutdown)

	return mp, handler, nil
}

// ParseOTLPHeaders reads the OTEL_EXPORTER_OTLP_HEADERS "k=v,k=v" form.
// Pairs without "=" are ignored; nil when nothing remains.
func ParseOTLPHeaders(raw string) map[string]string {
	var headers map[string]string

	for pair := range strings.SplitSeq(raw, ",") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}

		if headers == nil {
			headers = make(map[string]string)
		}

		headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}

	return headers
}
