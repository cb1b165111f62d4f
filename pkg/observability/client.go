package observability

import (
	"context"
	"net/url"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const clientSpanPrefix = "mozdata.http."

// StartClientSpan opens a client span for one outbound request. The returned
// function ends the span, recording the HTTP status and any transport error.
// Query strings are dropped from the recorded URL since they may carry
// tokens or email addresses.
func StartClientSpan(
	ctx context.Context, tracer trace.Tracer, method, target, connectionID string,
) (context.Context, func(status int, err error)) {
	host, path := splitTarget(target)

	ctx, span := tracer.Start(ctx, clientSpanPrefix+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("server.address", host),
			attribute.String("url.path", path),
			attribute.String("connection.id", connectionID),
		),
	)

	return ctx, func(status int, err error) {
		if status > 0 {
			span.SetAttributes(attribute.Int("http.response.status_code", status))
		}

		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case status >= 400:
			span.SetStatus(codes.Error, "unexpected status")
		}

		span.End()
	}
}

func splitTarget(target string) (host, path string) {
	u, err := url.Parse(target)
	if err != nil {
		return "", ""
	}

	return u.Host, u.Path
}
