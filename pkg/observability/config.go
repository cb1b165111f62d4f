// Package observability provides OpenTelemetry tracing, metrics and
// structured logging for every mozdata mode (CLI and MCP).
package observability

import (
	"log/slog"
	"strings"
	"time"
)

// AppMode identifies how the binary was launched.
type AppMode string

const (
	// ModeCLI is a one-shot CLI command.
	ModeCLI AppMode = "cli"
	// ModeMCP is the MCP stdio server.
	ModeMCP AppMode = "mcp"
)

const (
	defaultServiceName     = "mozdata"
	defaultShutdownTimeout = 5 * time.Second
)

// Config holds all observability configuration.
type Config struct {
	// ServiceName is the OTel resource service name.
	ServiceName string

	// ServiceVersion is the version of the running binary.
	ServiceVersion string

	// Environment is the deployment environment (e.g. "production", "dev").
	Environment string

	// Mode identifies how the binary was launched.
	Mode AppMode

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables export.
	OTLPEndpoint string

	// OTLPHeaders are extra gRPC metadata headers for the exporters.
	OTLPHeaders map[string]string

	// OTLPInsecure disables TLS towards the collector.
	OTLPInsecure bool

	// Prometheus attaches a Prometheus reader to the meter provider and
	// exposes its scrape handler in Providers.MetricsHandler.
	Prometheus bool

	// DebugTrace forces 100% sampling.
	DebugTrace bool

	// SampleRatio is the root sampling ratio when DebugTrace is false.
	SampleRatio float64

	// LogLevel is the minimum slog severity.
	LogLevel slog.Level

	// LogJSON switches the log output to JSON.
	LogJSON bool

	// ShutdownTimeout bounds the final flush.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns a zero-export configuration.
func DefaultConfig() Config {
	return Config{
		ServiceName:     defaultServiceName,
		Mode:            ModeCLI,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}
}

// ParseLevel reads a slog level name ("debug", "INFO", "warn+2") and also
// accepts "warning". Anything else is info.
func ParseLevel(raw string) slog.Level {
	raw = strings.TrimSpace(raw)
	if strings.EqualFold(raw, "warning") {
		raw = "warn"
	}

	var level slog.Level

	err := level.UnmarshalText([]byte(raw))
	if err != nil {
		return slog.LevelInfo
	}

	return level
}
