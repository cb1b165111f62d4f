// Package mcp implements a Model Context Protocol server exposing mozdata
// lookups and analyses as MCP tools over stdio transport.
package mcp

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
	"github.com/Sumatoshi-tech/mozdata/pkg/version"
)

const serverName = "mozdata"

// ServerDeps holds the services the tools call and the optional
// instrumentation. Bugzilla and Mercurial are required. A tool whose
// analyzer is nil answers with ErrUnavailable.
type ServerDeps struct {
	Bugzilla    *bugzilla.Client
	Mercurial   *hgmozilla.Client
	BugAnalyzer *buganalysis.Analyzer
	StatusFlags *statusflags.Analyzer

	Logger  *slog.Logger
	Metrics *observability.REDMetrics
	Tracer  trace.Tracer
}

// Server is an MCP server with the mozdata tools registered.
type Server struct {
	inner  *mcpsdk.Server
	deps   ServerDeps
	logger *slog.Logger

	mu    sync.RWMutex
	tools []string
}

// NewServer creates a server with every tool registered.
func NewServer(deps ServerDeps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	srv := &Server{
		inner: mcpsdk.NewServer(
			&mcpsdk.Implementation{Name: serverName, Version: version.Version},
			&mcpsdk.ServerOptions{Logger: logger},
		),
		deps:   deps,
		logger: logger,
	}

	addTool(srv, ToolNameFollowDup, followDupToolDescription, srv.handleFollowDup)
	addTool(srv, ToolNameLandings, landingsToolDescription, srv.handleLandings)
	addTool(srv, ToolNameBugRisk, bugRiskToolDescription, srv.handleBugRisk)
	addTool(srv, ToolNameFileStats, fileStatsToolDescription, srv.handleFileStats)
	addTool(srv, ToolNameCrashFlags, crashFlagsToolDescription, srv.handleCrashFlags)

	return srv
}

// ListToolNames returns the sorted names of the registered tools.
func (s *Server) ListToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Sorted(slices.Values(s.tools))
}

// Run serves on stdio until ctx is canceled or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	return s.RunWithTransport(ctx, &mcpsdk.StdioTransport{})
}

// RunWithTransport serves on transport until ctx is canceled or the
// connection closes.
func (s *Server) RunWithTransport(ctx context.Context, transport mcpsdk.Transport) error {
	s.logger.InfoContext(ctx, "mcp server started", "tools", len(s.tools), "version", version.Version)

	err := s.inner.Run(ctx, transport)
	if err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}

	return nil
}

type toolHandler[Input any] = mcpsdk.ToolHandlerFor[Input, ToolOutput]

func addTool[Input any](s *Server, name, description string, handler toolHandler[Input]) {
	mcpsdk.AddTool(s.inner, &mcpsdk.Tool{Name: name, Description: description}, instrument(s, name, handler))

	s.mu.Lock()
	s.tools = append(s.tools, name)
	s.mu.Unlock()
}

const (
	// toolHostPrefix names tool calls in spans and RED metrics.
	toolHostPrefix = "mcp."
	traceIDMetaKey = "trace_id"
)

// instrument wraps a handler with a span, RED metrics and a debug log per
// call. A sampled span appends trace_id=<id> to the result content.
func instrument[Input any](s *Server, name string, handler toolHandler[Input]) toolHandler[Input] {
	host := toolHostPrefix + name

	return func(ctx context.Context, req *mcpsdk.CallToolRequest, input Input) (*mcpsdk.CallToolResult, ToolOutput, error) {
		start := time.Now()

		var span trace.Span
		if s.deps.Tracer != nil {
			ctx, span = s.deps.Tracer.Start(ctx, host,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(attribute.String("mcp.tool", name)),
			)
			defer span.End()
		}

		if s.deps.Metrics != nil {
			defer s.deps.Metrics.TrackInflight(ctx, host)()
		}

		result, output, err := handler(ctx, req, input)

		status := observability.StatusOK
		if err != nil || (result != nil && result.IsError) {
			status = observability.StatusError
		}

		elapsed := time.Since(start)

		if s.deps.Metrics != nil {
			s.deps.Metrics.RecordRequest(ctx, host, status, elapsed)
		}

		if span != nil {
			if status == observability.StatusError {
				span.SetStatus(codes.Error, "tool call failed")
			}

			sc := span.SpanContext()
			if sc.IsSampled() && result != nil {
				result.Content = append(result.Content,
					&mcpsdk.TextContent{Text: traceIDMetaKey + "=" + sc.TraceID().String()})
			}
		}

		s.logger.DebugContext(ctx, "tool call", "tool", name, "status", status, "elapsed", elapsed)

		return result, output, err
	}
}

const (
	followDupToolDescription = "Resolve Bugzilla duplicate chains. " +
		"Returns, per bug id, the final bug of its chain, null when the bug is not a duplicate, or cycle."

	landingsToolDescription = "List the Mercurial landings announced in a bug's comments " +
		"(channel, revision, comment number and revision URL)."

	bugRiskToolDescription = "Assess the risk of a bug's fix: back-outs, patch size, modules, " +
		"code churn, developer and reviewer familiarity, and optional uplift metrics."

	fileStatsToolDescription = "Summarize a file's Mercurial history and list the patches pushed " +
		"in the three days before a date (guilty patches)."

	crashFlagsToolDescription = "Find the bugs of the top crash signatures of a product and compose " +
		"the status flag updates and crash-volume comments for them. Nothing is posted to Bugzilla."
)
