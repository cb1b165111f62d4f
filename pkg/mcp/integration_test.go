package mcp_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/goccy/go-json"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/Sumatoshi-tech/mozdata/internal/fakemoz"
	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/identity"
	"github.com/Sumatoshi-tech/mozdata/pkg/mcp"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
)

func newServer(t *testing.T) *mcp.Server {
	t.Helper()

	return mcp.NewServer(newDeps(t))
}

func newDeps(t *testing.T) mcp.ServerDeps {
	t.Helper()

	srv := fakemoz.New(t)
	srv.Seed()

	logger := slog.New(slog.DiscardHandler)
	opts := []query.Option{
		query.WithHTTPClient(srv.Client()),
		query.WithRetryPolicy(query.NoRetry()),
		query.WithLogger(logger),
	}

	bz := bugzilla.New(bugzilla.Config{URL: srv.URL}, opts...)
	hg := hgmozilla.New(hgmozilla.Config{URL: srv.URL}, opts...)
	patches := patchanalysis.New(filehistory.NewStore(hg, filehistory.WithLogger(logger)),
		patchanalysis.WithLogger(logger))
	resolver := identity.NewResolver(bz, identity.NewCache(), identity.WithLogger(logger))

	sc := socorro.New(socorro.Config{URL: srv.URL}, opts...)

	return mcp.ServerDeps{
		Bugzilla:    bz,
		Mercurial:   hg,
		BugAnalyzer: buganalysis.New(bz, hg, patches, resolver, buganalysis.WithLogger(logger)),
		StatusFlags: statusflags.New(bz, sc, statusflags.WithLogger(logger)),
		Logger:      logger,
	}
}

// connect runs srv on an in-memory transport and returns a client session.
func connect(t *testing.T, srv *mcp.Server) (context.Context, *mcpsdk.ClientSession) {
	t.Helper()

	clientTransport, serverTransport := mcpsdk.NewInMemoryTransports()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)

	serverDone := make(chan error, 1)

	go func() {
		serverDone <- srv.RunWithTransport(ctx, serverTransport)
	}()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "test-client",
		Version: "1.0.0",
	}, nil)

	session, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = session.Close()

		cancel()
		<-serverDone
	})

	return ctx, session
}

func callTool(ctx context.Context, t *testing.T, session *mcpsdk.ClientSession, name string, args map[string]any) *mcpsdk.CallToolResult {
	t.Helper()

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	return result
}

func text(t *testing.T, result *mcpsdk.CallToolResult) string {
	t.Helper()

	content, ok := result.Content[0].(*mcpsdk.TextContent)
	require.True(t, ok)

	return content.Text
}

func TestMCPServer_InMemoryTransport_ToolsList(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	ctx, session := connect(t, srv)

	toolsResult, err := session.ListTools(ctx, nil)
	require.NoError(t, err)
	require.NotNil(t, toolsResult)

	toolNames := make([]string, 0, len(toolsResult.Tools))
	for _, tool := range toolsResult.Tools {
		toolNames = append(toolNames, tool.Name)
	}

	assert.ElementsMatch(t, srv.ListToolNames(), toolNames)
	assert.Len(t, toolNames, 5)

	for _, tool := range toolsResult.Tools {
		assert.NotNil(t, tool.InputSchema, "tool %s missing input schema", tool.Name)
	}
}

func TestMCPServer_FollowDup(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameFollowDup, map[string]any{
		"bug_ids": []int{1244129, 890156, 784349},
	})
	require.False(t, result.IsError, text(t, result))

	var got map[string]*int
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	require.Len(t, got, 3)
	require.NotNil(t, got["1244129"])
	assert.Equal(t, 1240533, *got["1244129"])
	assert.Nil(t, got["890156"])
	require.NotNil(t, got["784349"])
	assert.Equal(t, 784345, *got["784349"])
}

func TestMCPServer_FollowDup_Empty(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameFollowDup, map[string]any{"bug_ids": []int{}})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "bug_ids parameter is required")
}

func TestMCPServer_Landings(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameLandings, map[string]any{
		"bug_id":   fakemoz.LandingsBugID,
		"channels": []string{"inbound", "central", "beta"},
	})
	require.False(t, result.IsError, text(t, result))

	var got []mcp.LandingOutput
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	require.Len(t, got, 3)
	assert.Equal(t, mcp.LandingOutput{
		Channel:  "inbound",
		Revision: fakemoz.InboundLanding,
		Comment:  2,
		URL:      "https://hg.mozilla.org/integration/mozilla-inbound/rev/" + fakemoz.InboundLanding,
	}, got[0])
	assert.Equal(t, fakemoz.CentralLanding, got[1].Revision)
	assert.Equal(t, fakemoz.BetaLanding, got[2].Revision)
}

func TestMCPServer_Landings_UnknownChannel(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameLandings, map[string]any{
		"bug_id":   fakemoz.LandingsBugID,
		"channels": []string{"trunk"},
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "trunk")
}

func TestMCPServer_BugRisk(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameBugRisk, map[string]any{"bug_id": fakemoz.RiskBugID})
	require.False(t, result.IsError, text(t, result))

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	assert.InDelta(t, 640, got["changes_size"], 0)
	assert.InDelta(t, 11, got["comments"], 0)
	assert.Equal(t, fakemoz.RiskAssignee, got["assignee"])
}

func TestMCPServer_BugRisk_InvalidInput(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameBugRisk, map[string]any{"bug_id": 0})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "positive integer")

	result = callTool(ctx, t, session, mcp.ToolNameBugRisk, map[string]any{"bug_id": 1, "uplift": "trunk"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "unknown channel")
}

func TestMCPServer_FileStats(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameFileStats, map[string]any{
		"path": fakemoz.LicensePath,
		"date": "2010-04-06",
	})
	require.False(t, result.IsError, text(t, result))

	var got filehistory.FileStats
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &got))

	assert.Equal(t, fakemoz.LicensePath, got.Path)
	require.NotNil(t, got.Guilty)
	assert.Equal(t, fakemoz.RiskAssignee, got.Guilty.MainAuthor)
	assert.Len(t, got.Guilty.Bugs, 1)

	result = callTool(ctx, t, session, mcp.ToolNameFileStats, map[string]any{
		"path":        fakemoz.LicensePath,
		"date":        "2010-04-09",
		"guilty_only": true,
	})
	require.False(t, result.IsError, text(t, result))
	assert.Equal(t, "null", text(t, result))
}

func TestMCPServer_FileStats_BadDate(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameFileStats, map[string]any{
		"path": fakemoz.LicensePath,
		"date": "April 6th",
	})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "YYYY-MM-DD")
}

func TestParseDate(t *testing.T) {
	t.Parallel()

	now := time.Date(2020, 1, 2, 3, 4, 5, 0, time.UTC)

	got, err := mcp.ParseDate("", now)
	require.NoError(t, err)
	assert.Equal(t, now, got)

	got, err = mcp.ParseDate("2010-04-06", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2010, 4, 6, 0, 0, 0, 0, time.UTC), got)

	got, err = mcp.ParseDate("2010-04-06T12:00:00+02:00", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2010, 4, 6, 10, 0, 0, 0, time.UTC), got)

	_, err = mcp.ParseDate("06/04/2010", now)
	require.ErrorIs(t, err, mcp.ErrInvalidDate)
}

func TestMCPServer_CrashFlags_InvalidInput(t *testing.T) {
	t.Parallel()

	ctx, session := connect(t, newServer(t))

	result := callTool(ctx, t, session, mcp.ToolNameCrashFlags, map[string]any{"product": "Thunderbird"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "unknown product")

	result = callTool(ctx, t, session, mcp.ToolNameCrashFlags, map[string]any{"start": "last week"})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "YYYY-MM-DD")

	result = callTool(ctx, t, session, mcp.ToolNameCrashFlags, map[string]any{"bug_ids": []int{-3}})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "positive integer")
}

func TestMCPServer_Unavailable(t *testing.T) {
	t.Parallel()

	deps := newDeps(t)
	deps.BugAnalyzer = nil
	deps.StatusFlags = nil

	ctx, session := connect(t, mcp.NewServer(deps))

	result := callTool(ctx, t, session, mcp.ToolNameCrashFlags, map[string]any{})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), mcp.ToolNameCrashFlags)

	result = callTool(ctx, t, session, mcp.ToolNameBugRisk, map[string]any{"bug_id": fakemoz.RiskBugID})
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "not available")
}

func TestMCPServer_Instrumented(t *testing.T) {
	t.Parallel()

	red, err := observability.NewREDMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.AlwaysSample()))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	deps := newDeps(t)
	deps.Metrics = red
	deps.Tracer = tp.Tracer("test")

	ctx, session := connect(t, mcp.NewServer(deps))

	result := callTool(ctx, t, session, mcp.ToolNameFollowDup, map[string]any{"bug_ids": []int{890156}})
	require.False(t, result.IsError, text(t, result))
	require.Len(t, result.Content, 2)

	traceContent, ok := result.Content[1].(*mcpsdk.TextContent)
	require.True(t, ok)
	assert.Regexp(t, `^trace_id=[0-9a-f]{32}$`, traceContent.Text)
}
