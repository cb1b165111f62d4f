package mcp

import (
	"context"
	"fmt"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
)

// handleFileStats processes mozdata_file_stats tool calls.
func (s *Server) handleFileStats(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input FileStatsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	path := strings.TrimPrefix(strings.TrimSpace(input.Path), "/")
	if path == "" {
		return errorResult(ErrEmptyPath)
	}

	at, err := ParseDate(input.Date, time.Now())
	if err != nil {
		return errorResult(err)
	}

	node := input.Node
	if node == "" {
		node = patchanalysis.DefaultNode
	}

	opts := []filehistory.Option{filehistory.WithLogger(s.logger)}
	if input.Channel != "" {
		opts = append(opts, filehistory.WithChannel(input.Channel))
	}

	stats, err := filehistory.NewStore(s.deps.Mercurial, opts...).Stats(ctx, path, node, at, input.GuiltyOnly)
	if err != nil {
		return errorResult(fmt.Errorf("file stats %s: %w", path, err))
	}

	return jsonResult(stats)
}

// ParseDate reads a YYYY-MM-DD date or an RFC 3339 timestamp as UTC. An
// empty value is now.
func ParseDate(raw string, now time.Time) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return now.UTC(), nil
	}

	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		t, err := time.Parse(layout, raw)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
}
