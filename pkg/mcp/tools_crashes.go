package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
)

// handleCrashFlags processes mozdata_crash_flags tool calls. Updates are
// always composed without being posted.
func (s *Server) handleCrashFlags(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input CrashFlagsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.StatusFlags == nil {
		return errorResult(fmt.Errorf("%w: %s", ErrUnavailable, ToolNameCrashFlags))
	}

	for _, id := range input.BugIDs {
		err := validateBugID(id)
		if err != nil {
			return errorResult(err)
		}
	}

	now := time.Now()

	var start, end time.Time

	if input.Start != "" {
		t, err := ParseDate(input.Start, now)
		if err != nil {
			return errorResult(err)
		}

		start = t
	}

	if input.End != "" {
		t, err := ParseDate(input.End, now)
		if err != nil {
			return errorResult(err)
		}

		end = t
	}

	res, err := s.deps.StatusFlags.Analyze(ctx, statusflags.Input{
		Product:    input.Product,
		Signatures: input.Signatures,
		BugIDs:     input.BugIDs,
		Start:      start,
		End:        end,
		Limit:      input.Limit,
		DryRun:     true,
	})
	if errors.Is(err, statusflags.ErrUnknownProduct) {
		return errorResult(err)
	}

	if err != nil {
		return errorResult(fmt.Errorf("crash flags: %w", err))
	}

	return jsonResult(res)
}
