package mcp

import (
	"context"
	"fmt"
	"slices"
	"strconv"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

// LandingOutput is one landing reported by mozdata_landings.
type LandingOutput struct {
	Channel  string `json:"channel"`
	Revision string `json:"revision"`
	Comment  int    `json:"comment"`
	URL      string `json:"url"`
}

// handleFollowDup processes mozdata_follow_dup tool calls.
func (s *Server) handleFollowDup(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input FollowDupInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if len(input.BugIDs) == 0 {
		return errorResult(ErrNoBugIDs)
	}

	if len(input.BugIDs) > MaxBugIDs {
		return errorResult(fmt.Errorf("%w: %d (max %d)", ErrTooManyBugIDs, len(input.BugIDs), MaxBugIDs))
	}

	for _, id := range input.BugIDs {
		err := validateBugID(id)
		if err != nil {
			return errorResult(err)
		}
	}

	dups, err := s.deps.Bugzilla.FollowDup(ctx, input.BugIDs)
	if err != nil {
		return errorResult(fmt.Errorf("follow duplicates: %w", err))
	}

	out := make(map[string]*int, len(dups))

	for id, d := range dups {
		key := strconv.Itoa(id)

		switch {
		case d.Cycle:
			cycle := -1
			out[key] = &cycle
		case d.Final == 0:
			out[key] = nil
		default:
			final := d.Final
			out[key] = &final
		}
	}

	return jsonResult(out)
}

// handleLandings processes mozdata_landings tool calls.
func (s *Server) handleLandings(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input LandingsInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	err := validateBugID(input.BugID)
	if err != nil {
		return errorResult(err)
	}

	landings, err := s.deps.Bugzilla.Landings(ctx, input.BugID, input.Channels...)
	if err != nil {
		return errorResult(err)
	}

	out := make([]LandingOutput, 0, len(landings))
	for _, l := range landings {
		out = append(out, LandingOutput{
			Channel:  l.Channel,
			Revision: l.Revision,
			Comment:  l.Comment.Count,
			URL:      bugzilla.LandingURL(l.Channel, l.Revision),
		})
	}

	return jsonResult(out)
}

// handleBugRisk processes mozdata_bug_risk tool calls.
func (s *Server) handleBugRisk(
	ctx context.Context,
	_ *mcpsdk.CallToolRequest,
	input BugRiskInput,
) (*mcpsdk.CallToolResult, ToolOutput, error) {
	if s.deps.BugAnalyzer == nil {
		return errorResult(fmt.Errorf("%w: %s", ErrUnavailable, ToolNameBugRisk))
	}

	err := validateBugID(input.BugID)
	if err != nil {
		return errorResult(err)
	}

	if input.Uplift != "" && !slices.Contains(buganalysis.ReleaseChannels, input.Uplift) {
		return errorResult(fmt.Errorf("%w: %s", ErrUnknownChannel, input.Uplift))
	}

	report, err := s.deps.BugAnalyzer.Analyze(ctx, buganalysis.Input{BugID: input.BugID, Uplift: input.Uplift})
	if err != nil {
		return errorResult(fmt.Errorf("analyze bug %d: %w", input.BugID, err))
	}

	return jsonResult(report)
}
