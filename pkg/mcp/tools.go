package mcp

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Tool name constants.
const (
	ToolNameFollowDup = "mozdata_follow_dup"
	ToolNameLandings  = "mozdata_landings"
	ToolNameBugRisk   = "mozdata_bug_risk"
	ToolNameFileStats = "mozdata_file_stats"

	ToolNameCrashFlags = "mozdata_crash_flags"
)

// MaxBugIDs bounds the ids accepted by one follow_dup call.
const MaxBugIDs = 500

// Sentinel errors for tool input validation.
var (
	// ErrNoBugIDs indicates the bug_ids parameter is empty.
	ErrNoBugIDs = errors.New("bug_ids parameter is required and must not be empty")
	// ErrTooManyBugIDs indicates more than MaxBugIDs ids were given.
	ErrTooManyBugIDs = errors.New("too many bug ids")
	// ErrInvalidBugID indicates a bug id that is not positive.
	ErrInvalidBugID = errors.New("bug id must be a positive integer")
	// ErrEmptyPath indicates the path parameter is empty.
	ErrEmptyPath = errors.New("path parameter is required and must not be empty")
	// ErrInvalidDate indicates an unparsable date parameter.
	ErrInvalidDate = errors.New("date must be YYYY-MM-DD or RFC 3339")
	// ErrUnknownChannel indicates a channel mozdata has no repository for.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrUnavailable indicates the server was built without the service a tool needs.
	ErrUnavailable = errors.New("tool not available on this server")
)

// Input types (auto-generate JSON schemas via struct tags).

// FollowDupInput is the input schema for the mozdata_follow_dup tool.
type FollowDupInput struct {
	BugIDs []int `json:"bug_ids" jsonschema:"Bugzilla bug ids to resolve"`
}

// LandingsInput is the input schema for the mozdata_landings tool.
type LandingsInput struct {
	BugID    int      `json:"bug_id"             jsonschema:"Bugzilla bug id"`
	Channels []string `json:"channels,omitempty" jsonschema:"channels to look for (default: inbound central fx-team beta release esr)"`
}

// BugRiskInput is the input schema for the mozdata_bug_risk tool.
type BugRiskInput struct {
	BugID  int    `json:"bug_id"           jsonschema:"Bugzilla bug id"`
	Uplift string `json:"uplift,omitempty" jsonschema:"release channel to compute uplift metrics for (e.g. beta)"`
}

// FileStatsInput is the input schema for the mozdata_file_stats tool.
type FileStatsInput struct {
	Path       string `json:"path"                  jsonschema:"repository-relative file path"`
	Channel    string `json:"channel,omitempty"     jsonschema:"channel whose repository is read (default: central)"`
	Node       string `json:"node,omitempty"        jsonschema:"revision the history ends at (default: tip)"`
	Date       string `json:"date,omitempty"        jsonschema:"end of the guilty window (default: now)"`
	GuiltyOnly bool   `json:"guilty_only,omitempty" jsonschema:"return nothing when no patch landed in the guilty window"`
}

// CrashFlagsInput is the input schema for the mozdata_crash_flags tool.
type CrashFlagsInput struct {
	Product    string   `json:"product,omitempty"    jsonschema:"crash product (default: Firefox)"`
	Signatures []string `json:"signatures,omitempty" jsonschema:"restrict the run to these crash signatures"`
	BugIDs     []int    `json:"bug_ids,omitempty"    jsonschema:"restrict the run to the signatures these bugs list"`
	Start      string   `json:"start,omitempty"      jsonschema:"start of the crash search, YYYY-MM-DD (default: end minus one week)"`
	End        string   `json:"end,omitempty"        jsonschema:"end of the crash search, YYYY-MM-DD (default: now)"`
	Limit      int      `json:"limit,omitempty"      jsonschema:"number of top signatures (default: 50)"`
}

// Output type (used as structured output for generic AddTool).

// ToolOutput is a generic wrapper for tool results.
type ToolOutput struct {
	Data any `json:"data"`
}

// Result helpers.

// errorResult builds a CallToolResult with isError set.
func errorResult(err error) (*mcpsdk.CallToolResult, ToolOutput, error) {
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: err.Error()},
		},
		IsError: true,
	}, ToolOutput{}, nil
}

// jsonResult builds a CallToolResult with JSON-encoded content.
func jsonResult(value any) (*mcpsdk.CallToolResult, ToolOutput, error) {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return errorResult(fmt.Errorf("encode result: %w", err))
	}

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{
			&mcpsdk.TextContent{Text: string(data)},
		},
	}, ToolOutput{Data: value}, nil
}

func validateBugID(id int) error {
	if id <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidBugID, id)
	}

	return nil
}
