package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/mcp"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

// NewMCPCommand creates the MCP server command.
func NewMCPCommand(g *Globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for AI agent integration",
		Long: `Start a Model Context Protocol (MCP) server on stdio transport.

The MCP server exposes mozdata queries as tools that AI agents can discover
and invoke:
  - mozdata_follow_dup: Resolve duplicate chains
  - mozdata_landings: List the changesets landed for a bug
  - mozdata_bug_risk: Assess the risk of the patches of a bug
  - mozdata_file_stats: Summarize the history of a file around a regression
  - mozdata_crash_flags: Compose status flag updates for top crashes (dry run)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cobraCmd *cobra.Command, _ []string) error {
			ctx := cobraCmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			svc, err := OpenServices(ctx, g, observability.ModeMCP)
			if err != nil {
				return err
			}

			defer svc.Close(context.WithoutCancel(ctx))

			srv := mcp.NewServer(mcp.ServerDeps{
				Bugzilla:    svc.Bugzilla,
				Mercurial:   svc.Mercurial,
				BugAnalyzer: svc.Bugs,
				StatusFlags: svc.StatusFlags,
				Logger:      svc.Logger,
				Metrics:     svc.RED,
				Tracer:      svc.Tracer,
			})

			return srv.Run(ctx)
		},
	}

	cmd.Flags().BoolVar(&g.Debug, "debug", false, "Enable debug logging to stderr")

	return cmd
}
