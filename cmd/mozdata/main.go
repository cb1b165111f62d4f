// Package main provides the entry point for the mozdata CLI tool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/cmd/mozdata/commands"
	"github.com/Sumatoshi-tech/mozdata/pkg/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCommand().ExecuteContext(ctx)

	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	globals := &commands.Globals{}

	rootCmd := &cobra.Command{
		Use:   "mozdata",
		Short: "Query Mozilla release-management data",
		Long: `mozdata queries Bugzilla, Socorro and Mercurial for release management.

Commands:
  bug          Risk assessment of the patches of a bug
  dup          Duplicate chain resolution
  landings     Changesets landed for a bug
  statusflags  Crash status flag updates
  filestats    File history and regression suspects
  mcp          MCP server over stdio
  schema       JSON Schema of a command's JSON output`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if globals.NoColor {
				color.NoColor = true
			}

			_, err := commands.NormalizeFormat(globals.Format)

			return err
		},
	}

	globals.Bind(rootCmd)

	rootCmd.AddCommand(commands.NewBugCommand(globals))
	rootCmd.AddCommand(commands.NewDupCommand(globals))
	rootCmd.AddCommand(commands.NewLandingsCommand(globals))
	rootCmd.AddCommand(commands.NewStatusFlagsCommand(globals))
	rootCmd.AddCommand(commands.NewFileStatsCommand(globals))
	rootCmd.AddCommand(commands.NewMCPCommand(globals))
	rootCmd.AddCommand(commands.NewSchemaCommand())
	rootCmd.AddCommand(versionCmd())

	return rootCmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "mozdata %s (commit: %s, built: %s)\n",
				version.Version, version.BinaryGitHash, version.BuildDate)
		},
	}
}
