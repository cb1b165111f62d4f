package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/textutil"
)

// ErrEmptyPath indicates a blank file path argument.
var ErrEmptyPath = errors.New("path must not be empty")

// NewFileStatsCommand creates the file statistics command.
func NewFileStatsCommand(g *Globals) *cobra.Command {
	var (
		node       string
		date       string
		channel    string
		guiltyOnly bool
	)

	cmd := &cobra.Command{
		Use:   "filestats <path>",
		Short: "Summarize the history of a file and its suspects for a regression",
		Long: `Report who changed a file, for which bugs, and which patches were pushed
during the three days before --date.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimPrefix(strings.TrimSpace(args[0]), "/")
			if path == "" {
				return ErrEmptyPath
			}

			at, err := ParseDate(date)
			if err != nil {
				return err
			}

			if at.IsZero() {
				at = time.Now().UTC()
			}

			return withServices(cmd, g, func(ctx context.Context, svc *Services) error {
				stats, statsErr := svc.FileStore(channel).Stats(ctx, path, node, at, guiltyOnly)
				if statsErr != nil {
					return fmt.Errorf("file stats %s: %w", path, statsErr)
				}

				return Render(cmd.OutOrStdout(), g.Format, stats, func(w io.Writer) error {
					WriteFileStats(w, path, stats)

					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&node, "node", patchanalysis.DefaultNode, "Revision the history is read at")
	cmd.Flags().StringVar(&date, "date", "", "Reference time of the regression (default: now)")
	cmd.Flags().StringVar(&channel, "channel", filehistory.DefaultChannel, "Repository the history is read from")
	cmd.Flags().BoolVar(&guiltyOnly, "guilty-only", false, "Print nothing when no patch landed in the guilty window")

	return cmd
}

// WriteFileStats renders file statistics as text. A nil stats means the
// file had no guilty patch.
func WriteFileStats(w io.Writer, path string, stats *filehistory.FileStats) {
	if stats == nil {
		colorNote.Fprintf(w, "%s: no patch in the guilty window\n", path)

		return
	}

	title := stats.Path
	if stats.Module != "" {
		title += " (" + stats.Module + ")"
	}

	section(w, title)
	fmt.Fprintf(w, "%d patches, %d bugs\n", stats.Infos.Patches, len(stats.Infos.Bugs))

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Author", "Patches", "Reviewers"})

	for _, name := range slices.Sorted(maps.Keys(stats.Infos.Authors)) {
		a := stats.Infos.Authors[name]
		tbl.AppendRow(table.Row{name, a.Count, reviewerList(a.Reviewers)})
	}

	tbl.Render()

	if stats.Guilty == nil {
		return
	}

	fmt.Fprintln(w)
	section(w, "Guilty patches")
	colorBad.Fprintf(w, "main author: %s\n", stats.Guilty.MainAuthor)

	guilty := newTable(w)
	guilty.AppendHeader(table.Row{"Node", "Bug", "Author", "Pushed", "Summary"})

	for _, p := range stats.Guilty.Patches {
		when := p.PushDate
		if when.IsZero() {
			when = p.Date
		}

		guilty.AppendRow(table.Row{
			shortNode(p.Node), p.Bug, p.Author, when.Format(time.RFC3339),
			textutil.Truncate(textutil.FirstLine(p.Desc), summaryWidth),
		})
	}

	guilty.Render()
}

func reviewerList(reviewers map[string]int) string {
	parts := make([]string, 0, len(reviewers))
	for _, name := range slices.Sorted(maps.Keys(reviewers)) {
		parts = append(parts, fmt.Sprintf("%s (%d)", name, reviewers[name]))
	}

	return strings.Join(parts, ", ")
}

const (
	shortNodeLen = 12
	summaryWidth = 60
)

func shortNode(node string) string {
	if len(node) > shortNodeLen {
		return node[:shortNodeLen]
	}

	return node
}
