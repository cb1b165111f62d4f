package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

// Landing is one changeset found in the comments of a bug.
type Landing struct {
	Channel  string `json:"channel"`
	Revision string `json:"revision"`
	Comment  int    `json:"comment"`
	Author   string `json:"author"`
	URL      string `json:"url"`
}

// NewLandingsCommand creates the landings command.
func NewLandingsCommand(g *Globals) *cobra.Command {
	var channels []string

	cmd := &cobra.Command{
		Use:   "landings <id>",
		Short: "List the changesets landed for a bug",
		Long: `Scan the comments of a bug for Mercurial changeset URLs and report them
with their channel. fx-team landings are reported as inbound.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := ParseBugIDs(args)
			if err != nil {
				return err
			}

			_, err = bugzilla.GetLandingComments(nil, channels...)
			if err != nil {
				return err
			}

			return withServices(cmd, g, func(ctx context.Context, svc *Services) error {
				found, landErr := svc.Bugzilla.Landings(ctx, ids[0], channels...)
				if landErr != nil {
					return landErr
				}

				out := ToLandings(found)

				return Render(cmd.OutOrStdout(), g.Format, out, func(w io.Writer) error {
					WriteLandings(w, out)

					return nil
				})
			})
		},
	}

	cmd.Flags().StringSliceVar(&channels, "channel", nil,
		"Channels to scan (default: "+strings.Join(bugzilla.DefaultLandingChannels, ",")+")")

	return cmd
}

// ToLandings flattens landings for output.
func ToLandings(found []bugzilla.Landing) []Landing {
	out := make([]Landing, 0, len(found))

	for _, l := range found {
		out = append(out, Landing{
			Channel:  l.Channel,
			Revision: l.Revision,
			Comment:  l.Comment.Count,
			Author:   l.Comment.Creator,
			URL:      bugzilla.LandingURL(l.Channel, l.Revision),
		})
	}

	return out
}

// WriteLandings renders landings as text.
func WriteLandings(w io.Writer, landings []Landing) {
	if len(landings) == 0 {
		colorNote.Fprintln(w, "no landing found")

		return
	}

	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Channel", "Revision", "Comment", "URL"})

	for _, l := range landings {
		tbl.AppendRow(table.Row{l.Channel, l.Revision, fmt.Sprintf("#%d", l.Comment), l.URL})
	}

	tbl.Render()
}
