package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

// NewDupCommand creates the duplicate resolution command.
func NewDupCommand(g *Globals) *cobra.Command {
	return &cobra.Command{
		Use:   "dup <id>...",
		Short: "Follow duplicate chains to their final bug",
		Long: `Resolve each bug through its chain of "duplicate of" links. Bugs that
are not duplicates map to nothing; a chain that loops is reported as a cycle.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := ParseBugIDs(args)
			if err != nil {
				return err
			}

			return withServices(cmd, g, func(ctx context.Context, svc *Services) error {
				dups, followErr := svc.Bugzilla.FollowDup(ctx, ids)
				if followErr != nil {
					return fmt.Errorf("follow duplicates: %w", followErr)
				}

				return Render(cmd.OutOrStdout(), g.Format, DupOutput(dups), func(w io.Writer) error {
					WriteDups(w, dups)

					return nil
				})
			})
		},
	}
}

// DupOutput keys the final bugs by bug id: nil for bugs that are not
// duplicates and -1 for cycles.
func DupOutput(dups map[int]bugzilla.Dup) map[string]*int {
	out := make(map[string]*int, len(dups))

	for id, d := range dups {
		var final *int

		switch {
		case d.Cycle:
			cycle := -1
			final = &cycle
		case d.Final != 0:
			v := d.Final
			final = &v
		}

		out[strconv.Itoa(id)] = final
	}

	return out
}

// WriteDups renders the resolved chains as text.
func WriteDups(w io.Writer, dups map[int]bugzilla.Dup) {
	tbl := newTable(w)
	tbl.AppendHeader(table.Row{"Bug", "Duplicate of"})

	for _, id := range slices.Sorted(maps.Keys(dups)) {
		d := dups[id]

		final := "-"

		switch {
		case d.Cycle:
			final = colorBad.Sprint("cycle")
		case d.Final != 0:
			final = strconv.Itoa(d.Final)
		}

		tbl.AppendRow(table.Row{id, final})
	}

	tbl.Render()
}
