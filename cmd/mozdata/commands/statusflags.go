package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
)

type statusFlagsOptions struct {
	product    string
	signatures []string
	bugs       []string
	start      string
	end        string
	limit      int
	dryRun     bool
}

// NewStatusFlagsCommand creates the crash status flags command.
func NewStatusFlagsCommand(g *Globals) *cobra.Command {
	opts := statusFlagsOptions{}

	cmd := &cobra.Command{
		Use:   "statusflags",
		Short: "Mark crash bugs as affected on the crashing channels",
		Long: `Find the top crash signatures of a product, pick the bug that best
represents each signature and set its unset status flags to affected on the
channels that crash, with a comment summarizing the volume. Signatures
without any eligible bug are listed for reopening.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in, err := opts.input()
			if err != nil {
				return err
			}

			return withServices(cmd, g, func(ctx context.Context, svc *Services) error {
				res, analyzeErr := svc.StatusFlags.Analyze(ctx, in)
				if analyzeErr != nil {
					return fmt.Errorf("status flags: %w", analyzeErr)
				}

				return Render(cmd.OutOrStdout(), g.Format, res, func(w io.Writer) error {
					WriteStatusFlags(w, res, g.Verbose)

					return nil
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.product, "product", statusflags.ProductFirefox, "Socorro product")
	flags.StringSliceVarP(&opts.signatures, "signature", "s", nil, "Restrict to these signatures")
	flags.StringSliceVarP(&opts.bugs, "bug", "b", nil, "Restrict to the signatures of these bugs")
	flags.StringVar(&opts.start, "start", "", "Start of the crash search (default: end minus 7 days)")
	flags.StringVar(&opts.end, "end", "", "End of the crash search (default: now)")
	flags.IntVar(&opts.limit, "limit", statusflags.DefaultLimit, "Number of top signatures")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Compose the updates without posting them")

	return cmd
}

func (o statusFlagsOptions) input() (statusflags.Input, error) {
	in := statusflags.Input{
		Product:    o.product,
		Signatures: o.signatures,
		Limit:      o.limit,
		DryRun:     o.dryRun,
	}

	var err error

	in.BugIDs, err = ParseBugIDs(o.bugs)
	if err != nil {
		return in, err
	}

	in.Start, err = ParseDate(o.start)
	if err != nil {
		return in, err
	}

	in.End, err = ParseDate(o.end)
	if err != nil {
		return in, err
	}

	return in, nil
}

// WriteStatusFlags renders a run as text. verbose adds the composed
// comments.
func WriteStatusFlags(w io.Writer, res *statusflags.Result, verbose bool) {
	if len(res.Decisions) > 0 {
		tbl := newTable(w)
		tbl.AppendHeader(table.Row{"Signature", "Bug", "Bucket", "Last change", "Flags", "Posted"})

		for _, d := range res.Decisions {
			tbl.AppendRow(table.Row{
				d.Signature, d.BugID, d.Bucket.String(), d.LastChange.Format(time.DateOnly), flagList(d.Flags), posted(d),
			})
		}

		tbl.Render()
	}

	if verbose {
		for _, d := range res.Decisions {
			if d.Comment == "" {
				continue
			}

			fmt.Fprintln(w)
			section(w, fmt.Sprintf("Bug %d", d.BugID))
			fmt.Fprint(w, d.Comment)
		}
	}

	if len(res.ToReopen) > 0 {
		fmt.Fprintln(w)
		section(w, "Signatures without an eligible bug")

		for _, sig := range res.ToReopen {
			colorWarn.Fprintf(w, "  %s\n", sig)
		}
	}

	for _, diag := range res.Diagnostics {
		var subject []string

		if diag.Signature != "" {
			subject = append(subject, diag.Signature)
		}

		if diag.BugID != 0 {
			subject = append(subject, fmt.Sprintf("bug %d", diag.BugID))
		}

		if len(subject) == 0 {
			colorNote.Fprintf(w, "note: %s\n", diag.Message)

			continue
		}

		colorNote.Fprintf(w, "note: %s: %s\n", strings.Join(subject, ", "), diag.Message)
	}
}

func flagList(flags map[string]string) string {
	parts := make([]string, 0, len(flags))
	for _, name := range slices.Sorted(maps.Keys(flags)) {
		parts = append(parts, name+"="+flags[name])
	}

	return strings.Join(parts, " ")
}

func posted(d statusflags.Decision) string {
	switch {
	case d.Posted:
		return colorGood.Sprint("yes")
	case len(d.Flags) == 0:
		return "-"
	default:
		return colorWarn.Sprint("no")
	}
}
