package commands

import (
	"context"
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
)

// NewBugCommand creates the bug risk command.
func NewBugCommand(g *Globals) *cobra.Command {
	var uplift string

	cmd := &cobra.Command{
		Use:   "bug <id>",
		Short: "Assess the risk of the patches of a bug",
		Long: `Collect the patches of a bug from its landing comments (or its
attachments when nothing landed) and report size, churn, familiarity,
back-outs and, with --uplift, the approval timeline for a release channel.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := ParseBugIDs(args)
			if err != nil {
				return err
			}

			if uplift != "" && !slices.Contains(buganalysis.ReleaseChannels, uplift) {
				return fmt.Errorf("%w: %s", ErrUnknownChannel, uplift)
			}

			return withServices(cmd, g, func(ctx context.Context, svc *Services) error {
				report, analyzeErr := svc.Bugs.Analyze(ctx, buganalysis.Input{BugID: ids[0], Uplift: uplift})
				if analyzeErr != nil {
					return fmt.Errorf("analyze bug %d: %w", ids[0], analyzeErr)
				}

				return Render(cmd.OutOrStdout(), g.Format, report, func(w io.Writer) error {
					WriteReport(w, report)

					return nil
				})
			})
		},
	}

	cmd.Flags().StringVar(&uplift, "uplift", "",
		"Release channel of the uplift request: "+strings.Join(buganalysis.ReleaseChannels, ", "))

	return cmd
}

// WriteReport renders a bug report as text.
func WriteReport(w io.Writer, r *buganalysis.Report) {
	section(w, fmt.Sprintf("Bug %d", r.BugID))

	tbl := newTable(w)
	tbl.AppendRows([]table.Row{
		{"Assignee", r.Assignee},
		{"Authors", strings.Join(r.Authors, ", ")},
		{"Reviewers", strings.Join(r.Reviewers, ", ")},
		{"Comments", humanize.Comma(int64(r.Comments))},
		{"Blocks / depends on", fmt.Sprintf("%d / %d", r.Blocks, r.DependsOn)},
		{"In testsuite", r.InTestsuite},
		{"Changes size", humanize.Comma(int64(r.ChangesSize))},
		{"Test changes size", humanize.Comma(int64(r.TestChangesSize))},
		{"Modules", strings.Join(r.Modules, ", ")},
		{"Languages", strings.Join(r.Languages, ", ")},
		{"Code churn (overall / last 3)", fmt.Sprintf("%d / %d", r.CodeChurnOverall, r.CodeChurnLast3Releases)},
		{"Developer familiarity", fmt.Sprintf("%d / %d", r.DeveloperFamiliarityOverall, r.DeveloperFamiliarityLast3Releases)},
		{"Reviewer familiarity", fmt.Sprintf("%d / %d", r.ReviewerFamiliarityOverall, r.ReviewerFamiliarityLast3Releases)},
		{"Back-outs", backouts(r)},
		{"r- patches", r.RedPatches},
	})
	tbl.Render()

	if len(r.Patches) > 0 {
		fmt.Fprintln(w)
		section(w, "Patches")

		patches := newTable(w)
		patches.AppendHeader(table.Row{"Patch", "Source", "Channel", "Size", "Authors"})

		for _, key := range slices.Sorted(maps.Keys(r.Patches)) {
			p := r.Patches[key]

			size := 0
			if p.Metrics != nil {
				size = p.Metrics.ChangesSize
			}

			patches.AppendRow(table.Row{key, p.Source, p.Channel, humanize.Comma(int64(size)), strings.Join(p.Authors, ", ")})
		}

		patches.Render()
	}

	if r.Uplift != nil {
		fmt.Fprintln(w)
		writeUplift(w, r.Uplift)
	}

	for _, warning := range r.Warnings {
		colorWarn.Fprintf(w, "warning: %s\n", warning)
	}
}

func backouts(r *buganalysis.Report) string {
	if r.BackoutNum == 0 {
		return colorGood.Sprint("0")
	}

	return colorBad.Sprintf("%d (%s)", r.BackoutNum, strings.Join(r.BackedOutRevs, ", "))
}

func writeUplift(w io.Writer, u *buganalysis.Uplift) {
	section(w, "Uplift to "+u.Channel)

	status := colorWarn.Sprint("pending")
	if u.Accepted {
		status = colorGood.Sprint("accepted")
	} else if u.Status == "-" {
		status = colorBad.Sprint("rejected")
	}

	tbl := newTable(w)
	tbl.AppendRow(table.Row{"Status", status})

	if !u.RequestedAt.IsZero() {
		tbl.AppendRow(table.Row{"Requested", u.RequestedAt.Format(time.RFC3339)})
	}

	if !u.RespondedAt.IsZero() {
		tbl.AppendRow(table.Row{"Responded", fmt.Sprintf("%s (after %s)", u.RespondedAt.Format(time.RFC3339), u.ResponseDelta)})
	}

	if u.ReleaseDelta != 0 {
		tbl.AppendRow(table.Row{"Time before release", u.ReleaseDelta.String()})
	}

	for _, ch := range slices.Sorted(maps.Keys(u.LandingDeltas)) {
		tbl.AppendRow(table.Row{"Landed on " + ch, "after " + u.LandingDeltas[ch].String()})
	}

	tbl.Render()
}
