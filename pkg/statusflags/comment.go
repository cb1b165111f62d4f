package statusflags

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
)

const percent = 100

// Volume is the crash count of one signature on one channel.
type Volume struct {
	Channel string    `json:"channel"`
	Version int       `json:"version"`
	Crashes int       `json:"crashes"`
	Since   time.Time `json:"since"`
}

// PlatformShare is the part of a signature's crashes on one platform.
type PlatformShare struct {
	Name    string  `json:"name"`
	Crashes int     `json:"crashes"`
	Share   float64 `json:"share"`
}

func newTable() table.Writer {
	tbl := table.NewWriter()
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateHeader = false

	return tbl
}

func crashes(n int) string {
	if n == 1 {
		return "1 crash"
	}

	return humanize.Comma(int64(n)) + " crashes"
}

// composeComment renders the update posted on the target bug.
func composeComment(d *Decision) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Crash volume for signature '%s':\n", d.Signature)

	volumes := newTable()
	for _, v := range d.Volumes {
		volumes.AppendRow(table.Row{
			"- " + v.Channel,
			fmt.Sprintf("version %d: %s from %s.", v.Version, crashes(v.Crashes), v.Since.Format(time.DateOnly)),
		})
	}

	b.WriteString(volumes.Render())
	b.WriteString("\n")

	if d.Trend != nil && len(d.Trend.Weeks) > 0 {
		b.WriteString("\nCrash volume on the last weeks:\n")
		b.WriteString(trendTable(d.Trend, d.Channels))
		b.WriteString("\n")

		for _, ch := range d.Trend.Spikes {
			last := d.Trend.Weeks[len(d.Trend.Weeks)-1]
			fmt.Fprintf(&b, "\nThe %s volume spiked in the week of %s.\n", ch, last.Format(time.DateOnly))
		}
	}

	if len(d.Platforms) > 0 {
		parts := make([]string, 0, len(d.Platforms))
		for _, p := range d.Platforms {
			parts = append(parts, fmt.Sprintf("%s (%.0f%%)", p.Name, p.Share*percent))
		}

		fmt.Fprintf(&b, "\nAffected platforms: %s\n", strings.Join(parts, ", "))
	}

	return b.String()
}

// trendTable has one row per week, newest first, and one column per
// channel.
func trendTable(t *Trend, channels []string) string {
	tbl := newTable()

	header := table.Row{"Week"}
	for _, ch := range channels {
		header = append(header, ch)
	}

	tbl.AppendHeader(header)

	for i := len(t.Weeks) - 1; i >= 0; i-- {
		row := table.Row{t.Weeks[i].Format(time.DateOnly)}
		for _, ch := range channels {
			row = append(row, t.Crashes[ch][i])
		}

		tbl.AppendRow(row)
	}

	return tbl.Render()
}
