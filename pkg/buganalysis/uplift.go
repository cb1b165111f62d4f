package buganalysis

import (
	"context"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

const flagField = "flagtypes.name"

// ReleaseChannels are the channels uplifts target; they are scanned for
// landings after the approval.
var ReleaseChannels = []string{
	bugzilla.ChannelNightly, bugzilla.ChannelAurora, bugzilla.ChannelBeta,
	bugzilla.ChannelRelease, bugzilla.ChannelESR,
}

// uplift computes the approval metrics for channel.
func (r *run) uplift(ctx context.Context, channel string) (*Uplift, error) {
	flag := "approval-mozilla-" + channel
	up := &Uplift{Channel: channel, LandingDeltas: map[string]time.Duration{}}

	var latest time.Time

	for _, att := range r.data.Attachments {
		for _, f := range att.Flags {
			if f.Name != flag || f.ModificationDate.Before(latest) {
				continue
			}

			latest, up.Status = f.ModificationDate, f.Status
		}
	}

	up.Accepted = up.Status == "+"

	for _, entry := range r.data.History {
		for _, c := range entry.Changes {
			if c.FieldName != flagField {
				continue
			}

			switch {
			case addsFlag(c.Added, flag+"?"):
				up.RequestedAt, up.RespondedAt = entry.When, time.Time{}
			case addsFlag(c.Added, flag+"+"), addsFlag(c.Added, flag+"-"):
				up.RespondedAt = entry.When
			}
		}
	}

	if !up.RequestedAt.IsZero() && !up.RespondedAt.IsZero() {
		up.ResponseDelta = up.RespondedAt.Sub(up.RequestedAt)
	}

	if !up.RequestedAt.IsZero() && r.calendar != nil {
		next, err := r.calendar.NextRelease(ctx, up.RequestedAt)
		if err != nil {
			r.warn(ctx, "release calendar unavailable", "error", err)
		} else {
			up.ReleaseDelta = next.Sub(up.RequestedAt)
		}
	}

	base := up.RespondedAt
	if base.IsZero() {
		base = up.RequestedAt
	}

	if base.IsZero() {
		return up, nil
	}

	landings, err := bugzilla.GetLandingComments(r.data.Comments, ReleaseChannels...)
	if err != nil {
		return nil, err
	}

	for _, l := range landings {
		if _, seen := up.LandingDeltas[l.Channel]; seen {
			continue
		}

		up.LandingDeltas[l.Channel] = l.Comment.CreationTime.Sub(base)
	}

	return up, nil
}

// addsFlag reports whether a comma-separated flag list contains flag,
// ignoring a "(requestee)" suffix.
func addsFlag(added, flag string) bool {
	for part := range strings.SplitSeq(added, ",") {
		name, _, _ := strings.Cut(strings.TrimSpace(part), "(")
		if name == flag {
			return true
		}
	}

	return false
}
