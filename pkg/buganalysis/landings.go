package buganalysis

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/textutil"
)

// landingChannels are the channels a fix first lands on.
var landingChannels = []string{bugzilla.ChannelInbound, bugzilla.ChannelCentral, bugzilla.ChannelFxTeam}

// sentinelReviewers are r= tokens that do not name a person.
var sentinelReviewers = []string{"me", "oops", "none", "bustage", "backout"}

// Back-out descriptions, matched against the lowercased description in
// this order.
var (
	backoutSingle = regexp.MustCompile(`back(?:ed|ing)?[ -]?out\s+(?:changeset\s+|revision\s+)?([0-9a-f]{12,40})\b`)
	backoutPlural = regexp.MustCompile(
		`back(?:ed|ing)?[ -]?out\s+(?:\d+\s+)?(?:changesets|revisions)\s+([0-9a-f]{12,40}(?:(?:\s*,\s*|\s+and\s+|\s+)[0-9a-f]{12,40})*)`)
	backoutBare = regexp.MustCompile(`^\s*back(?:ed|ing)?[ -]?out\b`)
	hexNode     = regexp.MustCompile(`[0-9a-f]{12,40}`)
)

// landing is a changeset of the bug found in its comments.
type landing struct {
	channel string
	comment bugzilla.Comment
	rev     *hgmozilla.Revision
}

// scanLandings classifies every landing comment of the bug. Back-outs are
// recorded in the report; the returned landings are the surviving fixes in
// comment order.
func (r *run) scanLandings(ctx context.Context) ([]*landing, error) {
	found, err := bugzilla.GetLandingComments(r.data.Comments, landingChannels...)
	if err != nil {
		return nil, err
	}

	if len(found) == 0 {
		return nil, nil
	}

	revs, err := r.fetchRevisions(ctx, found)
	if err != nil {
		return nil, err
	}

	var (
		kept            []*landing
		backoutComments []int
	)

	byNode := map[string]*landing{}

	for _, l := range found {
		rev, ok := revs[l.Channel][l.Revision]
		if !ok {
			r.warn(ctx, "landing revision not found", "revision", l.Revision, "channel", l.Channel)

			continue
		}

		desc := strings.ToLower(rev.Desc)

		backedOut, isBackout, err := r.backedOut(ctx, l.Channel, rev, desc)
		if err != nil {
			return nil, err
		}

		if isBackout {
			if len(backedOut) == 0 {
				r.warn(ctx, "back-out target not resolved", "revision", l.Revision)

				continue
			}

			for _, node := range backedOut {
				if !slices.Contains(r.report.BackedOutRevs, node) {
					r.report.BackedOutRevs = append(r.report.BackedOutRevs, node)
				}
			}

			if !slices.Contains(backoutComments, l.Comment.ID) {
				backoutComments = append(backoutComments, l.Comment.ID)
			}

			continue
		}

		if bug := filehistory.FirstBugRef(desc); bug != r.data.Bug.ID {
			if bug != 0 {
				r.warn(ctx, "landing references another bug", "revision", l.Revision, "other", bug)

				continue
			}

			if strings.Contains(desc, "merge") {
				continue
			}
		}

		if prev, ok := byNode[rev.Node]; ok {
			// Merged from integration: keep the central landing.
			if l.Channel == bugzilla.ChannelCentral {
				prev.channel, prev.comment = l.Channel, l.Comment
			}

			continue
		}

		fix := &landing{channel: l.Channel, comment: l.Comment, rev: rev}
		byNode[rev.Node] = fix
		kept = append(kept, fix)
	}

	r.report.BackoutNum = len(backoutComments)

	kept = slices.DeleteFunc(kept, func(l *landing) bool {
		return slices.ContainsFunc(r.report.BackedOutRevs, func(node string) bool {
			return sameNode(node, l.rev.Node)
		})
	})

	return kept, nil
}

// fetchRevisions loads every referenced changeset in one Connection,
// indexed by channel then by the revision as written in the comment.
func (r *run) fetchRevisions(ctx context.Context, found []bugzilla.Landing) (map[string]map[string]*hgmozilla.Revision, error) {
	nodes := map[string][]string{}

	for _, l := range found {
		if !slices.Contains(nodes[l.Channel], l.Revision) {
			nodes[l.Channel] = append(nodes[l.Channel], l.Revision)
		}
	}

	out := make(map[string]map[string]*hgmozilla.Revision, len(nodes))
	queries := make([]query.Query, 0, len(nodes))

	for channel, list := range nodes {
		byRev := map[string]*hgmozilla.Revision{}
		out[channel] = byRev

		queries = append(queries, r.hg.RevisionQuery(channel, list, query.Observe(func(rev hgmozilla.Revision) error {
			for _, node := range list {
				if sameNode(node, rev.Node) {
					byRev[node] = &rev
				}
			}

			return nil
		})))
	}

	err := r.hg.Run(ctx, queries...)
	if err != nil {
		return nil, fmt.Errorf("landing revisions: %w", err)
	}

	return out, nil
}

// backedOut reports whether rev is a back-out and which changesets it
// backs out. A back-out whose targets cannot be found returns no nodes.
func (r *run) backedOut(ctx context.Context, channel string, rev *hgmozilla.Revision, desc string) ([]string, bool, error) {
	if m := backoutSingle.FindStringSubmatch(desc); m != nil {
		return []string{m[1]}, true, nil
	}

	if m := backoutPlural.FindStringSubmatch(desc); m != nil {
		return hexNode.FindAllString(m[1], -1), true, nil
	}

	if len(rev.BacksOutNodes) > 0 {
		nodes := make([]string, 0, len(rev.BacksOutNodes))
		for _, n := range rev.BacksOutNodes {
			nodes = append(nodes, n.Node)
		}

		return nodes, true, nil
	}

	if !backoutBare.MatchString(desc) {
		return nil, false, nil
	}

	if len(rev.Parents) == 0 {
		return nil, true, nil
	}

	parents, err := r.hg.Revisions(ctx, channel, rev.Parents)
	if err != nil {
		return nil, true, fmt.Errorf("back-out parents of %s: %w", rev.Node, err)
	}

	var nodes []string

	for _, node := range rev.Parents {
		p, ok := parents[node]
		if ok && filehistory.BugID(p.Desc) == r.data.Bug.ID {
			nodes = append(nodes, p.Node)
		}
	}

	return nodes, true, nil
}

// sameNode compares a possibly abbreviated node with another.
func sameNode(a, b string) bool {
	return strings.HasPrefix(a, b) || strings.HasPrefix(b, a)
}

func (r *run) analyzeLanding(ctx context.Context, l *landing) error {
	reviewers, err := r.landingReviewers(ctx, l.rev.Desc)
	if err != nil {
		return err
	}

	email := filehistory.NormalizeAuthor(l.rev.User)

	authors, err := r.identity.AuthorMatch(ctx, email, realName(l.rev.User), r.authors, r.data.Bug.CCDetail)
	if err != nil {
		return fmt.Errorf("author of %s: %w", l.rev.Node, err)
	}

	raw, err := r.hg.RawRevision(ctx, l.channel, l.rev.Node)
	if err != nil {
		return fmt.Errorf("diff of %s: %w", l.rev.Node, err)
	}

	created := l.rev.PushDate
	if created.IsZero() {
		created = l.rev.Date
	}

	m, err := r.patches.Analyze(ctx, patchanalysis.Input{
		Diff:      raw,
		Authors:   authors,
		Reviewers: reviewers,
		Created:   created.Time(),
	})
	if err != nil {
		return fmt.Errorf("patch %s (%s): %w", l.rev.Node, textutil.FirstLine(l.rev.Desc), err)
	}

	r.report.add(l.rev.Node, &Patch{
		Source:    SourceLanding,
		Channel:   l.channel,
		Authors:   authors,
		Reviewers: reviewers,
		Metrics:   m,
	})

	return nil
}

// landingReviewers resolves the r= handles of a description to emails.
// Handles that match nobody are dropped.
func (r *run) landingReviewers(ctx context.Context, desc string) ([]string, error) {
	var out []string

	for _, handle := range filehistory.Reviewers(desc) {
		if slices.Contains(sentinelReviewers, strings.ToLower(handle)) {
			continue
		}

		email, err := r.identity.ReviewerMatch(ctx, handle, r.reviewers, r.data.Bug.CCDetail)
		if err != nil {
			return nil, fmt.Errorf("reviewer %q: %w", handle, err)
		}

		if email != "" && !slices.Contains(out, email) {
			out = append(out, email)
		}
	}

	slices.Sort(out)

	return out, nil
}

// realName returns the name part of "Real Name <email>".
func realName(user string) string {
	name, _, found := strings.Cut(user, "<")
	if !found {
		return ""
	}

	return strings.TrimSpace(name)
}
