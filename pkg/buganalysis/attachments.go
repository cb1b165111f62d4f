package buganalysis

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/textutil"
)

// ReviewBoardContentType marks an attachment pointing at a review request.
const ReviewBoardContentType = "text/x-review-board-request"

// analyzeAttachments falls back to the current r+ attachments when no
// landing survived.
func (r *run) analyzeAttachments(ctx context.Context) error {
	for _, att := range r.data.Attachments {
		if att.IsObsolete || !att.HasReview("+") {
			continue
		}

		diff, ok, err := r.attachmentDiff(ctx, att)
		if err != nil {
			return err
		}

		if !ok {
			continue
		}

		var reviewers []string

		for _, f := range att.ReviewFlags() {
			if f.Status == "+" && f.Setter != att.Creator && !slices.Contains(reviewers, f.Setter) {
				reviewers = append(reviewers, f.Setter)
			}
		}

		slices.Sort(reviewers)

		authors := []string{att.Creator}

		m, err := r.patches.Analyze(ctx, patchanalysis.Input{
			Diff:      diff,
			Authors:   authors,
			Reviewers: reviewers,
			Created:   att.CreationTime,
		})
		if err != nil {
			return fmt.Errorf("attachment %d: %w", att.ID, err)
		}

		r.report.add("attachment-"+strconv.Itoa(att.ID), &Patch{
			Source:    SourceAttachment,
			Authors:   authors,
			Reviewers: reviewers,
			Metrics:   m,
		})
	}

	return nil
}

// attachmentDiff returns the patch text of an attachment. Review-request
// attachments hold the request URL; the diff is read from its raw view.
func (r *run) attachmentDiff(ctx context.Context, att bugzilla.Attachment) (string, bool, error) {
	if len(att.Data) == 0 {
		r.warn(ctx, "attachment has no payload", "attachment", att.ID)

		return "", false, nil
	}

	if textutil.IsBinary(att.Data) {
		r.warn(ctx, "attachment is binary", "attachment", att.ID)

		return "", false, nil
	}

	if att.ContentType != ReviewBoardContentType {
		return string(att.Data), true, nil
	}

	rawURL, err := ReviewRawDiffURL(strings.TrimSpace(string(att.Data)))
	if err != nil {
		r.warn(ctx, "review request URL unusable", "attachment", att.ID, "error", err)

		return "", false, nil
	}

	var diff string

	handler := query.Text(query.Observe(func(s string) error {
		diff = s

		return nil
	}))

	opts := append(slices.Clone(r.queryOpts), query.WithRaiseError(true))

	err = query.Run(ctx, rawURL, []query.Query{query.NewQuery(rawURL, handler)}, opts...)
	if err != nil {
		return "", false, fmt.Errorf("review diff of attachment %d: %w", att.ID, err)
	}

	return diff, true, nil
}

// ReviewRawDiffURL derives the raw diff of a review request from its page
// URL: https://reviewboard.mozilla.org/r/42/ → .../r/42/diff/raw/.
func ReviewRawDiffURL(page string) (string, error) {
	u, err := url.Parse(page)
	if err != nil {
		return "", fmt.Errorf("parse review URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" || !strings.HasPrefix(u.Path, "/r/") {
		return "", fmt.Errorf("not a review request URL: %q", page)
	}

	u.Path = strings.TrimRight(u.Path, "/") + "/diff/raw/"
	u.RawQuery, u.Fragment = "", ""

	return u.String(), nil
}
