package statusflags_test

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/internal/fakemoz"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
)

const (
	markStack = "js::GCMarker::processMarkStackTop"
	oomSmall  = "OOM | small"
)

var now = time.Date(2017, time.October, 10, 12, 0, 0, 0, time.UTC)

func newAnalyzer(t *testing.T, srv *fakemoz.Server) *statusflags.Analyzer {
	t.Helper()

	logger := slog.New(slog.DiscardHandler)
	opts := []query.Option{
		query.WithHTTPClient(srv.Client()),
		query.WithRetryPolicy(query.NoRetry()),
		query.WithLogger(logger),
	}

	return statusflags.New(
		bugzilla.New(bugzilla.Config{URL: srv.URL}, opts...),
		socorro.New(socorro.Config{URL: srv.URL}, opts...),
		statusflags.WithLogger(logger),
		statusflags.WithClock(func() time.Time { return now }),
	)
}

func facet(term string, count int, subs map[string][]map[string]any) map[string]any {
	f := map[string]any{"term": term, "count": count}
	if subs != nil {
		f["facets"] = subs
	}

	return f
}

// searches records the top-signature search parameters.
type searches struct {
	mu  sync.Mutex
	top []url.Values
}

func (s *searches) last() url.Values {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.top) == 0 {
		return nil
	}

	return s.top[len(s.top)-1]
}

func seedCrashes(srv *fakemoz.Server) *searches {
	srv.AddProductVersion(map[string]any{
		"product": "Firefox", "version": "58.0a1", "build_type": "nightly", "start_date": "2017-09-26",
	})
	srv.AddProductVersion(map[string]any{
		"product": "Firefox", "version": "57.0b7", "build_type": "beta", "start_date": "2017-10-05",
	})
	srv.AddProductVersion(map[string]any{
		"product": "Firefox", "version": "56.0.1", "build_type": "release", "start_date": "2017-10-01",
	})

	rec := &searches{}

	srv.SetSuperSearch(func(params url.Values) any {
		if params.Has("_histogram.date") {
			return trendResponse(strings.TrimPrefix(params.Get("signature"), "="))
		}

		rec.mu.Lock()
		rec.top = append(rec.top, params)
		rec.mu.Unlock()

		return map[string]any{"hits": []any{}, "total": 150, "facets": map[string]any{
			"signature": []map[string]any{
				facet(markStack, 100, map[string][]map[string]any{
					"release_channel": {facet("nightly", 60, nil), facet("beta", 40, nil)},
					"platform":        {facet("Windows NT", 75, nil), facet("Mac OS X", 25, nil)},
				}),
				facet(oomSmall, 50, map[string][]map[string]any{
					"release_channel": {facet("release", 50, nil)},
					"platform":        {facet("Windows NT", 50, nil)},
				}),
			},
		}}
	})

	for _, id := range []int{1001, 1002, 1003, 1004, 1005, 1006, 1007} {
		srv.AddSignatureBug(markStack, id)
	}

	srv.AddSignatureBug(oomSmall, 2001)

	sig := "[@ " + markStack + "]"
	bug := func(id int, status, resolution, product, assignee string, extra map[string]any) {
		b := map[string]any{
			"id": id, "status": status, "resolution": resolution, "product": product,
			"assigned_to": assignee, "cf_crash_signature": sig, "creation_time": "2017-09-01T00:00:00Z",
			"cf_status_firefox58": "---", "cf_status_firefox57": "---", "cf_status_firefox56": "---",
		}
		for k, v := range extra {
			b[k] = v
		}

		srv.AddBug(b)
	}

	fixedHistory := func(id int, when string) {
		srv.AddHistory(id, map[string]any{
			"who": "dev@mozilla.com", "when": when,
			"changes": []map[string]any{{"field_name": "cf_status_firefox57", "removed": "affected", "added": "fixed"}},
		})
	}

	bug(1001, "RESOLVED", "DUPLICATE", "Core", "nobody@mozilla.org", map[string]any{"dupe_of": 1005})
	bug(1002, "ASSIGNED", "", "Core", "dev@mozilla.com", nil)
	bug(1003, "UNCONFIRMED", "", "Core", "nobody@mozilla.org", nil)
	bug(1004, "RESOLVED", "FIXED", "Firefox for Android", "dev@mozilla.com", nil)
	fixedHistory(1004, "2017-10-09T00:00:00Z")
	bug(1005, "RESOLVED", "FIXED", "Core", "dev@mozilla.com", map[string]any{
		"cf_status_firefox57": "fixed", "cf_status_firefox56": "unaffected",
	})
	fixedHistory(1005, "2017-10-01T00:00:00Z")
	srv.AddHistory(1005, map[string]any{
		"who": "release-mgmt-account-bot@mozilla.tld", "when": "2017-10-09T00:00:00Z",
		"changes": []map[string]any{{"field_name": "cf_tracking_firefox58", "removed": "", "added": "+"}},
	})
	bug(1006, "NEW", "", "Core", "nobody@mozilla.org", map[string]any{
		"cf_crash_signature": sig + "\n[@ " + markStack + "(js::SliceBudget&)]",
	})
	bug(1007, "RESOLVED", "FIXED", "Core", "dev@mozilla.com", map[string]any{
		"cf_crash_signature": sig + "\n[@ js::gc::Arena::finalize]",
	})
	fixedHistory(1007, "2017-10-08T00:00:00Z")

	srv.AddBug(map[string]any{
		"id": 2001, "status": "RESOLVED", "resolution": "WONTFIX", "product": "Core",
		"cf_crash_signature": "[@ " + oomSmall + "]", "creation_time": "2015-01-01T00:00:00Z",
		"cf_status_firefox56": "---",
	})

	return rec
}

func trendResponse(signature string) map[string]any {
	if signature != markStack {
		return map[string]any{"hits": []any{}, "total": 0, "facets": map[string]any{}}
	}

	weeks := []string{"2017-08-21", "2017-08-28", "2017-09-04", "2017-09-11", "2017-09-18", "2017-09-25", "2017-10-02"}
	nightly := []int{10, 12, 11, 9, 10, 11, 60}
	beta := []int{5, 6, 5, 6, 5, 6, 5}

	buckets := make([]map[string]any, 0, len(weeks))
	for i, w := range weeks {
		buckets = append(buckets, facet(w+"T00:00:00+00:00", nightly[i]+beta[i], map[string][]map[string]any{
			"release_channel": {facet("nightly", nightly[i], nil), facet("beta", beta[i], nil)},
		}))
	}

	return map[string]any{"hits": []any{}, "total": 0, "facets": map[string]any{"histogram_date": buckets}}
}

func TestAnalyze_SelectsAndPosts(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	seedCrashes(srv)

	res, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{})
	require.NoError(t, err)

	require.Len(t, res.Decisions, 1)

	d := res.Decisions[0]
	assert.Equal(t, markStack, d.Signature)
	assert.Equal(t, 1005, d.BugID)
	assert.Equal(t, statusflags.ResolvedFixedPatched, d.Bucket)
	assert.Equal(t, time.Date(2017, time.October, 1, 0, 0, 0, 0, time.UTC), d.LastChange)
	assert.Equal(t, []string{"nightly"}, d.Channels)
	assert.Equal(t, map[string]string{"cf_status_firefox58": "affected"}, d.Flags)
	assert.True(t, d.Posted)

	require.NotNil(t, d.Trend)
	assert.Len(t, d.Trend.Weeks, statusflags.TrendWeeks)
	assert.Equal(t, []int{10, 12, 11, 9, 10, 11, 60}, d.Trend.Crashes["nightly"])
	assert.Equal(t, []string{"nightly"}, d.Trend.Spikes)

	assert.Contains(t, d.Comment, "Crash volume for signature '"+markStack+"':")
	assert.Contains(t, d.Comment, "version 58: 60 crashes from 2017-10-03.")
	assert.Contains(t, d.Comment, "The nightly volume spiked in the week of 2017-10-02.")
	assert.Contains(t, d.Comment, "Affected platforms: Windows NT (75%), Mac OS X (25%)")

	assert.Equal(t, []string{oomSmall}, res.ToReopen)
	assert.Contains(t, res.Diagnostics, statusflags.Diagnostic{Signature: oomSmall, Message: "no eligible bug"})
	assert.Contains(t, res.Diagnostics,
		statusflags.Diagnostic{Signature: markStack, BugID: 1005, Message: "crash volume spike on nightly"})

	puts := srv.Puts()
	require.Len(t, puts, 1)
	assert.Equal(t, 1005, puts[0].BugID)
	assert.Equal(t, "affected", puts[0].Body["cf_status_firefox58"])
	assert.NotContains(t, puts[0].Body, "cf_status_firefox57")

	comment, ok := puts[0].Body["comment"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, d.Comment, comment["body"])
}

func TestAnalyze_DryRun(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	seedCrashes(srv)

	res, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{DryRun: true})
	require.NoError(t, err)

	require.Len(t, res.Decisions, 1)
	assert.NotEmpty(t, res.Decisions[0].Comment)
	assert.False(t, res.Decisions[0].Posted)
	assert.Empty(t, srv.Puts())
}

func TestAnalyze_SeedBugs(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	rec := seedCrashes(srv)

	res, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{
		BugIDs: []int{1005},
		DryRun: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"=" + markStack}, rec.last()["signature"])

	require.Len(t, res.Decisions, 1)
	assert.Equal(t, markStack, res.Decisions[0].Signature)
	assert.Empty(t, res.ToReopen)
}

func TestAnalyze_SeedWithoutSignature(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	rec := seedCrashes(srv)
	srv.AddBug(map[string]any{"id": 3000, "status": "NEW", "product": "Core"})

	res, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{BugIDs: []int{3000}})
	require.NoError(t, err)

	assert.Empty(t, res.Decisions)
	assert.Nil(t, rec.last())
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "seed bugs carry no crash signature", res.Diagnostics[0].Message)
}

func TestAnalyze_RejectedUpdate(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	seedCrashes(srv)
	srv.SetPutResult(func([]int, map[string]any) (int, any) {
		return 200, map[string]any{"error": true, "message": "flag not editable"}
	})

	res, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{})
	require.NoError(t, err)

	require.Len(t, res.Decisions, 1)
	assert.False(t, res.Decisions[0].Posted)
	assert.Contains(t, res.Diagnostics, statusflags.Diagnostic{BugID: 1005, Message: "update rejected"})
}

func TestAnalyze_UnknownProduct(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)

	_, err := newAnalyzer(t, srv).Analyze(context.Background(), statusflags.Input{Product: "Thunderbird"})
	require.ErrorIs(t, err, statusflags.ErrUnknownProduct)
}
