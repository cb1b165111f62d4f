package statusflags

import (
	"context"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/alg/stats"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
)

// TrendWeeks is the length of the weekly crash series.
const TrendWeeks = 7

const histogramFacet = "histogram_date"

// Trend is the weekly crash volume of one signature per channel.
type Trend struct {
	Weeks   []time.Time      `json:"weeks"`
	Crashes map[string][]int `json:"crashes"`
	// Spikes are the channels whose latest week is an outlier.
	Spikes []string `json:"spikes,omitempty"`
}

func (r *run) trendParams(signature string) url.Values {
	start := r.now.AddDate(0, 0, -7*TrendWeeks)

	return url.Values{
		"product":                  {r.in.Product},
		"signature":                {"=" + signature},
		"version":                  r.versionList(),
		"date":                     socorro.SearchDate(start, r.now, r.now),
		"_histogram.date":          {"release_channel"},
		"_histogram_interval.date": {"1w"},
		"_results_number":          {"0"},
	}
}

// fetchTrends runs one fan-out SuperSearch for every decision that has
// flags to set.
func (r *run) fetchTrends(ctx context.Context) error {
	bySignature := map[string]*Decision{}

	var params []url.Values

	for i := range r.result.Decisions {
		d := &r.result.Decisions[i]
		if len(d.Channels) == 0 {
			continue
		}

		bySignature[d.Signature] = d
		params = append(params, r.trendParams(d.Signature))
	}

	if len(params) == 0 {
		return nil
	}

	return r.socorro.SuperSearch(ctx, params, query.Observe(func(res socorro.SearchResult) error {
		signature := strings.TrimPrefix(firstParam(res.Params, "signature"), "=")

		d, ok := bySignature[signature]
		if !ok {
			return nil
		}

		d.Trend = buildTrend(res.Facets[histogramFacet], d.Channels)

		return nil
	}))
}

func firstParam(params map[string][]string, key string) string {
	if len(params[key]) == 0 {
		return ""
	}

	return params[key][0]
}

// buildTrend aligns the histogram buckets on weeks and keeps the last
// TrendWeeks of them.
func buildTrend(buckets []socorro.Facet, channels []string) *Trend {
	type week struct {
		start time.Time
		facet socorro.Facet
	}

	weeks := make([]week, 0, len(buckets))

	for _, b := range buckets {
		start, ok := parseWeek(string(b.Term))
		if ok {
			weeks = append(weeks, week{start: start, facet: b})
		}
	}

	slices.SortFunc(weeks, func(a, b week) int { return a.start.Compare(b.start) })

	if len(weeks) > TrendWeeks {
		weeks = weeks[len(weeks)-TrendWeeks:]
	}

	t := &Trend{Crashes: make(map[string][]int, len(channels))}

	for _, ch := range channels {
		t.Crashes[ch] = make([]int, len(weeks))
	}

	for i, w := range weeks {
		t.Weeks = append(t.Weeks, w.start)

		for _, sub := range w.facet.Sub("release_channel") {
			if counts, ok := t.Crashes[string(sub.Term)]; ok {
				counts[i] = sub.Count
			}
		}
	}

	for _, ch := range channels {
		if spiking(t.Crashes[ch]) {
			t.Spikes = append(t.Spikes, ch)
		}
	}

	return t
}

func parseWeek(term string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		t, err := time.Parse(layout, term)
		if err == nil {
			return t.UTC(), true
		}
	}

	return time.Time{}, false
}

// spiking reports whether the latest value is a Grubbs outlier.
func spiking(counts []int) bool {
	if len(counts) == 0 {
		return false
	}

	outliers := stats.Grubbs(stats.Floats(counts), stats.DefaultAlpha)

	return slices.Contains(outliers, len(counts)-1)
}
