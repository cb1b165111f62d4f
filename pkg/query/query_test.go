package query_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

func TestQueryValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		query query.Query
		valid bool
	}{
		{name: "get", query: query.NewQuery("https://bugzilla.mozilla.org/rest/bug", nil), valid: true},
		{name: "empty url", query: query.Query{}, valid: false},
		{name: "relative url", query: query.NewQuery("/rest/bug", nil), valid: false},
		{name: "unsupported method", query: query.Query{URL: "https://x.org", Method: "DELETE"}, valid: false},
		{name: "put", query: query.Query{URL: "https://x.org", Method: "PUT", Body: []byte("{}")}, valid: true},
		{
			name: "put fan-out",
			query: query.Query{
				URL:    "https://x.org",
				Method: "PUT",
				Params: []url.Values{{"a": {"1"}}, {"a": {"2"}}},
			},
			valid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.query.Validate()
			if tt.valid {
				require.NoError(t, err)

				return
			}

			require.ErrorIs(t, err, query.ErrInvalidQuery)
		})
	}
}

func TestQueryString(t *testing.T) {
	t.Parallel()

	q := query.NewQuery("https://crash-stats.mozilla.org/api/SuperSearch", nil,
		url.Values{"product": {"Firefox"}, "_facets": {"signature", "platform"}},
		url.Values{"signature": {"=OOM | small"}},
	)

	assert.Equal(t,
		"https://crash-stats.mozilla.org/api/SuperSearch?_facets=signature&_facets=platform&product=Firefox\n"+
			"https://crash-stats.mozilla.org/api/SuperSearch?signature=%3DOOM+%7C+small",
		q.String())

	assert.Equal(t, "https://hg.mozilla.org/mozilla-central/json-rev", query.NewQuery(
		"https://hg.mozilla.org/mozilla-central/json-rev", nil).String())
}

func TestQueryStringRoundTrip(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		params := url.Values{}

		keys := rapid.SliceOfN(rapid.StringMatching(`[a-z_]{1,8}`), 0, 6).Draw(t, "keys")
		for _, key := range keys {
			values := rapid.SliceOfN(rapid.String(), 1, 3).Draw(t, "values")
			params[key] = append(params[key], values...)
		}

		rendered := query.NewQuery("https://example.org/api", nil, params).String()

		_, rawQuery, _ := strings.Cut(rendered, "?")

		parsed, err := url.ParseQuery(rawQuery)
		if err != nil {
			t.Fatalf("parse %q: %v", rendered, err)
		}

		if len(params) == 0 {
			if len(parsed) != 0 {
				t.Fatalf("expected no parameters, got %v", parsed)
			}

			return
		}

		if len(parsed) != len(params) {
			t.Fatalf("key count: got %d want %d", len(parsed), len(params))
		}

		for key, want := range params {
			got := parsed[key]
			if strings.Join(got, "\x00") != strings.Join(want, "\x00") || len(got) != len(want) {
				t.Fatalf("key %q: got %q want %q", key, got, want)
			}
		}
	})
}
