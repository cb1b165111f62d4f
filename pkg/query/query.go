package query

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Sentinel validation errors.
var (
	// ErrInvalidQuery is returned when a Query fails validation.
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNoQueries is returned when a Connection is created without queries.
	ErrNoQueries = errors.New("connection needs at least one query")
)

// Query describes one GET (or PUT) against a service. Params selects the
// request shape: nil issues one request without a query string, a single
// set issues one request, several sets fan out into one request each, all
// sharing Handler.
type Query struct {
	// URL is the absolute endpoint URL without query string.
	URL string
	// Method is GET when empty.
	Method string
	// Params are the parameter sets; see the type documentation.
	Params []url.Values
	// Body is sent as the request body (PUT only).
	Body []byte
	// Handler is notified once per successful response.
	Handler Handler
}

// NewQuery builds a GET query.
func NewQuery(rawURL string, handler Handler, params ...url.Values) Query {
	return Query{URL: rawURL, Params: params, Handler: handler}
}

// Validate checks that the query can be dispatched.
func (q Query) Validate() error {
	if q.URL == "" {
		return fmt.Errorf("%w: empty url", ErrInvalidQuery)
	}

	parsed, err := url.Parse(q.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidQuery, err)
	}

	if !parsed.IsAbs() {
		return fmt.Errorf("%w: url %q is not absolute", ErrInvalidQuery, q.URL)
	}

	switch q.method() {
	case http.MethodGet:
	case http.MethodPut:
		if len(q.Params) > 1 {
			return fmt.Errorf("%w: PUT cannot fan out", ErrInvalidQuery)
		}
	default:
		return fmt.Errorf("%w: unsupported method %s", ErrInvalidQuery, q.Method)
	}

	return nil
}

func (q Query) method() string {
	if q.Method == "" {
		return http.MethodGet
	}

	return q.Method
}

// paramSets returns one entry per request the query issues.
func (q Query) paramSets() []url.Values {
	if len(q.Params) == 0 {
		return []url.Values{nil}
	}

	return q.Params
}

// target renders the request URL for one parameter set.
func (q Query) target(params url.Values) string {
	if len(params) == 0 {
		return q.URL
	}

	sep := "?"
	if strings.Contains(q.URL, "?") {
		sep = "&"
	}

	return q.URL + sep + params.Encode()
}

// String renders every request of the query with a sorted, URL-encoded
// query string, one per line.
func (q Query) String() string {
	sets := q.paramSets()
	lines := make([]string, 0, len(sets))

	for _, params := range sets {
		lines = append(lines, q.target(params))
	}

	return strings.Join(lines, "\n")
}
