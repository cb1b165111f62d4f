// Package socorro is a typed façade over the Socorro crash-stats API:
// SuperSearch, ProcessedCrash, Bugs, ADI, ProductVersions and Platforms.
package socorro

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

const (
	// DefaultURL is the production crash-stats instance.
	DefaultURL = "https://crash-stats.mozilla.org"

	authHeader = "Auth-Token"
	dateLayout = "2006-01-02"

	superSearch           = "SuperSearch"
	superSearchUnredacted = "SuperSearchUnredacted"
)

// Config selects the Socorro instance and credentials.
type Config struct {
	// URL is the instance base URL; DefaultURL when empty.
	URL string
	// Token is sent as Auth-Token when set. Unredacted searches need it.
	Token string
	// Logger receives warnings; slog.Default() when nil.
	Logger *slog.Logger
}

// Client talks to one Socorro instance. ProductVersions and Platforms are
// cached for the client's lifetime.
type Client struct {
	baseURL string
	opts    []query.Option
	logger  *slog.Logger

	flight    singleflight.Group
	mu        sync.Mutex
	versions  map[string][]ProductVersion
	platforms []Platform
}

// New creates a client. opts are applied to every Connection it opens.
func New(cfg Config, opts ...query.Option) *Client {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	all := slices.Clone(opts)
	all = append(all,
		query.WithAuthenticator(query.HeaderAuth{Name: authHeader, Value: cfg.Token}),
		query.WithLogger(logger),
	)

	return &Client{baseURL: base, opts: all, logger: logger, versions: map[string][]ProductVersion{}}
}

func (c *Client) apiURL(endpoint string) string {
	return c.baseURL + "/api/" + endpoint + "/"
}

func (c *Client) run(ctx context.Context, queries ...query.Query) error {
	err := query.Run(ctx, c.baseURL, queries, c.opts...)
	if err != nil {
		return fmt.Errorf("socorro: %w", err)
	}

	return nil
}

// needsUnredacted reports whether any parameter key or value mentions url
// or email, which only the unredacted endpoint exposes.
func needsUnredacted(params []url.Values) bool {
	for _, p := range params {
		for key, values := range p {
			if mentionsProtected(key) {
				return true
			}

			for _, v := range values {
				if mentionsProtected(v) {
					return true
				}
			}
		}
	}

	return false
}

func mentionsProtected(s string) bool {
	s = strings.ToLower(s)

	return strings.Contains(s, "url") || strings.Contains(s, "email")
}

// SuperSearchQuery builds a fan-out SuperSearch query: one request per
// parameter set, each result delivered to obs with its parameters attached.
func (c *Client) SuperSearchQuery(params []url.Values, obs query.Observers[SearchResult]) query.Query {
	endpoint := superSearch
	if needsUnredacted(params) {
		endpoint = superSearchUnredacted
	}

	handler := query.NewHandler(func(resp *query.Response) error {
		var result SearchResult

		err := resp.JSON(&result)
		if err != nil {
			return err
		}

		u, err := url.Parse(resp.URL)
		if err == nil {
			result.Params = u.Query()
		}

		for _, e := range result.Errors {
			c.logger.Warn("supersearch error", "url", resp.URL, "error", e)
		}

		return obs.Handle(result)
	})

	return query.NewQuery(c.apiURL(endpoint), handler, params...)
}

// SuperSearch runs every parameter set and notifies obs once per result.
func (c *Client) SuperSearch(ctx context.Context, params []url.Values, obs query.Observers[SearchResult]) error {
	if len(params) == 0 {
		params = []url.Values{{}}
	}

	return c.run(ctx, c.SuperSearchQuery(params, obs))
}

// Search runs a single SuperSearch.
func (c *Client) Search(ctx context.Context, params url.Values) (*SearchResult, error) {
	var result *SearchResult

	err := c.SuperSearch(ctx, []url.Values{params}, query.Observe(func(r SearchResult) error {
		result = &r

		return nil
	}))
	if err != nil {
		return nil, err
	}

	if result == nil {
		return &SearchResult{}, nil
	}

	return result, nil
}

// ProcessedCrash fetches processed crash reports by crash id. Reports that
// could not be fetched are absent from the result.
func (c *Client) ProcessedCrash(ctx context.Context, crashIDs []string) (map[string]ProcessedCrash, error) {
	out := make(map[string]ProcessedCrash, len(crashIDs))
	if len(crashIDs) == 0 {
		return out, nil
	}

	params := make([]url.Values, 0, len(crashIDs))
	for _, id := range crashIDs {
		params = append(params, url.Values{"crash_id": {id}, "datatype": {"processed"}})
	}

	handler := query.NewHandler(func(resp *query.Response) error {
		var crash ProcessedCrash

		err := resp.JSON(&crash)
		if err != nil {
			return err
		}

		u, err := url.Parse(resp.URL)
		if err == nil && crash.UUID == "" {
			crash.UUID = u.Query().Get("crash_id")
		}

		out[crash.UUID] = crash

		return nil
	})

	err := c.run(ctx, query.NewQuery(c.apiURL("ProcessedCrash"), handler, params...))
	if err != nil {
		return nil, err
	}

	return out, nil
}

type bugsResponse struct {
	Hits  []SignatureBug `json:"hits"`
	Total int            `json:"total"`
}

// Bugs returns the bugs associated with the signatures.
func (c *Client) Bugs(ctx context.Context, signatures []string) ([]SignatureBug, error) {
	if len(signatures) == 0 {
		return nil, nil
	}

	var out []SignatureBug

	var params []url.Values
	for _, chunk := range query.Chunks(signatures, query.DefaultChunkSize) {
		params = append(params, url.Values{"signatures": chunk})
	}

	handler := query.JSON(query.Observe(func(resp bugsResponse) error {
		out = append(out, resp.Hits...)

		return nil
	}))

	err := c.run(ctx, query.NewQuery(c.apiURL("Bugs"), handler, params...))
	if err != nil {
		return nil, err
	}

	return out, nil
}

// ADIRequest selects active daily installs.
type ADIRequest struct {
	Product   string
	Versions  []string
	Platforms []string
	Start     time.Time
	End       time.Time
}

type adiResponse struct {
	Hits  []ADICount `json:"hits"`
	Total int        `json:"total"`
}

// ADI returns the active daily installs matching req.
func (c *Client) ADI(ctx context.Context, req ADIRequest) ([]ADICount, error) {
	params := url.Values{
		"product":    {req.Product},
		"versions":   req.Versions,
		"start_date": {req.Start.Format(dateLayout)},
		"end_date":   {req.End.Format(dateLayout)},
	}

	if len(req.Platforms) > 0 {
		params["platforms"] = req.Platforms
	}

	var out []ADICount

	handler := query.JSON(query.Observe(func(resp adiResponse) error {
		out = resp.Hits

		return nil
	}))

	err := c.run(ctx, query.NewQuery(c.apiURL("ADI"), handler, params))
	if err != nil {
		return nil, err
	}

	return out, nil
}

type productVersionsResponse struct {
	Hits  []ProductVersion `json:"hits"`
	Total int              `json:"total"`
}

// ProductVersions returns the versions known for product. The first
// successful answer is cached; concurrent callers share one request.
func (c *Client) ProductVersions(ctx context.Context, product string) ([]ProductVersion, error) {
	c.mu.Lock()
	cached, ok := c.versions[product]
	c.mu.Unlock()

	if ok {
		return cached, nil
	}

	v, err, _ := c.flight.Do("versions:"+product, func() (any, error) {
		var hits []ProductVersion

		handler := query.JSON(query.Observe(func(resp productVersionsResponse) error {
			hits = resp.Hits

			return nil
		}))

		err := c.run(ctx, query.NewQuery(c.apiURL("ProductVersions"), handler, url.Values{"product": {product}}))
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.versions[product] = hits
		c.mu.Unlock()

		return hits, nil
	})
	if err != nil {
		return nil, err
	}

	versions, _ := v.([]ProductVersion)

	return versions, nil
}

type platformsResponse struct {
	Hits []Platform `json:"hits"`
}

// Platforms returns the platform list, cached after the first call.
func (c *Client) Platforms(ctx context.Context) ([]Platform, error) {
	c.mu.Lock()
	cached := c.platforms
	c.mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	v, err, _ := c.flight.Do("platforms", func() (any, error) {
		var hits []Platform

		handler := query.JSON(query.Observe(func(resp platformsResponse) error {
			hits = resp.Hits

			return nil
		}))

		err := c.run(ctx, query.NewQuery(c.apiURL("Platforms"), handler))
		if err != nil {
			return nil, err
		}

		if hits == nil {
			hits = []Platform{}
		}

		c.mu.Lock()
		c.platforms = hits
		c.mu.Unlock()

		return hits, nil
	})
	if err != nil {
		return nil, err
	}

	platforms, _ := v.([]Platform)

	return platforms, nil
}

// SearchDate renders a date range as Socorro expects it: an inclusive
// start and an exclusive end. The end bound is dropped when end is today
// or later, since the current day is still being collected.
func SearchDate(start, end, today time.Time) []string {
	out := []string{">=" + start.Format(dateLayout)}

	if day(end).Before(day(today)) {
		out = append(out, "<"+end.Format(dateLayout))
	}

	return out
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()

	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
