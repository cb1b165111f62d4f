// Package bugzilla is a typed façade over the Bugzilla REST API. Reads are
// batched into chunks of ids and dispatched through the query engine;
// history, comments and attachments are fetched per bug only when a caller
// observes them.
package bugzilla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// Sentinel errors.
var (
	// ErrNothingToFetch is returned when a Request names no bug and no search,
	// or when nothing observes the fetched data.
	ErrNothingToFetch = errors.New("bugzilla request has nothing to fetch")
	// ErrPutFailed is returned when some bugs still fail after every pass.
	ErrPutFailed = errors.New("bugzilla rejected the update")
	// ErrUnknownChannel is returned for a channel without a landing pattern.
	ErrUnknownChannel = errors.New("unknown channel")
)

const (
	// DefaultURL is the production Bugzilla instance.
	DefaultURL = "https://bugzilla.mozilla.org"

	apiKeyHeader     = "X-Bugzilla-API-Key"
	defaultPutPasses = 3
)

// Config selects the Bugzilla instance and credentials.
type Config struct {
	// URL is the instance base URL; DefaultURL when empty.
	URL string
	// Token is sent as X-Bugzilla-API-Key when set.
	Token string
	// Logger receives fault and retry warnings; slog.Default() when nil.
	Logger *slog.Logger
	// MaxPutPasses bounds how many times failing ids are re-sent by Put.
	MaxPutPasses int
}

// Client talks to one Bugzilla instance.
type Client struct {
	baseURL   string
	opts      []query.Option
	logger    *slog.Logger
	putPasses int
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

	passes := cfg.MaxPutPasses
	if passes <= 0 {
		passes = defaultPutPasses
	}

	all := slices.Clone(opts)
	all = append(all,
		query.WithAuthenticator(query.HeaderAuth{Name: apiKeyHeader, Value: cfg.Token}),
		query.WithLogger(logger),
	)

	return &Client{baseURL: base, opts: all, logger: logger, putPasses: passes}
}

// BaseURL returns the instance URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) restURL(parts ...string) string {
	return c.baseURL + "/rest/" + strings.Join(parts, "/")
}

func (c *Client) connect(ctx context.Context, queries []query.Query, extra ...query.Option) (*query.Connection, error) {
	opts := c.opts
	if len(extra) > 0 {
		opts = append(slices.Clone(c.opts), extra...)
	}

	conn, err := query.New(ctx, c.baseURL, queries, opts...)
	if err != nil {
		return nil, fmt.Errorf("bugzilla: %w", err)
	}

	return conn, nil
}

// Request describes which bugs to fetch and who observes which part of them.
type Request struct {
	// IDs are fetched in chunks of query.DefaultChunkSize.
	IDs []int
	// Searches are Bugzilla search parameter sets, one request each.
	Searches []url.Values

	IncludeFields           []string
	CommentIncludeFields    []string
	AttachmentIncludeFields []string
	// AttachmentData keeps the base64 payload in attachment responses.
	AttachmentData bool

	Bug         query.Observers[Bug]
	History     query.Observers[History]
	Comments    query.Observers[Comments]
	Attachments query.Observers[Attachments]
}

// Merge returns a request fetching the union of both requests and notifying
// both sets of observers.
func (r Request) Merge(other Request) Request {
	return Request{
		IDs:                     unionInts(r.IDs, other.IDs),
		Searches:                append(slices.Clone(r.Searches), other.Searches...),
		IncludeFields:           unionFields(r.IncludeFields, other.IncludeFields),
		CommentIncludeFields:    unionFields(r.CommentIncludeFields, other.CommentIncludeFields),
		AttachmentIncludeFields: unionFields(r.AttachmentIncludeFields, other.AttachmentIncludeFields),
		AttachmentData:          r.AttachmentData || other.AttachmentData,
		Bug:                     r.Bug.Merge(other.Bug),
		History:                 r.History.Merge(other.History),
		Comments:                r.Comments.Merge(other.Comments),
		Attachments:             r.Attachments.Merge(other.Attachments),
	}
}

func (r Request) hasCompanions() bool {
	return r.History.IsActive() || r.Comments.IsActive() || r.Attachments.IsActive()
}

// unionFields merges include_fields lists. An empty list means "all
// fields", so it absorbs the other side.
func unionFields(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}

	out := slices.Clone(a)

	for _, f := range b {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}

	return out
}

func unionInts(a, b []int) []int {
	out := slices.Clone(a)

	for _, v := range b {
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}

	return out
}

// Fetch is an in-flight Request. Searches that feed companion fetches run
// in two phases; Wait drives both.
type Fetch struct {
	client *Client
	req    Request
	ctx    context.Context
	conn   *query.Connection

	seen  map[int]bool
	found []int

	once sync.Once
	err  error
}

// Get dispatches req.
func (c *Client) Get(ctx context.Context, req Request) (*Fetch, error) {
	if len(req.IDs) == 0 && len(req.Searches) == 0 {
		return nil, ErrNothingToFetch
	}

	if !req.Bug.IsActive() && !req.hasCompanions() {
		return nil, ErrNothingToFetch
	}

	f := &Fetch{client: c, req: req, ctx: ctx, seen: map[int]bool{}}

	var queries []query.Query

	if len(req.IDs) > 0 {
		for _, id := range req.IDs {
			f.seen[id] = true
		}

		if req.Bug.IsActive() {
			queries = append(queries, c.bugQueries(req.IDs, req.IncludeFields, req.Bug)...)
		}

		if req.hasCompanions() {
			queries = append(queries, c.companionQueries(req, req.IDs)...)
		}
	}

	if len(req.Searches) > 0 {
		queries = append(queries, f.searchQuery())
	}

	conn, err := c.connect(ctx, queries)
	if err != nil {
		return nil, err
	}

	f.conn = conn

	return f, nil
}

// Wait blocks until every bug, companion and search result was delivered.
func (f *Fetch) Wait() error {
	f.once.Do(func() {
		f.err = f.wait()
	})

	return f.err
}

func (f *Fetch) wait() error {
	err := f.conn.Wait()
	if err != nil {
		return err
	}

	if len(f.found) == 0 || !f.req.hasCompanions() {
		return nil
	}

	conn, err := f.client.connect(f.ctx, f.client.companionQueries(f.req, f.found))
	if err != nil {
		return err
	}

	return conn.Wait()
}

type bugsResponse struct {
	Bugs   []Bug   `json:"bugs"`
	Faults []Fault `json:"faults"`
}

func (c *Client) bugQueries(ids []int, fields []string, obs query.Observers[Bug]) []query.Query {
	handler := query.JSON(query.Observe(func(resp bugsResponse) error {
		c.logFaults(resp.Faults)

		for _, bug := range resp.Bugs {
			err := obs.Handle(bug)
			if err != nil {
				return err
			}
		}

		return nil
	}))

	chunks := query.Chunks(ids, query.DefaultChunkSize)
	queries := make([]query.Query, 0, len(chunks))

	for _, chunk := range chunks {
		params := url.Values{"id": {joinInts(chunk)}}
		if len(fields) > 0 {
			params.Set("include_fields", strings.Join(fields, ","))
		}

		queries = append(queries, query.NewQuery(c.restURL("bug"), handler, params))
	}

	return queries
}

// searchQuery fans out over every search. When companions are observed the
// search also collects the ids it finds, so the second phase can fetch them.
func (f *Fetch) searchQuery() query.Query {
	req := f.req
	fields := req.IncludeFields

	switch {
	case !req.Bug.IsActive():
		fields = []string{"id"}
	case len(fields) > 0 && !slices.Contains(fields, "id"):
		fields = append(slices.Clone(fields), "id")
	}

	params := make([]url.Values, 0, len(req.Searches))

	for _, search := range req.Searches {
		p := cloneValues(search)
		if len(fields) > 0 {
			p.Set("include_fields", strings.Join(fields, ","))
		}

		params = append(params, p)
	}

	handler := query.JSON(query.Observe(func(resp bugsResponse) error {
		f.client.logFaults(resp.Faults)

		for _, bug := range resp.Bugs {
			if req.hasCompanions() && !f.seen[bug.ID] {
				f.seen[bug.ID] = true
				f.found = append(f.found, bug.ID)
			}

			err := req.Bug.Handle(bug)
			if err != nil {
				return err
			}
		}

		return nil
	}))

	return query.NewQuery(f.client.restURL("bug"), handler, params...)
}

type historyResponse struct {
	Bugs []History `json:"bugs"`
}

type commentsResponse struct {
	Bugs map[string]struct {
		Comments []Comment `json:"comments"`
	} `json:"bugs"`
}

type attachmentsResponse struct {
	Bugs map[string][]Attachment `json:"bugs"`
}

func (c *Client) companionQueries(req Request, ids []int) []query.Query {
	var queries []query.Query

	for _, id := range ids {
		sid := strconv.Itoa(id)

		if req.History.IsActive() {
			handler := query.JSON(query.Observe(func(resp historyResponse) error {
				for _, h := range resp.Bugs {
					err := req.History.Handle(h)
					if err != nil {
						return err
					}
				}

				return nil
			}))

			queries = append(queries, query.NewQuery(c.restURL("bug", sid, "history"), handler))
		}

		if req.Comments.IsActive() {
			handler := query.JSON(query.Observe(func(resp commentsResponse) error {
				for key, entry := range resp.Bugs {
					bugID, err := strconv.Atoi(key)
					if err != nil {
						return fmt.Errorf("comment bug id %q: %w", key, err)
					}

					err = req.Comments.Handle(Comments{BugID: bugID, Comments: entry.Comments})
					if err != nil {
						return err
					}
				}

				return nil
			}))

			params := url.Values{}
			if len(req.CommentIncludeFields) > 0 {
				params.Set("include_fields", strings.Join(req.CommentIncludeFields, ","))
			}

			queries = append(queries, query.NewQuery(c.restURL("bug", sid, "comment"), handler, params))
		}

		if req.Attachments.IsActive() {
			handler := query.JSON(query.Observe(func(resp attachmentsResponse) error {
				for key, list := range resp.Bugs {
					bugID, err := strconv.Atoi(key)
					if err != nil {
						return fmt.Errorf("attachment bug id %q: %w", key, err)
					}

					err = req.Attachments.Handle(Attachments{BugID: bugID, Attachments: list})
					if err != nil {
						return err
					}
				}

				return nil
			}))

			params := url.Values{}
			if len(req.AttachmentIncludeFields) > 0 {
				params.Set("include_fields", strings.Join(req.AttachmentIncludeFields, ","))
			}

			if !req.AttachmentData {
				params.Set("exclude_fields", "data")
			}

			queries = append(queries, query.NewQuery(c.restURL("bug", sid, "attachment"), handler, params))
		}
	}

	return queries
}

func (c *Client) logFaults(faults []Fault) {
	for _, fault := range faults {
		c.logger.Warn("bugzilla fault, bug skipped",
			"bug", fault.ID.String(), "code", fault.FaultCode, "message", fault.FaultString)
	}
}

// GetBugs fetches bugs by id and returns them in the order of ids. Bugs the
// server did not return (private or missing) are absent.
func (c *Client) GetBugs(ctx context.Context, ids []int, fields ...string) ([]Bug, error) {
	byID := make(map[int]Bug, len(ids))

	fetch, err := c.Get(ctx, Request{
		IDs:           ids,
		IncludeFields: fields,
		Bug: query.Observe(func(b Bug) error {
			byID[b.ID] = b

			return nil
		}),
	})
	if err != nil {
		return nil, err
	}

	err = fetch.Wait()
	if err != nil {
		return nil, err
	}

	out := make([]Bug, 0, len(byID))

	for _, id := range ids {
		if b, ok := byID[id]; ok {
			out = append(out, b)
			delete(byID, id)
		}
	}

	return out, nil
}

// Search runs one Bugzilla search.
func (c *Client) Search(ctx context.Context, params url.Values, fields ...string) ([]Bug, error) {
	var bugs []Bug

	fetch, err := c.Get(ctx, Request{
		Searches:      []url.Values{params},
		IncludeFields: fields,
		Bug: query.Observe(func(b Bug) error {
			bugs = append(bugs, b)

			return nil
		}),
	})
	if err != nil {
		return nil, err
	}

	err = fetch.Wait()
	if err != nil {
		return nil, err
	}

	return bugs, nil
}

func joinInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}

	return strings.Join(parts, ",")
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = slices.Clone(values)
	}

	return out
}
