// Package hgmozilla reads changesets, file logs and annotations from
// hg.mozilla.org through its JSON web interface.
package hgmozilla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// ErrNotFound is returned when a changeset does not exist.
var ErrNotFound = errors.New("changeset not found")

const (
	// DefaultURL is the production Mercurial server.
	DefaultURL = "https://hg.mozilla.org"

	// MaxRevCount is the largest page json-filelog returns.
	MaxRevCount = 4096
)

// RepoPath maps a channel to its repository path.
func RepoPath(channel string) string {
	switch channel {
	case "nightly", "central", "":
		return "mozilla-central"
	case "inbound":
		return "integration/mozilla-inbound"
	case "fx-team":
		return "integration/fx-team"
	default:
		return "releases/mozilla-" + channel
	}
}

// Config selects the Mercurial server.
type Config struct {
	URL    string
	Logger *slog.Logger
}

// Client talks to one Mercurial server.
type Client struct {
	baseURL string
	opts    []query.Option
}

// New creates a client. opts are applied to every Connection it opens.
func New(cfg Config, opts ...query.Option) *Client {
	base := strings.TrimRight(cfg.URL, "/")
	if base == "" {
		base = DefaultURL
	}

	all := slices.Clone(opts)
	if cfg.Logger != nil {
		all = append(all, query.WithLogger(cfg.Logger))
	}

	return &Client{baseURL: base, opts: all}
}

func (c *Client) endpoint(channel, name string) string {
	return c.baseURL + "/" + RepoPath(channel) + "/" + name
}

// Run executes queries built by this client in one Connection.
func (c *Client) Run(ctx context.Context, queries ...query.Query) error {
	err := query.Run(ctx, c.baseURL, queries, c.opts...)
	if err != nil {
		return fmt.Errorf("hg: %w", err)
	}

	return nil
}

// RevisionQuery builds a json-rev fan-out over nodes.
func (c *Client) RevisionQuery(channel string, nodes []string, obs query.Observers[Revision]) query.Query {
	params := make([]url.Values, 0, len(nodes))
	for _, node := range nodes {
		params = append(params, url.Values{"node": {node}})
	}

	return query.NewQuery(c.endpoint(channel, "json-rev"), query.JSON(obs), params...)
}

// Revision fetches one changeset.
func (c *Client) Revision(ctx context.Context, channel, node string) (*Revision, error) {
	revs, err := c.Revisions(ctx, channel, []string{node})
	if err != nil {
		return nil, err
	}

	rev, ok := revs[node]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", ErrNotFound, node, RepoPath(channel))
	}

	return rev, nil
}

// Revisions fetches many changesets in one Connection, keyed by the node
// asked for. Missing changesets are absent from the map.
func (c *Client) Revisions(ctx context.Context, channel string, nodes []string) (map[string]*Revision, error) {
	out := make(map[string]*Revision, len(nodes))
	if len(nodes) == 0 {
		return out, nil
	}

	obs := query.Observe(func(rev Revision) error {
		for _, node := range nodes {
			if strings.HasPrefix(rev.Node, node) {
				out[node] = &rev
			}
		}

		return nil
	})

	err := c.Run(ctx, c.RevisionQuery(channel, nodes, obs))
	if err != nil {
		return nil, err
	}

	return out, nil
}

// RawRevision fetches the raw patch of one changeset.
func (c *Client) RawRevision(ctx context.Context, channel, node string) (string, error) {
	var raw string

	handler := query.Text(query.Observe(func(s string) error {
		raw = s

		return nil
	}))

	err := c.Run(ctx, query.NewQuery(c.endpoint(channel, "raw-rev"), handler, url.Values{"node": {node}}))
	if err != nil {
		return "", err
	}

	return raw, nil
}

// FileLogQuery builds one json-filelog request. The log's Path is set from
// path even when the server omits it.
func (c *Client) FileLogQuery(channel, node, path string, revcount int, obs query.Observers[FileLog]) query.Query {
	if revcount <= 0 {
		revcount = MaxRevCount
	}

	params := url.Values{
		"node":     {node},
		"file":     {path},
		"revcount": {strconv.Itoa(revcount)},
	}

	handler := query.JSON(query.Observe(func(log FileLog) error {
		log.Path = path

		return obs.Handle(log)
	}))

	return query.NewQuery(c.endpoint(channel, "json-filelog"), handler, params)
}

// FileLog fetches one page of a file's history starting at node.
func (c *Client) FileLog(ctx context.Context, channel, node, path string, revcount int) (*FileLog, error) {
	var out *FileLog

	obs := query.Observe(func(log FileLog) error {
		out = &log

		return nil
	})

	err := c.Run(ctx, c.FileLogQuery(channel, node, path, revcount, obs))
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Annotate fetches the line-by-line blame of path at node.
func (c *Client) Annotate(ctx context.Context, channel, node, path string) (*Annotation, error) {
	var out *Annotation

	handler := query.JSON(query.Observe(func(a Annotation) error {
		out = &a

		return nil
	}))

	err := c.Run(ctx, query.NewQuery(c.endpoint(channel, "json-annotate"), handler,
		url.Values{"node": {node}, "file": {path}}))
	if err != nil {
		return nil, err
	}

	return out, nil
}
