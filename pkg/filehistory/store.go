// Package filehistory collects the Mercurial history of files and answers
// who touched them, when, and for which bugs.
package filehistory

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// DefaultChannel is the repository histories are read from.
const DefaultChannel = "central"

const cacheName = "filehistory"

// Patch is one changeset touching a file.
type Patch struct {
	Node string `json:"node"`
	// Author is the normalized author email.
	Author    string    `json:"author"`
	Desc      string    `json:"desc"`
	Date      time.Time `json:"date"`
	PushDate  time.Time `json:"pushdate,omitzero"`
	Bug       int       `json:"bug,omitempty"`
	Reviewers []string  `json:"reviewers,omitempty"`
}

func (p Patch) when(useDate bool) time.Time {
	if useDate {
		return p.Date
	}

	return p.PushDate
}

func newPatch(e hgmozilla.FileLogEntry) Patch {
	p := Patch{
		Node:      e.Node,
		Author:    NormalizeAuthor(e.Who()),
		Desc:      e.Desc,
		Bug:       BugID(e.Desc),
		Reviewers: Reviewers(e.Desc),
	}

	if !e.Date.IsZero() {
		p.Date = e.Date.Time()
	}

	if !e.PushDate.IsZero() {
		p.PushDate = e.PushDate.Time()
	}

	return p
}

// Option configures a Store.
type Option func(*Store)

// WithChannel reads histories from channel instead of DefaultChannel.
func WithChannel(channel string) Option {
	return func(s *Store) {
		s.channel = channel
	}
}

// WithLogger sets the logger for skipped entries.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// WithMetrics records cache hits of Fetch.
func WithMetrics(m *observability.AnalysisMetrics) Option {
	return func(s *Store) {
		s.metrics = m
	}
}

// Store holds the fetched history of many files. It is safe for concurrent
// use; Fetch for a (path, node) pair already fetched is a no-op.
type Store struct {
	hg      *hgmozilla.Client
	channel string
	logger  *slog.Logger
	metrics *observability.AnalysisMetrics

	mu      sync.RWMutex
	files   map[string][]Patch
	fetched map[string]string
}

// NewStore creates an empty Store reading through hg.
func NewStore(hg *hgmozilla.Client, opts ...Option) *Store {
	s := &Store{
		hg:      hg,
		channel: DefaultChannel,
		logger:  slog.Default(),
		files:   map[string][]Patch{},
		fetched: map[string]string{},
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// pager follows one file's history across json-filelog pages.
type pager struct {
	path      string
	cursor    string
	pages     int
	entries   []hgmozilla.FileLogEntry
	delivered bool
	done      bool
}

func (p *pager) add(log hgmozilla.FileLog) {
	entries := log.Entries

	// Every page after the first starts with the previous page's oldest
	// entry.
	if p.pages > 0 && len(entries) > 0 && entries[0].Node == p.cursor {
		entries = entries[1:]
	}

	p.pages++
	p.delivered = true
	p.entries = append(p.entries, entries...)

	if len(log.Entries) < hgmozilla.MaxRevCount {
		p.done = true

		return
	}

	p.cursor = log.Entries[len(log.Entries)-1].Node
}

// Fetch loads the history of every path as of node. Pages are requested in
// rounds: one Connection per round, one query per path still paginating.
// A page the server refused ends that path's history where it stands.
func (s *Store) Fetch(ctx context.Context, node string, paths []string) error {
	var pagers []*pager

	s.mu.RLock()
	for _, p := range paths {
		hit := s.fetched[p] == node
		s.metrics.RecordCache(ctx, cacheName, hit)

		if !hit && !slices.ContainsFunc(pagers, func(pg *pager) bool { return pg.path == p }) {
			pagers = append(pagers, &pager{path: p, cursor: node})
		}
	}
	s.mu.RUnlock()

	for pending := pagers; len(pending) > 0; {
		queries := make([]query.Query, 0, len(pending))

		for _, pg := range pending {
			pg.delivered = false

			queries = append(queries, s.hg.FileLogQuery(s.channel, pg.cursor, pg.path, hgmozilla.MaxRevCount,
				query.Observe(func(log hgmozilla.FileLog) error {
					pg.add(log)

					return nil
				})))
		}

		err := s.hg.Run(ctx, queries...)
		if err != nil {
			return fmt.Errorf("file history: %w", err)
		}

		var next []*pager

		for _, pg := range pending {
			if pg.delivered && !pg.done {
				next = append(next, pg)
			}
		}

		pending = next
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, pg := range pagers {
		patches := make([]Patch, 0, len(pg.entries))
		missing := 0

		for _, e := range pg.entries {
			patch := newPatch(e)
			if patch.PushDate.IsZero() {
				missing++
			}

			patches = append(patches, patch)
		}

		if missing > 0 {
			s.logger.WarnContext(ctx, "history entries without pushdate are skipped",
				"path", pg.path, "count", missing)
		}

		s.files[pg.path] = patches
		s.fetched[pg.path] = node
	}

	return nil
}

// Patches returns the cached history of path, newest first.
func (s *Store) Patches(path string) []Patch {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return slices.Clone(s.files[path])
}

// Filter selects patches in Get.
type Filter struct {
	// From and To bound the patch time, both inclusive. Zero means
	// unbounded.
	From time.Time
	To   time.Time
	// Authors restricts patches to these emails when non-empty.
	Authors []string
	// UseDate selects the commit date instead of the push date.
	UseDate bool
}

func (f Filter) match(p Patch) bool {
	when := p.when(f.UseDate)
	if when.IsZero() {
		return false
	}

	if !f.From.IsZero() && when.Before(f.From) {
		return false
	}

	if !f.To.IsZero() && when.After(f.To) {
		return false
	}

	return len(f.Authors) == 0 || slices.Contains(f.Authors, p.Author)
}

// AuthorStats aggregates one author's patches.
type AuthorStats struct {
	Count     int            `json:"count"`
	Reviewers map[string]int `json:"reviewers"`
}

// Result is the answer of Get.
type Result struct {
	Authors map[string]*AuthorStats `json:"authors"`
	// Bugs are the distinct bug ids of the patches, ascending.
	Bugs    []int   `json:"bugs"`
	Patches []Patch `json:"patches"`
}

// Get selects the cached patches of path matching f.
func (s *Store) Get(path string, f Filter) Result {
	s.mu.RLock()
	patches := s.files[path]
	s.mu.RUnlock()

	res := Result{Authors: map[string]*AuthorStats{}}
	bugs := map[int]bool{}

	for _, p := range patches {
		if !f.match(p) {
			continue
		}

		res.Patches = append(res.Patches, p)

		stats, ok := res.Authors[p.Author]
		if !ok {
			stats = &AuthorStats{Reviewers: map[string]int{}}
			res.Authors[p.Author] = stats
		}

		stats.Count++

		for _, r := range p.Reviewers {
			stats.Reviewers[r]++
		}

		if p.Bug != 0 {
			bugs[p.Bug] = true
		}
	}

	res.Bugs = slices.Sorted(maps.Keys(bugs))

	return res
}
