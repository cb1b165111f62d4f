// Package identity matches the short reviewer handles and author emails
// found in Mercurial commit messages to Bugzilla accounts.
package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

// ErrAmbiguousMatch is returned when more than one account fits a handle.
var ErrAmbiguousMatch = errors.New("ambiguous identity match")

const (
	cacheReviewers = "identity.reviewers"
	cacheAuthors   = "identity.authors"
)

// Users looks accounts up in Bugzilla; *bugzilla.Client implements it.
type Users interface {
	SearchUsers(ctx context.Context, match string) ([]bugzilla.User, error)
	GetUsersByName(ctx context.Context, names []string) ([]bugzilla.User, error)
}

// Cache memoizes resolved identities. Entries are written once and never
// change; share one Cache between resolvers to share their work.
type Cache struct {
	mu        sync.RWMutex
	reviewers map[string]string
	authors   map[string][]string
}

// NewCache creates an empty Cache.
func NewCache() *Cache {
	return &Cache{reviewers: map[string]string{}, authors: map[string][]string{}}
}

func (c *Cache) reviewer(handle string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	email, ok := c.reviewers[handle]

	return email, ok
}

func (c *Cache) setReviewer(handle, email string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.reviewers[handle]; !ok {
		c.reviewers[handle] = email
	}
}

func (c *Cache) author(key string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	emails, ok := c.authors[key]

	return slices.Clone(emails), ok
}

func (c *Cache) setAuthor(key string, emails []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.authors[key]; !ok {
		c.authors[key] = slices.Clone(emails)
	}
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger for unmatched identities.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// WithMetrics records cache hits and misses.
func WithMetrics(m *observability.AnalysisMetrics) Option {
	return func(r *Resolver) {
		r.metrics = m
	}
}

// Resolver matches identities, consulting its Cache first. Concurrent
// lookups of the same key share one resolution.
type Resolver struct {
	users   Users
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.AnalysisMetrics
	flight  singleflight.Group
}

// NewResolver creates a Resolver. A nil cache gets a private one.
func NewResolver(users Users, cache *Cache, opts ...Option) *Resolver {
	if cache == nil {
		cache = NewCache()
	}

	r := &Resolver{users: users, cache: cache, logger: slog.Default()}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ReviewerMatch resolves the r= handle short to an email, trying in order:
// the bug's reviewers, the IRC-style handles in CC real names, a Bugzilla
// user search, and a relaxed pass over the CC list. No match logs a warning
// and returns "".
func (r *Resolver) ReviewerMatch(ctx context.Context, short string, reviewers []string, cc []bugzilla.User) (string, error) {
	if email, ok := r.cache.reviewer(short); ok {
		r.metrics.RecordCache(ctx, cacheReviewers, true)

		return email, nil
	}

	r.metrics.RecordCache(ctx, cacheReviewers, false)

	v, err, _ := r.flight.Do("reviewer:"+short, func() (any, error) {
		email, err := r.resolveReviewer(ctx, short, reviewers, cc)
		if err != nil || email == "" {
			return email, err
		}

		r.cache.setReviewer(short, email)

		return email, nil
	})
	if err != nil {
		return "", err
	}

	email, _ := v.(string)
	if email == "" {
		r.logger.WarnContext(ctx, "no account matches reviewer", "reviewer", short)
	}

	return email, nil
}

func (r *Resolver) resolveReviewer(ctx context.Context, short string, reviewers []string, cc []bugzilla.User) (string, error) {
	var found []string

	for _, rev := range reviewers {
		if strings.HasPrefix(rev, short) {
			found = appendUnique(found, rev)
		}
	}

	if email, done, err := pick(short, found); done {
		return email, err
	}

	found = found[:0]

	for _, u := range cc {
		if hasHandle(u.RealName, short) {
			found = appendUnique(found, u.Address())
		}
	}

	if email, done, err := pick(short, found); done {
		return email, err
	}

	found, err := r.searchHandle(ctx, short)
	if err != nil {
		return "", err
	}

	if email, done, err := pick(short, found); done {
		return email, err
	}

	found = found[:0]

	for _, u := range cc {
		if relaxedMatch(short, u) {
			found = appendUnique(found, u.Address())
		}
	}

	email, _, err := pick(short, found)

	return email, err
}

// searchHandle asks Bugzilla for accounts matching short, then fetches them
// in full since search results may omit real names.
func (r *Resolver) searchHandle(ctx context.Context, short string) ([]string, error) {
	candidates, err := r.users.SearchUsers(ctx, short)
	if err != nil {
		return nil, fmt.Errorf("search users %q: %w", short, err)
	}

	if len(candidates) == 0 {
		return nil, nil
	}

	names := make([]string, 0, len(candidates))
	for _, u := range candidates {
		names = append(names, u.Name)
	}

	full, err := r.users.GetUsersByName(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("fetch users %v: %w", names, err)
	}

	var found []string

	for _, u := range full {
		if hasHandle(u.RealName, short) {
			found = appendUnique(found, u.Address())
		}
	}

	return found, nil
}

// AuthorMatch resolves the Bugzilla identity of a Mercurial author. The
// result always holds hgEmail, plus the Bugzilla email when it differs.
func (r *Resolver) AuthorMatch(ctx context.Context, hgEmail, realName string, authors []string, cc []bugzilla.User) ([]string, error) {
	key := hgEmail + "\x00" + realName

	if emails, ok := r.cache.author(key); ok {
		r.metrics.RecordCache(ctx, cacheAuthors, true)

		return emails, nil
	}

	r.metrics.RecordCache(ctx, cacheAuthors, false)

	v, err, _ := r.flight.Do("author:"+key, func() (any, error) {
		emails, err := r.resolveAuthor(ctx, hgEmail, realName, authors, cc)
		if err != nil {
			return nil, err
		}

		r.cache.setAuthor(key, emails)

		return emails, nil
	})
	if err != nil {
		return nil, err
	}

	emails, _ := v.([]string)

	return slices.Clone(emails), nil
}

func (r *Resolver) resolveAuthor(ctx context.Context, hgEmail, realName string, authors []string, cc []bugzilla.User) ([]string, error) {
	if slices.Contains(authors, hgEmail) {
		return []string{hgEmail}, nil
	}

	if len(authors) == 1 {
		return emailSet(hgEmail, authors[0]), nil
	}

	if realName == "" {
		r.logger.WarnContext(ctx, "no account matches author", "author", hgEmail)

		return []string{hgEmail}, nil
	}

	var found []string

	name := strings.ToLower(realName)

	for _, u := range cc {
		if strings.Contains(strings.ToLower(u.RealName), name) {
			found = appendUnique(found, u.Address())
		}
	}

	if email, done, err := pick(realName, found); done {
		if err != nil {
			return nil, err
		}

		return emailSet(hgEmail, email), nil
	}

	users, err := r.users.SearchUsers(ctx, realName)
	if err != nil {
		return nil, fmt.Errorf("search users %q: %w", realName, err)
	}

	found = found[:0]

	for _, u := range users {
		found = appendUnique(found, u.Address())
	}

	email, done, err := pick(realName, found)
	if err != nil {
		return nil, err
	}

	if !done {
		r.logger.WarnContext(ctx, "no account matches author", "author", hgEmail, "name", realName)

		return []string{hgEmail}, nil
	}

	return emailSet(hgEmail, email), nil
}

// pick returns the single element of found. done is false when found is
// empty; several elements are an ErrAmbiguousMatch.
func pick(what string, found []string) (email string, done bool, err error) {
	switch len(found) {
	case 0:
		return "", false, nil
	case 1:
		return found[0], true, nil
	default:
		return "", true, fmt.Errorf("%w: %q matches %v", ErrAmbiguousMatch, what, found)
	}
}

func appendUnique(list []string, v string) []string {
	if v == "" || slices.Contains(list, v) {
		return list
	}

	return append(list, v)
}

func emailSet(emails ...string) []string {
	var out []string

	for _, e := range emails {
		out = appendUnique(out, e)
	}

	slices.Sort(out)

	return out
}
