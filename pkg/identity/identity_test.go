package identity_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/internal/fakemoz"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/identity"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// stubUsers serves a fixed account list and counts lookups.
type stubUsers struct {
	users []bugzilla.User
	calls atomic.Int32
}

func (s *stubUsers) SearchUsers(_ context.Context, match string) ([]bugzilla.User, error) {
	s.calls.Add(1)

	var out []bugzilla.User

	for _, u := range s.users {
		if strings.Contains(u.Name, match) || strings.Contains(u.RealName, match) {
			out = append(out, bugzilla.User{Name: u.Name})
		}
	}

	return out, nil
}

func (s *stubUsers) GetUsersByName(_ context.Context, names []string) ([]bugzilla.User, error) {
	s.calls.Add(1)

	var out []bugzilla.User

	for _, u := range s.users {
		for _, n := range names {
			if u.Name == n {
				out = append(out, u)
			}
		}
	}

	return out, nil
}

func newResolver(users identity.Users) *identity.Resolver {
	return identity.NewResolver(users, identity.NewCache(), identity.WithLogger(slog.New(slog.DiscardHandler)))
}

func TestReviewerMatch_BugReviewers(t *testing.T) {
	t.Parallel()

	r := newResolver(&stubUsers{})

	email, err := r.ReviewerMatch(context.Background(), "shaver",
		[]string{"shaver@mozilla.org", "gerv@mozilla.org"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "shaver@mozilla.org", email)
}

func TestReviewerMatch_Ambiguous(t *testing.T) {
	t.Parallel()

	r := newResolver(&stubUsers{})

	_, err := r.ReviewerMatch(context.Background(), "mc",
		[]string{"mccr8@gmail.com", "mconley@mozilla.com"}, nil)
	require.ErrorIs(t, err, identity.ErrAmbiguousMatch)
}

func TestReviewerMatch_CCHandle(t *testing.T) {
	t.Parallel()

	r := newResolver(&stubUsers{})

	cc := []bugzilla.User{
		{Name: "jmuizelaar@mozilla.com", RealName: "Jeff Muizelaar [:jrmuizel]"},
		{Name: "jrmuizelfan@example.com", RealName: "Not Him (:jrmuizelfan)"},
	}

	email, err := r.ReviewerMatch(context.Background(), "jrmuizel", nil, cc)
	require.NoError(t, err)
	assert.Equal(t, "jmuizelaar@mozilla.com", email)
}

func TestReviewerMatch_UserSearch(t *testing.T) {
	t.Parallel()

	users := &stubUsers{users: []bugzilla.User{
		{Name: "ehsan@mozilla.com", RealName: "Ehsan Akhgari (:ehsan)"},
	}}
	r := newResolver(users)

	email, err := r.ReviewerMatch(context.Background(), "ehsan", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ehsan@mozilla.com", email)
	assert.Equal(t, int32(2), users.calls.Load())
}

func TestReviewerMatch_Relaxed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		short string
		user  bugzilla.User
	}{
		{"glandium", bugzilla.User{Name: "mh+mozilla@glandium.org", RealName: "Mike Hommey"}},
		{"bzbarsky", bugzilla.User{Name: "bzbarsky@mit.edu", RealName: "Boris Zbarsky [:bz]"}},
		{"dbaron", bugzilla.User{Name: "dbaron@dbaron.org", RealName: "David Baron"}},
		{"gijs", bugzilla.User{Name: "gijskruitbosch+bugs@gmail.com", RealName: "Gijs Kruitbosch"}},
		{"smaug", bugzilla.User{Name: "smaug@mozilla.com", RealName: "Olli Pettay"}},
		{"ollipettay", bugzilla.User{Name: "op@example.com", RealName: "Olli Pettay"}},
		{"łkowalski", bugzilla.User{Name: "lk@example.org", RealName: "Łukasz Kowalski"}},
		{"éduval", bugzilla.User{Name: "ed@example.org", RealName: "Élodie Duval"}},
	}

	for _, tt := range tests {
		t.Run(tt.short, func(t *testing.T) {
			t.Parallel()

			r := newResolver(&stubUsers{})

			email, err := r.ReviewerMatch(context.Background(), tt.short, nil, []bugzilla.User{tt.user})
			require.NoError(t, err)
			assert.Equal(t, tt.user.Name, email)
		})
	}
}

func TestReviewerMatch_NoMatch(t *testing.T) {
	t.Parallel()

	r := newResolver(&stubUsers{})

	email, err := r.ReviewerMatch(context.Background(), "nobody", nil,
		[]bugzilla.User{{Name: "someone@example.com", RealName: "Some One"}})
	require.NoError(t, err)
	assert.Empty(t, email)
}

func TestReviewerMatch_Memoized(t *testing.T) {
	t.Parallel()

	users := &stubUsers{users: []bugzilla.User{
		{Name: "ehsan@mozilla.com", RealName: "Ehsan Akhgari (:ehsan)"},
	}}
	cache := identity.NewCache()
	r := identity.NewResolver(users, cache)

	first, err := r.ReviewerMatch(context.Background(), "ehsan", nil, nil)
	require.NoError(t, err)

	calls := users.calls.Load()

	second, err := r.ReviewerMatch(context.Background(), "ehsan", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, calls, users.calls.Load())

	// A second resolver over the same cache sees the entry too.
	other := identity.NewResolver(&stubUsers{}, cache)

	third, err := other.ReviewerMatch(context.Background(), "ehsan", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, first, third)
}

func TestReviewerMatch_Concurrent(t *testing.T) {
	t.Parallel()

	users := &stubUsers{users: []bugzilla.User{
		{Name: "ehsan@mozilla.com", RealName: "Ehsan Akhgari (:ehsan)"},
	}}
	r := newResolver(users)

	var wg sync.WaitGroup

	results := make([]string, 8)

	for i := range results {
		wg.Add(1)

		go func() {
			defer wg.Done()

			email, err := r.ReviewerMatch(context.Background(), "ehsan", nil, nil)
			assert.NoError(t, err)

			results[i] = email
		}()
	}

	wg.Wait()

	for _, email := range results {
		assert.Equal(t, "ehsan@mozilla.com", email)
	}
}

func TestReviewerMatch_BugzillaClient(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	srv.Seed()

	client := bugzilla.New(bugzilla.Config{URL: srv.URL, Logger: slog.New(slog.DiscardHandler)},
		query.WithHTTPClient(srv.Client()))
	r := newResolver(client)

	email, err := r.ReviewerMatch(context.Background(), "philor", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, fakemoz.RiskAssignee, email)

	// One search plus one full fetch; the second lookup is served from the cache.
	_, err = r.ReviewerMatch(context.Background(), "philor", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, srv.Requests("GET /rest/user"))
}

func TestAuthorMatch(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("already a bugzilla author", func(t *testing.T) {
		t.Parallel()

		r := newResolver(&stubUsers{})

		emails, err := r.AuthorMatch(ctx, "philringnalda@gmail.com", "Phil Ringnalda",
			[]string{"philringnalda@gmail.com", "other@example.com"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"philringnalda@gmail.com"}, emails)
	})

	t.Run("single bugzilla author", func(t *testing.T) {
		t.Parallel()

		r := newResolver(&stubUsers{})

		emails, err := r.AuthorMatch(ctx, "phil@home.example", "Phil Ringnalda",
			[]string{"philringnalda@gmail.com"}, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"phil@home.example", "philringnalda@gmail.com"}, emails)
	})

	t.Run("cc real name", func(t *testing.T) {
		t.Parallel()

		r := newResolver(&stubUsers{})

		cc := []bugzilla.User{
			{Name: "jdoe@mozilla.com", RealName: "Jane Doe [:jdoe]"},
			{Name: "other@example.com", RealName: "Someone Else"},
		}

		emails, err := r.AuthorMatch(ctx, "jane@personal.example", "Jane Doe", nil, cc)
		require.NoError(t, err)
		assert.Equal(t, []string{"jane@personal.example", "jdoe@mozilla.com"}, emails)
	})

	t.Run("user search", func(t *testing.T) {
		t.Parallel()

		users := &stubUsers{users: []bugzilla.User{{Name: "jdoe@mozilla.com", RealName: "Jane Doe"}}}
		r := newResolver(users)

		emails, err := r.AuthorMatch(ctx, "jane@personal.example", "Jane Doe", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"jane@personal.example", "jdoe@mozilla.com"}, emails)

		calls := users.calls.Load()

		again, err := r.AuthorMatch(ctx, "jane@personal.example", "Jane Doe", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, emails, again)
		assert.Equal(t, calls, users.calls.Load())
	})

	t.Run("no match keeps the hg email", func(t *testing.T) {
		t.Parallel()

		r := newResolver(&stubUsers{})

		emails, err := r.AuthorMatch(ctx, "ghost@example.com", "Ghost", nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"ghost@example.com"}, emails)
	})

	t.Run("ambiguous cc", func(t *testing.T) {
		t.Parallel()

		r := newResolver(&stubUsers{})

		cc := []bugzilla.User{
			{Name: "a@example.com", RealName: "Sam Smith"},
			{Name: "b@example.com", RealName: "Sam Smithers"},
		}

		_, err := r.AuthorMatch(ctx, "sam@example.org", "Sam Smith", []string{"x@example.com", "y@example.com"}, cc)
		require.ErrorIs(t, err, identity.ErrAmbiguousMatch)
	})
}
