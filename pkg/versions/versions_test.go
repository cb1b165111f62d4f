package versions_test

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/internal/fakemoz"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
	"github.com/Sumatoshi-tech/mozdata/pkg/versions"
)

type stubSource struct {
	rows  []socorro.ProductVersion
	err   error
	calls atomic.Int32
}

func (s *stubSource) ProductVersions(context.Context, string) ([]socorro.ProductVersion, error) {
	s.calls.Add(1)

	return s.rows, s.err
}

func date(y int, m time.Month, d int) socorro.Date {
	return socorro.Date{Time: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func pv(version, buildType string, start, end socorro.Date) socorro.ProductVersion {
	return socorro.ProductVersion{
		Product: "Firefox", Version: version, BuildType: buildType, StartDate: start, EndDate: end,
	}
}

func sampleRows() []socorro.ProductVersion {
	return []socorro.ProductVersion{
		pv("58.0a1", "nightly", date(2017, 9, 21), socorro.Date{}),
		pv("57.0a1", "nightly", date(2017, 8, 2), date(2017, 9, 21)),
		pv("57.0b3", "beta", date(2017, 9, 28), date(2017, 11, 14)),
		pv("57.0b4", "beta", date(2017, 10, 2), date(2017, 11, 14)),
		pv("56.0", "release", date(2017, 9, 28), date(2017, 11, 14)),
		pv("55.0.3", "release", date(2017, 8, 8), date(2017, 9, 28)),
		pv("52.4.0esr", "esr", date(2017, 9, 28), socorro.Date{}),
		pv("59.0a1", "nightly", date(2017, 11, 14), socorro.Date{}),
		{Product: "Thunderbird", Version: "60.0", BuildType: "release", StartDate: date(2017, 1, 1)},
		pv("garbage", "beta", date(2017, 1, 1), socorro.Date{}),
	}
}

func TestVersions_At(t *testing.T) {
	t.Parallel()

	src := &stubSource{rows: sampleRows()}
	v := versions.New(src, "Firefox")

	at := time.Date(2017, 10, 10, 12, 0, 0, 0, time.UTC)

	channels, err := v.At(context.Background(), at)
	require.NoError(t, err)

	require.Len(t, channels, 4)
	assert.Equal(t, 58, channels["nightly"].Major)
	assert.Equal(t, 57, channels["beta"].Major)
	assert.Equal(t, []string{"57.0b3", "57.0b4"}, channels["beta"].Versions)
	assert.Equal(t, time.Date(2017, 9, 28, 0, 0, 0, 0, time.UTC), channels["beta"].StartDate)
	assert.Equal(t, 56, channels["release"].Major)
	assert.Equal(t, 52, channels["esr"].Major)

	base, err := v.Base(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"nightly": 58, "beta": 57, "release": 56, "esr": 52}, base)

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestVersions_NoneActive(t *testing.T) {
	t.Parallel()

	v := versions.New(&stubSource{rows: sampleRows()}, "Firefox")

	_, err := v.At(context.Background(), time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC))
	require.ErrorIs(t, err, versions.ErrNoVersions)
}

func TestVersions_SourceError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	v := versions.New(&stubSource{err: boom}, "Firefox")

	_, err := v.Current(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestVersions_FromSocorro(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	srv.AddProductVersion(map[string]any{
		"product": "Firefox", "version": "57.0b4", "build_type": "beta",
		"start_date": "2017-09-28", "end_date": "2017-11-14",
	})

	client := socorro.New(socorro.Config{URL: srv.URL, Logger: slog.New(slog.DiscardHandler)},
		query.WithHTTPClient(srv.Client()))

	channels, err := versions.New(client, "Firefox").At(context.Background(), time.Date(2017, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 57, channels["beta"].Major)
}

func TestCalendar_NextRelease(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)
	srv.SetMajorReleases(map[string]string{
		"55.0": "2017-08-08",
		"56.0": "2017-09-28",
		"57.0": "2017-11-14",
		"bad":  "soon",
	})

	cal := versions.NewCalendar(srv.ProductDetailsURL(), slog.New(slog.DiscardHandler), query.WithHTTPClient(srv.Client()))

	next, err := cal.NextRelease(context.Background(), time.Date(2017, 10, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 11, 14, 0, 0, 0, 0, time.UTC), next)

	next, err = cal.NextRelease(context.Background(), time.Date(2017, 12, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2017, 11, 14, 0, 0, 0, 0, time.UTC).Add(versions.CycleLength), next)

	assert.Equal(t, 1, srv.Requests("GET /1.0/"))
}

func TestCalendar_Missing(t *testing.T) {
	t.Parallel()

	srv := fakemoz.New(t)

	cal := versions.NewCalendar(srv.ProductDetailsURL(), slog.New(slog.DiscardHandler),
		query.WithHTTPClient(srv.Client()), query.WithRetryPolicy(query.NoRetry()))

	_, err := cal.NextRelease(context.Background(), time.Now())
	require.Error(t, err)
}
