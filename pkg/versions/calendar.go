package versions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

const (
	// DefaultProductDetailsURL is the product-details service.
	DefaultProductDetailsURL = "https://product-details.mozilla.org/1.0"

	majorReleasesFile = "firefox_history_major_releases.json"

	// CycleLength is the length of one release cycle.
	CycleLength = 6 * 7 * 24 * time.Hour
)

// ErrNoCalendar is returned when product-details lists no release.
var ErrNoCalendar = errors.New("no major release dates")

// Calendar answers release-date questions from product-details. The
// release list is fetched once.
type Calendar struct {
	baseURL string
	opts    []query.Option
	logger  *slog.Logger

	once  sync.Once
	dates []time.Time
	err   error
}

// NewCalendar creates a Calendar reading from baseURL (the product-details
// root, DefaultProductDetailsURL when empty).
func NewCalendar(baseURL string, logger *slog.Logger, opts ...query.Option) *Calendar {
	base := strings.TrimRight(baseURL, "/")
	if base == "" {
		base = DefaultProductDetailsURL
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Calendar{baseURL: base, opts: opts, logger: logger}
}

func (c *Calendar) load(ctx context.Context) ([]time.Time, error) {
	c.once.Do(func() {
		var raw map[string]string

		handler := query.JSON(query.Observe(func(m map[string]string) error {
			raw = m

			return nil
		}))

		opts := append(slices.Clone(c.opts), query.WithRaiseError(true))

		err := query.Run(ctx, c.baseURL, []query.Query{query.NewQuery(c.baseURL+"/"+majorReleasesFile, handler)}, opts...)
		if err != nil {
			c.err = fmt.Errorf("release calendar: %w", err)

			return
		}

		for version, date := range raw {
			t, perr := time.Parse(time.DateOnly, date)
			if perr != nil {
				c.logger.Warn("skipping unparsable release date", "version", version, "date", date)

				continue
			}

			c.dates = append(c.dates, t)
		}

		slices.SortFunc(c.dates, func(a, b time.Time) int { return a.Compare(b) })
	})

	if c.err != nil {
		return nil, c.err
	}

	if len(c.dates) == 0 {
		return nil, ErrNoCalendar
	}

	return c.dates, nil
}

// NextRelease returns the first major release date strictly after t. Past
// the last known date, releases are extrapolated one cycle apart.
func (c *Calendar) NextRelease(ctx context.Context, t time.Time) (time.Time, error) {
	dates, err := c.load(ctx)
	if err != nil {
		return time.Time{}, err
	}

	return nextRelease(dates, t), nil
}

func nextRelease(dates []time.Time, t time.Time) time.Time {
	idx, _ := slices.BinarySearchFunc(dates, t, func(d, target time.Time) int {
		if d.After(target) {
			return 1
		}

		return -1
	})

	if idx < len(dates) {
		return dates[idx]
	}

	next := dates[len(dates)-1]
	for !next.After(t) {
		next = next.Add(CycleLength)
	}

	return next
}
