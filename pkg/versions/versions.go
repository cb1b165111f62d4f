// Package versions answers "which Firefox versions are current on each
// channel" and "when is the next major release".
package versions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
)

// ErrNoVersions is returned when Socorro knows no active version.
var ErrNoVersions = errors.New("no active product versions")

// Channels in release order.
var Channels = []string{"nightly", "aurora", "beta", "release", "esr"}

// Channel describes the current major version on one channel.
type Channel struct {
	Name  string
	Major int
	// Versions are the full version strings of that major on the channel.
	Versions []string
	// StartDate is the earliest start date among Versions.
	StartDate time.Time
}

// Source provides product versions; *socorro.Client implements it.
type Source interface {
	ProductVersions(ctx context.Context, product string) ([]socorro.ProductVersion, error)
}

// Versions computes current channel versions for one product. Results are
// memoized per day.
type Versions struct {
	src     Source
	product string

	flight singleflight.Group
	mu     sync.Mutex
	cache  map[string]map[string]Channel
}

// New creates a Versions for product.
func New(src Source, product string) *Versions {
	return &Versions{src: src, product: product, cache: map[string]map[string]Channel{}}
}

// Current returns the current versions as of now.
func (v *Versions) Current(ctx context.Context) (map[string]Channel, error) {
	return v.At(ctx, time.Now())
}

// At returns, for every channel, the highest major version still active on
// day.
func (v *Versions) At(ctx context.Context, day time.Time) (map[string]Channel, error) {
	key := day.UTC().Format(time.DateOnly)

	v.mu.Lock()
	cached, ok := v.cache[key]
	v.mu.Unlock()

	if ok {
		return cached, nil
	}

	out, err, _ := v.flight.Do(key, func() (any, error) {
		all, err := v.src.ProductVersions(ctx, v.product)
		if err != nil {
			return nil, fmt.Errorf("product versions: %w", err)
		}

		channels := currentChannels(all, v.product, day)
		if len(channels) == 0 {
			return nil, fmt.Errorf("%w: %s on %s", ErrNoVersions, v.product, key)
		}

		v.mu.Lock()
		v.cache[key] = channels
		v.mu.Unlock()

		return channels, nil
	})
	if err != nil {
		return nil, err
	}

	channels, _ := out.(map[string]Channel)

	return channels, nil
}

// Base returns channel → major version, the input status flags are
// derived from.
func (v *Versions) Base(ctx context.Context, day time.Time) (map[string]int, error) {
	channels, err := v.At(ctx, day)
	if err != nil {
		return nil, err
	}

	out := make(map[string]int, len(channels))
	for name, ch := range channels {
		out[name] = ch.Major
	}

	return out, nil
}

func currentChannels(all []socorro.ProductVersion, product string, day time.Time) map[string]Channel {
	byChannel := map[string][]socorro.ProductVersion{}

	for _, pv := range all {
		if pv.Product != "" && pv.Product != product {
			continue
		}

		if pv.Major() == 0 || !slices.Contains(Channels, pv.BuildType) {
			continue
		}

		if !pv.StartDate.IsZero() && pv.StartDate.After(day) {
			continue
		}

		if !pv.EndDate.IsZero() && pv.EndDate.Before(day.Truncate(24*time.Hour)) {
			continue
		}

		byChannel[pv.BuildType] = append(byChannel[pv.BuildType], pv)
	}

	out := make(map[string]Channel, len(byChannel))

	for name, list := range byChannel {
		major := 0
		for _, pv := range list {
			major = max(major, pv.Major())
		}

		ch := Channel{Name: name, Major: major}

		for _, pv := range list {
			if pv.Major() != major {
				continue
			}

			ch.Versions = append(ch.Versions, pv.Version)

			if !pv.StartDate.IsZero() && (ch.StartDate.IsZero() || pv.StartDate.Before(ch.StartDate)) {
				ch.StartDate = pv.StartDate.Time
			}
		}

		sort.Strings(ch.Versions)
		out[name] = ch
	}

	return out
}
