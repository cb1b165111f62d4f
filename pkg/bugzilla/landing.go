package bugzilla

import (
	"context"
	"fmt"
	"regexp"

	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

// Channel names accepted by the landing helpers.
const (
	ChannelNightly = "nightly"
	ChannelCentral = "central"
	ChannelInbound = "inbound"
	ChannelFxTeam  = "fx-team"
	ChannelAurora  = "aurora"
	ChannelBeta    = "beta"
	ChannelRelease = "release"
	ChannelESR     = "esr"
)

// DefaultLandingChannels are scanned when a caller names no channel.
var DefaultLandingChannels = []string{
	ChannelInbound, ChannelCentral, ChannelFxTeam,
	ChannelBeta, ChannelRelease, ChannelESR,
}

const revisionPattern = `([0-9a-f]{12,40})`

// Landing is a changeset URL found in a bug comment.
type Landing struct {
	Comment  Comment
	Revision string
	// Channel is the channel the revision landed on. fx-team landings are
	// reported as inbound.
	Channel string
}

type landingPattern struct {
	re      *regexp.Regexp
	channel string
}

func hgPattern(repo string) *regexp.Regexp {
	return regexp.MustCompile(`://hg\.mozilla\.org/` + repo + `/rev/` + revisionPattern)
}

var landingPatterns = map[string][]landingPattern{
	ChannelCentral: {
		{hgPattern(`mozilla-central`), ChannelCentral},
		{regexp.MustCompile(`://hg\.mozilla\.org/mozilla-central/pushloghtml\?changeset=` + revisionPattern), ChannelCentral},
	},
	ChannelNightly: {
		{hgPattern(`mozilla-central`), ChannelNightly},
		{regexp.MustCompile(`://hg\.mozilla\.org/mozilla-central/pushloghtml\?changeset=` + revisionPattern), ChannelNightly},
	},
	ChannelInbound: {{hgPattern(`integration/mozilla-inbound`), ChannelInbound}},
	ChannelFxTeam:  {{hgPattern(`integration/fx-team`), ChannelInbound}},
	ChannelAurora:  {{hgPattern(`releases/mozilla-aurora`), ChannelAurora}},
	ChannelBeta:    {{hgPattern(`releases/mozilla-beta`), ChannelBeta}},
	ChannelRelease: {{hgPattern(`releases/mozilla-release`), ChannelRelease}},
	ChannelESR:     {{hgPattern(`releases/mozilla-esr[0-9]+`), ChannelESR}},
}

// GetLandingComments scans comments for changeset URLs of the given
// channels. Results follow comment order, then channel order, then the
// order of matches within the comment.
func GetLandingComments(comments []Comment, channels ...string) ([]Landing, error) {
	patterns := make([]landingPattern, 0, len(channels))

	for _, channel := range channels {
		ps, ok := landingPatterns[channel]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownChannel, channel)
		}

		patterns = append(patterns, ps...)
	}

	var out []Landing

	for _, comment := range comments {
		for _, p := range patterns {
			for _, m := range p.re.FindAllStringSubmatch(comment.Text, -1) {
				out = append(out, Landing{Comment: comment, Revision: m[1], Channel: p.channel})
			}
		}
	}

	return out, nil
}

// LandingURL renders the changeset URL the landing patterns recognise.
// ESR repositories are versioned, so pass the channel with its version
// ("esr52").
func LandingURL(channel, revision string) string {
	repo := "releases/mozilla-" + channel

	switch channel {
	case ChannelNightly, ChannelCentral:
		repo = "mozilla-central"
	case ChannelInbound:
		repo = "integration/mozilla-inbound"
	case ChannelFxTeam:
		repo = "integration/fx-team"
	}

	return "https://hg.mozilla.org/" + repo + "/rev/" + revision
}

// Landings fetches the comments of bug id and scans them for changesets of
// channels, DefaultLandingChannels when none is given. Channels are
// checked before any request is sent.
func (c *Client) Landings(ctx context.Context, id int, channels ...string) ([]Landing, error) {
	if len(channels) == 0 {
		channels = DefaultLandingChannels
	}

	_, err := GetLandingComments(nil, channels...)
	if err != nil {
		return nil, err
	}

	var comments []Comment

	fetch, err := c.Get(ctx, Request{
		IDs: []int{id},
		Comments: query.Observe(func(got Comments) error {
			comments = got.Comments

			return nil
		}),
	})
	if err == nil {
		err = fetch.Wait()
	}

	if err != nil {
		return nil, fmt.Errorf("fetch comments of bug %d: %w", id, err)
	}

	return GetLandingComments(comments, channels...)
}
