package bugzilla_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/Sumatoshi-tech/mozdata/internal/fakemoz"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
)

func fetchComments(t *testing.T, client *bugzilla.Client, id int) []bugzilla.Comment {
	t.Helper()

	var comments []bugzilla.Comment

	fetch, err := client.Get(context.Background(), bugzilla.Request{
		IDs: []int{id},
		Comments: query.Observe(func(c bugzilla.Comments) error {
			comments = c.Comments

			return nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, fetch.Wait())

	return comments
}

func TestGetLandingComments(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t)
	comments := fetchComments(t, client, fakemoz.LandingsBugID)

	inbound, err := bugzilla.GetLandingComments(comments, bugzilla.ChannelInbound)
	require.NoError(t, err)
	require.Len(t, inbound, 1)
	assert.Equal(t, fakemoz.InboundLanding, inbound[0].Revision)
	assert.Equal(t, bugzilla.ChannelInbound, inbound[0].Channel)

	central, err := bugzilla.GetLandingComments(comments, bugzilla.ChannelCentral)
	require.NoError(t, err)
	require.Len(t, central, 1)
	assert.Equal(t, fakemoz.CentralLanding, central[0].Revision)

	beta, err := bugzilla.GetLandingComments(comments, bugzilla.ChannelBeta)
	require.NoError(t, err)
	require.Len(t, beta, 1)
	assert.Equal(t, fakemoz.BetaLanding, beta[0].Revision)

	all, err := bugzilla.GetLandingComments(comments,
		bugzilla.ChannelInbound, bugzilla.ChannelCentral, bugzilla.ChannelBeta)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{fakemoz.InboundLanding, fakemoz.CentralLanding, fakemoz.BetaLanding},
		[]string{all[0].Revision, all[1].Revision, all[2].Revision})
	assert.Equal(t, 2, all[0].Comment.Count)
}

func TestGetLandingComments_FxTeamIsInbound(t *testing.T) {
	t.Parallel()

	comments := []bugzilla.Comment{
		{Text: "https://hg.mozilla.org/integration/fx-team/rev/abcdef012345"},
		{Text: "pushlog: https://hg.mozilla.org/mozilla-central/pushloghtml?changeset=0123456789ab"},
		{Text: "https://hg.mozilla.org/releases/mozilla-esr52/rev/fedcba9876543210"},
	}

	got, err := bugzilla.GetLandingComments(comments, bugzilla.ChannelFxTeam, bugzilla.ChannelNightly, bugzilla.ChannelESR)
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, bugzilla.ChannelInbound, got[0].Channel)
	assert.Equal(t, "abcdef012345", got[0].Revision)
	assert.Equal(t, bugzilla.ChannelNightly, got[1].Channel)
	assert.Equal(t, "0123456789ab", got[1].Revision)
	assert.Equal(t, bugzilla.ChannelESR, got[2].Channel)
}

func TestGetLandingComments_ShortRevisionIgnored(t *testing.T) {
	t.Parallel()

	got, err := bugzilla.GetLandingComments(
		[]bugzilla.Comment{{Text: "https://hg.mozilla.org/mozilla-central/rev/abc123"}}, bugzilla.ChannelCentral)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestGetLandingComments_UnknownChannel(t *testing.T) {
	t.Parallel()

	_, err := bugzilla.GetLandingComments(nil, "trunk")
	require.ErrorIs(t, err, bugzilla.ErrUnknownChannel)
}

func TestLandingURL_RoundTrip(t *testing.T) {
	t.Parallel()

	urlChannel := map[string]string{
		bugzilla.ChannelNightly: bugzilla.ChannelNightly,
		bugzilla.ChannelCentral: bugzilla.ChannelCentral,
		bugzilla.ChannelInbound: bugzilla.ChannelInbound,
		bugzilla.ChannelFxTeam:  bugzilla.ChannelFxTeam,
		bugzilla.ChannelAurora:  bugzilla.ChannelAurora,
		bugzilla.ChannelBeta:    bugzilla.ChannelBeta,
		bugzilla.ChannelRelease: bugzilla.ChannelRelease,
		bugzilla.ChannelESR:     "esr60",
	}

	channels := make([]string, 0, len(urlChannel))
	for ch := range urlChannel {
		channels = append(channels, ch)
	}

	rapid.Check(t, func(t *rapid.T) {
		channel := rapid.SampledFrom(channels).Draw(t, "channel")
		rev := rapid.StringMatching(`[0-9a-f]{12,40}`).Draw(t, "rev")

		text := "Landed: " + bugzilla.LandingURL(urlChannel[channel], rev) + "\nThanks."

		got, err := bugzilla.GetLandingComments([]bugzilla.Comment{{Text: text}}, channel)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if len(got) != 1 || got[0].Revision != rev {
			t.Fatalf("round trip of %q on %s gave %+v", rev, channel, got)
		}
	})
}
