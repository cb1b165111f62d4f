package version_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/mozdata/pkg/version"
)

func TestUserAgent(t *testing.T) {
	t.Parallel()

	ua := version.UserAgent()

	assert.True(t, strings.HasPrefix(ua, "mozdata/"))
	assert.True(t, strings.HasSuffix(ua, version.Version))
}

func TestBinaryGitHashSet(t *testing.T) {
	t.Parallel()

	assert.NotEmpty(t, version.BinaryGitHash)
}
