package filehistory_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
)

func TestNormalizeAuthor(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"Phil Ringnalda <philringnalda@gmail.com>": "philringnalda@gmail.com",
		"Mike Shaver <Shaver@Mozilla.org>":         "shaver@mozilla.org",
		"ehsan@mozilla.com":                        "ehsan@mozilla.com",
		"Ehsan (ehsan@mozilla.com) backout":        "ehsan@mozilla.com",
		"  ffxbld  ":                               "ffxbld",
		"":                                         "",
	}

	for raw, want := range tests {
		assert.Equal(t, want, filehistory.NormalizeAuthor(raw), raw)
	}
}

func TestBugID(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 547914, filehistory.BugID("Bug 547914 - Update LICENSE"))
	assert.Equal(t, 1234, filehistory.BugID("  bug1234: fix"))
	assert.Equal(t, 0, filehistory.BugID("Backed out changeset abc (bug 1234)"))
	assert.Equal(t, 0, filehistory.BugID("No bug, typo"))
}

func TestFirstBugRef(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 547914, filehistory.FirstBugRef("Bug 547914 - Update LICENSE, follow-up to bug 1"))
	assert.Equal(t, 999, filehistory.FirstBugRef("Backed out changeset abc for bug 999"))
	assert.Equal(t, 1234, filehistory.FirstBugRef("Fix the build (Bug1234) r=me"))
	assert.Equal(t, 0, filehistory.FirstBugRef("Add debug 42 logging"))
	assert.Equal(t, 0, filehistory.FirstBugRef("No bug, typo"))
}

func TestReviewers(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"shaver", "gerv"}, filehistory.Reviewers("Bug 1 - x, r=shaver, r=gerv"))
	assert.Equal(t, []string{"jrmuizel"}, filehistory.Reviewers("Bug 2 - y r=jrmuizel. a=release r=jrmuizel"))
	assert.Empty(t, filehistory.Reviewers("Bug 3 - no review"))
}
