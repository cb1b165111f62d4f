// Package patchanalysis measures a patch: how much code and test code it
// changes, which modules and languages it touches, and how familiar its
// author and reviewers are with the files involved.
package patchanalysis

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/sourcegraph/go-diff/diff"

	"github.com/Sumatoshi-tech/mozdata/pkg/textutil"
)

// ErrMalformedDiff is returned for a diff section that has no hunks and is
// not one of the recognised metadata-only shapes.
var ErrMalformedDiff = errors.New("malformed diff")

const devNull = "/dev/null"

// noChangeMarkers identify sections that legitimately carry no hunk.
var noChangeMarkers = []string{
	"new mode",
	"rename",
	"copy",
	"new file mode",
	"deleted file mode",
	"GIT binary patch",
}

// nonTestExtensions are manifests and helpers that live in test directories
// but are not tests themselves.
var nonTestExtensions = []string{"ini", "list", "in", "py", "json", "manifest"}

// FileChange is the line count of one file in a diff.
type FileChange struct {
	OldPath string `json:"old_path"`
	NewPath string `json:"new_path"`
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
	Test    bool   `json:"test"`
}

// Path returns the path the change is attributed to: the new path, or the
// old one for a deletion.
func (c FileChange) Path() string {
	if c.NewPath == "" || c.NewPath == devNull {
		return c.OldPath
	}

	return c.NewPath
}

// IsTest reports whether p is test code.
func IsTest(p string) bool {
	if !strings.Contains(p, "test") {
		return false
	}

	ext := strings.TrimPrefix(path.Ext(p), ".")

	return !slices.Contains(nonTestExtensions, strings.ToLower(ext))
}

// ParseDiff splits a raw patch at its "diff " lines and counts added and
// removed lines per file. Anything before the first section, such as an hg
// changeset header, is ignored. Sections without hunks are skipped when
// they only change metadata (mode, rename, copy, binary content).
func ParseDiff(text string) ([]FileChange, error) {
	var changes []FileChange

	for _, section := range sections(text) {
		fd, err := diff.ParseFileDiff([]byte(section))
		if err != nil || len(fd.Hunks) == 0 {
			if metadataOnly(section) {
				continue
			}

			if err == nil {
				err = errors.New("no hunks")
			}

			return nil, fmt.Errorf("%w: %s: %w", ErrMalformedDiff, textutil.FirstLine(section), err)
		}

		change := FileChange{
			OldPath: stripPrefix(fd.OrigName, "a/"),
			NewPath: stripPrefix(fd.NewName, "b/"),
		}

		for _, h := range fd.Hunks {
			added, removed := countLines(h.Body)
			change.Added += added
			change.Removed += removed
		}

		change.Test = IsTest(change.Path())
		changes = append(changes, change)
	}

	return changes, nil
}

func sections(text string) []string {
	var (
		out     []string
		current strings.Builder
		inside  bool
	)

	flush := func() {
		if inside {
			out = append(out, current.String())
		}

		current.Reset()
	}

	for line := range strings.SplitAfterSeq(text, "\n") {
		if strings.HasPrefix(line, "diff ") {
			flush()

			inside = true
		}

		if inside {
			current.WriteString(line)
		}
	}

	flush()

	return out
}

func metadataOnly(section string) bool {
	for _, marker := range noChangeMarkers {
		if strings.Contains(section, marker) {
			return true
		}
	}

	return binaryNotice(section)
}

// binaryNotice matches "Binary file X has changed" and "Binary files X and
// Y differ".
func binaryNotice(section string) bool {
	for line := range strings.SplitSeq(section, "\n") {
		if !strings.HasPrefix(line, "Binary file") {
			continue
		}

		if strings.HasSuffix(line, "has changed") || strings.HasSuffix(line, "differ") {
			return true
		}
	}

	return false
}

func countLines(body []byte) (added, removed int) {
	for line := range bytes.SplitSeq(body, []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		switch line[0] {
		case '+':
			added++
		case '-':
			removed++
		}
	}

	return added, removed
}

func stripPrefix(name, prefix string) string {
	if name == devNull {
		return name
	}

	return strings.TrimPrefix(name, prefix)
}
