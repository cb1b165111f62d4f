package filehistory

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var (
	bracketedEmail = regexp.MustCompile(`<([^<>@\s]+@[^<>\s]+)>`)
	looseEmail     = regexp.MustCompile(`[\w.+-]+@[\w-]+(?:\.[\w-]+)+`)
	bugPrefix      = regexp.MustCompile(`(?i)^\s*bug\s*([0-9]+)`)
	bugMention     = regexp.MustCompile(`(?i)\bbug\s*([0-9]+)`)
	reviewerToken  = regexp.MustCompile(`r=([a-zA-Z0-9._]+)`)
)

// NormalizeAuthor reduces an hg author string to an email: the <email>
// enclosed form first, then the first email-like token, else the raw
// string trimmed.
func NormalizeAuthor(raw string) string {
	if m := bracketedEmail.FindStringSubmatch(raw); m != nil {
		return strings.ToLower(m[1])
	}

	if m := looseEmail.FindString(raw); m != "" {
		return strings.ToLower(m)
	}

	return strings.TrimSpace(raw)
}

// BugID returns the bug a commit description starts with, 0 when none.
func BugID(desc string) int {
	return matchBug(bugPrefix, desc)
}

// FirstBugRef returns the first bug mentioned anywhere in a commit
// description, 0 when none.
func FirstBugRef(desc string) int {
	return matchBug(bugMention, desc)
}

func matchBug(re *regexp.Regexp, desc string) int {
	m := re.FindStringSubmatch(desc)
	if m == nil {
		return 0
	}

	id, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}

	return id
}

// Reviewers returns the distinct r= handles of a commit description, in
// order of appearance.
func Reviewers(desc string) []string {
	var out []string

	for _, m := range reviewerToken.FindAllStringSubmatch(desc, -1) {
		handle := strings.TrimRight(m[1], ".")
		if handle != "" && !slices.Contains(out, handle) {
			out = append(out, handle)
		}
	}

	return out
}
