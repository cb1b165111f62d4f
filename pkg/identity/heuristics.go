package identity

import (
	"strings"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

// handleSuffixes follow ":handle" in real names such as "Jane Doe [:jane]".
var handleSuffixes = []string{"]", ")", ",", ".", " "}

// hasHandle reports whether realName carries the IRC handle short.
func hasHandle(realName, short string) bool {
	name := strings.ToLower(realName)
	handle := ":" + strings.ToLower(short)

	for _, suffix := range handleSuffixes {
		if strings.Contains(name, handle+suffix) {
			return true
		}
	}

	return false
}

// relaxedMatch is the last resort over the CC list: loose name, email and
// abbreviation checks.
func relaxedMatch(short string, u bugzilla.User) bool {
	short = strings.ToLower(short)
	name := strings.ToLower(u.RealName)
	email := strings.ToLower(u.Address())

	switch {
	case name != "" && strings.Contains(name, short):
		return true
	case strings.Contains(email, short+"@mozilla.com"):
		return true
	case strings.HasPrefix(email, short+"@"):
		return true
	case emailHost(email) == short:
		return true
	}

	first, last := splitName(name)
	if first == "" || last == "" {
		return false
	}

	_, size := utf8.DecodeRuneInString(first)

	return short == first[:size]+last || short == first+last
}

// emailHost returns the domain of email without its top-level part:
// "x@shaver.org" gives "shaver".
func emailHost(email string) string {
	_, host, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}

	if idx := strings.LastIndex(host, "."); idx > 0 {
		host = host[:idx]
	}

	return host
}

// splitName returns the first and last words of a real name, ignoring the
// bracketed handle and comment parts.
func splitName(name string) (first, last string) {
	var words []string

	for w := range strings.FieldsSeq(name) {
		if strings.ContainsAny(w, "[(:)]") {
			break
		}

		words = append(words, w)
	}

	if len(words) < 2 {
		return "", ""
	}

	return words[0], words[len(words)-1]
}
