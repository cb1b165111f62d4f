package statusflags

import (
	"regexp"
	"strings"
)

var (
	addressSuffix  = regexp.MustCompile(`@0x[0-9a-fA-F]+`)
	constQualifier = regexp.MustCompile(`\bconst\b`)
)

// sentinelFrames carry no information about the crashing code.
var sentinelFrames = map[string]bool{
	"oom":               true,
	"small":             true,
	"large":             true,
	"unknown":           true,
	"unknown top frame": true,
	"abort":             true,
	"moz_crash":         true,
}

// Simplify reduces a signature to the name its bugs are filed under: the
// last meaningful frame without module addresses, arguments, template
// parameters, const qualifiers or namespaces.
func Simplify(signature string) string {
	last := ""

	for frame := range strings.SplitSeq(signature, "|") {
		frame = simplifyFrame(frame)
		if frame == "" || sentinelFrames[strings.ToLower(frame)] {
			continue
		}

		last = frame
	}

	if i := strings.LastIndex(last, "::"); i >= 0 {
		last = last[i+len("::"):]
	}

	return strings.TrimSpace(last)
}

func simplifyFrame(frame string) string {
	frame = addressSuffix.ReplaceAllString(frame, "")
	frame = stripNested(frame, '(', ')')
	frame = stripNested(frame, '<', '>')
	frame = constQualifier.ReplaceAllString(frame, "")

	return strings.Join(strings.Fields(frame), " ")
}

// stripNested removes every balanced open/close group, nested groups
// included. An unbalanced close is kept as text.
func stripNested(s string, open, closing byte) string {
	var b strings.Builder

	depth := 0

	for i := range len(s) {
		switch c := s[i]; {
		case c == open:
			depth++
		case c == closing && depth > 0:
			depth--
		case depth == 0:
			b.WriteByte(c)
		}
	}

	return b.String()
}

// SameSignatures reports whether every signature simplifies to the same
// name as signature.
func SameSignatures(signature string, others []string) bool {
	want := Simplify(signature)

	for _, s := range others {
		if Simplify(s) != want {
			return false
		}
	}

	return true
}
