// Package textutil holds small text helpers shared by the analyzers:
// sniffing attachment payloads and shortening text for messages.
package textutil

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection.
const BinarySniffLength = 8000

const ellipsis = "..."

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}

	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// FirstLine returns s up to its first newline.
func FirstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")

	return strings.TrimSuffix(line, "\r")
}

// Truncate shortens s to at most n runes, ending the cut text with "...".
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}

	if utf8.RuneCountInString(s) <= n {
		return s
	}

	if n <= len(ellipsis) {
		return string([]rune(s)[:n])
	}

	return string([]rune(s)[:n-len(ellipsis)]) + ellipsis
}
