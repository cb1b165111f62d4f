package bugzilla

import (
	"strconv"
	"strings"
)

// ChangeMatch selects history changes. Empty fields match anything; Added
// and Removed also match one element of a comma-separated value list.
type ChangeMatch struct {
	FieldName string
	Added     string
	Removed   string
}

func (m ChangeMatch) matches(c Change) bool {
	if m.FieldName != "" && m.FieldName != c.FieldName {
		return false
	}

	return listMatch(m.Added, c.Added) && listMatch(m.Removed, c.Removed)
}

func listMatch(want, value string) bool {
	if want == "" || want == value {
		return true
	}

	for part := range strings.SplitSeq(value, ", ") {
		if part == want {
			return true
		}
	}

	return false
}

// GetHistoryMatches returns the history entries holding at least one change
// that matches m.
func GetHistoryMatches(history []HistoryEntry, m ChangeMatch) []HistoryEntry {
	var out []HistoryEntry

	for _, entry := range history {
		for _, change := range entry.Changes {
			if m.matches(change) {
				out = append(out, entry)

				break
			}
		}
	}

	return out
}

// StatusFlag returns the status flag name for a channel at a major version.
func StatusFlag(channel string, version int) string {
	if channel == ChannelESR {
		return "cf_status_firefox_esr" + strconv.Itoa(version)
	}

	return "cf_status_firefox" + strconv.Itoa(version)
}

// TrackingFlag returns the tracking flag name for a channel at a major
// version.
func TrackingFlag(channel string, version int) string {
	if channel == ChannelESR {
		return "cf_tracking_firefox_esr" + strconv.Itoa(version)
	}

	return "cf_tracking_firefox" + strconv.Itoa(version)
}

// GetStatusFlags maps every channel of baseVersions to its status flag.
func GetStatusFlags(baseVersions map[string]int) map[string]string {
	out := make(map[string]string, len(baseVersions))

	for channel, version := range baseVersions {
		out[channel] = StatusFlag(channel, version)
	}

	return out
}

// ParseSignatures splits a cf_crash_signature value ("[@ a]\n[@ b]") into
// signatures. Brackets inside a signature are kept.
func ParseSignatures(raw string) []string {
	var out []string

	parts := strings.Split(raw, "[@")
	for _, part := range parts[1:] {
		sig := strings.TrimSpace(part)
		sig = strings.TrimSpace(strings.TrimSuffix(sig, "]"))

		if sig != "" {
			out = append(out, sig)
		}
	}

	return out
}
