package statusflags

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
)

// Bucket ranks a candidate bug; lower buckets are preferred targets.
type Bucket int

// Buckets in preference order.
const (
	ResolvedFixedPatched Bucket = iota
	ResolvedFixedUnpatched
	ResolvedUnfixed
	UnresolvedAssigned
	UnresolvedUnassigned
)

var bucketNames = [...]string{
	ResolvedFixedPatched:   "resolved-fixed-patched",
	ResolvedFixedUnpatched: "resolved-fixed-unpatched",
	ResolvedUnfixed:        "resolved-unfixed",
	UnresolvedAssigned:     "unresolved-assigned",
	UnresolvedUnassigned:   "unresolved-unassigned",
}

func (b Bucket) String() string {
	if b < 0 || int(b) >= len(bucketNames) {
		return fmt.Sprintf("bucket(%d)", int(b))
	}

	return bucketNames[b]
}

// MarshalText renders the bucket name.
func (b Bucket) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// DefaultBots are the accounts whose changes do not count as activity.
var DefaultBots = []string{"release-mgmt-account-bot@mozilla.tld", "automation@bmo.tld"}

// AssignedWindow is how far back an assigned open bug may have last
// changed and still be picked.
const AssignedWindow = 365 * 24 * time.Hour

// Candidate is a bug considered as the target of a signature.
type Candidate struct {
	Bug        bugzilla.Bug
	Bucket     Bucket
	LastChange time.Time
}

// Classify buckets bug and finds its last change made by someone other
// than bots. A bug nobody else touched falls back to its creation time.
func Classify(bug bugzilla.Bug, history []bugzilla.HistoryEntry, bots []string) Candidate {
	c := Candidate{Bug: bug, LastChange: bug.CreationTime}

	for _, entry := range history {
		if slices.Contains(bots, entry.Who) {
			continue
		}

		if entry.When.After(c.LastChange) {
			c.LastChange = entry.When
		}
	}

	switch {
	case bug.Resolution == "FIXED" && patched(history):
		c.Bucket = ResolvedFixedPatched
	case bug.Resolution == "FIXED":
		c.Bucket = ResolvedFixedUnpatched
	case bug.Resolution != "":
		c.Bucket = ResolvedUnfixed
	case assigned(bug.AssignedTo):
		c.Bucket = UnresolvedAssigned
	default:
		c.Bucket = UnresolvedUnassigned
	}

	return c
}

// patched reports whether a status flag was ever set to fixed or a patch
// was ever granted review.
func patched(history []bugzilla.HistoryEntry) bool {
	for _, entry := range history {
		for _, change := range entry.Changes {
			if strings.HasPrefix(change.FieldName, "cf_status_firefox") && change.Added == "fixed" {
				return true
			}
		}
	}

	reviewed := bugzilla.GetHistoryMatches(history, bugzilla.ChangeMatch{FieldName: "flagtypes.name", Added: "review+"})

	return len(reviewed) > 0
}

func assigned(who string) bool {
	return who != "" && !strings.HasPrefix(who, "nobody@")
}

// Select picks the target among cands: the best bucket first, then the
// latest change, then the lowest id. Candidates that last changed before
// window are skipped; assigned open bugs use now minus AssignedWindow
// instead.
func Select(cands []Candidate, window, now time.Time) (Candidate, bool) {
	sorted := slices.Clone(cands)
	slices.SortFunc(sorted, func(a, b Candidate) int {
		switch {
		case a.Bucket != b.Bucket:
			return int(a.Bucket) - int(b.Bucket)
		case !a.LastChange.Equal(b.LastChange):
			return b.LastChange.Compare(a.LastChange)
		default:
			return a.Bug.ID - b.Bug.ID
		}
	})

	for _, c := range sorted {
		limit := window
		if c.Bucket == UnresolvedAssigned {
			limit = now.Add(-AssignedWindow)
		}

		if !c.LastChange.Before(limit) {
			return c, true
		}
	}

	return Candidate{}, false
}
