package buganalysis

import (
	"slices"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
)

// Patch sources.
const (
	SourceLanding    = "landing"
	SourceAttachment = "attachment"
)

// Report is the risk assessment of one bug. The embedded Metrics aggregate
// every analyzed patch.
type Report struct {
	BugID         int      `json:"bug_id"`
	Assignee      string   `json:"assignee"`
	BackoutNum    int      `json:"backout_num"`
	Blocks        int      `json:"blocks"`
	DependsOn     int      `json:"depends_on"`
	Comments      int      `json:"comments"`
	RedPatches    int      `json:"r-ed_patches"`
	InTestsuite   string   `json:"in-testsuite"`
	Authors       []string `json:"authors"`
	Reviewers     []string `json:"reviewers"`
	BackedOutRevs []string `json:"backed_out_revs"`

	patchanalysis.Metrics

	// Patches are keyed by revision, or by "attachment-<id>" for patches
	// taken from attachments.
	Patches  map[string]*Patch `json:"patches"`
	Uplift   *Uplift           `json:"uplift,omitempty"`
	Warnings []string          `json:"warnings,omitempty"`
}

// Patch is one analyzed patch of the bug.
type Patch struct {
	Source    string                 `json:"source"`
	Channel   string                 `json:"channel,omitempty"`
	Authors   []string               `json:"authors"`
	Reviewers []string               `json:"reviewers"`
	Metrics   *patchanalysis.Metrics `json:"metrics"`
}

// Uplift describes the approval request for one release channel.
type Uplift struct {
	Channel string `json:"channel"`
	// Status is the latest approval flag status: "?", "+", "-" or "".
	Status      string    `json:"status"`
	Accepted    bool      `json:"accepted"`
	RequestedAt time.Time `json:"requested_at,omitzero"`
	RespondedAt time.Time `json:"responded_at,omitzero"`
	// ResponseDelta is RespondedAt − RequestedAt.
	ResponseDelta time.Duration `json:"response_delta"`
	// ReleaseDelta is the time left before the next release when the
	// approval was requested.
	ReleaseDelta time.Duration `json:"release_delta"`
	// LandingDeltas measure, per release channel, the time from the
	// approval response (or the request) to the first landing comment.
	LandingDeltas map[string]time.Duration `json:"landing_deltas"`
}

func (r *Report) add(key string, p *Patch) {
	r.Patches[key] = p

	m := p.Metrics
	r.ChangesSize += m.ChangesSize
	r.TestChangesSize += m.TestChangesSize
	r.ChangesAdd += m.ChangesAdd
	r.ChangesDel += m.ChangesDel
	r.CodeChurnOverall += m.CodeChurnOverall
	r.CodeChurnLast3Releases += m.CodeChurnLast3Releases
	r.DeveloperFamiliarityOverall += m.DeveloperFamiliarityOverall
	r.DeveloperFamiliarityLast3Releases += m.DeveloperFamiliarityLast3Releases
	r.ReviewerFamiliarityOverall += m.ReviewerFamiliarityOverall
	r.ReviewerFamiliarityLast3Releases += m.ReviewerFamiliarityLast3Releases

	r.Modules = union(r.Modules, m.Modules)
	r.ModulesNum = len(r.Modules)
	r.Languages = union(r.Languages, m.Languages)
	r.Paths = union(r.Paths, m.Paths)
	r.Authors = union(r.Authors, p.Authors)
	r.Reviewers = union(r.Reviewers, p.Reviewers)
}

// union returns the sorted distinct elements of a and b.
func union(a, b []string) []string {
	out := slices.Clone(a)

	for _, v := range b {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}

	slices.Sort(out)

	return out
}
