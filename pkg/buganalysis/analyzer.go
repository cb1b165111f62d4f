// Package buganalysis assesses the risk of a bug's fix: how often it was
// backed out, how large and how familiar its patches are, and how its
// uplift requests went.
package buganalysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/identity"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/versions"
)

// Sentinel errors.
var (
	ErrNoBug       = errors.New("no bug id or bug data given")
	ErrBugNotFound = errors.New("bug not found")
)

const analyzerName = "bug"

// Data is a bug together with everything the analysis reads from Bugzilla.
type Data struct {
	Bug         bugzilla.Bug
	History     []bugzilla.HistoryEntry
	Comments    []bugzilla.Comment
	Attachments []bugzilla.Attachment
}

// Input selects the bug to analyze.
type Input struct {
	BugID int
	// Data skips the Bugzilla fetch when set.
	Data *Data
	// Uplift requests uplift metrics for a release channel.
	Uplift string
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithCalendar enables the release delta of uplift metrics.
func WithCalendar(c *versions.Calendar) Option {
	return func(a *Analyzer) {
		a.calendar = c
	}
}

// WithLogger sets the logger warnings are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithMetrics records per-bug durations.
func WithMetrics(m *observability.AnalysisMetrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithQueryOptions sets the options of requests outside the three
// services, such as review-request diffs.
func WithQueryOptions(opts ...query.Option) Option {
	return func(a *Analyzer) {
		a.queryOpts = opts
	}
}

// Analyzer produces bug Reports.
type Analyzer struct {
	bugzilla  *bugzilla.Client
	hg        *hgmozilla.Client
	patches   *patchanalysis.Analyzer
	identity  *identity.Resolver
	calendar  *versions.Calendar
	logger    *slog.Logger
	metrics   *observability.AnalysisMetrics
	queryOpts []query.Option
}

// New creates an Analyzer.
func New(bz *bugzilla.Client, hg *hgmozilla.Client, patches *patchanalysis.Analyzer,
	resolver *identity.Resolver, opts ...Option,
) *Analyzer {
	a := &Analyzer{
		bugzilla: bz,
		hg:       hg,
		patches:  patches,
		identity: resolver,
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// run carries the state of one analysis.
type run struct {
	*Analyzer

	data      *Data
	report    *Report
	authors   []string
	reviewers []string
}

func (r *run) warn(ctx context.Context, msg string, args ...any) {
	r.logger.WarnContext(ctx, msg, append([]any{"bug", r.data.Bug.ID}, args...)...)
	r.report.Warnings = append(r.report.Warnings, warning(msg, args...))
}

// warning renders a log message and its attributes as one line.
func warning(msg string, args ...any) string {
	var b strings.Builder

	b.WriteString(msg)

	for i := 0; i+1 < len(args); i += 2 {
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}

	return b.String()
}

// Analyze builds the Report of one bug.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Report, error) {
	start := time.Now()

	data := in.Data
	if data == nil {
		if in.BugID == 0 {
			return nil, ErrNoBug
		}

		var err error

		data, err = a.load(ctx, in.BugID)
		if err != nil {
			return nil, err
		}
	}

	r := &run{Analyzer: a, data: data, report: &Report{BugID: data.Bug.ID, Patches: map[string]*Patch{}}}

	r.participants()
	r.header()

	landings, err := r.scanLandings(ctx)
	if err != nil {
		return nil, err
	}

	for _, l := range landings {
		err = r.analyzeLanding(ctx, l)
		if err != nil {
			return nil, err
		}
	}

	if len(r.report.Patches) == 0 {
		err = r.analyzeAttachments(ctx)
		if err != nil {
			return nil, err
		}
	}

	if in.Uplift != "" {
		r.report.Uplift, err = r.uplift(ctx, in.Uplift)
		if err != nil {
			return nil, err
		}
	}

	a.metrics.RecordItem(ctx, analyzerName, time.Since(start))

	return r.report, nil
}

// load fetches the bug and its companions in one merged request.
func (a *Analyzer) load(ctx context.Context, id int) (*Data, error) {
	var (
		data  Data
		found bool
	)

	req := bugzilla.Request{
		IDs:            []int{id},
		AttachmentData: true,
		Bug: query.Observe(func(b bugzilla.Bug) error {
			data.Bug, found = b, true

			return nil
		}),
		History: query.Observe(func(h bugzilla.History) error {
			data.History = h.Entries

			return nil
		}),
		Comments: query.Observe(func(c bugzilla.Comments) error {
			data.Comments = c.Comments

			return nil
		}),
		Attachments: query.Observe(func(at bugzilla.Attachments) error {
			data.Attachments = at.Attachments

			return nil
		}),
	}

	fetch, err := a.bugzilla.Get(ctx, req)
	if err != nil {
		return nil, err
	}

	err = fetch.Wait()
	if err != nil {
		return nil, fmt.Errorf("load bug %d: %w", id, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: %d", ErrBugNotFound, id)
	}

	return &data, nil
}

// participants collects the Bugzilla authors and reviewers of reviewed
// attachments. A review set by the attachment's own creator is a carried
// forward r+ and does not count.
func (r *run) participants() {
	for _, att := range r.data.Attachments {
		reviewed := false

		for _, f := range att.ReviewFlags() {
			if f.Status != "+" && f.Status != "-" {
				continue
			}

			reviewed = true

			if f.Setter != "" && f.Setter != att.Creator && !slices.Contains(r.reviewers, f.Setter) {
				r.reviewers = append(r.reviewers, f.Setter)
			}
		}

		if reviewed && !slices.Contains(r.authors, att.Creator) {
			r.authors = append(r.authors, att.Creator)
		}
	}
}

func (r *run) header() {
	bug := r.data.Bug
	rep := r.report

	rep.Assignee = bug.AssignedTo
	rep.Blocks = len(bug.Blocks)
	rep.DependsOn = len(bug.DependsOn)
	rep.Comments = len(r.data.Comments)

	for _, att := range r.data.Attachments {
		if att.HasReview("-") {
			rep.RedPatches++
		}
	}

	for _, f := range bug.Flags {
		if f.Name == "in-testsuite" {
			rep.InTestsuite = f.Status
		}
	}
}
