// Package statusflags picks, for every top crash signature, the bug release
// management should flag as affected and composes the update posted on it.
package statusflags

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
	"github.com/Sumatoshi-tech/mozdata/pkg/versions"
)

// Products the analyzer knows.
const (
	ProductFirefox       = "Firefox"
	ProductFennecAndroid = "FennecAndroid"
)

// Defaults applied to a zero Input.
const (
	DefaultLimit = 50
	DefaultRange = 7 * 24 * time.Hour
)

// ErrUnknownProduct is returned for a product without a product mapping.
var ErrUnknownProduct = errors.New("unknown product")

// excludedProducts are the Bugzilla products whose bugs cannot be the
// target for a crash product.
var excludedProducts = map[string][]string{
	ProductFirefox:       {"Firefox for Android", "Firefox for iOS"},
	ProductFennecAndroid: {"Firefox", "Firefox for iOS"},
}

const analyzerName = "statusflags"

// Input selects the signatures to process.
type Input struct {
	// Product is ProductFirefox when empty.
	Product string
	// Signatures and BugIDs restrict the run to the given signatures and
	// to the signatures the bugs list.
	Signatures []string
	BugIDs     []int
	// Start and End bound the crash search. End defaults to now and Start
	// to End minus DefaultRange.
	Start time.Time
	End   time.Time
	// Limit is the number of top signatures, DefaultLimit when zero.
	Limit int
	// DryRun composes the updates without posting them.
	DryRun bool
}

// Decision is the target bug of one signature and the update for it.
type Decision struct {
	Signature  string    `json:"signature"`
	BugID      int       `json:"bug_id"`
	Bucket     Bucket    `json:"bucket"`
	LastChange time.Time `json:"last_change"`
	// Channels are the crashing channels whose status flag is unset.
	Channels  []string          `json:"channels"`
	Flags     map[string]string `json:"flags"`
	Volumes   []Volume          `json:"volumes"`
	Platforms []PlatformShare   `json:"platforms"`
	Trend     *Trend            `json:"trend,omitempty"`
	Comment   string            `json:"comment"`
	Posted    bool              `json:"posted"`
}

// Diagnostic is a caveat reported alongside the decisions.
type Diagnostic struct {
	Signature string `json:"signature,omitempty"`
	BugID     int    `json:"bug_id,omitempty"`
	Message   string `json:"message"`
}

// Result is the outcome of one run.
type Result struct {
	Decisions []Decision `json:"decisions"`
	// ToReopen are the signatures without any eligible bug.
	ToReopen    []string     `json:"to_reopen"`
	Diagnostics []Diagnostic `json:"diagnostics"`
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithBots replaces DefaultBots.
func WithBots(bots ...string) Option {
	return func(a *Analyzer) {
		a.bots = bots
	}
}

// WithLogger sets the logger diagnostics are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithMetrics records run durations.
func WithMetrics(m *observability.AnalysisMetrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// WithClock sets the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.clock = now
	}
}

// Analyzer decides status flag updates.
type Analyzer struct {
	bugzilla *bugzilla.Client
	socorro  *socorro.Client
	bots     []string
	logger   *slog.Logger
	metrics  *observability.AnalysisMetrics
	clock    func() time.Time
}

// New creates an Analyzer.
func New(bz *bugzilla.Client, sc *socorro.Client, opts ...Option) *Analyzer {
	a := &Analyzer{
		bugzilla: bz,
		socorro:  sc,
		bots:     DefaultBots,
		logger:   slog.Default(),
		clock:    time.Now,
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// signature is one top crash signature and its facets.
type signature struct {
	name      string
	channels  map[string]int
	platforms []socorro.Facet
	bugs      []int
}

// run carries the state of one analysis.
type run struct {
	*Analyzer

	in       Input
	now      time.Time
	excluded []string
	channels map[string]versions.Channel
	result   *Result
}

func (r *run) diag(ctx context.Context, sig string, bugID int, msg string) {
	r.logger.InfoContext(ctx, msg, "signature", sig, "bug", bugID)
	r.result.Diagnostics = append(r.result.Diagnostics, Diagnostic{Signature: sig, BugID: bugID, Message: msg})
}

// Analyze runs the whole pipeline for in.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Result, error) {
	started := time.Now()

	r := &run{Analyzer: a, now: a.clock().UTC(), result: &Result{}}

	err := r.init(in)
	if err != nil {
		return nil, err
	}

	r.channels, err = versions.New(a.socorro, r.in.Product).At(ctx, r.now)
	if err != nil {
		return nil, err
	}

	seeds, err := r.seedSignatures(ctx)
	if err != nil {
		return nil, err
	}

	if seeds != nil && len(seeds) == 0 {
		r.diag(ctx, "", 0, "seed bugs carry no crash signature")

		return r.result, nil
	}

	sigs, err := r.topSignatures(ctx, seeds)
	if err != nil {
		return nil, err
	}

	if len(sigs) == 0 {
		return r.result, nil
	}

	err = r.signatureBugs(ctx, sigs)
	if err != nil {
		return nil, err
	}

	cands, err := r.candidates(ctx, sigs)
	if err != nil {
		return nil, err
	}

	for _, sig := range sigs {
		r.decide(ctx, sig, cands)
	}

	err = r.fetchTrends(ctx)
	if err != nil {
		return nil, err
	}

	for i := range r.result.Decisions {
		d := &r.result.Decisions[i]
		if len(d.Channels) == 0 {
			continue
		}

		d.Comment = composeComment(d)

		if d.Trend != nil {
			for _, ch := range d.Trend.Spikes {
				r.diag(ctx, d.Signature, d.BugID, "crash volume spike on "+ch)
			}
		}
	}

	err = r.post(ctx)
	if err != nil {
		return nil, err
	}

	a.metrics.RecordItem(ctx, analyzerName, time.Since(started))

	return r.result, nil
}

func (r *run) init(in Input) error {
	if in.Product == "" {
		in.Product = ProductFirefox
	}

	excluded, ok := excludedProducts[in.Product]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, in.Product)
	}

	if in.End.IsZero() {
		in.End = r.now
	}

	if in.Start.IsZero() {
		in.Start = in.End.Add(-DefaultRange)
	}

	if in.Limit <= 0 {
		in.Limit = DefaultLimit
	}

	r.in = in
	r.excluded = excluded

	return nil
}

// versionList is every version of every current channel.
func (r *run) versionList() []string {
	var out []string

	for _, name := range versions.Channels {
		if ch, ok := r.channels[name]; ok {
			out = append(out, ch.Versions...)
		}
	}

	return out
}

// seedSignatures returns nil when the run is not seeded, otherwise the
// explicit signatures plus those of the seed bugs.
func (r *run) seedSignatures(ctx context.Context) ([]string, error) {
	if len(r.in.Signatures) == 0 && len(r.in.BugIDs) == 0 {
		return nil, nil
	}

	out := make([]string, 0, len(r.in.Signatures))
	out = append(out, r.in.Signatures...)

	if len(r.in.BugIDs) > 0 {
		bugs, err := r.bugzilla.GetBugs(ctx, r.in.BugIDs, "id", "cf_crash_signature")
		if err != nil {
			return nil, fmt.Errorf("seed bugs: %w", err)
		}

		for _, bug := range bugs {
			out = append(out, bug.CrashSignatures()...)
		}
	}

	slices.Sort(out)

	return slices.Compact(out), nil
}

// topSignatures searches the crashes of the current versions faceted by
// signature, release channel and platform.
func (r *run) topSignatures(ctx context.Context, seeds []string) ([]*signature, error) {
	params := url.Values{
		"product":         {r.in.Product},
		"version":         r.versionList(),
		"date":            socorro.SearchDate(r.in.Start, r.in.End, r.now),
		"_facets":         {"signature"},
		"_aggs.signature": {"release_channel", "platform"},
		"_facets_size":    {strconv.Itoa(r.in.Limit)},
		"_results_number": {"0"},
	}

	for _, s := range seeds {
		params.Add("signature", "="+s)
	}

	res, err := r.socorro.Search(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("top signatures: %w", err)
	}

	var out []*signature

	for _, f := range res.Facets["signature"] {
		name := string(f.Term)
		if seeds != nil && !slices.Contains(seeds, name) {
			continue
		}

		sig := &signature{name: name, channels: map[string]int{}, platforms: f.Sub("platform")}

		for _, ch := range f.Sub("release_channel") {
			if _, ok := r.channels[string(ch.Term)]; ok && ch.Count > 0 {
				sig.channels[string(ch.Term)] = ch.Count
			}
		}

		out = append(out, sig)
	}

	return out, nil
}

// signatureBugs attaches the bugs Socorro links to each signature, with
// duplicates replaced by the end of their chain.
func (r *run) signatureBugs(ctx context.Context, sigs []*signature) error {
	names := make([]string, 0, len(sigs))
	byName := make(map[string]*signature, len(sigs))

	for _, sig := range sigs {
		names = append(names, sig.name)
		byName[sig.name] = sig
	}

	links, err := r.socorro.Bugs(ctx, names)
	if err != nil {
		return fmt.Errorf("signature bugs: %w", err)
	}

	var ids []int

	for _, link := range links {
		if sig, ok := byName[link.Signature]; ok {
			sig.bugs = append(sig.bugs, link.ID)
			ids = append(ids, link.ID)
		}
	}

	if len(ids) == 0 {
		return nil
	}

	slices.Sort(ids)

	dups, err := r.bugzilla.FollowDup(ctx, slices.Compact(ids))
	if err != nil {
		return fmt.Errorf("follow duplicates: %w", err)
	}

	for _, sig := range sigs {
		sig.bugs = pruneDups(sig.bugs, dups)
	}

	return nil
}

// pruneDups drops a duplicate when the end of its chain is already in ids.
// Duplicates of bugs outside the set stay. Cyclic chains are left as they
// are.
func pruneDups(ids []int, dups map[int]bugzilla.Dup) []int {
	in := make(map[int]bool, len(ids))
	for _, id := range ids {
		in[id] = true
	}

	out := make([]int, 0, len(ids))

	for _, id := range ids {
		if d := dups[id]; d.Final != 0 && d.Final != id && in[d.Final] {
			continue
		}

		out = append(out, id)
	}

	return out
}

var candidateFields = []string{
	"id", "status", "resolution", "product", "assigned_to",
	"cf_crash_signature", "creation_time", "last_change_time",
}

// candidates fetches every signature bug with the current status flags,
// then the history of the bugs that pass the filter.
func (r *run) candidates(ctx context.Context, sigs []*signature) (map[int]Candidate, error) {
	var ids []int

	for _, sig := range sigs {
		ids = append(ids, sig.bugs...)
	}

	out := map[int]Candidate{}
	if len(ids) == 0 {
		return out, nil
	}

	slices.Sort(ids)
	ids = slices.Compact(ids)

	fields := slices.Clone(candidateFields)
	for _, flag := range bugzilla.GetStatusFlags(r.majors()) {
		fields = append(fields, flag)
	}

	bugs, err := r.bugzilla.GetBugs(ctx, ids, fields...)
	if err != nil {
		return nil, fmt.Errorf("candidate bugs: %w", err)
	}

	byID := map[int]bugzilla.Bug{}

	for _, bug := range bugs {
		if bug.Status == "UNCONFIRMED" || slices.Contains(r.excluded, bug.Product) {
			continue
		}

		byID[bug.ID] = bug
	}

	if len(byID) == 0 {
		return out, nil
	}

	histories := map[int][]bugzilla.HistoryEntry{}

	fetch, err := r.bugzilla.Get(ctx, bugzilla.Request{
		IDs: slices.Sorted(maps.Keys(byID)),
		History: query.Observe(func(h bugzilla.History) error {
			histories[h.BugID] = h.Entries

			return nil
		}),
	})
	if err != nil {
		return nil, err
	}

	err = fetch.Wait()
	if err != nil {
		return nil, fmt.Errorf("candidate history: %w", err)
	}

	for id, bug := range byID {
		out[id] = Classify(bug, histories[id], r.bots)
	}

	return out, nil
}

func (r *run) majors() map[string]int {
	out := make(map[string]int, len(r.channels))
	for name, ch := range r.channels {
		out[name] = ch.Major
	}

	return out
}

// filterBugs keeps the candidates whose crash signatures all name the
// same code as sig.
func filterBugs(sig string, ids []int, cands map[int]Candidate) []Candidate {
	var out []Candidate

	for _, id := range ids {
		c, ok := cands[id]
		if !ok {
			continue
		}

		listed := c.Bug.CrashSignatures()
		if len(listed) > 1 && !SameSignatures(sig, listed) {
			continue
		}

		out = append(out, c)
	}

	return out
}

// window is the earliest start date of the channels sig crashes on.
func (r *run) window(sig *signature) time.Time {
	var out time.Time

	for name := range sig.channels {
		start := r.channels[name].StartDate
		if !start.IsZero() && (out.IsZero() || start.Before(out)) {
			out = start
		}
	}

	if out.IsZero() {
		return r.in.Start
	}

	return out
}

func (r *run) decide(ctx context.Context, sig *signature, cands map[int]Candidate) {
	target, ok := Select(filterBugs(sig.name, sig.bugs, cands), r.window(sig), r.now)
	if !ok {
		r.result.ToReopen = append(r.result.ToReopen, sig.name)
		r.diag(ctx, sig.name, 0, "no eligible bug")

		return
	}

	d := Decision{
		Signature:  sig.name,
		BugID:      target.Bug.ID,
		Bucket:     target.Bucket,
		LastChange: target.LastChange,
		Flags:      map[string]string{},
		Platforms:  platformShares(sig.platforms),
	}

	for _, name := range versions.Channels {
		count, crashing := sig.channels[name]
		if !crashing {
			continue
		}

		ch := r.channels[name]
		flag := bugzilla.StatusFlag(name, ch.Major)

		if target.Bug.Field(flag) != "---" {
			continue
		}

		d.Channels = append(d.Channels, name)
		d.Flags[flag] = "affected"
		d.Volumes = append(d.Volumes, Volume{Channel: name, Version: ch.Major, Crashes: count, Since: r.in.Start})
	}

	if len(d.Channels) == 0 {
		r.diag(ctx, sig.name, d.BugID, "every status flag is already set")
	}

	r.result.Decisions = append(r.result.Decisions, d)
}

func platformShares(facets []socorro.Facet) []PlatformShare {
	total := 0
	for _, f := range facets {
		total += f.Count
	}

	if total == 0 {
		return nil
	}

	out := make([]PlatformShare, 0, len(facets))
	for _, f := range facets {
		out = append(out, PlatformShare{
			Name:    string(f.Term),
			Crashes: f.Count,
			Share:   float64(f.Count) / float64(total),
		})
	}

	return out
}

// post sends one update per target bug; signatures sharing a bug share
// the update.
func (r *run) post(ctx context.Context) error {
	if r.in.DryRun {
		return nil
	}

	var order []int

	updates := map[int]map[string]any{}
	comments := map[int][]string{}

	for _, d := range r.result.Decisions {
		if len(d.Channels) == 0 {
			continue
		}

		data, ok := updates[d.BugID]
		if !ok {
			data = map[string]any{}
			updates[d.BugID] = data
			order = append(order, d.BugID)
		}

		for flag, value := range d.Flags {
			data[flag] = value
		}

		comments[d.BugID] = append(comments[d.BugID], d.Comment)
	}

	posted := map[int]bool{}

	for _, id := range order {
		data := updates[id]
		data["comment"] = map[string]any{"body": strings.Join(comments[id], "\n")}

		err := r.bugzilla.Put(ctx, data, []int{id})
		if errors.Is(err, bugzilla.ErrPutFailed) {
			r.diag(ctx, "", id, "update rejected")

			continue
		}

		if err != nil {
			return fmt.Errorf("update bug %d: %w", id, err)
		}

		posted[id] = true
	}

	for i := range r.result.Decisions {
		r.result.Decisions[i].Posted = posted[r.result.Decisions[i].BugID] && len(r.result.Decisions[i].Channels) > 0
	}

	return nil
}
