package patchanalysis

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/modules"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

// RecentWindow spans the last three six-week release cycles.
const RecentWindow = 3 * 6 * 7 * 24 * time.Hour

// DefaultNode is the revision file histories are read at.
const DefaultNode = "tip"

const analyzerName = "patch"

// Input is one patch to analyze.
type Input struct {
	Diff      string
	Authors   []string
	Reviewers []string
	// Created bounds the file histories; patches pushed at or after it are
	// not counted.
	Created time.Time
	// Node is the revision histories are read at. Empty means DefaultNode.
	Node string
}

// Metrics is the outcome of Analyze.
type Metrics struct {
	ChangesSize     int      `json:"changes_size"`
	TestChangesSize int      `json:"test_changes_size"`
	ChangesAdd      int      `json:"changes_add"`
	ChangesDel      int      `json:"changes_del"`
	ModulesNum      int      `json:"modules_num"`
	Modules         []string `json:"modules"`
	Languages       []string `json:"languages"`
	Paths           []string `json:"paths"`

	CodeChurnOverall                  int `json:"code_churn_overall"`
	CodeChurnLast3Releases            int `json:"code_churn_last_3_releases"`
	DeveloperFamiliarityOverall       int `json:"developer_familiarity_overall"`
	DeveloperFamiliarityLast3Releases int `json:"developer_familiarity_last_3_releases"`
	ReviewerFamiliarityOverall        int `json:"reviewer_familiarity_overall"`
	ReviewerFamiliarityLast3Releases  int `json:"reviewer_familiarity_last_3_releases"`
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithModules replaces the embedded module table.
func WithModules(t *modules.Table) Option {
	return func(a *Analyzer) {
		a.modules = t
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = l
	}
}

// WithMetrics records per-patch durations.
func WithMetrics(m *observability.AnalysisMetrics) Option {
	return func(a *Analyzer) {
		a.metrics = m
	}
}

// Analyzer computes patch Metrics. File histories are shared through the
// Store, so analyzing many patches of one bug fetches each file once.
type Analyzer struct {
	history *filehistory.Store
	modules *modules.Table
	logger  *slog.Logger
	metrics *observability.AnalysisMetrics
}

// New creates an Analyzer reading file histories through history.
func New(history *filehistory.Store, opts ...Option) *Analyzer {
	a := &Analyzer{
		history: history,
		modules: modules.Default(),
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(a)
	}

	return a
}

// Analyze measures one patch.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*Metrics, error) {
	start := time.Now()

	changes, err := ParseDiff(in.Diff)
	if err != nil {
		return nil, err
	}

	m := &Metrics{}

	for _, c := range changes {
		m.ChangesAdd += c.Added
		m.ChangesDel += c.Removed

		if c.Test {
			m.TestChangesSize += c.Added + c.Removed
		} else {
			m.ChangesSize += c.Added + c.Removed
		}

		p := c.Path()
		if !slices.Contains(m.Paths, p) {
			m.Paths = append(m.Paths, p)
		}
	}

	slices.Sort(m.Paths)

	for _, p := range m.Paths {
		mod := a.modules.Lookup(p)
		if mod != "" && !slices.Contains(m.Modules, mod) {
			m.Modules = append(m.Modules, mod)
		}
	}

	slices.Sort(m.Modules)
	m.ModulesNum = len(m.Modules)
	m.Languages = Languages(m.Paths)

	if len(m.Paths) > 0 {
		err = a.familiarity(ctx, in, m)
		if err != nil {
			return nil, err
		}
	}

	a.metrics.RecordItem(ctx, analyzerName, time.Since(start))

	return m, nil
}

func (a *Analyzer) familiarity(ctx context.Context, in Input, m *Metrics) error {
	node := in.Node
	if node == "" {
		node = DefaultNode
	}

	err := a.history.Fetch(ctx, node, m.Paths)
	if err != nil {
		return fmt.Errorf("patch history: %w", err)
	}

	created := in.Created
	if created.IsZero() {
		created = time.Now().UTC()
	}

	to := created.Add(-time.Second)
	recent := created.Add(-RecentWindow)

	for _, p := range m.Paths {
		overall := a.history.Get(p, filehistory.Filter{To: to}).Patches

		for _, patch := range overall {
			inWindow := !patch.PushDate.Before(recent)
			byAuthor := slices.Contains(in.Authors, patch.Author)
			byReviewer := slices.Contains(in.Reviewers, patch.Author)

			m.CodeChurnOverall++
			m.DeveloperFamiliarityOverall += btoi(byAuthor)
			m.ReviewerFamiliarityOverall += btoi(byReviewer)

			if inWindow {
				m.CodeChurnLast3Releases++
				m.DeveloperFamiliarityLast3Releases += btoi(byAuthor)
				m.ReviewerFamiliarityLast3Releases += btoi(byReviewer)
			}
		}
	}

	return nil
}

func btoi(b bool) int {
	if b {
		return 1
	}

	return 0
}
