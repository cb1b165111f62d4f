// Package commands implements CLI command handlers for mozdata.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/mozdata/pkg/buganalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/bugzilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/config"
	"github.com/Sumatoshi-tech/mozdata/pkg/filehistory"
	"github.com/Sumatoshi-tech/mozdata/pkg/hgmozilla"
	"github.com/Sumatoshi-tech/mozdata/pkg/identity"
	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/patchanalysis"
	"github.com/Sumatoshi-tech/mozdata/pkg/query"
	"github.com/Sumatoshi-tech/mozdata/pkg/socorro"
	"github.com/Sumatoshi-tech/mozdata/pkg/statusflags"
	"github.com/Sumatoshi-tech/mozdata/pkg/version"
	"github.com/Sumatoshi-tech/mozdata/pkg/versions"
)

// Globals holds the persistent flags shared by every command.
type Globals struct {
	ConfigPath string
	Format     string
	Verbose    bool
	Quiet      bool
	NoColor    bool
	// Debug forces debug logging and full trace sampling.
	Debug bool
}

// Bind registers the persistent flags on root.
func (g *Globals) Bind(root *cobra.Command) {
	flags := root.PersistentFlags()
	flags.StringVarP(&g.ConfigPath, "config", "c", "", "Configuration file (default: ./mozdata.ini, then ~/.mozdata.ini)")
	flags.StringVarP(&g.Format, "format", "f", FormatText, "Output format: text, json, yaml")
	flags.BoolVarP(&g.Verbose, "verbose", "v", false, "verbose output")
	flags.BoolVarP(&g.Quiet, "quiet", "q", false, "suppress output")
	flags.BoolVar(&g.NoColor, "no-color", false, "Disable colored text output")
}

// Services are the clients and analyzers a command works with. Close must
// be called once the command is done.
type Services struct {
	Config    *config.Config
	Logger    *slog.Logger
	Tracer    trace.Tracer
	RED       *observability.REDMetrics
	Analysis  *observability.AnalysisMetrics
	QueryOpts []query.Option

	Bugzilla    *bugzilla.Client
	Socorro     *socorro.Client
	Mercurial   *hgmozilla.Client
	Patches     *patchanalysis.Analyzer
	Bugs        *buganalysis.Analyzer
	StatusFlags *statusflags.Analyzer

	shutdown func(context.Context) error
}

// FileStore returns a fresh history store on channel, the default one when
// empty.
func (s *Services) FileStore(channel string) *filehistory.Store {
	opts := []filehistory.Option{filehistory.WithLogger(s.Logger), filehistory.WithMetrics(s.Analysis)}
	if channel != "" {
		opts = append(opts, filehistory.WithChannel(channel))
	}

	return filehistory.NewStore(s.Mercurial, opts...)
}

// Close flushes pending telemetry.
func (s *Services) Close(ctx context.Context) {
	err := s.shutdown(ctx)
	if err != nil {
		s.Logger.Warn("observability shutdown failed", "error", err)
	}
}

// OpenServices loads the configuration and wires every client on top of it.
func OpenServices(ctx context.Context, g *Globals, mode observability.AppMode) (*Services, error) {
	cfg, err := config.LoadConfig(g.ConfigPath)
	if err != nil {
		return nil, err
	}

	queryOpts, err := cfg.QueryOptions()
	if err != nil {
		return nil, err
	}

	providers, err := observability.Init(ctx, observabilityConfig(cfg, g, mode))
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}

	svc := &Services{
		Config:   cfg,
		Logger:   providers.Logger,
		Tracer:   providers.Tracer,
		shutdown: providers.Shutdown,
	}

	if cfg.Telemetry.PrometheusAddr != "" && providers.MetricsHandler != nil {
		addr, serveErr := observability.ServeMetrics(ctx, cfg.Telemetry.PrometheusAddr, providers.MetricsHandler, svc.Logger)
		if serveErr != nil {
			svc.Close(ctx)

			return nil, serveErr
		}

		svc.Logger.Debug("serving metrics", "addr", addr.String())
	}

	svc.RED, err = observability.NewREDMetrics(providers.Meter)
	if err != nil {
		svc.Close(ctx)

		return nil, err
	}

	svc.Analysis, err = observability.NewAnalysisMetrics(providers.Meter)
	if err != nil {
		svc.Close(ctx)

		return nil, err
	}

	svc.QueryOpts = append(queryOpts,
		query.WithLogger(svc.Logger),
		query.WithMetrics(svc.RED),
		query.WithTracer(svc.Tracer),
		query.WithSessions(query.NewSessions()),
	)

	svc.wire()

	return svc, nil
}

func (s *Services) wire() {
	cfg := s.Config
	opts := s.QueryOpts

	s.Bugzilla = bugzilla.New(bugzilla.Config{
		URL:    cfg.Bugzilla.URL,
		Token:  cfg.Bugzilla.Token,
		Logger: s.Logger,
	}, opts...)
	s.Socorro = socorro.New(socorro.Config{
		URL:    cfg.Socorro.URL,
		Token:  cfg.Socorro.Token,
		Logger: s.Logger,
	}, opts...)
	s.Mercurial = hgmozilla.New(hgmozilla.Config{URL: cfg.Mercurial.URL, Logger: s.Logger}, opts...)

	s.Patches = patchanalysis.New(s.FileStore(""),
		patchanalysis.WithLogger(s.Logger),
		patchanalysis.WithMetrics(s.Analysis),
	)

	resolver := identity.NewResolver(s.Bugzilla, identity.NewCache(),
		identity.WithLogger(s.Logger),
		identity.WithMetrics(s.Analysis),
	)

	s.Bugs = buganalysis.New(s.Bugzilla, s.Mercurial, s.Patches, resolver,
		buganalysis.WithCalendar(versions.NewCalendar(cfg.ProductDetails.URL, s.Logger, opts...)),
		buganalysis.WithLogger(s.Logger),
		buganalysis.WithMetrics(s.Analysis),
		buganalysis.WithQueryOptions(opts...),
	)

	s.StatusFlags = statusflags.New(s.Bugzilla, s.Socorro,
		statusflags.WithLogger(s.Logger),
		statusflags.WithMetrics(s.Analysis),
	)
}

// observabilityConfig merges the [Logging] and [Telemetry] sections with the
// standard OTEL_* variables and the global flags.
func observabilityConfig(cfg *config.Config, g *Globals, mode observability.AppMode) observability.Config {
	obs := cfg.Observability(version.Version, mode)

	if obs.OTLPEndpoint == "" {
		obs.OTLPEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		obs.OTLPInsecure = obs.OTLPInsecure || os.Getenv("OTEL_EXPORTER_OTLP_INSECURE") == "true"
	}

	obs.OTLPHeaders = observability.ParseOTLPHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))

	if mode == observability.ModeMCP {
		obs.LogJSON = true
	}

	switch {
	case g.Debug:
		obs.LogLevel = slog.LevelDebug
		obs.DebugTrace = true
	case g.Verbose:
		obs.LogLevel = slog.LevelDebug
	case g.Quiet:
		obs.LogLevel = slog.LevelError
	}

	return obs
}
