package query

import (
	"log/slog"
	"net/http"
	"runtime"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
	"github.com/Sumatoshi-tech/mozdata/pkg/version"
)

// DefaultTimeout is the per-request timeout.
const DefaultTimeout = 30 * time.Second

// Authenticator injects service credentials into outgoing requests.
type Authenticator interface {
	Authenticate(req *http.Request)
}

// HeaderAuth sets a single header carrying a token. An empty value is a no-op.
type HeaderAuth struct {
	Name  string
	Value string
}

// Authenticate sets the header when a token is present.
func (h HeaderAuth) Authenticate(req *http.Request) {
	if h.Value != "" {
		req.Header.Set(h.Name, h.Value)
	}
}

type settings struct {
	workers      int
	timeout      time.Duration
	retry        RetryPolicy
	raiseError   bool
	userAgent    string
	forwardedFor string
	headers      http.Header
	auth         []Authenticator
	logger       *slog.Logger
	metrics      *observability.REDMetrics
	tracer       trace.Tracer
	limiter      *rate.Limiter
	sessions     *Sessions
	client       *http.Client
}

func defaultSettings() settings {
	return settings{
		workers:   runtime.NumCPU(),
		timeout:   DefaultTimeout,
		retry:     DefaultRetryPolicy(),
		userAgent: version.UserAgent(),
		headers:   http.Header{},
		sessions:  DefaultSessions,
	}
}

// Option configures a Connection.
type Option func(*settings)

// WithWorkers caps the number of requests in flight. Non-positive values
// keep the default (the host CPU count).
func WithWorkers(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(s *settings) { s.retry = p }
}

// WithRaiseError makes non-200 responses and exhausted transport retries
// surface from Wait instead of being logged.
func WithRaiseError(raise bool) Option {
	return func(s *settings) { s.raiseError = raise }
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *settings) {
		if ua != "" {
			s.userAgent = ua
		}
	}
}

// WithForwardedFor sets the X-Forwarded-For header.
func WithForwardedFor(value string) Option {
	return func(s *settings) { s.forwardedFor = value }
}

// WithHeader adds a static header to every request.
func WithHeader(key, value string) Option {
	return func(s *settings) { s.headers.Set(key, value) }
}

// WithAuthenticator adds a credential hook.
func WithAuthenticator(a Authenticator) Option {
	return func(s *settings) {
		if a != nil {
			s.auth = append(s.auth, a)
		}
	}
}

// WithLogger sets the logger. Nil keeps slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithMetrics records RED metrics for every request.
func WithMetrics(m *observability.REDMetrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithTracer opens a client span per request.
func WithTracer(t trace.Tracer) Option {
	return func(s *settings) { s.tracer = t }
}

// WithRateLimit throttles request starts to limit per second with the given
// burst. A non-positive limit disables throttling.
func WithRateLimit(limit float64, burst int) Option {
	return func(s *settings) {
		if limit <= 0 {
			s.limiter = nil

			return
		}

		s.limiter = rate.NewLimiter(rate.Limit(limit), max(burst, 1))
	}
}

// WithSessions selects the keep-alive pool.
func WithSessions(p *Sessions) Option {
	return func(s *settings) {
		if p != nil {
			s.sessions = p
		}
	}
}

// WithHTTPClient bypasses the session pool with a fixed client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *settings) { s.client = c }
}
