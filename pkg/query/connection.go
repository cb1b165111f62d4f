package query

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Sumatoshi-tech/mozdata/pkg/observability"
)

const (
	tracerName = "mozdata/query"

	// maxLoggedBody bounds the response excerpt attached to warnings and errors.
	maxLoggedBody = 512
)

// StatusError reports a non-200 response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// Connection dispatches a batch of Queries against one service and exposes
// a barrier over all of them. It is created with its queries, starts them
// immediately and is not reused after Wait.
type Connection struct {
	id      string
	baseURL string
	cfg     settings
	client  *http.Client
	logger  *slog.Logger
	sem     *semaphore.Weighted

	group     errgroup.Group
	handlerMu sync.Mutex

	waitOnce sync.Once
	waitErr  error
}

// New validates queries, then dispatches every request they describe.
func New(ctx context.Context, baseURL string, queries []Query, opts ...Option) (*Connection, error) {
	if len(queries) == 0 {
		return nil, ErrNoQueries
	}

	for _, q := range queries {
		err := q.Validate()
		if err != nil {
			return nil, err
		}
	}

	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	if cfg.tracer == nil {
		cfg.tracer = otel.Tracer(tracerName)
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	client := cfg.client
	if client == nil {
		client = cfg.sessions.Client(baseURL, cfg.workers)
	}

	conn := &Connection{
		id:      uuid.NewString(),
		baseURL: baseURL,
		cfg:     cfg,
		client:  client,
		sem:     semaphore.NewWeighted(int64(cfg.workers)),
	}
	conn.logger = logger.With("connection", conn.id)

	for _, q := range queries {
		for _, params := range q.paramSets() {
			conn.group.Go(func() error {
				return conn.run(ctx, q, params)
			})
		}
	}

	return conn, nil
}

// Wait blocks until every request has completed and its handler returned.
// It returns the first error seen; siblings always run to completion.
// Calling Wait again returns the same result.
func (c *Connection) Wait() error {
	c.waitOnce.Do(func() {
		c.waitErr = c.group.Wait()
	})

	return c.waitErr
}

// ID identifies the connection in logs and spans.
func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) run(ctx context.Context, q Query, params url.Values) error {
	err := c.sem.Acquire(ctx, 1)
	if err != nil {
		return fmt.Errorf("acquire worker: %w", err)
	}
	defer c.sem.Release(1)

	target := q.target(params)

	resp, err := c.fetch(ctx, q, target)
	if err != nil {
		if c.cfg.raiseError {
			return err
		}

		c.logger.WarnContext(ctx, "query failed", "method", q.method(), "url", target, "error", err)

		return nil
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := &StatusError{
			Method:     resp.Method,
			URL:        resp.URL,
			StatusCode: resp.StatusCode,
			Body:       excerpt(resp.Body),
		}

		if c.cfg.raiseError {
			return statusErr
		}

		c.logger.WarnContext(ctx, "unexpected status",
			"method", statusErr.Method, "url", statusErr.URL,
			"status", statusErr.StatusCode, "body", statusErr.Body)

		return nil
	}

	c.handlerMu.Lock()
	defer c.handlerMu.Unlock()

	err = q.Handler.Handle(resp)
	if err != nil {
		return fmt.Errorf("handle %s: %w", target, err)
	}

	return nil
}

// fetch performs one logical request, retrying per policy.
func (c *Connection) fetch(ctx context.Context, q Query, target string) (*Response, error) {
	method := q.method()
	policy := c.cfg.retry

	for attempt := 1; ; attempt++ {
		if c.cfg.limiter != nil {
			err := c.cfg.limiter.Wait(ctx)
			if err != nil {
				return nil, fmt.Errorf("rate limit: %w", err)
			}
		}

		resp, err := c.roundTrip(ctx, method, target, q.Body)

		var retry bool

		switch {
		case err != nil:
			retry = ctx.Err() == nil
		default:
			retry = policy.retryStatus(method, resp.StatusCode)
		}

		if !retry || attempt >= policy.attempts() {
			return resp, err
		}

		wait := policy.backoff(attempt)
		if resp != nil {
			if after, ok := retryAfter(resp.Header, policy.MaxBackoff); ok {
				wait = after
			}
		}

		if c.cfg.metrics != nil {
			reason := "transport"
			if resp != nil {
				reason = "status " + strconv.Itoa(resp.StatusCode)
			}

			c.cfg.metrics.RecordRetry(ctx, c.operation(), reason)
		}

		c.logger.DebugContext(ctx, "retrying request",
			"url", target, "attempt", attempt, "wait", wait, "error", err)

		timer := time.NewTimer(wait)

		select {
		case <-ctx.Done():
			timer.Stop()

			return nil, fmt.Errorf("%s %s: %w", method, target, ctx.Err())
		case <-timer.C:
		}
	}
}

func (c *Connection) roundTrip(ctx context.Context, method, target string, body []byte) (*Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.timeout)
	defer cancel()

	reqCtx, endSpan := observability.StartClientSpan(reqCtx, c.cfg.tracer, method, target, c.id)

	op := c.operation()

	var doneInflight func()
	if c.cfg.metrics != nil {
		doneInflight = c.cfg.metrics.TrackInflight(reqCtx, op)
		defer doneInflight()
	}

	start := time.Now()

	resp, err := c.do(reqCtx, method, target, body)

	status := observability.StatusOK
	if err != nil || resp.StatusCode != http.StatusOK {
		status = observability.StatusError
	}

	if c.cfg.metrics != nil {
		c.cfg.metrics.RecordRequest(ctx, op, status, time.Since(start))
	}

	code := 0
	if resp != nil {
		code = resp.StatusCode
	}

	endSpan(code, err)

	return resp, err
}

func (c *Connection) do(ctx context.Context, method, target string, body []byte) (*Response, error) {
	var reader io.Reader = http.NoBody
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("User-Agent", c.cfg.userAgent)

	if c.cfg.forwardedFor != "" {
		req.Header.Set("X-Forwarded-For", c.cfg.forwardedFor)
	}

	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	for key, values := range c.cfg.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	for _, auth := range c.cfg.auth {
		auth.Authenticate(req)
	}

	httpResp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", target, err)
	}

	return &Response{
		Method:     method,
		URL:        target,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func (c *Connection) operation() string {
	parsed, err := url.Parse(c.baseURL)
	if err != nil || parsed.Host == "" {
		return c.baseURL
	}

	return parsed.Host
}

func excerpt(body []byte) string {
	if len(body) > maxLoggedBody {
		return string(body[:maxLoggedBody]) + "..."
	}

	return string(body)
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var statusErr *StatusError

	return errors.As(err, &statusErr) && statusErr.StatusCode == code
}

// Run is a convenience that creates a Connection and waits for it.
func Run(ctx context.Context, baseURL string, queries []Query, opts ...Option) error {
	conn, err := New(ctx, baseURL, queries, opts...)
	if err != nil {
		return err
	}

	return conn.Wait()
}
