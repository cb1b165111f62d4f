package query

import (
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"
)

// Default retry policy values.
const (
	DefaultMaxAttempts    = 256
	DefaultInitialBackoff = 250 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
	DefaultBackoffFactor  = 2.0
	DefaultJitterFactor   = 0.2
)

// RetryPolicy configures how failed requests are retried.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of attempts, the first one included.
	MaxAttempts int

	// InitialBackoff is the wait before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between two attempts.
	MaxBackoff time.Duration

	// BackoffFactor multiplies the wait after every attempt.
	BackoffFactor float64

	// JitterFactor is the maximum relative jitter added to every wait (0-1).
	JitterFactor float64

	// RetryStatuses are the status codes retried for idempotent GETs.
	RetryStatuses []int

	// RetryStatusesPut are the status codes retried for PUTs.
	RetryStatusesPut []int
}

// DefaultRetryPolicy retries transport faults, 429 and gateway errors.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		BackoffFactor:  DefaultBackoffFactor,
		JitterFactor:   DefaultJitterFactor,
		RetryStatuses: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
		RetryStatusesPut: []int{http.StatusTooManyRequests},
	}
}

// NoRetry disables retries.
func NoRetry() RetryPolicy {
	policy := DefaultRetryPolicy()
	policy.MaxAttempts = 1

	return policy
}

func (p RetryPolicy) attempts() int {
	return max(1, p.MaxAttempts)
}

// retryStatus reports whether a response status should be retried.
func (p RetryPolicy) retryStatus(method string, status int) bool {
	statuses := p.RetryStatuses
	if method == http.MethodPut {
		statuses = p.RetryStatusesPut
	}

	for _, s := range statuses {
		if s == status {
			return true
		}
	}

	return false
}

// backoff returns the wait before attempt+1, jittered.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.InitialBackoff
	if wait <= 0 {
		return 0
	}

	for range attempt - 1 {
		wait = time.Duration(float64(wait) * max(1, p.BackoffFactor))
		if p.MaxBackoff > 0 && wait >= p.MaxBackoff {
			wait = p.MaxBackoff

			break
		}
	}

	if p.JitterFactor > 0 {
		jitter := (rand.Float64()*2 - 1) * p.JitterFactor
		wait = time.Duration(float64(wait) * (1 + jitter))
	}

	return wait
}

// retryAfter parses a Retry-After header expressed in seconds.
func retryAfter(header http.Header, limit time.Duration) (time.Duration, bool) {
	raw := header.Get("Retry-After")
	if raw == "" {
		return 0, false
	}

	secs, err := strconv.Atoi(raw)
	if err != nil || secs < 0 {
		return 0, false
	}

	wait := time.Duration(secs) * time.Second
	if limit > 0 && wait > limit {
		wait = limit
	}

	return wait, true
}
