package query

import (
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const (
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
	dialTimeout         = 30 * time.Second
	dialKeepAlive       = 30 * time.Second
)

// Sessions pools keep-alive HTTP clients per scheme and host, so every
// Connection to the same service reuses the same sockets.
type Sessions struct {
	mu      sync.Mutex
	clients map[string]*http.Client
}

// DefaultSessions is shared by Connections that do not supply their own pool.
var DefaultSessions = NewSessions()

// NewSessions creates an empty pool.
func NewSessions() *Sessions {
	return &Sessions{clients: map[string]*http.Client{}}
}

// Client returns the pooled client for baseURL's host, creating it with
// room for maxIdle idle connections on first use.
func (s *Sessions) Client(baseURL string, maxIdle int) *http.Client {
	key := baseURL

	parsed, err := url.Parse(baseURL)
	if err == nil {
		key = parsed.Scheme + "://" + parsed.Host
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if client, ok := s.clients[key]; ok {
		return client
	}

	dialer := &net.Dialer{Timeout: dialTimeout, KeepAlive: dialKeepAlive}
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		ForceAttemptHTTP2:   true,
		MaxIdleConns:        max(maxIdle, 1) * 2,
		MaxIdleConnsPerHost: max(maxIdle, 1),
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
	}

	client := &http.Client{Transport: transport}
	s.clients[key] = client

	return client
}

// CloseIdle closes idle connections of every pooled client.
func (s *Sessions) CloseIdle() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, client := range s.clients {
		client.CloseIdleConnections()
	}
}
