package query

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Response is a fully read HTTP response handed to handlers.
type Response struct {
	// Method is the HTTP method of the originating request.
	Method string
	// URL is the fully rendered request URL, query string included.
	URL string
	// StatusCode is the final HTTP status after retries.
	StatusCode int
	// Header holds the response headers.
	Header http.Header
	// Body is the complete response body.
	Body []byte
}

// IsJSON reports whether the body looks like a JSON document, either by
// content type or by its first significant byte.
func (r *Response) IsJSON() bool {
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		return true
	}

	trimmed := bytes.TrimSpace(r.Body)

	return len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[')
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	err := json.Unmarshal(r.Body, v)
	if err != nil {
		return fmt.Errorf("decode %s: %w", r.URL, err)
	}

	return nil
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}
