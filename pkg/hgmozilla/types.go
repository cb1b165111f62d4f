package hgmozilla

import (
	"bytes"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Time is hgweb's [unix seconds, tz offset] pair. A missing or empty pair
// decodes to the zero Time.
type Time struct {
	Unix   float64
	Offset int
}

// UnmarshalJSON decodes the pair form.
func (t *Time) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*t = Time{}

		return nil
	}

	var pair []float64

	err := json.Unmarshal(data, &pair)
	if err != nil {
		return fmt.Errorf("hg date %s: %w", data, err)
	}

	*t = Time{}

	if len(pair) > 0 {
		t.Unix = pair[0]
	}

	if len(pair) > 1 {
		t.Offset = int(pair[1])
	}

	return nil
}

// MarshalJSON renders the pair form.
func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("[]"), nil
	}

	return json.Marshal([]float64{t.Unix, float64(t.Offset)})
}

// IsZero reports whether the date was absent.
func (t Time) IsZero() bool {
	return t.Unix == 0
}

// Time returns the UTC instant.
func (t Time) Time() time.Time {
	sec := int64(t.Unix)

	return time.Unix(sec, int64((t.Unix-float64(sec))*1e9)).UTC()
}

// BackoutNode is a changeset a revision backs out.
type BackoutNode struct {
	Node string `json:"node"`
}

// Revision is the json-rev answer for one changeset.
type Revision struct {
	Node          string        `json:"node"`
	Date          Time          `json:"date"`
	Desc          string        `json:"desc"`
	User          string        `json:"user"`
	Branch        string        `json:"branch"`
	Parents       []string      `json:"parents"`
	Children      []string      `json:"children"`
	Tags          []string      `json:"tags"`
	Bookmarks     []string      `json:"bookmarks"`
	Phase         string        `json:"phase"`
	PushID        int           `json:"pushid"`
	PushDate      Time          `json:"pushdate"`
	PushUser      string        `json:"pushuser"`
	BacksOutNodes []BackoutNode `json:"backsoutnodes"`
	BackedOutBy   []string      `json:"backedoutby"`
	Files         []string      `json:"files"`
}

// FileLogEntry is one changeset touching a file.
type FileLogEntry struct {
	Node     string   `json:"node"`
	Desc     string   `json:"desc"`
	User     string   `json:"user"`
	Author   string   `json:"author"`
	Date     Time     `json:"date"`
	PushDate Time     `json:"pushdate"`
	Parents  []string `json:"parents"`
}

// Who returns the committer string, preferring the author field.
func (e FileLogEntry) Who() string {
	if e.Author != "" {
		return e.Author
	}

	return e.User
}

// FileLog is one page of a file's history, newest first.
type FileLog struct {
	Node    string         `json:"node"`
	Path    string         `json:"path"`
	Entries []FileLogEntry `json:"entries"`
}

// AnnotatedLine is one line of json-annotate output.
type AnnotatedLine struct {
	Node       string `json:"node"`
	AbsPath    string `json:"abspath"`
	Line       string `json:"line"`
	LineNo     int    `json:"lineno"`
	TargetLine int    `json:"targetline"`
	User       string `json:"user"`
	Desc       string `json:"desc"`
}

// Annotation is the json-annotate answer for one file.
type Annotation struct {
	Node     string          `json:"node"`
	Path     string          `json:"path"`
	Annotate []AnnotatedLine `json:"annotate"`
}
