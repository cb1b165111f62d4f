package socorro

import (
	"bytes"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Term is a facet term. Socorro sends strings for most facets but numbers
// for some (build ids, histogram buckets), so both decode into a string.
type Term string

// UnmarshalJSON accepts a JSON string, number or boolean.
func (t *Term) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	if len(data) > 0 && data[0] == '"' {
		var s string

		err := json.Unmarshal(data, &s)
		if err != nil {
			return err
		}

		*t = Term(s)

		return nil
	}

	if bytes.Equal(data, []byte("null")) {
		*t = ""

		return nil
	}

	*t = Term(data)

	return nil
}

// Int parses the term as an integer.
func (t Term) Int() (int, error) {
	return strconv.Atoi(string(t))
}

// Facet is one bucket of a SuperSearch aggregation; it can hold nested
// aggregations of its own.
type Facet struct {
	Term   Term               `json:"term"`
	Count  int                `json:"count"`
	Facets map[string][]Facet `json:"facets"`
}

// Sub returns the nested facet list named name.
func (f Facet) Sub(name string) []Facet {
	return f.Facets[name]
}

// SearchResult is a SuperSearch response.
type SearchResult struct {
	Hits   []map[string]any   `json:"hits"`
	Total  int                `json:"total"`
	Facets map[string][]Facet `json:"facets"`
	Errors []map[string]any   `json:"errors"`

	// Params are the parameters of the request that produced the result.
	Params map[string][]string `json:"-"`
}

// Date is a calendar date as Socorro renders it ("2006-01-02", sometimes
// with a time part).
type Date struct {
	time.Time
}

var dateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"}

// UnmarshalJSON accepts null, a date or a timestamp.
func (d *Date) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		d.Time = time.Time{}

		return nil
	}

	var raw string

	err := json.Unmarshal(data, &raw)
	if err != nil {
		return err
	}

	if raw == "" {
		d.Time = time.Time{}

		return nil
	}

	var parseErr error

	for _, layout := range dateLayouts {
		parsed, perr := time.Parse(layout, raw)
		if perr == nil {
			d.Time = parsed.UTC()

			return nil
		}

		parseErr = perr
	}

	return parseErr
}

// ProductVersion is one row of ProductVersions.
type ProductVersion struct {
	Product    string  `json:"product"`
	Version    string  `json:"version"`
	BuildType  string  `json:"build_type"`
	StartDate  Date    `json:"start_date"`
	EndDate    Date    `json:"end_date"`
	IsFeatured bool    `json:"is_featured"`
	Throttle   float64 `json:"throttle"`
	HasBuilds  bool    `json:"has_builds"`
}

// Major returns the major version number, 0 when unparsable.
func (p ProductVersion) Major() int {
	head, _, _ := strings.Cut(p.Version, ".")

	major, err := strconv.Atoi(head)
	if err != nil {
		return 0
	}

	return major
}

// Platform is one row of Platforms.
type Platform struct {
	Name      string `json:"name"`
	ShortName string `json:"short_name"`
}

// SignatureBug links a signature to a bug.
type SignatureBug struct {
	ID        int    `json:"id"`
	Signature string `json:"signature"`
}

// ADICount is the active daily installs of one version on one day.
type ADICount struct {
	Count     int    `json:"adi_count"`
	Date      Date   `json:"date"`
	Version   string `json:"version"`
	BuildType string `json:"build_type"`
}

// ProcessedCrash is the processed form of one crash report. Only the fields
// mozdata reads are typed.
type ProcessedCrash struct {
	UUID           string `json:"uuid"`
	Signature      string `json:"signature"`
	Product        string `json:"product"`
	Version        string `json:"version"`
	ReleaseChannel string `json:"release_channel"`
	OSName         string `json:"os_name"`
	CPUArch        string `json:"cpu_arch"`
	BuildID        Term   `json:"build"`
	DateProcessed  Date   `json:"date_processed"`
	Reason         string `json:"reason"`
	Address        string `json:"address"`
	URL            string `json:"url"`
}
