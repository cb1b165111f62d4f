package commands

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrUnsupportedFormat indicates the requested output format is not supported.
var ErrUnsupportedFormat = errors.New("unsupported format")

// NormalizeFormat canonicalizes a user-provided output format string.
func NormalizeFormat(format string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(format))
	if normalized == "yml" {
		normalized = FormatYAML
	}

	if !slices.Contains([]string{FormatText, FormatJSON, FormatYAML}, normalized) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	return normalized, nil
}

// Render writes v in format. Text output is delegated to text.
func Render(w io.Writer, format string, v any, text func(io.Writer) error) error {
	normalized, err := NormalizeFormat(format)
	if err != nil {
		return err
	}

	switch normalized {
	case FormatJSON:
		data, marshalErr := json.MarshalIndent(v, "", "  ")
		if marshalErr != nil {
			return fmt.Errorf("encode json: %w", marshalErr)
		}

		_, err = fmt.Fprintf(w, "%s\n", data)

		return err
	case FormatYAML:
		return writeYAML(w, v)
	default:
		return text(w)
	}
}

// writeYAML goes through JSON so the json tags name the YAML keys too.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var generic any

	err = dec.Decode(&generic)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	err = enc.Encode(numbers(generic))
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}

	return enc.Close()
}

// numbers turns decoded JSON numbers back into integers where they fit.
func numbers(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = numbers(item)
		}
	case []any:
		for i, item := range t {
			t[i] = numbers(item)
		}
	case json.Number:
		i, err := t.Int64()
		if err == nil {
			return i
		}

		f, err := t.Float64()
		if err == nil {
			return f
		}

		return t.String()
	}

	return v
}

func newTable(w io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.SeparateRows = false
	tbl.Style().Options.SeparateColumns = false
	tbl.Style().Options.DrawBorder = false

	return tbl
}

var (
	colorBad  = color.New(color.FgRed)
	colorWarn = color.New(color.FgYellow)
	colorGood = color.New(color.FgGreen)
	colorNote = color.New(color.FgCyan)
)

// section prints a bold heading.
func section(w io.Writer, title string) {
	color.New(color.Bold).Fprintln(w, title)
}
