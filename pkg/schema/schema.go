// Package schema derives draft-07 JSON Schemas from the Go types mozdata
// encodes as JSON and validates documents against them.
package schema

import (
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Draft07 is the meta-schema every generated schema declares.
const Draft07 = "http://json-schema.org/draft-07/schema#"

// ErrInvalid indicates a document that does not match its schema.
var ErrInvalid = errors.New("document does not match schema")

// Schema is the subset of JSON Schema the generator emits.
type Schema struct {
	Schema      string `json:"$schema,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	// Type is a type name or a list of them.
	Type                 any                `json:"type,omitempty"`
	Properties           map[string]*Schema `json:"properties,omitempty"`
	AdditionalProperties *Schema            `json:"additionalProperties,omitempty"`
	Items                *Schema            `json:"items,omitempty"`
	Required             []string           `json:"required,omitempty"`
	Ref                  string             `json:"$ref,omitempty"`
	AllOf                []*Schema          `json:"allOf,omitempty"`
	AnyOf                []*Schema          `json:"anyOf,omitempty"`
	Definitions          map[string]*Schema `json:"definitions,omitempty"`
}

var (
	timeType      = reflect.TypeFor[time.Time]()
	durationType  = reflect.TypeFor[time.Duration]()
	jsonMarshaler = reflect.TypeFor[json.Marshaler]()
	textMarshaler = reflect.TypeFor[encoding.TextMarshaler]()
)

// For returns the schema of the JSON encoding of v's type. v is usually a
// typed nil such as (*Report)(nil).
func For(title string, v any) *Schema {
	g := &generator{defs: make(map[string]*Schema)}
	body := g.typeSchema(reflect.TypeOf(v))

	root := &Schema{
		Schema: Draft07,
		Title:  title,
		AllOf:  []*Schema{body},
	}

	if len(g.defs) > 0 {
		root.Definitions = g.defs
	}

	return root
}

// Encode returns the indented JSON form of s.
func (s *Schema) Encode() ([]byte, error) {
	return json.MarshalIndent(s, "", "  ")
}

// Validate checks the JSON document doc against s.
func Validate(s *Schema, doc []byte) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode schema: %w", err)
	}

	res, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(raw), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("validate: %w", err)
	}

	if res.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(res.Errors()))
	for _, e := range res.Errors() {
		msgs = append(msgs, e.String())
	}

	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(msgs, "; "))
}

type generator struct {
	defs map[string]*Schema
}

func (g *generator) typeSchema(t reflect.Type) *Schema {
	if t == nil {
		return &Schema{Type: "null"}
	}

	switch {
	case t == timeType:
		return &Schema{Type: "string", Description: "RFC 3339 timestamp"}
	case t == durationType:
		return &Schema{Type: "integer", Description: "duration in nanoseconds"}
	case t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && t.Implements(jsonMarshaler):
		return &Schema{Description: "custom encoding of " + t.String()}
	case t.Kind() != reflect.Pointer && t.Kind() != reflect.Interface && t.Implements(textMarshaler):
		return &Schema{Type: "string"}
	}

	switch t.Kind() {
	case reflect.String:
		return &Schema{Type: "string"}
	case reflect.Bool:
		return &Schema{Type: "boolean"}
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &Schema{Type: "integer"}
	case reflect.Float32, reflect.Float64:
		return &Schema{Type: "number"}
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return &Schema{Type: []string{"string", "null"}, Description: "base64"}
		}

		return &Schema{Type: []string{"array", "null"}, Items: g.typeSchema(t.Elem())}
	case reflect.Array:
		return &Schema{Type: "array", Items: g.typeSchema(t.Elem())}
	case reflect.Map:
		return &Schema{Type: []string{"object", "null"}, AdditionalProperties: g.typeSchema(t.Elem())}
	case reflect.Pointer:
		return nullable(g.typeSchema(t.Elem()))
	case reflect.Struct:
		return g.structRef(t)
	default:
		return &Schema{}
	}
}

func nullable(s *Schema) *Schema {
	if name, ok := s.Type.(string); ok {
		s.Type = []string{name, "null"}

		return s
	}

	if s.Type == nil && s.Ref == "" {
		return s
	}

	return &Schema{AnyOf: []*Schema{s, {Type: "null"}}}
}

// structRef registers named structs once under definitions. The
// placeholder is stored first so recursive types terminate.
func (g *generator) structRef(t reflect.Type) *Schema {
	if t.Name() == "" {
		return g.object(t)
	}

	key := path.Base(t.PkgPath()) + "." + t.Name()
	if _, ok := g.defs[key]; !ok {
		def := &Schema{}
		g.defs[key] = def
		*def = *g.object(t)
	}

	return &Schema{Ref: "#/definitions/" + pointerEscaper.Replace(key)}
}

var pointerEscaper = strings.NewReplacer("~", "~0", "/", "~1")

func (g *generator) object(t reflect.Type) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema)}
	g.fields(t, s, false)

	return s
}

// fields adds the encoded fields of t to s. Fields promoted through an
// embedded pointer are never required.
func (g *generator) fields(t reflect.Type, s *Schema, optional bool) {
	for i := range t.NumField() {
		f := t.Field(i)

		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" && opts == "" {
			continue
		}

		if f.Anonymous && name == "" {
			ft := f.Type
			viaPointer := ft.Kind() == reflect.Pointer

			if viaPointer {
				ft = ft.Elem()
			}

			if ft.Kind() == reflect.Struct {
				g.fields(ft, s, optional || viaPointer)

				continue
			}
		}

		if !f.IsExported() {
			continue
		}

		if name == "" {
			name = f.Name
		}

		s.Properties[name] = g.typeSchema(f.Type)

		if !optional && !hasOption(opts, "omitempty") && !hasOption(opts, "omitzero") {
			s.Required = append(s.Required, name)
		}
	}
}

func hasOption(opts, want string) bool {
	for opt := range strings.SplitSeq(opts, ",") {
		if opt == want {
			return true
		}
	}

	return false
}
