package schema_test

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/mozdata/pkg/schema"
)

type level int

func (l level) MarshalText() ([]byte, error) {
	return []byte([]string{"low", "high"}[l]), nil
}

type Counts struct {
	Patches int `json:"patches"`
	Bugs    int `json:"bugs"`
}

type node struct {
	Name     string  `json:"name"`
	Children []*node `json:"children,omitempty"`
}

type report struct {
	Counts

	Title   string             `json:"title"`
	Level   level              `json:"level"`
	When    time.Time          `json:"when,omitzero"`
	Took    time.Duration      `json:"took"`
	Tags    []string           `json:"tags"`
	Scores  map[string]float64 `json:"scores"`
	Tree    *node              `json:"tree"`
	Skipped string             `json:"-"`
	Raw     []byte             `json:"raw,omitempty"`
}

func TestFor_Structure(t *testing.T) {
	t.Parallel()

	s := schema.For("Report", (*report)(nil))

	assert.Equal(t, schema.Draft07, s.Schema)
	assert.Equal(t, "Report", s.Title)
	require.Len(t, s.AllOf, 1)
	require.Len(t, s.AllOf[0].AnyOf, 2)
	assert.Equal(t, "#/definitions/schema_test.report", s.AllOf[0].AnyOf[0].Ref)

	def := s.Definitions["schema_test.report"]
	require.NotNil(t, def)

	assert.Contains(t, def.Properties, "patches", "embedded fields are promoted")
	assert.NotContains(t, def.Properties, "Skipped")
	assert.Equal(t, "string", def.Properties["level"].Type)
	assert.Equal(t, "integer", def.Properties["took"].Type)
	assert.ElementsMatch(t, []string{"patches", "bugs", "title", "level", "took", "tags", "scores", "tree"}, def.Required)

	assert.Contains(t, s.Definitions, "schema_test.node", "recursive types terminate")
	_, err := s.Encode()
	require.NoError(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	s := schema.For("Report", (*report)(nil))

	valid := report{
		Counts: Counts{Patches: 2, Bugs: 1},
		Title:  "crash",
		Level:  1,
		When:   time.Date(2016, 1, 12, 0, 0, 0, 0, time.UTC),
		Took:   time.Second,
		Scores: map[string]float64{"a": 0.5},
		Tree:   &node{Name: "root", Children: []*node{{Name: "leaf"}}},
	}

	doc, err := json.Marshal(valid)
	require.NoError(t, err)
	require.NoError(t, schema.Validate(s, doc))

	require.NoError(t, schema.Validate(s, []byte("null")))

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(doc, &fields))

	fields["title"] = json.RawMessage("3")

	bad, err := json.Marshal(fields)
	require.NoError(t, err)

	err = schema.Validate(s, bad)
	require.ErrorIs(t, err, schema.ErrInvalid)
	assert.Contains(t, err.Error(), "title: Invalid type")

	// A sparse object is closer to null than to the report, so only the
	// nullable alternatives are reported.
	err = schema.Validate(s, []byte(`{"title": 3}`))
	require.ErrorIs(t, err, schema.ErrInvalid)
	assert.Contains(t, err.Error(), "anyOf")
}

func TestValidate_ValueRoot(t *testing.T) {
	t.Parallel()

	s := schema.For("Counts", Counts{})
	require.Len(t, s.AllOf, 1)
	assert.Empty(t, s.AllOf[0].AnyOf)

	require.NoError(t, schema.Validate(s, []byte(`{"patches": 1, "bugs": 2}`)))

	err := schema.Validate(s, []byte(`{"patches": "x", "bugs": 2}`))
	require.ErrorIs(t, err, schema.ErrInvalid)
	assert.Contains(t, err.Error(), "patches: Invalid type")

	err = schema.Validate(s, []byte(`{"bugs": 2}`))
	require.ErrorIs(t, err, schema.ErrInvalid)
	assert.Contains(t, err.Error(), "patches is required")
}

func TestSchemaEncode(t *testing.T) {
	t.Parallel()

	data, err := schema.For("Report", (*report)(nil)).Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, schema.Draft07, decoded["$schema"])
	assert.Contains(t, decoded["definitions"], "schema_test.node")
}

func TestFor_Scalars(t *testing.T) {
	t.Parallel()

	s := schema.For("Dups", map[string]*int(nil))
	require.Len(t, s.AllOf, 1)
	assert.Equal(t, []string{"object", "null"}, s.AllOf[0].Type)
	assert.Equal(t, []string{"integer", "null"}, s.AllOf[0].AdditionalProperties.Type)
	assert.Empty(t, s.Definitions)

	require.NoError(t, schema.Validate(s, []byte(`{"1": 2, "3": null}`)))
	require.ErrorIs(t, schema.Validate(s, []byte(`{"1": "x"}`)), schema.ErrInvalid)
}
