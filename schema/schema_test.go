package schema

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/dsearch/fault"
)

type Book struct {
	ISBN        string            `dsearch:"isbn,pk,type=keyword"`
	Title       string            `dsearch:"title,search"`
	Description *string           `dsearch:",search"`
	Rating      uint8             `dsearch:"rating"`
	Tags        []string          `json:"tags"`
	Published   time.Time         `json:"published"`
	Notes       string            `dsearch:"-"`
	Meta        map[string]string `json:"meta"`
}

type shelved struct {
	Title string `dsearch:"title,search"`
}

func (shelved) TreeName() string { return "shelf" }

func TestDerive(t *testing.T) {
	t.Parallel()

	s, err := Derive[Book]()
	require.NoError(t, err)

	require.Equal(t, "book", s.Tree())
	require.Equal(t, []string{"title", "description"}, s.DefaultSearchFields())

	pk, ok := s.PrimaryKey()
	require.True(t, ok)
	require.Equal(t, "isbn", pk.Name)
	require.Equal(t, Keyword, pk.Type)

	var names []string
	for _, f := range s.Indexed() {
		names = append(names, f.Name+":"+f.Type.String())
	}
	require.Equal(t, []string{
		"isbn:keyword",
		"title:text",
		"description:text",
		"rating:numeric",
		"tags:text",
		"published:datetime",
	}, names)

	// skipped fields are declared but not indexed
	_, ok = s.Field("notes")
	require.False(t, ok)
	require.Len(t, s.Fields(), 7)
}

func TestDerive_TreeNamer(t *testing.T) {
	t.Parallel()

	s, err := Derive[shelved]()
	require.NoError(t, err)
	require.Equal(t, "shelf", s.Tree())

	p, err := Derive[*shelved]()
	require.NoError(t, err)
	require.Equal(t, "shelf", p.Tree())
}

func TestDerive_Errors(t *testing.T) {
	t.Parallel()

	type contradictory struct {
		Title string `dsearch:"title,search,skip"`
	}
	type unsupported struct {
		Meta map[string]string `dsearch:"meta"`
	}
	type twoKeys struct {
		A string `dsearch:"a,pk"`
		B string `dsearch:"b,pk"`
	}
	type reserved struct {
		ID string `dsearch:"_id"`
	}
	type numericSearch struct {
		Rating int `dsearch:"rating,search"`
	}
	type badOption struct {
		Title string `dsearch:"title,fuzzy"`
	}

	tests := []struct {
		name string
		fn   func() (*Schema, error)
		err  error
	}{
		{name: "search and skip", fn: Derive[contradictory], err: fault.ErrContradictoryField},
		{name: "tagged unsupported type", fn: Derive[unsupported], err: fault.ErrUnsupportedField},
		{name: "two primary keys", fn: Derive[twoKeys], err: fault.ErrMultiplePrimaryKey},
		{name: "reserved name", fn: Derive[reserved], err: fault.ErrReservedField},
		{name: "default search on numeric", fn: Derive[numericSearch], err: fault.ErrDefaultSearchType},
		{name: "unknown option", fn: Derive[badOption]},
		{name: "not a struct", fn: Derive[int], err: fault.ErrNotStruct},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.fn()
			require.ErrorIs(t, err, fault.ErrConfig)
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestNew_DuplicateField(t *testing.T) {
	t.Parallel()

	_, err := New("t", Field{Name: "a"}, Field{Name: "a", Type: Keyword})
	require.ErrorIs(t, err, fault.ErrConfig)
	require.ErrorIs(t, err, fault.ErrDuplicateField)

	_, err = New("", Field{Name: "a"})
	require.ErrorIs(t, err, fault.ErrMissingTreeName)

	_, err = New("t", Field{Name: "a b"})
	require.ErrorIs(t, err, fault.ErrInvalidFieldName)
}

func TestSchema_Extract(t *testing.T) {
	t.Parallel()

	s, err := Derive[Book]()
	require.NoError(t, err)

	published := time.Date(1952, 9, 1, 0, 0, 0, 0, time.UTC)
	b := Book{
		ISBN:      "0684801221",
		Title:     "The Old Man and the Sea",
		Rating:    10,
		Tags:      []string{"novel", "sea"},
		Published: published,
		Notes:     "first edition",
	}

	doc, err := s.Extract(&b)
	require.NoError(t, err)

	want := map[string]any{
		"isbn":      "0684801221",
		"title":     "The Old Man and the Sea",
		"rating":    10.0,
		"tags":      []string{"novel", "sea"},
		"published": published,
	}
	if diff := cmp.Diff(want, doc); diff != "" {
		t.Fatalf("Extract mismatch (-want +got):\n%s", diff)
	}

	desc := "A fisherman"
	b.Description = &desc
	doc, err = s.Extract(b)
	require.NoError(t, err)
	require.Equal(t, "A fisherman", doc["description"])

	key, err := s.KeyValue(&b)
	require.NoError(t, err)
	require.Equal(t, "0684801221", key)
}

func TestSchema_FingerprintFollowsIndexedShape(t *testing.T) {
	t.Parallel()

	a, err := NewBuilder("t").Text("title").Numeric("rating").Build()
	require.NoError(t, err)
	b, err := NewBuilder("t").Text("title").Numeric("rating").Skip("notes").Build()
	require.NoError(t, err)
	c, err := NewBuilder("t").Text("title").Keyword("rating").Build()
	require.NoError(t, err)

	require.Equal(t, a.Fingerprint(), b.Fingerprint())
	require.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	renamed, err := a.WithTree("other")
	require.NoError(t, err)
	require.Equal(t, a.Fingerprint(), renamed.Fingerprint())
	require.Equal(t, "other", renamed.Tree())
	require.Equal(t, "t", a.Tree())
}

type props map[string]any

func (p props) FieldValue(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

func TestBuilder_FieldSource(t *testing.T) {
	t.Parallel()

	s, err := NewBuilder("books").
		Text("title", Search()).
		Numeric("rating").
		Bool("available").
		DateTime("added").
		Skip("isbn", PrimaryKey()).
		Build()
	require.NoError(t, err)

	s, err = s.Bind(reflect.TypeFor[props]())
	require.NoError(t, err)

	doc, err := s.Extract(props{
		"title":     "Dune",
		"rating":    int64(9),
		"available": true,
		"added":     "2024-01-10T09:00:00Z",
		"isbn":      "0441013597",
	})
	require.NoError(t, err)
	require.Equal(t, "Dune", doc["title"])
	require.Equal(t, 9.0, doc["rating"])
	require.Equal(t, true, doc["available"])
	require.True(t, time.Date(2024, 1, 10, 9, 0, 0, 0, time.UTC).Equal(doc["added"].(time.Time)))
	require.NotContains(t, doc, "isbn")

	for _, raw := range []any{"7", " 7 ", json.Number("7"), uint64(7), float32(7)} {
		doc, err = s.Extract(props{"rating": raw})
		require.NoError(t, err, "%T %v", raw, raw)
		require.Equal(t, 7.0, doc["rating"])
	}

	_, err = s.Extract(props{"rating": "nine"})
	require.ErrorIs(t, err, fault.ErrFieldTypeMismatch)
}

func TestBind(t *testing.T) {
	t.Parallel()

	type record struct {
		Headline string
		Score    string
	}

	s, err := NewBuilder("r").Text("title", Source("Headline")).Build()
	require.NoError(t, err)

	s, err = s.Bind(reflect.TypeFor[record]())
	require.NoError(t, err)

	doc, err := s.Extract(record{Headline: "hello"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"title": "hello"}, doc)

	numeric, err := NewBuilder("r").Numeric("score").Build()
	require.NoError(t, err)
	_, err = numeric.Bind(reflect.TypeFor[record]())
	require.ErrorIs(t, err, fault.ErrUnsupportedField)

	missing, err := NewBuilder("r").Text("body").Build()
	require.NoError(t, err)
	_, err = missing.Bind(reflect.TypeFor[record]())
	require.ErrorIs(t, err, fault.ErrUnknownSource)
}
