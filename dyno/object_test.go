package dyno

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/dsearch/codec"
)

func TestObject_SetGet(t *testing.T) {
	t.Parallel()

	o := New().Set("title", "Dune").Set("rating", 9)

	v, ok := o.FieldValue("title")
	require.True(t, ok)
	require.Equal(t, "Dune", v)
	require.Equal(t, 9, o.Get("rating"))

	_, ok = o.FieldValue("author")
	require.False(t, ok)
	require.Nil(t, o.Get("author"))
}

func TestObject_ZeroValue(t *testing.T) {
	t.Parallel()

	var o Object
	_, ok := o.FieldValue("title")
	require.False(t, ok)

	o.Set("title", "Emma")
	require.Equal(t, "Emma", o.Get("title"))

	var nilObj *Object
	_, ok = nilObj.FieldValue("title")
	require.False(t, ok)

	require.NotNil(t, FromMap(nil).Properties)
}

func TestObject_RoundTrip(t *testing.T) {
	t.Parallel()

	in := FromMap(map[string]any{
		"title":  "Dune",
		"pages":  int64(7),
		"weight": float64(7),
		"rating": 8.5,
		"new":    false,
		"none":   nil,
		"tags":   []any{"sf", int64(1965)},
		"meta":   map[string]any{"printing": int64(3), "price": 9.0},
	})

	for _, c := range []codec.Codec{codec.JSON, codec.CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := codec.EncodeRecord(c, *in)
			require.NoError(t, err)

			var out Object
			require.NoError(t, codec.DecodeRecord(c, data, &out))
			if diff := cmp.Diff(in.Properties, out.Properties); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestObject_JSONNumbers(t *testing.T) {
	t.Parallel()

	o := FromMap(map[string]any{
		"count": json.Number("7"),
		"ratio": json.Number("0.25"),
		"list":  []any{json.Number("1")},
	})
	o.Set("big", uint64(1)<<63).Set("small", uint64(5))

	require.Equal(t, int64(7), o.Get("count"))
	require.Equal(t, 0.25, o.Get("ratio"))
	require.Equal(t, []any{int64(1)}, o.Get("list"))
	require.Equal(t, float64(uint64(1)<<63), o.Get("big"))
	require.Equal(t, int64(5), o.Get("small"))

	// numbers that arrive as json.Number are stored as numbers
	data, err := codec.EncodeRecord(codec.CBOR, Object{Properties: map[string]any{"n": json.Number("7")}})
	require.NoError(t, err)

	var out Object
	require.NoError(t, codec.DecodeRecord(codec.CBOR, data, &out))
	require.Equal(t, int64(7), out.Get("n"))
}
