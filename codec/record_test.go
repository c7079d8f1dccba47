package codec

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/guyvdb/dsearch/fault"
)

type book struct {
	ID        uint64    `json:"id" cbor:"id"`
	Title     string    `json:"title" cbor:"title"`
	Rating    *int      `json:"rating,omitempty" cbor:"rating,omitempty"`
	Tags      []string  `json:"tags" cbor:"tags"`
	Published time.Time `json:"published" cbor:"published"`
}

func TestRecord_RoundTrip(t *testing.T) {
	t.Parallel()

	rating := 10
	in := book{
		ID:        1,
		Title:     "The Old Man and the Sea",
		Rating:    &rating,
		Tags:      []string{"novel", "sea"},
		Published: time.Date(1952, 9, 1, 0, 0, 0, 0, time.UTC),
	}

	for _, c := range []Codec{JSON, CBOR} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := EncodeRecord(c, in)
			require.NoError(t, err)
			require.Equal(t, c.ID(), data[1])

			var out book
			require.NoError(t, DecodeRecord(c, data, &out))
			if diff := cmp.Diff(in, out); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecord_InterfaceNumbers(t *testing.T) {
	t.Parallel()

	in := map[string]any{"count": int64(7), "ratio": 0.5}

	tests := []struct {
		codec Codec
		want  map[string]any
	}{
		{codec: JSON, want: map[string]any{"count": json.Number("7"), "ratio": json.Number("0.5")}},
		{codec: CBOR, want: map[string]any{"count": int64(7), "ratio": 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.codec.Name(), func(t *testing.T) {
			data, err := EncodeRecord(tt.codec, in)
			require.NoError(t, err)

			var out map[string]any
			require.NoError(t, DecodeRecord(tt.codec, data, &out))
			if diff := cmp.Diff(tt.want, out); diff != "" {
				t.Fatalf("decoded numbers mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRecord_DecodeCorrupt(t *testing.T) {
	t.Parallel()

	good, err := EncodeRecord(JSON, book{ID: 1, Title: "x"})
	require.NoError(t, err)

	tests := []struct {
		name  string
		codec Codec
		data  []byte
	}{
		{name: "empty", codec: JSON, data: nil},
		{name: "short", codec: JSON, data: []byte{payloadMagic}},
		{name: "bad magic", codec: JSON, data: append([]byte{0x00}, good[1:]...)},
		{name: "codec mismatch", codec: CBOR, data: good},
		{name: "truncated body", codec: JSON, data: good[:len(good)-3]},
		{name: "trailing data", codec: JSON, data: append(append([]byte{}, good...), []byte(" {}")...)},
		{name: "garbage cbor", codec: CBOR, data: []byte{payloadMagic, 2, 0xff, 0xff, 0x1f}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out book
			err := DecodeRecord(tt.codec, tt.data, &out)
			require.ErrorIs(t, err, fault.ErrUnmarshalFailed)
		})
	}
}

func TestRecord_ByName(t *testing.T) {
	t.Parallel()

	c, err := ByName("")
	require.NoError(t, err)
	require.Equal(t, "json", c.Name())

	c, err = ByName("cbor")
	require.NoError(t, err)
	require.Equal(t, "cbor", c.Name())

	_, err = ByName("gob")
	require.Error(t, err)
}
