package dyno

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/schema"
)

var _ schema.FieldSource = (*Object)(nil)

// Object is a record without a Go struct behind it. Its schema is declared
// with schema.NewBuilder and its values are read by property name.
//
// Numbers are held as int64 or float64 and come back from either codec with
// the same type: json.Number values are converted when they are set, and
// integral floats are written to JSON with a fraction so they are not read
// back as integers.
type Object struct {
	Properties map[string]any `json:"properties"`
}

// wire is the stored form of an Object. It has no marshal methods of its
// own, so encoding it does not recurse.
type wire struct {
	Properties map[string]any `json:"properties"`
}

// New returns an empty object.
func New() *Object {
	return &Object{Properties: make(map[string]any)}
}

// FromMap wraps props, converting json.Number values in place.
func FromMap(props map[string]any) *Object {
	if props == nil {
		props = make(map[string]any)
	}
	for k, v := range props {
		props[k] = plain(v)
	}
	return &Object{Properties: props}
}

// FieldValue implements schema.FieldSource.
func (o *Object) FieldValue(name string) (any, bool) {
	if o == nil || o.Properties == nil {
		return nil, false
	}
	v, ok := o.Properties[name]
	return v, ok
}

// Set stores value under name and returns o.
func (o *Object) Set(name string, value any) *Object {
	if o.Properties == nil {
		o.Properties = make(map[string]any)
	}
	o.Properties[name] = plain(value)
	return o
}

// Get returns the value under name, or nil.
func (o *Object) Get(name string) any {
	v, _ := o.FieldValue(name)
	return v
}

// MarshalJSON implements json.Marshaler.
func (o Object) MarshalJSON() ([]byte, error) {
	props := make(map[string]any, len(o.Properties))
	for k, v := range o.Properties {
		props[k] = exact(plain(v))
	}
	return json.Marshal(wire{Properties: props})
}

// UnmarshalJSON implements json.Unmarshaler.
func (o *Object) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var w wire
	if err := dec.Decode(&w); err != nil {
		return err
	}
	*o = *FromMap(w.Properties)
	return nil
}

// MarshalCBOR implements cbor.Marshaler.
func (o Object) MarshalCBOR() ([]byte, error) {
	props := make(map[string]any, len(o.Properties))
	for k, v := range o.Properties {
		props[k] = plain(v)
	}
	return codec.CBOR.Marshal(wire{Properties: props})
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (o *Object) UnmarshalCBOR(data []byte) error {
	var w wire
	if err := codec.CBOR.Unmarshal(data, &w); err != nil {
		return err
	}
	*o = *FromMap(w.Properties)
	return nil
}

// plain turns json.Number into int64 or float64, and unsigned integers into
// int64 where they fit, descending into slices and maps.
func plain(v any) any {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil {
			return f
		}
		return n.String()
	case uint64:
		if n <= math.MaxInt64 {
			return int64(n)
		}
		return float64(n)
	case []any:
		for i := range n {
			n[i] = plain(n[i])
		}
	case map[string]any:
		for k := range n {
			n[k] = plain(n[k])
		}
	}
	return v
}

// exact keeps the fraction of integral floats in JSON: float64(7) is
// written as 7.0 and read back as a float.
func exact(v any) any {
	switch n := v.(type) {
	case float64:
		if n == math.Trunc(n) && math.Abs(n) < 1e21 {
			return json.Number(strconv.FormatFloat(n, 'f', 1, 64))
		}
	case []any:
		out := make([]any, len(n))
		for i := range n {
			out[i] = exact(n[i])
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(n))
		for k := range n {
			out[k] = exact(n[k])
		}
		return out
	}
	return v
}
