package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/guyvdb/dsearch/fault"
)

// Codec serializes records. A store uses one codec for its whole lifetime;
// the codec ID is written in front of every payload so bytes written by a
// different codec are rejected instead of misread.
type Codec interface {
	Name() string
	ID() byte
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Payload header: magic byte followed by the codec ID.
const (
	payloadMagic  byte = 0xD5
	payloadHeader      = 2
)

var (
	JSON Codec = jsonCodec{}
	CBOR Codec = newCBORCodec()
)

// ByName resolves "json" or "cbor".
func ByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("unknown codec %q", name)
}

// EncodeRecord frames the serialized form of v.
func EncodeRecord(c Codec, v any) ([]byte, error) {
	body, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", fault.ErrMarshalFailed, c.Name(), err)
	}

	out := make([]byte, 0, payloadHeader+len(body))
	out = append(out, payloadMagic, c.ID())
	return append(out, body...), nil
}

// DecodeRecord reverses EncodeRecord into v, which must be a non-nil
// pointer. Corrupt input is reported as an error; it never panics.
func DecodeRecord(c Codec, data []byte, v any) (err error) {
	if len(data) < payloadHeader {
		return fmt.Errorf("%w: payload too short (%d bytes)", fault.ErrUnmarshalFailed, len(data))
	}
	if data[0] != payloadMagic {
		return fmt.Errorf("%w: bad payload magic 0x%02x", fault.ErrUnmarshalFailed, data[0])
	}
	if data[1] != c.ID() {
		return fmt.Errorf("%w: payload written by codec %d, store uses %s", fault.ErrUnmarshalFailed, data[1], c.Name())
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", fault.ErrUnmarshalFailed, c.Name(), r)
		}
	}()

	if err := c.Unmarshal(data[payloadHeader:], v); err != nil {
		return fmt.Errorf("%w: %s: %w", fault.ErrUnmarshalFailed, c.Name(), err)
	}

	return nil
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) ID() byte     { return 1 }

func (jsonCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes numbers held in interface values as json.Number, so
// integers keep their precision and callers choose the Go type.
func (jsonCodec) Unmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("trailing data after record")
	}
	return nil
}

type cborCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func newCBORCodec() cborCodec {
	enc, err := cbor.EncOptions{
		Sort: cbor.SortCoreDeterministic,
		Time: cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(err)
	}

	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IntDec:         cbor.IntDecConvertSignedOrFail,
	}.DecMode()
	if err != nil {
		panic(err)
	}

	return cborCodec{enc: enc, dec: dec}
}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) ID() byte     { return 2 }

func (c cborCodec) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c cborCodec) Unmarshal(data []byte, v any) error {
	return c.dec.Unmarshal(data, v)
}
