package store

import (
	"fmt"
	"log/slog"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
)

// Typed reads records of type T from a tree. Values are framed by a codec
// (see codec.EncodeRecord).
type Typed[T any] struct {
	tree  Reader
	codec codec.Codec
}

// Entry is one result of a multi-key read.
type Entry[T any] struct {
	Key   codec.Key
	Value T
	Found bool
}

// NewTyped binds a tree to record type T and codec c.
func NewTyped[T any](tree Reader, c codec.Codec) *Typed[T] {
	if c == nil {
		c = codec.JSON
	}
	return &Typed[T]{tree: tree, codec: c}
}

// Tree returns the underlying tree.
func (t *Typed[T]) Tree() Reader { return t.tree }

// Codec returns the record codec.
func (t *Typed[T]) Codec() codec.Codec { return t.codec }

// Encode serializes a record for storage under key. key may be empty
// when it is not assigned yet.
func (t *Typed[T]) Encode(key codec.Key, v T) ([]byte, error) {
	data, err := codec.EncodeRecord(t.codec, v)
	if err != nil {
		var ids []string
		if key != "" {
			ids = append(ids, key.DocID())
		}
		return nil, fault.E("encode", fault.ErrCodec, err, ids...)
	}
	return data, nil
}

// Decode deserializes the bytes stored under key.
func (t *Typed[T]) Decode(key codec.Key, data []byte) (T, error) {
	var v T
	if err := codec.DecodeRecord(t.codec, data, &v); err != nil {
		var zero T
		slog.Warn("Typed.Decode() - corrupt record", "tree", t.tree.Name(), "key", key.DocID(), "err", err)
		return zero, fault.E("decode", fault.ErrCodec, err, key.DocID())
	}
	return v, nil
}

// Get returns the record under key. found is false when the key is absent.
func (t *Typed[T]) Get(key codec.Key) (v T, found bool, err error) {
	data, found, err := t.tree.Get(key)
	if err != nil || !found {
		return v, false, err
	}

	v, err = t.Decode(key, data)
	if err != nil {
		return v, false, err
	}
	return v, true, nil
}

// GetMulti reads all keys in one read transaction. The result is aligned
// with keys. Decoding stops at the first corrupt record.
func (t *Typed[T]) GetMulti(keys []codec.Key) ([]Entry[T], error) {
	raw, err := t.tree.GetMulti(keys)
	if err != nil {
		return nil, err
	}

	out := make([]Entry[T], len(keys))
	for i, data := range raw {
		out[i].Key = keys[i]
		if data == nil {
			continue
		}
		v, err := t.Decode(keys[i], data)
		if err != nil {
			return nil, err
		}
		out[i].Value = v
		out[i].Found = true
	}

	return out, nil
}

// Scan decodes every record from key from onwards, in key order.
func (t *Typed[T]) Scan(from codec.Key, fn func(key codec.Key, v T) error) error {
	return t.tree.Scan(from, func(key codec.Key, data []byte) error {
		v, err := t.Decode(key, data)
		if err != nil {
			return err
		}
		return fn(key, v)
	})
}

// All decodes every record in key order.
func (t *Typed[T]) All() ([]Entry[T], error) {
	var out []Entry[T]
	err := t.Scan("", func(key codec.Key, v T) error {
		out = append(out, Entry[T]{Key: key, Value: v, Found: true})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store.All: %w", err)
	}
	return out, nil
}
