package codec

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"reflect"

	"github.com/google/uuid"

	"github.com/guyvdb/dsearch/fault"
)

// Key is an encoded primary key. Byte-wise order of keys is the order of
// the values they were built from, so range scans over a tree follow key
// order. Key is comparable and safe to use as a map key.
type Key string

// Uint64Key encodes v big-endian, fixed width.
func Uint64Key(v uint64) Key {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return Key(buf)
}

// Int64Key encodes v with the sign bit flipped so negative numbers sort
// before positive ones.
func Int64Key(v int64) Key {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(v)^(1<<63))
	return Key(buf)
}

// StringKey uses the bytes of s as is.
func StringKey(s string) Key {
	return Key(s)
}

// UUIDKey uses the 16 raw bytes of id. Version 7 ids sort by creation time.
func UUIDKey(id uuid.UUID) Key {
	return Key(id[:])
}

// KeyOf encodes a primary key field value.
func KeyOf(v any) (Key, error) {
	switch k := v.(type) {
	case Key:
		return k, nil
	case string:
		if k == "" {
			return "", fault.ErrEmptyKey
		}
		return StringKey(k), nil
	case []byte:
		if len(k) == 0 {
			return "", fault.ErrEmptyKey
		}
		return Key(k), nil
	case uuid.UUID:
		return UUIDKey(k), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int64Key(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Uint64Key(rv.Uint()), nil
	case reflect.String:
		if rv.Len() == 0 {
			return "", fault.ErrEmptyKey
		}
		return StringKey(rv.String()), nil
	}

	return "", fmt.Errorf("%w: %T", fault.ErrUnsupportedKeyType, v)
}

// Bytes returns a copy of the encoded key.
func (k Key) Bytes() []byte {
	return []byte(k)
}

// DocID is the hex form of the key, used as the index document id.
func (k Key) DocID() string {
	return hex.EncodeToString([]byte(k))
}

// String returns the DocID form.
func (k Key) String() string {
	return k.DocID()
}

// Uint64 decodes a key built by Uint64Key.
func (k Key) Uint64() (uint64, bool) {
	if len(k) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64([]byte(k)), true
}

// ParseDocID reverses Key.DocID.
func ParseDocID(s string) (Key, error) {
	if s == "" {
		return "", fault.ErrEmptyKey
	}

	b, err := hex.DecodeString(s)
	if err != nil {
		return "", fmt.Errorf("%w '%s': %w", fault.ErrInvalidKeyFormat, s, err)
	}

	return Key(b), nil
}

// DocIDs maps keys to their document ids.
func DocIDs(keys []Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.DocID()
	}
	return out
}
