package fault

import "errors"

// Predefined errors for key encoding and parsing.
var (
	// ErrInvalidKeyFormat indicates that the textual form of a key (the
	// document id used by the index) is not valid hex.
	ErrInvalidKeyFormat = errors.New("invalid key format")

	// ErrEmptyKey indicates a zero-length key.
	ErrEmptyKey = errors.New("empty key")

	// ErrUnsupportedKeyType indicates a primary key value that cannot be
	// encoded as an ordered tree key.
	ErrUnsupportedKeyType = errors.New("unsupported primary key type")

	// ErrKeyMismatch indicates a record whose primary key field disagrees
	// with the key it is stored under.
	ErrKeyMismatch = errors.New("record primary key does not match key")
)
