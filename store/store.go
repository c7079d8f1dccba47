package store

import "github.com/guyvdb/dsearch/codec"

// Reader is the read side of a Tree.
type Reader interface {
	Name() string
	Get(key codec.Key) ([]byte, bool, error)
	GetMulti(keys []codec.Key) ([][]byte, error)
	Exists(key codec.Key) (bool, error)
	Len() (int, error)
	Scan(from codec.Key, fn func(key codec.Key, value []byte) error) error
}

var _ Reader = (*Tree)(nil)
