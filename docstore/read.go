package docstore

import (
	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/types"
)

// Find returns the record under key, or nil when the key is absent. It
// reads the tree only.
func (s *Store[T]) Find(key codec.Key) (*Document[T], error) {
	if err := s.ensureOpen("find"); err != nil {
		return nil, err
	}

	v, found, err := s.typed.Get(key)
	if err != nil {
		return nil, opError("find", fault.ErrStorage, err, key)
	}
	if !found {
		return nil, nil
	}
	return &Document[T]{Key: key, Record: v}, nil
}

// Get is Find for callers that need the record: an absent key is a
// fault.ErrNotFound error.
func (s *Store[T]) Get(key codec.Key) (*Document[T], error) {
	doc, err := s.Find(key)
	if err != nil {
		return nil, opError("get", fault.ErrStorage, err, key)
	}
	if doc == nil {
		return nil, opError("get", fault.ErrNotFound, fault.ErrKeyNotFound, key)
	}
	return doc, nil
}

// FindMulti looks up keys in one read transaction. The result has one
// entry per key in the same order; absent keys give nil.
func (s *Store[T]) FindMulti(keys []codec.Key) ([]*Document[T], error) {
	if err := s.ensureOpen("find_multi"); err != nil {
		return nil, err
	}

	entries, err := s.typed.GetMulti(keys)
	if err != nil {
		return nil, opError("find_multi", fault.ErrStorage, err)
	}

	out := make([]*Document[T], len(entries))
	for i, e := range entries {
		if e.Found {
			out[i] = &Document[T]{Key: e.Key, Record: e.Value}
		}
	}
	return out, nil
}

// Exists reports whether key is stored.
func (s *Store[T]) Exists(key codec.Key) (bool, error) {
	if err := s.ensureOpen("exists"); err != nil {
		return false, err
	}

	ok, err := s.tree.Exists(key)
	if err != nil {
		return false, opError("exists", fault.ErrStorage, err, key)
	}
	return ok, nil
}

// Count returns the number of stored records.
func (s *Store[T]) Count() (int, error) {
	if err := s.ensureOpen("count"); err != nil {
		return 0, err
	}

	n, err := s.tree.Len()
	if err != nil {
		return 0, opError("count", fault.ErrStorage, err)
	}
	return n, nil
}

// Scan calls fn for every record with a key >= from, in key order. An
// empty from starts at the first key. Return store.ErrStopScan from fn to
// stop early.
func (s *Store[T]) Scan(from codec.Key, fn func(doc Document[T]) error) error {
	if err := s.ensureOpen("scan"); err != nil {
		return err
	}

	err := s.typed.Scan(from, func(key codec.Key, v T) error {
		return fn(Document[T]{Key: key, Record: v})
	})
	if err != nil {
		return opError("scan", fault.ErrStorage, err)
	}
	return nil
}

// All returns every record in key order.
func (s *Store[T]) All() ([]Document[T], error) {
	if err := s.ensureOpen("all"); err != nil {
		return nil, err
	}

	entries, err := s.typed.All()
	if err != nil {
		return nil, opError("all", fault.ErrStorage, err)
	}

	out := make([]Document[T], len(entries))
	for i, e := range entries {
		out[i] = Document[T]{Key: e.Key, Record: e.Value}
	}
	return out, nil
}

// Registration returns the process registry entry of the store's tree.
func (s *Store[T]) Registration() (*types.RegistryItem, error) {
	item, err := s.registry.Lookup(s.dbPath, s.schema.Tree())
	if err != nil {
		return nil, opError("registration", fault.ErrNotFound, err)
	}
	return item, nil
}
