package docstore

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/index"
	"github.com/guyvdb/dsearch/metrics"
	"github.com/guyvdb/dsearch/schema"
	"github.com/guyvdb/dsearch/store"
	"github.com/guyvdb/dsearch/types"
)

// Store keeps records of type T in a bbolt tree and their projections in a
// search index. Every write goes to the tree first and is visible to
// Search when it returns.
//
// A Store is safe for concurrent use. Writes are serialized; reads and
// searches run concurrently with them.
type Store[T any] struct {
	schema   *schema.Schema
	tree     *store.Tree
	typed    *store.Typed[T]
	index    *index.Manager
	strategy KeyStrategy
	logger   *slog.Logger

	registry types.Registry
	dbPath   string
	indexDir string
	owner    string

	workers int
	chunk   int

	// begin hands out the index writer.
	begin func() (indexWriter, error)

	closed atomic.Bool
	stats  counters
}

type indexWriter interface {
	Add(key codec.Key, doc map[string]any) error
	DeleteByKey(key codec.Key)
	Commit() (index.CommitResult, error)
	Release()
}

// Document is a record together with its key.
type Document[T any] struct {
	Key    codec.Key
	Record T
}

// Schema returns the schema the store was opened with.
func (s *Store[T]) Schema() *schema.Schema { return s.schema }

// KeyStrategy returns how the store assigns keys.
func (s *Store[T]) KeyStrategy() KeyStrategy { return s.strategy }

// KeyOf returns the key of r derived from its primary key field.
func (s *Store[T]) KeyOf(r T) (codec.Key, error) {
	v, err := s.schema.KeyValue(&r)
	if err != nil {
		return "", err
	}
	return codec.KeyOf(v)
}

// staged is a record ready to be written: encoded payload and index document.
type staged struct {
	key     codec.Key
	payload []byte
	doc     map[string]any
}

func (s *Store[T]) prepare(op string, records []T, withKeys bool) ([]staged, error) {
	out := make([]staged, len(records))

	for i := range records {
		doc, err := s.schema.Extract(&records[i])
		if err != nil {
			return nil, opError(op, fault.ErrInvalid, err)
		}

		out[i].doc = doc

		if withKeys {
			switch s.strategy {
			case KeyField:
				key, err := s.KeyOf(records[i])
				if err != nil {
					return nil, opError(op, fault.ErrInvalid, err)
				}
				out[i].key = key
			case KeyUUID:
				id, err := uuid.NewV7()
				if err != nil {
					return nil, opError(op, fault.ErrStorage, err)
				}
				out[i].key = codec.UUIDKey(id)
			}
		}

		payload, err := s.typed.Encode(out[i].key, records[i])
		if err != nil {
			return nil, opError(op, fault.ErrCodec, err)
		}
		out[i].payload = payload
	}

	return out, nil
}

// Create stores r under a new key and indexes it. When the row is stored
// but the index commit fails, the key is returned with the unsynced error
// so it can be passed to Reindex.
func (s *Store[T]) Create(r T) (codec.Key, error) {
	keys, err := s.create("create", []T{r})
	if len(keys) == 0 {
		return "", err
	}
	return keys[0], err
}

// CreateMulti stores all records in one tree transaction and makes them
// searchable with one index commit. If the tree transaction fails none of
// the records is stored. If only the index commit fails, the stored keys
// are returned with the unsynced error.
func (s *Store[T]) CreateMulti(records []T) ([]codec.Key, error) {
	return s.create("create_multi", records)
}

func (s *Store[T]) create(op string, records []T) (keys []codec.Key, err error) {
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return []codec.Key{}, nil
	}

	items, err := s.prepare(op, records, true)
	if err != nil {
		return nil, err
	}

	if s.strategy != KeyAuto {
		seen := make(map[codec.Key]struct{}, len(items))
		for _, it := range items {
			if _, dup := seen[it.key]; dup {
				return nil, opError(op, fault.ErrInvalid, fmt.Errorf("%w: duplicate key in batch", fault.ErrKeyExists), it.key)
			}
			seen[it.key] = struct{}{}
		}
	}

	w, err := s.begin()
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	undo, err := s.tree.Update(func(tx *store.Tx) error {
		for i := range items {
			if s.strategy == KeyAuto {
				seq, err := tx.NextSequence()
				if err != nil {
					return err
				}
				items[i].key = codec.Uint64Key(seq)
			} else if tx.Exists(items[i].key) {
				return opError(op, fault.ErrInvalid, fault.ErrKeyExists, items[i].key)
			}

			if err := tx.Put(items[i].key, items[i].payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, opError(op, fault.ErrStorage, err)
	}

	keys = make([]codec.Key, len(items))
	for i, it := range items {
		keys[i] = it.key
		if err := w.Add(it.key, it.doc); err != nil {
			return nil, s.rollback(op, undo, err)
		}
	}

	if err := s.commit(op, w, keys); err != nil {
		return keys, err
	}

	s.logger.Debug("Store.Create() - created", "op", op, "count", len(keys))

	return keys, nil
}

// Update replaces the record under key. The key must exist. With KeyField
// the record's primary key must match key.
func (s *Store[T]) Update(key codec.Key, r T) error {
	return s.update("update", []Document[T]{{Key: key, Record: r}})
}

// UpdateMulti replaces several records in one tree transaction and one
// index commit. Either all keys exist and every record is replaced, or
// nothing changes.
func (s *Store[T]) UpdateMulti(docs []Document[T]) error {
	return s.update("update_multi", docs)
}

func (s *Store[T]) update(op string, docs []Document[T]) (err error) {
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return err
	}
	if len(docs) == 0 {
		return nil
	}

	records := make([]T, len(docs))
	for i, d := range docs {
		if d.Key == "" {
			return opError(op, fault.ErrInvalid, fault.ErrEmptyKey)
		}
		records[i] = d.Record
	}

	items, err := s.prepare(op, records, false)
	if err != nil {
		return err
	}

	keys := make([]codec.Key, len(docs))
	for i, d := range docs {
		items[i].key = d.Key
		keys[i] = d.Key

		if s.strategy == KeyField {
			rk, err := s.KeyOf(d.Record)
			if err != nil {
				return opError(op, fault.ErrInvalid, err, d.Key)
			}
			if rk != d.Key {
				return opError(op, fault.ErrInvalid, fault.ErrKeyMismatch, d.Key)
			}
		}
	}

	w, err := s.begin()
	if err != nil {
		return opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	undo, err := s.tree.Update(func(tx *store.Tx) error {
		for _, it := range items {
			if !tx.Exists(it.key) {
				return opError(op, fault.ErrNotFound, fault.ErrKeyNotFound, it.key)
			}
			if err := tx.Put(it.key, it.payload); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return opError(op, fault.ErrStorage, err)
	}

	for _, it := range items {
		w.DeleteByKey(it.key)
		if err := w.Add(it.key, it.doc); err != nil {
			return s.rollback(op, undo, err)
		}
	}

	return s.commit(op, w, keys)
}

// Delete removes the record under key and its index document. Deleting an
// absent key succeeds; an index document left without a row is still
// removed.
func (s *Store[T]) Delete(key codec.Key) error {
	return s.delete("delete", []codec.Key{key})
}

// DeleteMulti removes several records in one tree transaction and one
// index commit. Absent keys are ignored in the tree and deleted from the
// index.
func (s *Store[T]) DeleteMulti(keys []codec.Key) error {
	return s.delete("delete_multi", keys)
}

func (s *Store[T]) delete(op string, keys []codec.Key) (err error) {
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return err
	}
	for _, k := range keys {
		if k == "" {
			return opError(op, fault.ErrInvalid, fault.ErrEmptyKey)
		}
	}
	if len(keys) == 0 {
		return nil
	}

	w, err := s.begin()
	if err != nil {
		return opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	deleted := 0
	_, err = s.tree.Update(func(tx *store.Tx) error {
		for _, k := range keys {
			existed, err := tx.Delete(k)
			if err != nil {
				return err
			}
			if existed {
				deleted++
			}
		}
		return nil
	})
	if err != nil {
		return opError(op, fault.ErrStorage, err)
	}

	for _, k := range keys {
		w.DeleteByKey(k)
	}

	s.logger.Debug("Store.Delete() - deleted", "op", op, "rows", deleted, "keys", len(keys))

	return s.commit(op, w, keys)
}

// commit makes the staged index mutations visible. A failure leaves the
// tree rows of keys without matching index documents; it is reported as an
// unsynced index error.
func (s *Store[T]) commit(op string, w indexWriter, keys []codec.Key) error {
	res, err := w.Commit()
	if err != nil {
		ids := codec.DocIDs(keys)
		s.stats.unsynced.Add(uint64(len(keys)))
		metrics.UnsyncedKeys.WithLabelValues(s.schema.Tree()).Add(float64(len(keys)))
		s.logger.Error("Store - index commit failed, tree rows are not indexed", "op", op, "keys", ids, "err", err)
		return fault.Unsynced(op, cause(err), ids...)
	}

	s.stats.commits.Add(1)
	s.logger.Debug("Store - committed", "op", op, "generation", res.Generation, "adds", res.Adds, "deletes", res.Deletes)
	return nil
}

// rollback undoes a tree update whose index mutations could not be staged.
func (s *Store[T]) rollback(op string, undo *store.Undo, stageErr error) error {
	keys := undo.Keys()
	s.stats.rollbacks.Add(1)

	if err := s.tree.Revert(undo); err != nil {
		ids := codec.DocIDs(keys)
		s.stats.unsynced.Add(uint64(len(keys)))
		metrics.UnsyncedKeys.WithLabelValues(s.schema.Tree()).Add(float64(len(keys)))
		s.logger.Error("Store - rollback failed, tree rows are not indexed", "op", op, "keys", ids, "err", err)
		return fault.Unsynced(op, errors.Join(cause(stageErr), err), ids...)
	}

	s.logger.Warn("Store - index staging failed, tree update reverted", "op", op, "keys", len(keys), "err", stageErr)
	return opError(op, fault.ErrIndex, stageErr, keys...)
}

func (s *Store[T]) ensureOpen(op string) error {
	if s.closed.Load() {
		return opError(op, fault.ErrInvalid, fault.ErrClosed)
	}
	return nil
}

func (s *Store[T]) observe(op string, err *error) {
	metrics.Operations.WithLabelValues(s.schema.Tree(), op, metrics.Result(*err)).Inc()
}

// opError reports err as a failure of op. An error already classified
// keeps its kind and cause.
func opError(op string, kind error, err error, keys ...codec.Key) error {
	var fErr *fault.Error
	if errors.As(err, &fErr) {
		c := *fErr
		c.Op = op
		if len(c.Keys) == 0 && len(keys) > 0 {
			c.Keys = codec.DocIDs(keys)
		}
		return &c
	}

	var ids []string
	if len(keys) > 0 {
		ids = codec.DocIDs(keys)
	}
	return &fault.Error{Op: op, Kind: kind, Keys: ids, Err: err}
}

// cause strips a *fault.Error wrapper.
func cause(err error) error {
	var fErr *fault.Error
	if errors.As(err, &fErr) && fErr.Err != nil {
		return fErr.Err
	}
	return err
}
