package store

import (
	"errors"
	"fmt"
	"log/slog"

	"go.etcd.io/bbolt"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
)

// Tree is one named bucket of a bbolt database: an ordered map from
// encoded keys to record bytes.
type Tree struct {
	db   *bbolt.DB
	name []byte
}

// OpenTree returns the tree called name, creating its bucket if needed.
// The database handle stays owned by the caller.
func OpenTree(db *bbolt.DB, name string) (*Tree, error) {
	if db == nil {
		return nil, fault.ErrNilDB
	}
	if name == "" {
		return nil, fault.ErrMissingTreeName
	}

	slog.Debug("OpenTree - open bolt bucket", "tree", name, "path", db.Path())

	t := &Tree{db: db, name: []byte(name)}

	var exists bool
	err := db.View(func(tx *bbolt.Tx) error {
		exists = tx.Bucket(t.name) != nil
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read bucket %s: %w", name, err)
	}
	if exists {
		return t, nil
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(t.name)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", fault.ErrBucketCreateFailed, name, err)
	}

	return t, nil
}

// Name returns the bucket name.
func (t *Tree) Name() string {
	return string(t.name)
}

// Get returns a copy of the value stored under key.
func (t *Tree) Get(key codec.Key) ([]byte, bool, error) {
	var out []byte

	err := t.view(func(b *bbolt.Bucket) error {
		if v := b.Get([]byte(key)); v != nil {
			out = append([]byte{}, v...)
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return out, out != nil, nil
}

// GetMulti reads all keys in one read transaction. The result has one
// entry per key, in the same order; absent keys yield nil.
func (t *Tree) GetMulti(keys []codec.Key) ([][]byte, error) {
	out := make([][]byte, len(keys))

	err := t.view(func(b *bbolt.Bucket) error {
		for i, k := range keys {
			if v := b.Get([]byte(k)); v != nil {
				out[i] = append([]byte{}, v...)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return out, nil
}

// Exists checks if a value is stored under key.
func (t *Tree) Exists(key codec.Key) (bool, error) {
	var exists bool

	err := t.view(func(b *bbolt.Bucket) error {
		exists = b.Get([]byte(key)) != nil
		return nil
	})

	return exists, err
}

// Len counts the keys in the tree.
func (t *Tree) Len() (int, error) {
	var n int

	err := t.view(func(b *bbolt.Bucket) error {
		n = b.Stats().KeyN
		return nil
	})

	return n, err
}

// Sequence returns the last value handed out by Tx.NextSequence.
func (t *Tree) Sequence() (uint64, error) {
	var seq uint64

	err := t.view(func(b *bbolt.Bucket) error {
		seq = b.Sequence()
		return nil
	})

	return seq, err
}

// Scan calls fn for every entry with a key >= from, in key order, inside
// one read transaction. An empty from starts at the first key. fn receives
// a copy of the value and must not write to the database. Returning
// ErrStopScan from fn ends the scan without error.
func (t *Tree) Scan(from codec.Key, fn func(key codec.Key, value []byte) error) error {
	err := t.view(func(b *bbolt.Bucket) error {
		c := b.Cursor()

		var k, v []byte
		if from == "" {
			k, v = c.First()
		} else {
			k, v = c.Seek([]byte(from))
		}

		for ; k != nil; k, v = c.Next() {
			if v == nil {
				// nested bucket
				continue
			}
			if err := fn(codec.Key(k), append([]byte{}, v...)); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrStopScan) {
		return nil
	}
	return err
}

// ErrStopScan ends a Scan early.
var ErrStopScan = errors.New("stop scan")

// Update runs fn in one read-write transaction. Either every mutation made
// through tx is committed or none is. The returned Undo holds the values the
// mutated keys had before, for Revert.
//
// Errors returned by fn are passed through unchanged; failures of the
// transaction itself are storage errors.
func (t *Tree) Update(fn func(tx *Tx) error) (*Undo, error) {
	undo := &Undo{seen: make(map[codec.Key]struct{})}

	var fnErr error
	err := t.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(t.name)
		if b == nil {
			var err error
			if b, err = btx.CreateBucketIfNotExists(t.name); err != nil {
				return fmt.Errorf("%w: %w", fault.ErrBucketCreateFailed, err)
			}
		}

		fnErr = fn(&Tx{tree: t, b: b, undo: undo})
		return fnErr
	})

	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, fault.E("tree", fault.ErrStorage, err)
	}

	slog.Debug("Tree.Update() - committed", "tree", t.Name(), "mutations", len(undo.entries))

	return undo, nil
}

// Revert restores the values recorded in undo, newest first, in one
// transaction.
func (t *Tree) Revert(undo *Undo) error {
	if undo == nil || len(undo.entries) == 0 {
		return nil
	}

	err := t.db.Update(func(btx *bbolt.Tx) error {
		b := btx.Bucket(t.name)
		if b == nil {
			return fault.ErrBucketNotFound
		}

		for i := len(undo.entries) - 1; i >= 0; i-- {
			e := undo.entries[i]
			var err error
			if e.existed {
				err = b.Put([]byte(e.key), e.prior)
			} else {
				err = b.Delete([]byte(e.key))
			}
			if err != nil {
				return fmt.Errorf("revert %s: %w", e.key, err)
			}
		}
		return nil
	})
	if err != nil {
		return fault.E("revert", fault.ErrStorage, err)
	}

	slog.Debug("Tree.Revert() - reverted", "tree", t.Name(), "mutations", len(undo.entries))

	return nil
}

func (t *Tree) view(fn func(b *bbolt.Bucket) error) error {
	return t.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(t.name)
		if b == nil {
			return fault.E("tree", fault.ErrStorage, fmt.Errorf("%w: %s", fault.ErrBucketNotFound, t.name))
		}
		return fn(b)
	})
}

// Tx is the mutation handle passed to Tree.Update. It is only valid inside
// the Update callback.
type Tx struct {
	tree *Tree
	b    *bbolt.Bucket
	undo *Undo
}

// Get returns a copy of the value under key as seen by this transaction.
func (tx *Tx) Get(key codec.Key) ([]byte, bool) {
	v := tx.b.Get([]byte(key))
	if v == nil {
		return nil, false
	}
	return append([]byte{}, v...), true
}

// Exists reports whether key is present in this transaction.
func (tx *Tx) Exists(key codec.Key) bool {
	return tx.b.Get([]byte(key)) != nil
}

// Put stores value under key.
func (tx *Tx) Put(key codec.Key, value []byte) error {
	tx.record(key)

	if err := tx.b.Put([]byte(key), value); err != nil {
		return fault.E("put", fault.ErrStorage, fmt.Errorf("%w: %w", fault.ErrPutFailed, err), key.DocID())
	}
	return nil
}

// Delete removes key and reports whether it was present.
func (tx *Tx) Delete(key codec.Key) (bool, error) {
	if tx.b.Get([]byte(key)) == nil {
		return false, nil
	}

	tx.record(key)

	if err := tx.b.Delete([]byte(key)); err != nil {
		return false, fault.E("delete", fault.ErrStorage, fmt.Errorf("%w: %w", fault.ErrDeleteFailed, err), key.DocID())
	}
	return true, nil
}

// NextSequence returns the next value of the tree's auto-increment counter.
// The counter is stored in the bucket and committed with the transaction,
// so values are never handed out twice across restarts.
func (tx *Tx) NextSequence() (uint64, error) {
	seq, err := tx.b.NextSequence()
	if err != nil {
		return 0, fault.E("sequence", fault.ErrStorage, fmt.Errorf("%w: %w", fault.ErrSequenceFailed, err))
	}
	return seq, nil
}

func (tx *Tx) record(key codec.Key) {
	if _, ok := tx.undo.seen[key]; ok {
		return
	}
	tx.undo.seen[key] = struct{}{}

	prior, existed := tx.Get(key)
	tx.undo.entries = append(tx.undo.entries, undoEntry{key: key, prior: prior, existed: existed})
}

// Undo is the set of prior values of the keys an Update touched.
type Undo struct {
	entries []undoEntry
	seen    map[codec.Key]struct{}
}

type undoEntry struct {
	key     codec.Key
	prior   []byte
	existed bool
}

// Keys lists the touched keys in the order they were first touched.
func (u *Undo) Keys() []codec.Key {
	if u == nil {
		return nil
	}
	out := make([]codec.Key, len(u.entries))
	for i, e := range u.entries {
		out[i] = e.key
	}
	return out
}
