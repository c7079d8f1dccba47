package docstore

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"

	"go.etcd.io/bbolt"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/index"
	"github.com/guyvdb/dsearch/schema"
	"github.com/guyvdb/dsearch/store"
	"github.com/guyvdb/dsearch/types"
)

// KeyStrategy decides how Create assigns primary keys.
type KeyStrategy int

const (
	// KeyAuto takes the next value of the tree's persisted counter.
	KeyAuto KeyStrategy = iota + 1
	// KeyField reads the schema's primary key field.
	KeyField
	// KeyUUID generates a time-ordered UUIDv7.
	KeyUUID
)

func (k KeyStrategy) String() string {
	switch k {
	case KeyAuto:
		return "auto"
	case KeyField:
		return "field"
	case KeyUUID:
		return "uuid"
	}
	return fmt.Sprintf("KeyStrategy(%d)", int(k))
}

const (
	defaultHydrationWorkers = 4
	defaultReindexChunk     = 512
)

// Builder configures and opens a Store.
//
//	s, err := docstore.NewBuilder[Book]().
//	    WithDB(db).
//	    WithIndexDir(dir).
//	    Finish()
type Builder[T any] struct {
	db       *bbolt.DB
	indexDir string
	tree     string
	strategy KeyStrategy
	codec    codec.Codec
	schema   *schema.Schema
	logger   *slog.Logger
	registry types.Registry
	workers  int
	chunk    int
}

// NewBuilder starts the configuration of a store for records of type T.
func NewBuilder[T any]() *Builder[T] {
	return &Builder[T]{}
}

// WithDB sets the bbolt database holding the tree. The caller keeps
// ownership of the handle.
func (b *Builder[T]) WithDB(db *bbolt.DB) *Builder[T] {
	b.db = db
	return b
}

// WithIndexDir sets the directory of the search index.
func (b *Builder[T]) WithIndexDir(dir string) *Builder[T] {
	b.indexDir = dir
	return b
}

// WithTreeName overrides the tree name taken from the schema.
func (b *Builder[T]) WithTreeName(name string) *Builder[T] {
	b.tree = name
	return b
}

// WithKeyStrategy selects how keys are assigned. Defaults to KeyField when
// the schema has a primary key, KeyAuto otherwise.
func (b *Builder[T]) WithKeyStrategy(k KeyStrategy) *Builder[T] {
	b.strategy = k
	return b
}

// WithCodec sets the record codec. Defaults to codec.JSON.
func (b *Builder[T]) WithCodec(c codec.Codec) *Builder[T] {
	b.codec = c
	return b
}

// WithSchema uses s instead of deriving the schema from T's struct tags.
func (b *Builder[T]) WithSchema(s *schema.Schema) *Builder[T] {
	b.schema = s
	return b
}

// WithLogger sets the logger. Defaults to slog.Default().
func (b *Builder[T]) WithLogger(l *slog.Logger) *Builder[T] {
	b.logger = l
	return b
}

// WithRegistry replaces the process-wide registry.
func (b *Builder[T]) WithRegistry(r types.Registry) *Builder[T] {
	b.registry = r
	return b
}

// WithHydrationWorkers bounds the number of records decoded in parallel
// per search.
func (b *Builder[T]) WithHydrationWorkers(n int) *Builder[T] {
	b.workers = n
	return b
}

// WithReindexChunk sets how many documents a full reindex commits at once.
func (b *Builder[T]) WithReindexChunk(n int) *Builder[T] {
	b.chunk = n
	return b
}

// Finish validates the configuration and opens the store. Configuration
// problems are reported as fault.ErrConfig.
func (b *Builder[T]) Finish() (*Store[T], error) {
	const op = "open"

	if b.db == nil {
		return nil, fault.E(op, fault.ErrConfig, fault.ErrMissingDB)
	}
	if b.indexDir == "" {
		return nil, fault.E(op, fault.ErrConfig, fault.ErrMissingIndexDir)
	}

	s, err := b.resolveSchema()
	if err != nil {
		return nil, err
	}

	strategy := b.strategy
	_, hasPK := s.PrimaryKey()
	switch {
	case strategy == 0 && hasPK:
		strategy = KeyField
	case strategy == 0:
		strategy = KeyAuto
	case strategy == KeyField && !hasPK:
		return nil, fault.E(op, fault.ErrConfig, fault.ErrNoPrimaryKey)
	case strategy < KeyAuto || strategy > KeyUUID:
		return nil, fault.E(op, fault.ErrConfig, fmt.Errorf("unknown key strategy %s", strategy))
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("tree", s.Tree())

	c := b.codec
	if c == nil {
		c = codec.JSON
	}

	registry := b.registry
	if registry == nil {
		registry = types.GetRegistry()
	}

	dbPath := b.db.Path()
	owner := dbPath + "#" + s.Tree()

	if _, err := registry.Register(dbPath, s); err != nil {
		return nil, fault.E(op, fault.ErrConfig, err)
	}
	if err := registry.ClaimIndexDir(b.indexDir, owner); err != nil {
		registry.Unregister(dbPath, s.Tree())
		return nil, fault.E(op, fault.ErrConfig, err)
	}

	release := func() {
		registry.ReleaseIndexDir(b.indexDir, owner)
		registry.Unregister(dbPath, s.Tree())
	}

	tree, err := store.OpenTree(b.db, s.Tree())
	if err != nil {
		release()
		return nil, fault.E(op, fault.ErrStorage, err)
	}

	mgr, err := index.Open(b.indexDir, s, index.WithLogger(logger))
	if err != nil {
		release()
		return nil, fault.E(op, fault.ErrIndex, err)
	}

	st := &Store[T]{
		schema:   s,
		tree:     tree,
		typed:    store.NewTyped[T](tree, c),
		index:    mgr,
		strategy: strategy,
		logger:   logger,
		registry: registry,
		dbPath:   dbPath,
		indexDir: b.indexDir,
		owner:    owner,
		workers:  positive(b.workers, defaultHydrationWorkers),
		chunk:    positive(b.chunk, defaultReindexChunk),
	}
	st.begin = func() (indexWriter, error) {
		w, err := mgr.Begin()
		if err != nil {
			return nil, err
		}
		return w, nil
	}

	if err := st.syncOnOpen(); err != nil {
		st.Close()
		return nil, err
	}

	logger.Debug("Builder.Finish() - store open", "index", b.indexDir, "keys", strategy.String(), "codec", c.Name(), "generation", mgr.Generation())

	return st, nil
}

func (b *Builder[T]) resolveSchema() (*schema.Schema, error) {
	var (
		s   *schema.Schema
		err error
	)

	if b.schema == nil {
		s, err = schema.Derive[T]()
	} else {
		s, err = b.schema.Bind(reflect.TypeFor[T]())
	}
	if err != nil {
		return nil, fault.E("open", fault.ErrConfig, err)
	}

	if b.tree != "" {
		if s, err = s.WithTree(b.tree); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// syncOnOpen repopulates an index that was recreated for a new schema or
// that never saw a commit while the tree already holds rows.
func (s *Store[T]) syncOnOpen() error {
	n, err := s.tree.Len()
	if err != nil {
		return fault.E("open", fault.ErrStorage, err)
	}
	if n == 0 || (!s.index.Rebuilt() && s.index.Generation() > 0) {
		return nil
	}

	s.logger.Info("Store - index out of date, reindexing from tree", "rows", n, "rebuilt", s.index.Rebuilt())

	if _, err := s.reindexAll(context.Background(), "open"); err != nil {
		return err
	}
	return nil
}

func positive(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
