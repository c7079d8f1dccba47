package index

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"

	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/schema"
)

// Files bleve creates in the index directory.
const (
	indexMetaFile = "index_meta.json"
	indexStoreDir = "store"
)

// Internal (non-document) keys kept in the bleve index.
var (
	internalGeneration  = []byte("_gen")
	internalFingerprint = []byte("_schema")
)

// Manager owns the bleve index of one tree. It allows any number of
// concurrent readers and a single writer at a time.
type Manager struct {
	dir    string
	schema *schema.Schema
	logger *slog.Logger

	writer sync.Mutex // held from Begin until Release

	mu     sync.RWMutex // guards idx and closed
	idx    bleve.Index
	closed bool

	generation atomic.Uint64
	rebuilt    bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// Open opens the index in dir, creating it from the schema mapping when
// dir holds no index. An index built for a different schema fingerprint is
// dropped and recreated empty, leaving files in dir that bleve does not own;
// Rebuilt then reports true and the caller is expected to repopulate it.
func Open(dir string, s *schema.Schema, opts ...Option) (*Manager, error) {
	if dir == "" {
		return nil, fault.E("index.open", fault.ErrConfig, fault.ErrMissingIndexDir)
	}
	if s == nil {
		return nil, fault.E("index.open", fault.ErrConfig, errors.New("nil schema"))
	}

	m := &Manager{dir: dir, schema: s, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}

	idx, err := bleve.Open(dir)
	switch {
	case errors.Is(err, bleve.ErrorIndexPathDoesNotExist), errors.Is(err, bleve.ErrorIndexMetaMissing):
		m.logger.Debug("index.Open() - create index", "dir", dir, "tree", s.Tree())
		idx, err = m.create()
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, fault.E("index.open", fault.ErrIndex, fmt.Errorf("open %s: %w", dir, err))
	default:
		fp, err := idx.GetInternal(internalFingerprint)
		if err != nil {
			idx.Close()
			return nil, fault.E("index.open", fault.ErrIndex, err)
		}
		if len(fp) != 8 || decodeUint64(fp) != s.Fingerprint() {
			m.logger.Warn("index.Open() - schema changed, rebuilding index", "dir", dir, "tree", s.Tree())
			idx.Close()
			if err := removeIndex(dir); err != nil {
				return nil, fault.E("index.open", fault.ErrIndex, err)
			}
			idx, err = m.create()
			if err != nil {
				return nil, err
			}
			m.rebuilt = true
		}
	}

	gen, err := idx.GetInternal(internalGeneration)
	if err != nil {
		idx.Close()
		return nil, fault.E("index.open", fault.ErrIndex, err)
	}
	m.generation.Store(decodeUint64(gen))
	m.idx = idx

	m.logger.Debug("index.Open() - opened", "dir", dir, "tree", s.Tree(), "generation", m.generation.Load(), "rebuilt", m.rebuilt)

	return m, nil
}

func (m *Manager) create() (bleve.Index, error) {
	idx, err := bleve.New(m.dir, m.schema.Mapping())
	if err != nil {
		return nil, fault.E("index.open", fault.ErrIndex, fmt.Errorf("create %s: %w", m.dir, err))
	}
	if err := idx.SetInternal(internalFingerprint, encodeUint64(m.schema.Fingerprint())); err != nil {
		idx.Close()
		return nil, fault.E("index.open", fault.ErrIndex, err)
	}
	return idx, nil
}

// Dir returns the index directory.
func (m *Manager) Dir() string { return m.dir }

// Rebuilt reports whether Open discarded an index built for another schema.
func (m *Manager) Rebuilt() bool { return m.rebuilt }

// Generation is the number of commits applied to the index.
func (m *Manager) Generation() uint64 { return m.generation.Load() }

// DocCount returns the number of indexed documents.
func (m *Manager) DocCount() (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, fault.E("index.count", fault.ErrIndex, fault.ErrClosed)
	}

	n, err := m.idx.DocCount()
	if err != nil {
		return 0, fault.E("index.count", fault.ErrIndex, err)
	}
	return n, nil
}

// Close waits for the active writer to be released and closes the index.
func (m *Manager) Close() error {
	m.writer.Lock()
	defer m.writer.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.idx.Close(); err != nil {
		return fault.E("index.close", fault.ErrIndex, err)
	}
	m.logger.Debug("index.Close() - closed", "dir", m.dir, "generation", m.generation.Load())
	return nil
}

// removeIndex deletes the files bleve keeps in dir. Anything else in dir is
// left alone; the directory may be shared with the database.
func removeIndex(dir string) error {
	if err := os.Remove(filepath.Join(dir, indexMetaFile)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.RemoveAll(filepath.Join(dir, indexStoreDir))
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

func decodeUint64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}
