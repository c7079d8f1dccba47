package docstore

import (
	"context"
	"slices"
	"sync/atomic"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/metrics"
)

type counters struct {
	gaps      atomic.Uint64
	unsynced  atomic.Uint64
	commits   atomic.Uint64
	rollbacks atomic.Uint64
}

// Stats is a diagnostics snapshot of a store.
type Stats struct {
	Tree string

	// Generation is the last index commit.
	Generation uint64

	Commits uint64

	// HydrationGaps counts search hits skipped because their record was
	// missing from the tree.
	HydrationGaps uint64

	// UnsyncedKeys counts keys written to the tree whose index commit
	// failed. Reindex repairs them.
	UnsyncedKeys uint64

	// Rollbacks counts tree updates reverted after index staging failed.
	Rollbacks uint64
}

// Stats returns the store's counters since it was opened.
func (s *Store[T]) Stats() Stats {
	return Stats{
		Tree:          s.schema.Tree(),
		Generation:    s.index.Generation(),
		Commits:       s.stats.commits.Load(),
		HydrationGaps: s.stats.gaps.Load(),
		UnsyncedKeys:  s.stats.unsynced.Load(),
		Rollbacks:     s.stats.rollbacks.Load(),
	}
}

// ReindexReport summarizes a Reindex call.
type ReindexReport struct {
	// Indexed documents were (re)added from their tree rows.
	Indexed int

	// Removed documents had no tree row.
	Removed int

	// Failed keys hold records that could not be decoded or projected.
	Failed []codec.Key
}

// Reindex rebuilds index documents from the tree. With keys, exactly those
// keys are re-synced: present rows are re-added and absent ones removed
// from the index. Without keys every row is re-added, in chunks, and index
// documents without a row are removed.
//
// Writes wait for Reindex to finish.
func (s *Store[T]) Reindex(ctx context.Context, keys ...codec.Key) (rep *ReindexReport, err error) {
	const op = "reindex"
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		return s.reindexAll(ctx, op)
	}

	w, err := s.begin()
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	raw, err := s.tree.GetMulti(keys)
	if err != nil {
		return nil, opError(op, fault.ErrStorage, err)
	}

	rep = &ReindexReport{}
	for i, k := range keys {
		if raw[i] == nil {
			w.DeleteByKey(k)
			rep.Removed++
			continue
		}
		s.stage(w, k, raw[i], rep)
	}

	if err := s.commit(op, w, keys); err != nil {
		return nil, err
	}
	s.countReindex(rep)

	return rep, nil
}

func (s *Store[T]) reindexAll(ctx context.Context, op string) (*ReindexReport, error) {
	w, err := s.begin()
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	rep := &ReindexReport{}
	var chunk []codec.Key

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := s.commit(op, w, chunk); err != nil {
			return err
		}
		chunk = chunk[:0]
		return nil
	}

	err = s.tree.Scan("", func(key codec.Key, data []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if s.stage(w, key, data, rep) {
			chunk = append(chunk, key)
		}
		if len(chunk) >= s.chunk {
			return flush()
		}
		return nil
	})
	if err != nil {
		return nil, opError(op, fault.ErrStorage, err)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	// documents whose row is gone
	var orphans []codec.Key
	err = s.index.ForEachKey(ctx, func(key codec.Key) error {
		ok, err := s.tree.Exists(key)
		if err != nil {
			return err
		}
		if !ok {
			orphans = append(orphans, key)
		}
		return nil
	})
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}

	for _, k := range orphans {
		w.DeleteByKey(k)
	}
	rep.Removed = len(orphans)
	if len(orphans) > 0 {
		if err := s.commit(op, w, orphans); err != nil {
			return nil, err
		}
	}

	s.countReindex(rep)
	s.logger.Info("Store.Reindex() - done", "indexed", rep.Indexed, "removed", rep.Removed, "failed", len(rep.Failed))

	return rep, nil
}

// stage decodes one row and adds its index document. Rows that cannot be
// decoded or projected are recorded in rep and skipped.
func (s *Store[T]) stage(w indexWriter, key codec.Key, data []byte, rep *ReindexReport) bool {
	v, err := s.typed.Decode(key, data)
	if err == nil {
		var doc map[string]any
		if doc, err = s.schema.Extract(&v); err == nil {
			err = w.Add(key, doc)
		}
	}
	if err != nil {
		s.logger.Warn("Store.Reindex() - skipping row", "key", key.DocID(), "err", err)
		rep.Failed = append(rep.Failed, key)
		return false
	}
	rep.Indexed++
	return true
}

func (s *Store[T]) countReindex(rep *ReindexReport) {
	tree := s.schema.Tree()
	metrics.Reindexed.WithLabelValues(tree, "indexed").Add(float64(rep.Indexed))
	metrics.Reindexed.WithLabelValues(tree, "removed").Add(float64(rep.Removed))
	metrics.Reindexed.WithLabelValues(tree, "failed").Add(float64(len(rep.Failed)))
}

// SyncReport compares the tree with the index.
type SyncReport struct {
	TreeCount  int
	IndexCount int

	// Missing keys have a tree row but no index document.
	Missing []codec.Key

	// Orphaned keys have an index document but no tree row.
	Orphaned []codec.Key
}

// InSync reports whether tree and index hold the same keys.
func (r *SyncReport) InSync() bool {
	return len(r.Missing) == 0 && len(r.Orphaned) == 0
}

// Keys returns every key that needs a Reindex.
func (r *SyncReport) Keys() []codec.Key {
	out := make([]codec.Key, 0, len(r.Missing)+len(r.Orphaned))
	out = append(out, r.Missing...)
	return append(out, r.Orphaned...)
}

// Check compares the keys in the tree with the keys in the index. It holds
// the index writer so no write interleaves.
func (s *Store[T]) Check(ctx context.Context) (rep *SyncReport, err error) {
	const op = "check"
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return nil, err
	}

	w, err := s.begin()
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}
	defer w.Release()

	indexed := make(map[codec.Key]struct{})
	err = s.index.ForEachKey(ctx, func(key codec.Key) error {
		indexed[key] = struct{}{}
		return nil
	})
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}

	rep = &SyncReport{IndexCount: len(indexed)}
	err = s.tree.Scan("", func(key codec.Key, _ []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		rep.TreeCount++
		if _, ok := indexed[key]; ok {
			delete(indexed, key)
			return nil
		}
		rep.Missing = append(rep.Missing, key)
		return nil
	})
	if err != nil {
		return nil, opError(op, fault.ErrStorage, err)
	}

	for k := range indexed {
		rep.Orphaned = append(rep.Orphaned, k)
	}
	slices.Sort(rep.Orphaned)

	return rep, nil
}

// Close releases the index and the index directory. The bbolt database
// stays open; it belongs to the caller.
func (s *Store[T]) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.index.Close()

	s.registry.ReleaseIndexDir(s.indexDir, s.owner)
	s.registry.Unregister(s.dbPath, s.schema.Tree())

	s.logger.Debug("Store.Close() - closed", "generation", s.index.Generation())

	if err != nil {
		return opError("close", fault.ErrIndex, err)
	}
	return nil
}
