package index

import (
	"time"

	"github.com/blevesearch/bleve/v2"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/metrics"
)

// Writer stages index mutations and applies them in one commit. Only one
// Writer exists at a time; it must be released.
type Writer struct {
	m        *Manager
	batch    *bleve.Batch
	adds     int
	deletes  int
	released bool
}

// CommitResult describes an applied commit.
type CommitResult struct {
	Generation uint64
	Adds       int
	Deletes    int
}

// Begin blocks until no other writer is active and returns a new one.
func (m *Manager) Begin() (*Writer, error) {
	m.writer.Lock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		m.writer.Unlock()
		return nil, fault.E("index.begin", fault.ErrIndex, fault.ErrClosed)
	}

	return &Writer{m: m, batch: m.idx.NewBatch()}, nil
}

// Add stages doc under key, replacing any document already indexed there.
func (w *Writer) Add(key codec.Key, doc map[string]any) error {
	if err := w.batch.Index(key.DocID(), doc); err != nil {
		return fault.E("index.add", fault.ErrIndex, err, key.DocID())
	}
	w.adds++
	return nil
}

// DeleteByKey stages the removal of the document under key. Removing a key
// that is not indexed is a no-op at commit.
func (w *Writer) DeleteByKey(key codec.Key) {
	w.batch.Delete(key.DocID())
	w.deletes++
}

// Pending is the number of staged operations.
func (w *Writer) Pending() int {
	return w.adds + w.deletes
}

// Commit applies every staged mutation atomically together with the next
// generation number. On failure nothing is applied and the staged batch is
// dropped.
func (w *Writer) Commit() (CommitResult, error) {
	m := w.m
	tree := m.schema.Tree()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		w.reset()
		metrics.IndexCommits.WithLabelValues(tree, "error").Inc()
		return CommitResult{}, fault.E("index.commit", fault.ErrIndex, fault.ErrClosed)
	}

	if w.Pending() == 0 {
		return CommitResult{Generation: m.generation.Load()}, nil
	}

	next := m.generation.Load() + 1
	w.batch.SetInternal(internalGeneration, encodeUint64(next))

	start := time.Now()
	err := m.idx.Batch(w.batch)
	metrics.IndexCommitDuration.WithLabelValues(tree).Observe(time.Since(start).Seconds())

	res := CommitResult{Generation: next, Adds: w.adds, Deletes: w.deletes}
	w.reset()

	if err != nil {
		metrics.IndexCommits.WithLabelValues(tree, "error").Inc()
		return CommitResult{}, fault.E("index.commit", fault.ErrIndex, err)
	}

	m.generation.Store(next)
	metrics.IndexCommits.WithLabelValues(tree, "ok").Inc()

	m.logger.Debug("Writer.Commit() - committed", "tree", tree, "generation", next, "adds", res.Adds, "deletes", res.Deletes)

	return res, nil
}

// Release drops anything not committed and lets the next writer in. It is
// safe to call more than once.
func (w *Writer) Release() {
	if w.released {
		return
	}
	w.released = true
	w.reset()
	w.m.writer.Unlock()
}

func (w *Writer) reset() {
	w.batch.Reset()
	w.adds = 0
	w.deletes = 0
}
