package index

import (
	"context"
	"fmt"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
)

// keyPage is the page size used when walking every indexed key.
const keyPage = 1000

// Hit is one ranked match.
type Hit struct {
	Key   codec.Key
	Score float64
}

// Page is one window of a ranked result set. Total counts every match,
// not only the ones in Hits.
type Page struct {
	Total uint64
	Hits  []Hit
}

// Snapshot searches the index as of the latest commit. Commits are
// synchronous, so a snapshot taken after a write sees it.
type Snapshot struct {
	m          *Manager
	generation uint64
}

// Reader returns a snapshot for searching.
func (m *Manager) Reader() *Snapshot {
	return &Snapshot{m: m, generation: m.generation.Load()}
}

// Generation is the commit generation the snapshot was taken at.
func (s *Snapshot) Generation() uint64 { return s.generation }

// Search runs q and returns hits ordered by descending score, ties broken
// by key. limit <= 0 returns every hit from offset on.
func (s *Snapshot) Search(ctx context.Context, q query.Query, limit, offset int) (*Page, error) {
	m := s.m

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fault.E("index.search", fault.ErrIndex, fault.ErrClosed)
	}
	if offset < 0 {
		offset = 0
	}

	if limit <= 0 {
		n, err := m.idx.DocCount()
		if err != nil {
			return nil, fault.E("index.search", fault.ErrIndex, err)
		}
		limit = int(n) - offset
		if limit <= 0 {
			// still run the query to report Total
			limit = 0
		}
	}

	req := bleve.NewSearchRequestOptions(q, limit, offset, false)
	req.SortBy([]string{"-_score", "_id"})

	res, err := m.idx.SearchInContext(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fault.E("index.search", fault.ErrIndex, ctx.Err())
		}
		return nil, fault.E("index.search", fault.ErrIndex, err)
	}

	page := &Page{Total: res.Total, Hits: make([]Hit, 0, len(res.Hits))}
	for _, h := range res.Hits {
		key, err := codec.ParseDocID(h.ID)
		if err != nil {
			m.logger.Warn("Snapshot.Search() - foreign document id", "id", h.ID, "err", err)
			continue
		}
		page.Hits = append(page.Hits, Hit{Key: key, Score: h.Score})
	}

	return page, nil
}

// ForEachKey calls fn with every indexed key in document id order.
func (m *Manager) ForEachKey(ctx context.Context, fn func(key codec.Key) error) error {
	var after []string

	for {
		ids, err := m.keyPage(ctx, after)
		if err != nil {
			return err
		}

		for _, id := range ids {
			key, err := codec.ParseDocID(id)
			if err != nil {
				m.logger.Warn("Manager.ForEachKey() - foreign document id", "id", id, "err", err)
				continue
			}
			if err := fn(key); err != nil {
				return err
			}
		}

		if len(ids) < keyPage {
			return nil
		}
		after = []string{ids[len(ids)-1]}
	}
}

func (m *Manager) keyPage(ctx context.Context, after []string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, fault.E("index.keys", fault.ErrIndex, fault.ErrClosed)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), keyPage, 0, false)
	req.SortBy([]string{"_id"})
	if after != nil {
		req.SearchAfter = after
	}

	res, err := m.idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, fault.E("index.keys", fault.ErrIndex, fmt.Errorf("list keys: %w", err))
	}

	ids := make([]string, len(res.Hits))
	for i, h := range res.Hits {
		ids[i] = h.ID
	}
	return ids, nil
}
