package docstore

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guyvdb/dsearch/codec"
	"github.com/guyvdb/dsearch/fault"
	"github.com/guyvdb/dsearch/index"
	"github.com/guyvdb/dsearch/metrics"
	"github.com/guyvdb/dsearch/query"
)

// Hit is one hydrated search result.
type Hit[T any] struct {
	Key    codec.Key
	Score  float64
	Record T
}

// Results is one page of a search.
type Results[T any] struct {
	// Total is the number of matching documents before pagination.
	Total uint64

	// Hits are in rank order.
	Hits []Hit[T]

	// Missing lists hits of this page whose tree row was gone. They are
	// left out of Hits.
	Missing []codec.Key

	// Generation is the index commit the search ran against.
	Generation uint64
}

// Records returns the records of the hits in rank order.
func (r *Results[T]) Records() []T {
	out := make([]T, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Record
	}
	return out
}

// Keys returns the keys of the hits in rank order.
func (r *Results[T]) Keys() []codec.Key {
	out := make([]codec.Key, len(r.Hits))
	for i, h := range r.Hits {
		out[i] = h.Key
	}
	return out
}

type searchOptions struct {
	limit  int
	offset int
	fields []string
}

// SearchOption adjusts a search.
type SearchOption func(*searchOptions)

// WithLimit caps the number of hits. Zero or less returns all of them.
func WithLimit(n int) SearchOption {
	return func(o *searchOptions) { o.limit = n }
}

// WithOffset skips the first n ranked hits.
func WithOffset(n int) SearchOption {
	return func(o *searchOptions) { o.offset = n }
}

// WithFields replaces the default search fields for bare terms.
func WithFields(fields ...string) SearchOption {
	return func(o *searchOptions) { o.fields = fields }
}

// Search runs a query string and returns the matching records in rank
// order. A malformed query is a fault.ErrQuery error naming the offending
// token. Hits whose record is missing from the tree are skipped and
// reported in Results.Missing.
func (s *Store[T]) Search(ctx context.Context, q string, opts ...SearchOption) (res *Results[T], err error) {
	const op = "search"
	defer s.observe(op, &err)

	if err := s.ensureOpen(op); err != nil {
		return nil, err
	}

	var o searchOptions
	for _, opt := range opts {
		opt(&o)
	}
	if o.offset < 0 {
		return nil, opError(op, fault.ErrInvalid, errNegativeOffset)
	}

	bq, err := query.Parse(q, s.schema, o.fields...)
	if err != nil {
		return nil, opError(op, fault.ErrQuery, err)
	}

	start := time.Now()
	snap := s.index.Reader()
	page, err := snap.Search(ctx, bq, o.limit, o.offset)
	if err != nil {
		return nil, opError(op, fault.ErrIndex, err)
	}

	res, err = s.hydrate(ctx, page.Hits)
	if err != nil {
		return nil, opError(op, fault.ErrStorage, err)
	}
	res.Total = page.Total
	res.Generation = snap.Generation()

	s.logger.Debug("Store.Search() - searched", "query", q, "total", page.Total, "hits", len(res.Hits), "missing", len(res.Missing), "elapsed", time.Since(start))

	return res, nil
}

// hydrate reads the tree rows of hits in one read transaction and decodes
// them in parallel, keeping rank order.
func (s *Store[T]) hydrate(ctx context.Context, hits []index.Hit) (*Results[T], error) {
	keys := make([]codec.Key, len(hits))
	for i, h := range hits {
		keys[i] = h.Key
	}

	raw, err := s.tree.GetMulti(keys)
	if err != nil {
		return nil, err
	}

	records := make([]T, len(hits))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i := range raw {
		if raw[i] == nil {
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			v, err := s.typed.Decode(keys[i], raw[i])
			if err != nil {
				return err
			}
			records[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	res := &Results[T]{Hits: make([]Hit[T], 0, len(hits))}
	for i, h := range hits {
		if raw[i] == nil {
			res.Missing = append(res.Missing, h.Key)
			continue
		}
		res.Hits = append(res.Hits, Hit[T]{Key: h.Key, Score: h.Score, Record: records[i]})
	}

	if n := len(res.Missing); n > 0 {
		s.stats.gaps.Add(uint64(n))
		metrics.HydrationGaps.WithLabelValues(s.schema.Tree()).Add(float64(n))
		s.logger.Warn("Store.Search() - indexed documents missing from tree", "keys", codec.DocIDs(res.Missing))
	}

	return res, nil
}

var errNegativeOffset = errors.New("negative offset")
