package search

import (
	"context"
	"fmt"
	"iter"

	"github.com/blevesearch/bleve/v2"
	blevesearch "github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"
)

// Request is a compiled query plus ordering and a starting offset.
type Request struct {
	Query  query.Query
	Sort   blevesearch.SortOrder
	Offset int
}

// Hits is the outcome of a search: the size of the full match set and a
// lazy, forward-only sequence of matching ids in the requested order,
// starting at the request offset. Further batches are fetched from the
// index only as the sequence is consumed.
type Hits struct {
	Total int
	IDs   iter.Seq2[string, error]
}

// Search runs req. The first batch is fetched eagerly to learn the total.
func (x *Index) Search(ctx context.Context, req Request) (*Hits, error) {
	if req.Offset < 0 {
		req.Offset = 0
	}

	first, err := x.searchBatch(ctx, req, req.Offset)
	if err != nil {
		return nil, err
	}

	batchSize := x.opts.BatchSize
	ids := func(yield func(string, error) bool) {
		res := first
		from := req.Offset
		for {
			for _, hit := range res.Hits {
				if !yield(hit.ID, nil) {
					return
				}
			}
			from += len(res.Hits)
			if len(res.Hits) < batchSize || uint64(from) >= res.Total {
				return
			}

			next, err := x.searchBatch(ctx, req, from)
			if err != nil {
				yield("", err)
				return
			}
			res = next
		}
	}

	return &Hits{Total: int(first.Total), IDs: ids}, nil
}

func (x *Index) searchBatch(ctx context.Context, req Request, from int) (*bleve.SearchResult, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.closed {
		return nil, ErrIndexClosed
	}

	sr := bleve.NewSearchRequestOptions(req.Query, x.opts.BatchSize, from, false)
	if len(req.Sort) > 0 {
		sr.SortByCustom(req.Sort)
	}

	res, err := x.index.SearchInContext(ctx, sr)
	if err != nil {
		return nil, fmt.Errorf("bleve search failed: %w", err)
	}
	return res, nil
}
