package trakt

import (
	"context"

	"github.com/waabox/watchsweep/internal/domain"
)

// HistoryIterator walks a HistorySource page by page, fetching each page only when needed.
// Once exhausted or failed it stays that way; create a new iterator to start over.
type HistoryIterator struct {
	ctx   context.Context
	src   domain.HistorySource
	query domain.HistoryQuery

	page      int
	pageCount int
	buf       []domain.WatchedEpisode
	cur       domain.WatchedEpisode
	err       error
	done      bool
}

// Ensure HistoryIterator implements domain.HistoryIterator.
var _ domain.HistoryIterator = (*HistoryIterator)(nil)

// NewHistoryIterator creates an iterator over src for query. No request is made until Next.
func NewHistoryIterator(ctx context.Context, src domain.HistorySource, query domain.HistoryQuery) *HistoryIterator {
	return &HistoryIterator{ctx: ctx, src: src, query: query}
}

// Next advances to the next watched episode.
func (it *HistoryIterator) Next() bool {
	for len(it.buf) == 0 {
		if it.done {
			return false
		}
		if it.page > 0 && it.page >= it.pageCount {
			it.done = true
			return false
		}
		p, err := it.src.HistoryPage(it.ctx, it.query, it.page+1)
		if err != nil {
			it.err = err
			it.done = true
			return false
		}
		it.page++
		it.pageCount = p.PageCount
		it.buf = p.Episodes
	}
	it.cur = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Episode returns the episode Next advanced to.
func (it *HistoryIterator) Episode() domain.WatchedEpisode {
	return it.cur
}

// Err returns the error that ended iteration, if any.
func (it *HistoryIterator) Err() error {
	return it.err
}
