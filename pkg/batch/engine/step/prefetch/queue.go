// Package prefetch keeps a bounded number of pages fetched ahead of the wave being processed.
package prefetch

import (
	"context"
	"sync"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/ledgerbatch/pkg/batch/core/metrics"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/ledgerbatch/pkg/batch/support/util/logger"
)

const moduleName = "prefetch"

// Queue is a bounded FIFO of pages backed by a buffered channel. It also owns the enumeration
// state: the highest identifier enqueued so far and whether the fetcher has run dry.
type Queue struct {
	fetcher   port.CursorFetcher
	recorder  metrics.MetricRecorder
	operation string
	pageSize  int
	pages     chan model.Page

	mu        sync.Mutex
	tail      model.AccountID
	exhausted bool
}

// NewQueue creates a Queue holding at most capacity pages.
func NewQueue(fetcher port.CursorFetcher, recorder metrics.MetricRecorder, operation string, pageSize, capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Queue{
		fetcher:   fetcher,
		recorder:  recorder,
		operation: operation,
		pageSize:  pageSize,
		pages:     make(chan model.Page, capacity),
	}
}

// Capacity returns the maximum number of queued pages.
func (q *Queue) Capacity() int {
	return cap(q.pages)
}

// Len returns the number of queued pages.
func (q *Queue) Len() int {
	return len(q.pages)
}

// Exhausted reports whether the fetcher has signalled the end of enumeration.
func (q *Queue) Exhausted() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.exhausted
}

// TryTake pops the oldest queued page without blocking.
func (q *Queue) TryTake() (model.Page, bool) {
	select {
	case p := <-q.pages:
		return p, true
	default:
		return nil, false
	}
}

// Fetch synchronously reads the page after cursor without enqueuing it.
func (q *Queue) Fetch(ctx context.Context, ec model.ExecutionContext, cursor model.AccountID) (model.Page, error) {
	return q.fetch(ctx, ec, cursor, false)
}

// Refill fetches pages with the queue's own running cursor until the queue is full or enumeration
// is exhausted. waveMax is the highest identifier of the wave in flight, used when nothing has been
// enqueued beyond it. Only one Refill may run at a time.
func (q *Queue) Refill(ctx context.Context, ec model.ExecutionContext, waveMax model.AccountID) (int, error) {
	added := 0
	for len(q.pages) < cap(q.pages) && !q.Exhausted() {
		q.mu.Lock()
		cursor := q.tail
		q.mu.Unlock()
		if waveMax > cursor {
			cursor = waveMax
		}

		page, err := q.fetch(ctx, ec, cursor, true)
		if err != nil {
			return added, err
		}
		if page.IsEmpty() {
			break
		}
		q.pages <- page
		added++
	}
	if added > 0 {
		logger.Debugf("Prefetch: queued %d page(s), %d of %d slot(s) used.", added, len(q.pages), cap(q.pages))
	}
	return added, nil
}

// fetch reads one page, checks it against the cursor and updates the enumeration state.
// A page shorter than the page size marks enumeration exhausted.
func (q *Queue) fetch(ctx context.Context, ec model.ExecutionContext, cursor model.AccountID, prefetched bool) (model.Page, error) {
	page, err := q.fetcher.FetchPage(ctx, ec, cursor, q.pageSize)
	if err != nil {
		return nil, exception.NewBatchError(moduleName, "cursor fetch failed", err, false)
	}
	if err := page.Validate(cursor); err != nil {
		return nil, exception.NewBatchError(moduleName, "cursor fetch returned an invalid page", err, false)
	}
	if len(page) > q.pageSize {
		return nil, exception.NewBatchErrorf(moduleName, "cursor fetch returned %d ids for page size %d", len(page), q.pageSize)
	}
	q.recorder.RecordPageFetched(ctx, q.operation, len(page), prefetched)

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(page) < q.pageSize {
		q.exhausted = true
	}
	if !page.IsEmpty() && page.Max() > q.tail {
		q.tail = page.Max()
	}
	logger.Debugf("Fetched %d id(s) after %d (prefetched=%t, exhausted=%t).", len(page), cursor, prefetched, q.exhausted)
	return page, nil
}
