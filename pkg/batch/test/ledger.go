// Package test provides in-memory doubles of the account domain for engine tests.
package test

import (
	"context"
	"sort"
	"sync"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
	"github.com/tigerroll/ledgerbatch/pkg/batch/support/util/exception"
)

// FakeLedger is an in-memory CursorFetcher and AccountStore.
// Every call is counted so tests can assert on fetch and attempt patterns.
type FakeLedger struct {
	mu sync.Mutex

	entries  []model.AccountID // sorted, may contain duplicates
	accounts map[model.AccountID]*model.AccountSnapshot

	fetchCalls   int
	fetchCursors []model.AccountID
	fetchErrs    map[int]error
	fetchGate    map[int]chan struct{}
	pages        []model.Page

	loads    map[model.AccountID]int
	postings map[model.AccountID]int
	applyErr map[model.AccountID][]error
	panics   map[model.AccountID]bool
	blocked  map[model.AccountID]bool
	onApply  func(id model.AccountID)
}

// NewFakeLedger creates a ledger containing the given identifiers. Duplicates become sub-records
// of the same account.
func NewFakeLedger(ids ...model.AccountID) *FakeLedger {
	l := &FakeLedger{
		accounts:  make(map[model.AccountID]*model.AccountSnapshot),
		fetchErrs: make(map[int]error),
		fetchGate: make(map[int]chan struct{}),
		loads:     make(map[model.AccountID]int),
		postings:  make(map[model.AccountID]int),
		applyErr:  make(map[model.AccountID][]error),
		panics:    make(map[model.AccountID]bool),
		blocked:   make(map[model.AccountID]bool),
	}
	l.entries = append(l.entries, ids...)
	sort.Slice(l.entries, func(i, j int) bool { return l.entries[i] < l.entries[j] })
	for _, id := range ids {
		if _, ok := l.accounts[id]; !ok {
			l.accounts[id] = &model.AccountSnapshot{ID: id, ParentID: int64(id), Status: "active", Balance: 1000, AnnualRate: 0.05}
		}
	}
	return l
}

// Seq returns the identifiers from..to inclusive.
func Seq(from, to model.AccountID) []model.AccountID {
	var ids []model.AccountID
	for id := from; id <= to; id++ {
		ids = append(ids, id)
	}
	return ids
}

// ServePages makes FetchPage return the given pages in order regardless of the cursor,
// followed by empty pages.
func (l *FakeLedger) ServePages(pages ...model.Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = pages
}

// FailFetch makes the n-th FetchPage call (1-based) return err.
func (l *FakeLedger) FailFetch(n int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fetchErrs[n] = err
}

// GateFetch blocks the n-th FetchPage call until the returned function is called.
func (l *FakeLedger) GateFetch(n int) (release func()) {
	ch := make(chan struct{})
	l.mu.Lock()
	l.fetchGate[n] = ch
	l.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// FailApply queues errors returned by successive ApplyPosting calls for id.
func (l *FakeLedger) FailApply(id model.AccountID, errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyErr[id] = append(l.applyErr[id], errs...)
}

// PanicOn makes ApplyPosting panic for id.
func (l *FakeLedger) PanicOn(id model.AccountID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.panics[id] = true
}

// BlockParent marks the owning party of id as not eligible.
func (l *FakeLedger) BlockParent(id model.AccountID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.blocked[id] = true
}

// Remove deletes the account record while keeping its identifier enumerable.
func (l *FakeLedger) Remove(id model.AccountID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.accounts, id)
}

// OnApply registers a hook called at the start of every ApplyPosting.
func (l *FakeLedger) OnApply(fn func(id model.AccountID)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onApply = fn
}

// FetchPage implements port.CursorFetcher.
func (l *FakeLedger) FetchPage(ctx context.Context, ec model.ExecutionContext, lastMaxID model.AccountID, pageSize int) (model.Page, error) {
	l.mu.Lock()
	l.fetchCalls++
	n := l.fetchCalls
	l.fetchCursors = append(l.fetchCursors, lastMaxID)
	gate := l.fetchGate[n]
	err := l.fetchErrs[n]
	l.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pages != nil {
		if len(l.pages) == 0 {
			return model.Page{}, nil
		}
		p := l.pages[0]
		l.pages = l.pages[1:]
		return p, nil
	}
	page := model.Page{}
	for _, id := range l.entries {
		if id <= lastMaxID {
			continue
		}
		if len(page) == pageSize {
			break
		}
		page = append(page, id)
	}
	return page, nil
}

// LoadAccount implements port.AccountStore.
func (l *FakeLedger) LoadAccount(ctx context.Context, ec model.ExecutionContext, id model.AccountID) (*model.AccountSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads[id]++
	a, ok := l.accounts[id]
	if !ok {
		return nil, exception.NewBatchErrorf("fake", "account %d", id, exception.ErrAccountNotFound)
	}
	cp := *a
	return &cp, nil
}

// IsEligibleParent implements port.AccountStore.
func (l *FakeLedger) IsEligibleParent(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.blocked[account.ID], nil
}

// ApplyPosting implements port.AccountStore.
func (l *FakeLedger) ApplyPosting(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) error {
	l.mu.Lock()
	hook := l.onApply
	l.mu.Unlock()
	if hook != nil {
		hook(account.ID)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.panics[account.ID] {
		panic("posting rule exploded")
	}
	if errs := l.applyErr[account.ID]; len(errs) > 0 {
		l.applyErr[account.ID] = errs[1:]
		return errs[0]
	}
	l.postings[account.ID]++
	d := ec.BusinessDate()
	stored := l.accounts[account.ID]
	stored.LastPostedOn = &d
	stored.Version++
	return nil
}

// FetchCalls returns the number of FetchPage calls.
func (l *FakeLedger) FetchCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.fetchCalls
}

// FetchCursors returns the lastMaxID argument of every FetchPage call.
func (l *FakeLedger) FetchCursors() []model.AccountID {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.AccountID(nil), l.fetchCursors...)
}

// Loads returns the number of LoadAccount calls for id.
func (l *FakeLedger) Loads(id model.AccountID) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.loads[id]
}

// Postings returns a copy of the committed posting count per account.
func (l *FakeLedger) Postings() map[model.AccountID]int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[model.AccountID]int, len(l.postings))
	for k, v := range l.postings {
		out[k] = v
	}
	return out
}

// NoSleep is a Sleeper that records the requested waits without sleeping.
type NoSleep struct {
	mu    sync.Mutex
	waits []time.Duration
	Err   error
}

// Sleep implements port.Sleeper.
func (s *NoSleep) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.waits = append(s.waits, d)
	return s.Err
}

// Waits returns the recorded waits.
func (s *NoSleep) Waits() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.waits...)
}
