// Package port declares the narrow interfaces through which the batch engine consumes the
// account domain and reports progress.
package port

import (
	"context"
	"time"

	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// CursorFetcher enumerates eligible accounts with keyset pagination.
type CursorFetcher interface {
	// FetchPage returns up to pageSize identifiers greater than lastMaxID in ascending order.
	// An empty page means no eligible identifier remains. Implementations must not share
	// mutable state with the workers processing a previous page.
	FetchPage(ctx context.Context, ec model.ExecutionContext, lastMaxID model.AccountID, pageSize int) (model.Page, error)
}

// AccountStore is the domain layer the retry executor drives for each unit of work.
type AccountStore interface {
	// LoadAccount re-reads the persisted state of an account. A missing account yields
	// an error wrapping exception.ErrAccountNotFound.
	LoadAccount(ctx context.Context, ec model.ExecutionContext, id model.AccountID) (*model.AccountSnapshot, error)

	// IsEligibleParent reports whether the owning party of the account is in a state that allows posting.
	IsEligibleParent(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) (bool, error)

	// ApplyPosting applies the periodic posting for the business date. A failed attempt must not
	// leave a partial commit behind, so it is safe to call again after a transient error.
	ApplyPosting(ctx context.Context, ec model.ExecutionContext, account *model.AccountSnapshot) error
}

// RunListener receives run lifecycle callbacks.
type RunListener interface {
	BeforeRun(ctx context.Context, execution *model.RunExecution)
	AfterWave(ctx context.Context, ec model.ExecutionContext, wave WaveSummary)
	AfterRun(ctx context.Context, execution *model.RunExecution)
}

// WaveSummary describes one completed wave.
type WaveSummary struct {
	Number     int
	PageSize   int
	Partitions int
	Processed  int
	Failures   int
	Duration   time.Duration
}

// Sleeper performs backoff waits on behalf of the retry executor.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}
