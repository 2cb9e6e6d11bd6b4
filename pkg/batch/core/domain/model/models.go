// Package model defines the value types exchanged between the components of an account batch run.
package model

import (
	"fmt"
	"time"
)

// AccountID is the ordered identifier used as the keyset pagination key.
type AccountID int64

// Page is an ascending sequence of AccountIDs returned by one cursor fetch.
// Consecutive equal entries represent sub-records of the same account.
// An empty Page signals that enumeration is exhausted.
type Page []AccountID

// Max returns the largest identifier in the page, or 0 for an empty page.
func (p Page) Max() AccountID {
	if len(p) == 0 {
		return 0
	}
	return p[len(p)-1]
}

// IsEmpty reports whether the page carries no identifiers.
func (p Page) IsEmpty() bool {
	return len(p) == 0
}

// Validate checks that the page is non-decreasing and entirely above cursor.
func (p Page) Validate(cursor AccountID) error {
	for i, id := range p {
		if id <= cursor {
			return fmt.Errorf("page entry %d (id %d) is not above cursor %d", i, id, cursor)
		}
		if i > 0 && id < p[i-1] {
			return fmt.Errorf("page entry %d (id %d) is below previous id %d", i, id, p[i-1])
		}
	}
	return nil
}

// Partition is one worker's contiguous slice of a page.
type Partition struct {
	// Index is the worker slot this partition is assigned to.
	Index int
	// IDs is the contiguous sub-sequence of the page.
	IDs []AccountID
}

// Units collapses runs of equal identifiers into units of work, preserving order.
func (p Partition) Units() []Unit {
	units := make([]Unit, 0, len(p.IDs))
	for _, id := range p.IDs {
		if n := len(units); n > 0 && units[n-1].AccountID == id {
			units[n-1].Entries++
			continue
		}
		units = append(units, Unit{AccountID: id, Entries: 1})
	}
	return units
}

// PartitionName returns the display name of the partition with the given index.
func PartitionName(index int) string {
	return fmt.Sprintf("partition%d", index)
}

// Unit is one account to be processed, together with the number of page entries it covers.
type Unit struct {
	AccountID AccountID
	Entries   int
}

// ExecutionContext is the immutable tenant and business date shared by every worker of a run.
// It is captured once at run start so all workers compute against the same logical date.
type ExecutionContext struct {
	tenantID     string
	businessDate time.Time
	runID        string
}

// NewExecutionContext creates an ExecutionContext. The business date is truncated to a calendar day.
func NewExecutionContext(runID, tenantID string, businessDate time.Time) ExecutionContext {
	y, m, d := businessDate.Date()
	return ExecutionContext{
		tenantID:     tenantID,
		businessDate: time.Date(y, m, d, 0, 0, 0, 0, businessDate.Location()),
		runID:        runID,
	}
}

// TenantID returns the tenant the run is executing for.
func (c ExecutionContext) TenantID() string { return c.tenantID }

// BusinessDate returns the logical as-of date of the run.
func (c ExecutionContext) BusinessDate() time.Time { return c.businessDate }

// RunID returns the identifier of the run.
func (c ExecutionContext) RunID() string { return c.runID }

// AccountSnapshot is the persisted state of an account as read before an attempt.
type AccountSnapshot struct {
	ID           AccountID
	ParentID     int64
	Status       string
	Balance      float64
	AnnualRate   float64
	LastPostedOn *time.Time
	Version      int64
	CurrencyCode string
}

// Outcome is the final state of one unit of work.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// String returns the label used in logs and metrics.
func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// Result is returned by the retry executor for a single unit of work.
type Result struct {
	AccountID AccountID
	Outcome   Outcome
	// Attempts is the number of times the operation was invoked.
	Attempts int
	// Err is the terminal error when Outcome is OutcomeFailure.
	Err error
	// Reason is the human-readable explanation of a failure.
	Reason string
}

// Failure records a terminal failure for one account.
type Failure struct {
	AccountID AccountID `json:"accountId"`
	Reason    string    `json:"reason"`
	Attempts  int       `json:"attempts"`
	Err       error     `json:"-"`
}

// WorkerResult is what a single worker task reports for its partition.
type WorkerResult struct {
	Partition int
	Processed []AccountID
	Failures  []Failure
}

// RunResult is returned to the invoking scheduler once a run completes.
type RunResult struct {
	Succeeded bool
	Failures  []Failure
	// Pages is the number of non-empty pages processed.
	Pages int
	// Processed is the number of accounts posted successfully.
	Processed int
}

// BatchStatus is the lifecycle state of a run execution.
type BatchStatus string

const (
	BatchStatusStarting  BatchStatus = "STARTING"
	BatchStatusStarted   BatchStatus = "STARTED"
	BatchStatusCompleted BatchStatus = "COMPLETED"
	BatchStatusFailed    BatchStatus = "FAILED"
)

// String returns the status as a string.
func (s BatchStatus) String() string { return string(s) }

// IsFinished reports whether the status is terminal.
func (s BatchStatus) IsFinished() bool {
	return s == BatchStatusCompleted || s == BatchStatusFailed
}

// RunExecution is the history record of one run.
type RunExecution struct {
	ID           string
	Operation    string
	TenantID     string
	BusinessDate time.Time
	Status       BatchStatus
	StartTime    time.Time
	EndTime      *time.Time
	Pages        int
	Processed    int
	Failures     []Failure
	ExitMessage  string
	// Version is incremented by the repository on every update.
	Version int
}

// NewRunExecution creates a RunExecution in the STARTING state.
func NewRunExecution(id, operation string, ec ExecutionContext) *RunExecution {
	return &RunExecution{
		ID:           id,
		Operation:    operation,
		TenantID:     ec.TenantID(),
		BusinessDate: ec.BusinessDate(),
		Status:       BatchStatusStarting,
	}
}

// MarkAsStarted moves the execution to STARTED.
func (e *RunExecution) MarkAsStarted() {
	e.Status = BatchStatusStarted
	e.StartTime = time.Now()
}

// MarkAsFinished records the result and moves the execution to COMPLETED or FAILED.
func (e *RunExecution) MarkAsFinished(result RunResult, err error) {
	now := time.Now()
	e.EndTime = &now
	e.Pages = result.Pages
	e.Processed = result.Processed
	e.Failures = result.Failures
	switch {
	case err != nil:
		e.Status = BatchStatusFailed
		e.ExitMessage = err.Error()
	case !result.Succeeded:
		e.Status = BatchStatusFailed
		e.ExitMessage = fmt.Sprintf("%d account(s) failed", len(result.Failures))
	default:
		e.Status = BatchStatusCompleted
	}
}

// Duration returns the elapsed time of a finished execution.
func (e *RunExecution) Duration() time.Duration {
	if e.EndTime == nil {
		return 0
	}
	return e.EndTime.Sub(e.StartTime)
}

// MarkAsAbandoned fails an execution that was left unfinished by a process that no longer runs it.
func (e *RunExecution) MarkAsAbandoned(reason string) {
	now := time.Now()
	e.EndTime = &now
	e.Status = BatchStatusFailed
	e.ExitMessage = reason
}
