package model

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// JobOutcome accumulates terminal failures across all waves of a run.
// It is safe for concurrent use.
type JobOutcome struct {
	mu        sync.Mutex
	failures  []Failure
	processed int
	pages     int
}

// NewJobOutcome creates an empty JobOutcome.
func NewJobOutcome() *JobOutcome {
	return &JobOutcome{}
}

// MergeWave folds one wave's worker results into the outcome.
func (o *JobOutcome) MergeWave(results []WorkerResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pages++
	for _, r := range results {
		o.processed += len(r.Processed)
		o.failures = append(o.failures, r.Failures...)
	}
}

// Failures returns the failures ordered by AccountID.
func (o *JobOutcome) Failures() []Failure {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Failure, len(o.failures))
	copy(out, o.failures)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out
}

// IsEmpty reports whether no failure has been recorded.
func (o *JobOutcome) IsEmpty() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.failures) == 0
}

// Err returns a combined error listing every failed account, or nil.
func (o *JobOutcome) Err() error {
	var merr *multierror.Error
	for _, f := range o.Failures() {
		merr = multierror.Append(merr, fmt.Errorf("account %d: %s", f.AccountID, f.Reason))
	}
	return merr.ErrorOrNil()
}

// Result finalizes the outcome into a RunResult.
func (o *JobOutcome) Result() RunResult {
	failures := o.Failures()
	o.mu.Lock()
	defer o.mu.Unlock()
	return RunResult{
		Succeeded: len(failures) == 0,
		Failures:  failures,
		Pages:     o.pages,
		Processed: o.processed,
	}
}
