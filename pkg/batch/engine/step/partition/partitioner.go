// Package partition slices pages across a fixed set of workers and runs the slices on a bounded goroutine pool.
package partition

import (
	model "github.com/tigerroll/ledgerbatch/pkg/batch/core/domain/model"
)

// Partition splits page into workerCount contiguous partitions of near-equal size.
//
// The target size is ceil(len(page)/workerCount). A boundary that would fall between two equal
// identifiers is pushed forward to the next identifier change, so a run of sub-records always lands
// in one partition. When the page is shorter than workerCount the trailing partitions are empty.
// An empty page yields no partitions.
func Partition(page model.Page, workerCount int) []model.Partition {
	if len(page) == 0 {
		return nil
	}
	if workerCount < 1 {
		workerCount = 1
	}

	target := (len(page) + workerCount - 1) / workerCount
	partitions := make([]model.Partition, 0, workerCount)
	start := 0
	for i := 0; i < workerCount; i++ {
		end := start + target
		if end > len(page) {
			end = len(page)
		}
		for end > start && end < len(page) && page[end] == page[end-1] {
			end++
		}
		partitions = append(partitions, model.Partition{Index: i, IDs: page[start:end:end]})
		start = end
	}
	// Boundary pushes can only shorten the tail, so start == len(page) here.
	return partitions
}

// NonEmpty filters out partitions without identifiers.
func NonEmpty(partitions []model.Partition) []model.Partition {
	out := make([]model.Partition, 0, len(partitions))
	for _, p := range partitions {
		if len(p.IDs) > 0 {
			out = append(out, p)
		}
	}
	return out
}
