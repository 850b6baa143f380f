// Package orchestrate drives the two pipeline stages end to end: harvesting
// a work's index and episodes into JSON records, and translating those
// records into a mirrored output tree with durable progress.
package orchestrate

import "fmt"

// Summary tallies per-item outcomes of a pipeline stage.
type Summary struct {
	Completed int
	Failed    int
	Skipped   int
}

// Total returns the number of items the stage considered.
func (s Summary) Total() int {
	return s.Completed + s.Failed + s.Skipped
}

// Err returns a non-nil error when any item failed, so callers can turn a
// partial run into a non-zero exit without losing the partial output.
func (s Summary) Err() error {
	if s.Failed == 0 {
		return nil
	}
	return fmt.Errorf("%d of %d items failed", s.Failed, s.Total())
}

func (s Summary) String() string {
	return fmt.Sprintf("completed=%d failed=%d skipped=%d", s.Completed, s.Failed, s.Skipped)
}
