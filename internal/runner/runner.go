// Package runner provides the bounded-concurrency executor used by every
// batch stage of the pipeline.
package runner

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RunAll processes items with at most concurrency workers and returns the
// results in input order, regardless of completion order. Each worker sleeps
// perTaskDelay after finishing a task before pulling the next one, giving a
// simple per-lane rate limit.
//
// Workers must capture their own failures inside R; RunAll never inspects
// results. When ctx finishes, workers stop pulling new items and in-flight
// workers are expected to observe ctx and return promptly; result slots for
// unprocessed items are left at their zero value.
func RunAll[T, R any](ctx context.Context, items []T, concurrency int, perTaskDelay time.Duration, worker func(ctx context.Context, item T) R) []R {
	results := make([]R, len(items))
	if len(items) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	var next atomic.Int64
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for w := 0; w < concurrency; w++ {
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				idx := int(next.Add(1)) - 1
				if idx >= len(items) {
					return
				}
				results[idx] = worker(ctx, items[idx])
				if perTaskDelay > 0 {
					if !sleep(ctx, perTaskDelay) {
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	return results
}

// sleep waits for d and reports false if ctx finished first.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
