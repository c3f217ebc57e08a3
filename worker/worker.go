// Package worker runs terminology operations over batches in parallel.
//
// Results always come back in the order of the inputs:
//
//	batch := worker.Map(ctx, 8, requests, func(ctx context.Context, req valueset.ValidateRequest) (*valueset.ValidateResult, error) {
//		return expander.ValidateCode(ctx, req)
//	})
//	for _, r := range batch.Results {
//		...
//	}
package worker

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// Result is the outcome of one item of a batch.
type Result[T any] struct {
	// Index is the position of the input item.
	Index int

	Value T
	Err   error

	Duration time.Duration
}

// BatchResult aggregates the results of a batch.
type BatchResult[T any] struct {
	// Results holds one entry per input, in input order.
	Results []Result[T]

	// Total is the number of items submitted.
	Total int

	// Completed counts items that ran, including failures.
	Completed int

	// Failed counts items that returned an error.
	Failed int

	Duration time.Duration
}

// HasErrors reports whether any item failed or was not run.
func (br *BatchResult[T]) HasErrors() bool {
	return br.Failed > 0 || br.Completed < br.Total
}

// Values returns the values of the items that succeeded, in input order.
func (br *BatchResult[T]) Values() []T {
	out := make([]T, 0, len(br.Results))
	for _, r := range br.Results {
		if r.Err == nil {
			out = append(out, r.Value)
		}
	}
	return out
}

// Map applies fn to every item using at most workers goroutines. A
// non-positive worker count uses one worker per CPU. Items not started
// before ctx is done carry ctx.Err().
func Map[In, Out any](ctx context.Context, workers int, items []In, fn func(context.Context, In) (Out, error)) *BatchResult[Out] {
	start := time.Now()
	br := &BatchResult[Out]{
		Results: make([]Result[Out], len(items)),
		Total:   len(items),
	}
	if len(items) == 0 {
		return br
	}

	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(items) {
		workers = len(items)
	}

	ran := make([]bool, len(items))
	run := func(i int) {
		ran[i] = true
		t := time.Now()
		v, err := fn(ctx, items[i])
		br.Results[i] = Result[Out]{Index: i, Value: v, Err: err, Duration: time.Since(t)}
	}

	// Small batches are not worth the goroutines.
	if workers == 1 || len(items) <= 2 {
		for i := range items {
			if err := ctx.Err(); err != nil {
				br.Results[i] = Result[Out]{Index: i, Err: err}
				continue
			}
			run(i)
		}
		return br.finish(start, ran)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				run(i)
			}
		}()
	}

	next := 0
submit:
	for ; next < len(items); next++ {
		select {
		case <-ctx.Done():
			break submit
		case jobs <- next:
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(items); i++ {
		br.Results[i] = Result[Out]{Index: i, Err: ctx.Err()}
	}
	return br.finish(start, ran)
}

// finish counts outcomes. Items that never ran are neither completed nor
// failed.
func (br *BatchResult[T]) finish(start time.Time, ran []bool) *BatchResult[T] {
	for i, r := range br.Results {
		if !ran[i] {
			continue
		}
		br.Completed++
		if r.Err != nil {
			br.Failed++
		}
	}
	br.Duration = time.Since(start)
	return br
}
