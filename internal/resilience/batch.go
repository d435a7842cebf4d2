package resilience

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BatchOptions configures Batch.
type BatchOptions struct {
	// Concurrency is the chunk size; every item of a chunk runs in parallel
	// and the next chunk starts only after the previous one settled.
	Concurrency int
	// FailFast aborts the remaining work on the first failure.
	FailFast bool
	// RetryFailed retries each failed item with its own backoff after all
	// chunks ran. Ignored when FailFast is set.
	RetryFailed bool
	Retry       RetryOptions
	// ChunkDelay is slept between chunks.
	ChunkDelay time.Duration
	Sleep      func(ctx context.Context, d time.Duration) error
}

// Success pairs an input with its output.
type Success[T, R any] struct {
	Index  int
	Item   T
	Result R
}

// Failure pairs an input with its error.
type Failure[T any] struct {
	Index int
	Item  T
	Err   error
}

// BatchResult collects per-item outcomes, each list ordered by input index.
type BatchResult[T, R any] struct {
	Successes []Success[T, R]
	Failures  []Failure[T]
	Chunks    int
}

// Batch runs op for every item, Concurrency at a time. With FailFast the
// first error cancels the batch and is returned; otherwise errors are
// collected in the result and Batch only fails when ctx does.
func Batch[T, R any](ctx context.Context, items []T, opts BatchOptions, op func(ctx context.Context, item T) (R, error)) (BatchResult[T, R], error) {
	size := opts.Concurrency
	if size <= 0 {
		size = 1
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	var res BatchResult[T, R]
	results := make([]R, len(items))
	errs := make([]error, len(items))

	for start := 0; start < len(items); start += size {
		if start > 0 && opts.ChunkDelay > 0 {
			if err := sleep(ctx, opts.ChunkDelay); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(start+size, len(items))
		res.Chunks++

		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			g.Go(func() error {
				v, err := op(gctx, items[i])
				results[i], errs[i] = v, err
				if opts.FailFast {
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return res, err
		}
	}

	var retried sync.WaitGroup
	for i := range items {
		if errs[i] == nil || !opts.RetryFailed || opts.FailFast {
			continue
		}
		retried.Add(1)
		go func() {
			defer retried.Done()
			results[i], errs[i] = Retry(ctx, opts.Retry, func(ctx context.Context) (R, error) {
				return op(ctx, items[i])
			})
		}()
	}
	retried.Wait()

	for i, item := range items {
		if errs[i] != nil {
			res.Failures = append(res.Failures, Failure[T]{Index: i, Item: item, Err: errs[i]})
			continue
		}
		res.Successes = append(res.Successes, Success[T, R]{Index: i, Item: item, Result: results[i]})
	}
	return res, nil
}
