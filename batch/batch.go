// Package batch runs work in fixed-size groups of concurrent operations.
//
// A batch starts only after every operation of the previous batch has
// settled, which caps the number of in-flight operations at the batch
// size.
package batch

import (
	"context"
	"sync"
	"time"
)

const DefaultSize = 15

type Report struct {
	Index   int // zero based
	Size    int
	Elapsed time.Duration
}

type options struct {
	onBatch func(Report)
}

type Option func(o *options)

// WithOnBatch is called after each batch has settled.
func WithOnBatch(fn func(Report)) Option {
	return func(o *options) {
		o.onBatch = fn
	}
}

// Count returns the number of batches needed for n items.
func Count(n int, size int) int {
	if size <= 0 {
		size = DefaultSize
	}
	return (n + size - 1) / size
}

// Run calls work for every item, size items at a time, and returns the
// results in item order.
//
// If ctx is done before a batch starts, Run returns the results of the
// batches that did run along with the context error. A running batch is
// never interrupted.
func Run[T, R any](
	ctx context.Context,
	items []T,
	size int,
	work func(ctx context.Context, item T) R,
	opts ...Option,
) ([]R, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if size <= 0 {
		size = DefaultSize
	}

	results := make([]R, 0, len(items))
	for index := 0; index*size < len(items); index++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		start := index * size
		end := min(start+size, len(items))
		startTime := time.Now()
		settled := runBatch(ctx, items[start:end], work)
		results = append(results, settled...)

		if o.onBatch != nil {
			o.onBatch(Report{Index: index, Size: len(settled), Elapsed: time.Since(startTime)})
		}
	}

	return results, nil
}

func runBatch[T, R any](ctx context.Context, items []T, work func(context.Context, T) R) []R {
	settled := make([]R, len(items))

	var wg sync.WaitGroup
	for i := range items {
		wg.Add(1)
		go func() {
			defer wg.Done()
			settled[i] = work(ctx, items[i])
		}()
	}
	wg.Wait()

	return settled
}
