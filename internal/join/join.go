// Package join fans a fixed number of sub-operations out and joins them
// back, short-circuiting on the first failure.
package join

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// All runs fn once for each index in [0, n) concurrently and waits for all
// of them. The first error cancels the context handed to the remaining
// calls and is the only error returned; later errors and results are
// ignored. Work already done by calls that completed before the failure is
// not rolled back.
func All(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	return Limited(ctx, n, 0, fn)
}

// Limited is All with at most limit calls in flight. A limit <= 0 means
// no limit.
func Limited(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if n == 0 {
		return nil
	}
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return fn(gctx, i)
		})
	}
	return g.Wait()
}
