package execution

import (
	"context"

	"golang.org/x/sync/errgroup"
)

const fanOutLimit = 8

// FanOut runs fn for every index concurrently and returns results in index order. The
// first error cancels the remaining branches and no partial results are returned.
func FanOut[T any](ctx context.Context, n int, fn func(ctx context.Context, i int) (T, error)) ([]T, error) {
	out := make([]T, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanOutLimit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			v, err := fn(gctx, i)
			if err != nil {
				return err
			}
			out[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
