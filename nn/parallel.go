// Modul: parallel.go
// Beschreibung: Begrenzte Parallelisierung unabhaengiger Zeilen (Batch).

package nn

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Parallel runs fn for 0..n-1 with at most threads concurrent calls and
// returns the first error.
func Parallel(ctx context.Context, n, threads int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(threads, 1))
	for i := range n {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return fn(ctx, i)
		})
	}
	return g.Wait()
}
