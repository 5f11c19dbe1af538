package docxfill

import (
	"golang.org/x/sync/errgroup"
)

type indexed[T any] struct {
	i int
	v T
}

// runBounded calls work for indexes 0..n-1 with at most limit calls in flight. Each
// worker sends its result to a single collector, which stores it at its index, so the
// output order never depends on scheduling. Before an index starts, stop is consulted;
// a non-nil reason records skipped(i, reason) instead of running work.
func runBounded[T any](n, limit int, stop func() error, work func(i int) T, skipped func(i int, reason error) T) []T {
	results := make(chan indexed[T], n)
	g := new(errgroup.Group)
	g.SetLimit(max(1, limit))

	for i := 0; i < n; i++ {
		i := i
		if reason := stop(); reason != nil {
			results <- indexed[T]{i: i, v: skipped(i, reason)}
			continue
		}
		g.Go(func() error {
			if reason := stop(); reason != nil {
				results <- indexed[T]{i: i, v: skipped(i, reason)}
				return nil
			}
			results <- indexed[T]{i: i, v: work(i)}
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	out := make([]T, n)
	for r := range results {
		out[r.i] = r.v
	}
	return out
}
