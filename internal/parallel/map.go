package parallel

import (
	"context"
	"errors"
	"iter"
	"slices"

	"golang.org/x/sync/errgroup"
)

type result[D any] struct {
	d D
	e error
}

// Map calls fn for every element of seq, at most limit calls at a time, and
// yields the results in the order they complete.
//
//	for d, err := range parallel.Map(ctx, 4, seq, fn) {}
//
// Breaking out of the loop or cancelling ctx cancels the context passed to
// the calls still running; their results are dropped.
func Map[E, D any](ctx context.Context, limit int, seq iter.Seq[E], fn func(context.Context, E) (D, error)) iter.Seq2[D, error] {
	limit = max(limit, 1)
	return func(yield func(D, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		g, gctx := errgroup.WithContext(ctx)
		// one slot for the producer
		g.SetLimit(limit + 1)
		mapped := make(chan result[D], limit)

		g.Go(func() error {
			for e := range seq {
				if gctx.Err() != nil {
					return nil
				}
				g.Go(func() error {
					d, err := fn(gctx, e)
					select {
					case <-gctx.Done():
					case mapped <- result[D]{d: d, e: err}:
					}
					return nil
				})
			}
			return nil
		})
		go func() {
			_ = g.Wait()
			close(mapped)
		}()

		for r := range mapped {
			if !yield(r.d, r.e) {
				return
			}
		}
	}
}

// Each calls fn for all elements in parallel and joins the returned errors.
func Each[E any](ctx context.Context, in []E, fn func(context.Context, E) error) error {
	var errs []error
	call := func(ctx context.Context, e E) (struct{}, error) {
		return struct{}{}, fn(ctx, e)
	}
	for _, err := range Map(ctx, len(in), slices.Values(in), call) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
