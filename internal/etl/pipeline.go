// Package etl provides the extract, transform, load abstractions every
// family adapter is built from. An extractor produces items from one side
// (server or disk), transformers reshape them one at a time, and a loader
// writes them to the other side.
package etl

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"go.kibob.dev/kibob/internal/logging"
)

// Extractor produces the items a pipeline run starts from.
type Extractor[T any] interface {
	Extract(ctx context.Context) ([]T, error)
}

// Transformer reshapes a single item. Transformers must be safe for
// concurrent use; the pipeline fans transformation out across items.
type Transformer[In, Out any] interface {
	Transform(in In) (Out, error)
}

// Loader writes transformed items to the destination and reports how many
// were loaded.
type Loader[T any] interface {
	Load(ctx context.Context, items []T) (int, error)
}

// TransformerFunc adapts a function to the Transformer interface.
type TransformerFunc[In, Out any] func(In) (Out, error)

func (f TransformerFunc[In, Out]) Transform(in In) (Out, error) {
	return f(in)
}

// Identity passes items through unchanged.
func Identity[T any]() Transformer[T, T] {
	return TransformerFunc[T, T](func(in T) (T, error) { return in, nil })
}

// Chain composes same-shaped transformers left to right.
func Chain[T any](transformers ...Transformer[T, T]) Transformer[T, T] {
	return TransformerFunc[T, T](func(in T) (T, error) {
		var err error
		for _, t := range transformers {
			in, err = t.Transform(in)
			if err != nil {
				var zero T
				return zero, err
			}
		}
		return in, nil
	})
}

// ExtractorFunc adapts a function to the Extractor interface.
type ExtractorFunc[T any] func(ctx context.Context) ([]T, error)

func (f ExtractorFunc[T]) Extract(ctx context.Context) ([]T, error) {
	return f(ctx)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc[T any] func(ctx context.Context, items []T) (int, error)

func (f LoaderFunc[T]) Load(ctx context.Context, items []T) (int, error) {
	return f(ctx, items)
}

// Pipeline runs extract, transform, load as one unit. The transform stage
// processes items concurrently, bounded by Concurrency; item failures are
// collected so one bad item does not hide the rest.
type Pipeline[In, Out any] struct {
	Extractor   Extractor[In]
	Transformer Transformer[In, Out]
	Loader      Loader[Out]
	Concurrency int
}

// Run executes the pipeline and returns the number of items loaded.
func (p Pipeline[In, Out]) Run(ctx context.Context) (int, error) {
	items, err := p.Extractor.Extract(ctx)
	if err != nil {
		return 0, err
	}
	logging.Debugf("extracted %d items", len(items))
	if len(items) == 0 {
		return 0, nil
	}

	limit := p.Concurrency
	if limit <= 0 {
		limit = 1
	}

	transformed := make([]Out, len(items))
	failed := make([]bool, len(items))
	var mu sync.Mutex
	var errs *multierror.Error

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range items {
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			out, err := p.Transformer.Transform(items[i])
			if err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				failed[i] = true
				return nil
			}
			transformed[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	kept := transformed[:0]
	for i := range transformed {
		if !failed[i] {
			kept = append(kept, transformed[i])
		}
	}

	loaded, err := p.Loader.Load(ctx, kept)
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	logging.Debugf("loaded %d of %d items", loaded, len(items))
	return loaded, errs.ErrorOrNil()
}
