package etl

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineRun(t *testing.T) {
	var loaded []int
	p := Pipeline[int, int]{
		Extractor: ExtractorFunc[int](func(ctx context.Context) ([]int, error) {
			return []int{1, 2, 3}, nil
		}),
		Transformer: TransformerFunc[int, int](func(in int) (int, error) {
			return in * 10, nil
		}),
		Loader: LoaderFunc[int](func(ctx context.Context, items []int) (int, error) {
			loaded = items
			return len(items), nil
		}),
		Concurrency: 2,
	}

	n, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []int{10, 20, 30}, loaded)
}

func TestPipelineCollectsItemFailures(t *testing.T) {
	var loaded []string
	p := Pipeline[string, string]{
		Extractor: ExtractorFunc[string](func(ctx context.Context) ([]string, error) {
			return []string{"ok1", "bad", "ok2"}, nil
		}),
		Transformer: TransformerFunc[string, string](func(in string) (string, error) {
			if in == "bad" {
				return "", fmt.Errorf("cannot transform %s", in)
			}
			return in, nil
		}),
		Loader: LoaderFunc[string](func(ctx context.Context, items []string) (int, error) {
			loaded = items
			return len(items), nil
		}),
	}

	n, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"ok1", "ok2"}, loaded)

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
}

func TestPipelineExtractErrorAborts(t *testing.T) {
	p := Pipeline[int, int]{
		Extractor: ExtractorFunc[int](func(ctx context.Context) ([]int, error) {
			return nil, errors.New("export failed")
		}),
		Transformer: Identity[int](),
		Loader: LoaderFunc[int](func(ctx context.Context, items []int) (int, error) {
			t.Fatal("loader must not run")
			return 0, nil
		}),
	}

	_, err := p.Run(context.Background())
	require.EqualError(t, err, "export failed")
}

func TestPipelineLoaderErrorReported(t *testing.T) {
	p := Pipeline[int, int]{
		Extractor: ExtractorFunc[int](func(ctx context.Context) ([]int, error) {
			return []int{1}, nil
		}),
		Transformer: Identity[int](),
		Loader: LoaderFunc[int](func(ctx context.Context, items []int) (int, error) {
			return 0, errors.New("import rejected")
		}),
	}

	n, err := p.Run(context.Background())
	assert.Equal(t, 0, n)
	require.ErrorContains(t, err, "import rejected")
}

func TestPipelineEmptyExtractSkipsLoad(t *testing.T) {
	p := Pipeline[int, int]{
		Extractor: ExtractorFunc[int](func(ctx context.Context) ([]int, error) {
			return nil, nil
		}),
		Transformer: Identity[int](),
		Loader: LoaderFunc[int](func(ctx context.Context, items []int) (int, error) {
			t.Fatal("loader must not run")
			return 0, nil
		}),
	}

	n, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
