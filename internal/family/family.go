// Package family implements the per-family adapters that move objects
// between the server and the project tree: saved objects, spaces, workflows,
// agents, and tools. Each adapter wires extract, transform and load stages
// into pipelines for both directions.
package family

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// Env carries everything an adapter needs for one space. Client is the
// unscoped connection, used for APIs that are global rather than
// space-prefixed; Space is the view all space-local requests go through.
type Env struct {
	Client      *kibana.Client
	Space       *kibana.SpaceClient
	Fs          afero.Fs
	Layout      project.Layout
	Managed     bool
	Concurrency int
}

func (e *Env) concurrency() int {
	if e.Concurrency <= 0 {
		return 1
	}
	return e.Concurrency
}

// Stats summarizes one adapter run for the command summary table.
type Stats struct {
	Pulled  int
	Pushed  int
	Skipped int
}

func (s Stats) Add(other Stats) Stats {
	return Stats{
		Pulled:  s.Pulled + other.Pulled,
		Pushed:  s.Pushed + other.Pushed,
		Skipped: s.Skipped + other.Skipped,
	}
}

// Adapter reconciles one family in one space.
type Adapter interface {
	Family() kibana.Family

	// Pull fetches the manifest's objects from the server and writes them
	// to the project tree.
	Pull(ctx context.Context, env *Env) (Stats, error)

	// Push reads the project tree and upserts the objects on the server.
	Push(ctx context.Context, env *Env) (Stats, error)
}

// Adapters returns the adapter for each requested family, in the canonical
// processing order.
func Adapters(families []kibana.Family) []Adapter {
	byFamily := map[kibana.Family]Adapter{
		kibana.FamilySpaces:       &Spaces{},
		kibana.FamilySavedObjects: &SavedObjects{},
		kibana.FamilyWorkflows:    &Workflows{},
		kibana.FamilyAgents:       &Agents{},
		kibana.FamilyTools:        &Tools{},
	}
	var adapters []Adapter
	for _, f := range kibana.AllFamilies() {
		for _, want := range families {
			if f == want {
				adapters = append(adapters, byFamily[f])
				break
			}
		}
	}
	return adapters
}

// upsertOps are the three requests the upsert state machine is built from.
type upsertOps struct {
	head   func(ctx context.Context) (*kibana.Response, error)
	create func(ctx context.Context) (*kibana.Response, error)
	update func(ctx context.Context) (*kibana.Response, error)
}

// upsert creates or updates one object. A HEAD probe picks the initial
// action; races with concurrent writers are absorbed by falling over once in
// each direction: create hitting 409 retries as update, update hitting 404
// retries as create.
func upsert(ctx context.Context, id string, ops upsertOps) (string, error) {
	head, err := ops.head(ctx)
	if err != nil {
		return "", err
	}

	var exists bool
	switch head.Status {
	case http.StatusOK:
		exists = true
	case http.StatusNotFound:
		exists = false
	default:
		return "", fmt.Errorf("existence check for %q: %w", id, head.Err())
	}

	if exists {
		resp, err := ops.update(ctx)
		if err != nil {
			return "", err
		}
		if resp.Status == http.StatusNotFound {
			logging.Debugf("%s vanished during update, creating instead", id)
			resp, err = ops.create(ctx)
			if err != nil {
				return "", err
			}
			if err := resp.Err(); err != nil {
				return "", fmt.Errorf("failed to create %q: %w", id, err)
			}
			return "created", nil
		}
		if err := resp.Err(); err != nil {
			return "", fmt.Errorf("failed to update %q: %w", id, err)
		}
		return "updated", nil
	}

	resp, err := ops.create(ctx)
	if err != nil {
		return "", err
	}
	if resp.Status == http.StatusConflict {
		logging.Debugf("%s appeared during create, updating instead", id)
		resp, err = ops.update(ctx)
		if err != nil {
			return "", err
		}
		if err := resp.Err(); err != nil {
			return "", fmt.Errorf("failed to update %q: %w", id, err)
		}
		return "updated", nil
	}
	if err := resp.Err(); err != nil {
		return "", fmt.Errorf("failed to create %q: %w", id, err)
	}
	return "created", nil
}

// loadEach applies fn to every item on a bounded pool. Item failures are
// collected rather than stopping the run, so one rejected object does not
// block its siblings. Returns the number of items that succeeded.
func loadEach[T any](ctx context.Context, concurrency int, items []T, fn func(context.Context, T) error) (int, error) {
	var mu sync.Mutex
	var errs *multierror.Error
	count := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, item := range items {
		g.Go(func() error {
			if err := fn(gctx, item); err != nil {
				mu.Lock()
				errs = multierror.Append(errs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return count, err
	}
	return count, errs.ErrorOrNil()
}

// stringField reads a top-level string field from a pipeline object.
func stringField(obj etl.Object, key string) string {
	s, _ := obj[key].(string)
	return s
}

// cloneObject copies an object one level at a time so push-side field
// stripping never mutates the caller's value.
func cloneObject(obj etl.Object) etl.Object {
	out := make(etl.Object, len(obj))
	for k, v := range obj {
		out[k] = v
	}
	return out
}

func codecWrite(fsys afero.Fs, path string, obj etl.Object) error {
	return codec.WriteFile(fsys, path, map[string]any(obj))
}

func codecReadObject(fsys afero.Fs, path string) (etl.Object, error) {
	v, err := codec.ReadFile(fsys, path)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected a JSON object", path)
	}
	return obj, nil
}
