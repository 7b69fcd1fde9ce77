package family

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// workflowDroppedFields are server-side bookkeeping, stripped from pull
// results and from push payloads.
var workflowDroppedFields = []string{
	"createdAt",
	"lastUpdatedAt",
	"createdBy",
	"lastUpdatedBy",
	"valid",
	"validationErrors",
	"history",
}

// Workflows reconciles workflow definitions. All workflow endpoints require
// the internal origin header.
type Workflows struct{}

func (Workflows) Family() kibana.Family {
	return kibana.FamilyWorkflows
}

// Pull fetches each manifest workflow by id and stores it by name. A
// workflow that fails to fetch is logged and skipped so one bad entry does
// not block the rest. Renames observed on the server are written back to the
// manifest.
func (a *Workflows) Pull(ctx context.Context, env *Env) (Stats, error) {
	manifestPath := env.Layout.WorkflowsManifest(env.Space.ID())
	manifest, err := project.LoadIDManifest(env.Fs, manifestPath)
	if err != nil {
		return Stats{}, err
	}
	if len(manifest.Entries) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	pipeline := etl.Pipeline[etl.Object, etl.Object]{
		Extractor: etl.ExtractorFunc[etl.Object](func(ctx context.Context) ([]etl.Object, error) {
			return fetchWorkflows(ctx, env, manifest.Entries)
		}),
		Transformer: etl.DropFields(workflowDroppedFields...),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			count := 0
			renamed := false
			for _, obj := range items {
				id := stringField(obj, "id")
				name := stringField(obj, "name")
				if name == "" {
					name = id
				}
				path := env.Layout.WorkflowFile(env.Space.ID(), name)
				if err := codecWrite(env.Fs, path, obj); err != nil {
					return count, err
				}
				if manifest.Rename(id, name) {
					renamed = true
				}
				count++
			}
			if renamed {
				if err := manifest.Save(env.Fs, manifestPath); err != nil {
					return count, err
				}
			}
			return count, nil
		}),
		Concurrency: env.concurrency(),
	}

	pulled, err := pipeline.Run(ctx)
	stats.Pulled = pulled
	stats.Skipped = len(manifest.Entries) - pulled
	return stats, err
}

// Push reads each manifest workflow from its file and upserts it.
func (a *Workflows) Push(ctx context.Context, env *Env) (Stats, error) {
	manifest, err := project.LoadIDManifest(env.Fs, env.Layout.WorkflowsManifest(env.Space.ID()))
	if err != nil {
		return Stats{}, err
	}
	if len(manifest.Entries) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	pipeline := etl.Pipeline[etl.Object, etl.Object]{
		Extractor: etl.ExtractorFunc[etl.Object](func(ctx context.Context) ([]etl.Object, error) {
			var objects []etl.Object
			for _, entry := range manifest.Entries {
				name := entry.Name
				if name == "" {
					name = entry.ID
				}
				obj, err := codecReadObject(env.Fs, env.Layout.WorkflowFile(env.Space.ID(), name))
				if err != nil {
					return nil, err
				}
				objects = append(objects, obj)
			}
			return objects, nil
		}),
		Transformer: etl.DropFields(workflowDroppedFields...),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			return loadEach(ctx, env.concurrency(), items, func(ctx context.Context, obj etl.Object) error {
				return upsertWorkflow(ctx, env.Space, obj)
			})
		}),
		Concurrency: env.concurrency(),
	}

	pushed, err := pipeline.Run(ctx)
	stats.Pushed = pushed
	return stats, err
}

func fetchWorkflows(ctx context.Context, env *Env, entries []project.Entry) ([]etl.Object, error) {
	results := make([]etl.Object, len(entries))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency())
	for i, entry := range entries {
		g.Go(func() error {
			obj, err := FetchWorkflow(gctx, env.Space, entry.ID)
			if err != nil {
				logging.Warnf("failed to fetch workflow %q: %v", entry.ID, err)
				return nil
			}
			mu.Lock()
			results[i] = obj
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var fetched []etl.Object
	for _, obj := range results {
		if obj != nil {
			fetched = append(fetched, obj)
		}
	}
	return fetched, nil
}

// FetchWorkflow fetches one workflow by id. Exported for dependency
// resolution during add.
func FetchWorkflow(ctx context.Context, space *kibana.SpaceClient, id string) (etl.Object, error) {
	resp, err := space.GetInternal(ctx, "/api/workflows/"+id)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch workflow %q: %w", id, err)
	}
	return decodeObject(resp.Body)
}

// SearchWorkflows lists workflows on the server, used by add to resolve a
// workflow by name when only the name is known.
func SearchWorkflows(ctx context.Context, space *kibana.SpaceClient) ([]etl.Object, error) {
	body := etl.Object{"page": 1, "size": 100}
	resp, err := space.PostJSONInternal(ctx, "/api/workflows/_search", body)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to search workflows: %w", err)
	}

	var result struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse workflow search response: %w", err)
	}
	var workflows []etl.Object
	for _, raw := range result.Results {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		workflows = append(workflows, obj)
	}
	return workflows, nil
}

func upsertWorkflow(ctx context.Context, space *kibana.SpaceClient, obj etl.Object) error {
	id := stringField(obj, "id")
	if id == "" {
		return fmt.Errorf("workflow missing id field")
	}

	_, err := upsert(ctx, id, upsertOps{
		head: func(ctx context.Context) (*kibana.Response, error) {
			return space.HeadInternal(ctx, "/api/workflows/"+id)
		},
		create: func(ctx context.Context) (*kibana.Response, error) {
			return space.PostJSONInternal(ctx, "/api/workflows", obj)
		},
		update: func(ctx context.Context) (*kibana.Response, error) {
			return space.PutJSONInternal(ctx, "/api/workflows/"+id, obj)
		},
	})
	return err
}

func decodeObject(data []byte) (etl.Object, error) {
	var obj etl.Object
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("failed to parse response object: %w", err)
	}
	return obj, nil
}
