package family

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// Agents and tools share the agent builder API shape: GET and HEAD by id,
// POST to the collection to create, PUT by id to update.
//
// The server rejects some recorded fields on write: the id is part of the
// update URL, and readonly and schema are server-assigned.
var builderCreateStrippedFields = []string{"readonly", "schema"}
var builderUpdateStrippedFields = []string{"id", "readonly", "schema"}

type builderKind struct {
	family   kibana.Family
	basePath string
	manifest func(project.Layout, string) string
	file     func(project.Layout, string, string) string
}

var agentKind = builderKind{
	family:   kibana.FamilyAgents,
	basePath: "/api/agent_builder/agents",
	manifest: func(l project.Layout, space string) string { return l.AgentsManifest(space) },
	file:     func(l project.Layout, space, id string) string { return l.AgentFile(space, id) },
}

var toolKind = builderKind{
	family:   kibana.FamilyTools,
	basePath: "/api/agent_builder/tools",
	manifest: func(l project.Layout, space string) string { return l.ToolsManifest(space) },
	file:     func(l project.Layout, space, id string) string { return l.ToolFile(space, id) },
}

// Agents reconciles agent builder agents.
type Agents struct{}

func (Agents) Family() kibana.Family { return kibana.FamilyAgents }

func (a *Agents) Pull(ctx context.Context, env *Env) (Stats, error) {
	return builderPull(ctx, env, agentKind)
}

func (a *Agents) Push(ctx context.Context, env *Env) (Stats, error) {
	return builderPush(ctx, env, agentKind)
}

// Tools reconciles agent builder tools.
type Tools struct{}

func (Tools) Family() kibana.Family { return kibana.FamilyTools }

func (t *Tools) Pull(ctx context.Context, env *Env) (Stats, error) {
	return builderPull(ctx, env, toolKind)
}

func (t *Tools) Push(ctx context.Context, env *Env) (Stats, error) {
	return builderPush(ctx, env, toolKind)
}

func builderPull(ctx context.Context, env *Env, kind builderKind) (Stats, error) {
	manifest, err := project.LoadIDManifest(env.Fs, kind.manifest(env.Layout, env.Space.ID()))
	if err != nil {
		return Stats{}, err
	}
	if len(manifest.Entries) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	pipeline := etl.Pipeline[etl.Object, etl.Object]{
		Extractor: etl.ExtractorFunc[etl.Object](func(ctx context.Context) ([]etl.Object, error) {
			return fetchBuilderObjects(ctx, env, kind, manifest.IDs())
		}),
		Transformer: etl.Identity[etl.Object](),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			count := 0
			for _, obj := range items {
				id := stringField(obj, "id")
				if id == "" {
					logging.Warnf("skipping %s object without id", kind.family)
					continue
				}
				path := kind.file(env.Layout, env.Space.ID(), id)
				if err := codecWrite(env.Fs, path, obj); err != nil {
					return count, err
				}
				count++
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

func builderPush(ctx context.Context, env *Env, kind builderKind) (Stats, error) {
	manifest, err := project.LoadIDManifest(env.Fs, kind.manifest(env.Layout, env.Space.ID()))
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
			for _, id := range manifest.IDs() {
				obj, err := codecReadObject(env.Fs, kind.file(env.Layout, env.Space.ID(), id))
				if err != nil {
					return nil, err
				}
				objects = append(objects, obj)
			}
			return objects, nil
		}),
		Transformer: etl.Identity[etl.Object](),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			return loadEach(ctx, env.concurrency(), items, func(ctx context.Context, obj etl.Object) error {
				id := stringField(obj, "id")
				if id == "" {
					return fmt.Errorf("%s object missing id field", kind.family)
				}
				return upsertBuilderObject(ctx, env.Space, kind, id, obj)
			})
		}),
		Concurrency: env.concurrency(),
	}

	pushed, err := pipeline.Run(ctx)
	stats.Pushed = pushed
	return stats, err
}

func fetchBuilderObjects(ctx context.Context, env *Env, kind builderKind, ids []string) ([]etl.Object, error) {
	results := make([]etl.Object, len(ids))
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(env.concurrency())
	for i, id := range ids {
		g.Go(func() error {
			obj, err := FetchBuilderObject(gctx, env.Space, kind.family, id)
			if err != nil {
				logging.Warnf("failed to fetch %s %q: %v", kind.family, id, err)
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

// FetchBuilderObject fetches one agent or tool by id. Exported for
// dependency resolution during add.
func FetchBuilderObject(ctx context.Context, space *kibana.SpaceClient, f kibana.Family, id string) (etl.Object, error) {
	kind := agentKind
	if f == kibana.FamilyTools {
		kind = toolKind
	}
	resp, err := space.GetInternal(ctx, kind.basePath+"/"+id)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to fetch %s %q: %w", f, id, err)
	}
	return decodeObject(resp.Body)
}

// ListBuilderObjects fetches every agent or tool visible in the space.
func ListBuilderObjects(ctx context.Context, space *kibana.SpaceClient, f kibana.Family) ([]etl.Object, error) {
	kind := agentKind
	if f == kibana.FamilyTools {
		kind = toolKind
	}
	resp, err := space.GetInternal(ctx, kind.basePath)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", f, err)
	}

	var result struct {
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return nil, fmt.Errorf("failed to parse %s list response: %w", f, err)
	}
	var objects []etl.Object
	for _, raw := range result.Results {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, err
		}
		objects = append(objects, obj)
	}
	return objects, nil
}

func upsertBuilderObject(ctx context.Context, space *kibana.SpaceClient, kind builderKind, id string, obj etl.Object) error {
	createBody := cloneObject(obj)
	for _, f := range builderCreateStrippedFields {
		delete(createBody, f)
	}
	updateBody := cloneObject(obj)
	for _, f := range builderUpdateStrippedFields {
		delete(updateBody, f)
	}

	_, err := upsert(ctx, id, upsertOps{
		head: func(ctx context.Context) (*kibana.Response, error) {
			return space.HeadInternal(ctx, kind.basePath+"/"+id)
		},
		create: func(ctx context.Context) (*kibana.Response, error) {
			return space.PostJSONInternal(ctx, kind.basePath, createBody)
		},
		update: func(ctx context.Context) (*kibana.Response, error) {
			return space.PutJSONInternal(ctx, kind.basePath+"/"+id, updateBody)
		},
	})
	return err
}
