package family

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

// Spaces reconciles the space definition itself. The spaces API is global,
// never prefixed, so this adapter talks through the unscoped client.
type Spaces struct{}

func (Spaces) Family() kibana.Family {
	return kibana.FamilySpaces
}

func spacesAPI(env *Env) (*kibana.SpaceClient, error) {
	return env.Client.Space(project.DefaultSpaceID)
}

// Pull fetches the space definition and stores it as space.json.
func (a *Spaces) Pull(ctx context.Context, env *Env) (Stats, error) {
	api, err := spacesAPI(env)
	if err != nil {
		return Stats{}, err
	}
	resp, err := api.Get(ctx, "/api/spaces/space/"+env.Space.ID())
	if err != nil {
		return Stats{}, err
	}
	if err := resp.Err(); err != nil {
		return Stats{}, fmt.Errorf("failed to fetch space %q: %w", env.Space.ID(), err)
	}

	var obj etl.Object
	dec := json.NewDecoder(strings.NewReader(string(resp.Body)))
	dec.UseNumber()
	if err := dec.Decode(&obj); err != nil {
		return Stats{}, fmt.Errorf("failed to parse space %q: %w", env.Space.ID(), err)
	}

	if err := codecWrite(env.Fs, env.Layout.SpaceFile(env.Space.ID()), obj); err != nil {
		return Stats{}, err
	}
	return Stats{Pulled: 1}, nil
}

// Push upserts the space from space.json. A missing file is not an error;
// the space is simply not managed as an object.
func (a *Spaces) Push(ctx context.Context, env *Env) (Stats, error) {
	path := env.Layout.SpaceFile(env.Space.ID())
	exists, err := afero.Exists(env.Fs, path)
	if err != nil {
		return Stats{}, err
	}
	if !exists {
		return Stats{}, nil
	}

	obj, err := codecReadObject(env.Fs, path)
	if err != nil {
		return Stats{}, err
	}
	if stringField(obj, "id") == "" {
		obj = cloneObject(obj)
		obj["id"] = env.Space.ID()
	}

	api, err := spacesAPI(env)
	if err != nil {
		return Stats{}, err
	}
	id := env.Space.ID()
	_, err = upsert(ctx, id, upsertOps{
		head: func(ctx context.Context) (*kibana.Response, error) {
			resp, err := api.Get(ctx, "/api/spaces/space/"+id)
			if err != nil {
				return nil, err
			}
			// The spaces API has no HEAD; normalize the GET probe to the
			// two statuses the state machine understands.
			if resp.Status != http.StatusOK && resp.Status != http.StatusNotFound {
				return resp, nil
			}
			return &kibana.Response{Status: resp.Status}, nil
		},
		create: func(ctx context.Context) (*kibana.Response, error) {
			return api.PostJSON(ctx, "/api/spaces/space", obj)
		},
		update: func(ctx context.Context) (*kibana.Response, error) {
			return api.PutJSON(ctx, "/api/spaces/space/"+id, obj)
		},
	})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Pushed: 1}, nil
}
