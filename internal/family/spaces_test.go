package family

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/etl"
)

func TestSpacesPullStoresDefinition(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/spaces/space/default", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"default","name":"Default","color":"#00bfb3"}`))
	})
	env, fsys := newTestEnv(t, mux)

	adapter := &Spaces{}
	stats, err := adapter.Pull(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pulled)

	obj, err := codec.ReadFile(fsys, env.Layout.SpaceFile("default"))
	require.NoError(t, err)
	assert.Equal(t, "#00bfb3", obj.(map[string]any)["color"])
}

func TestSpacesPushMissingFileIsNoop(t *testing.T) {
	env, _ := newTestEnv(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected request %s", r.URL.Path)
	}))

	adapter := &Spaces{}
	stats, err := adapter.Push(context.Background(), env)
	require.NoError(t, err)
	assert.Zero(t, stats.Pushed)
}

func TestSpacesPushInjectsIDAndUpdates(t *testing.T) {
	var updated etl.Object
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/spaces/space/default", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"default"}`))
	})
	mux.HandleFunc("PUT /api/spaces/space/default", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &updated)
		w.Write([]byte(`{}`))
	})
	env, fsys := newTestEnv(t, mux)

	require.NoError(t, codec.WriteFile(fsys, env.Layout.SpaceFile("default"), map[string]any{
		"name": "Default",
	}))

	adapter := &Spaces{}
	stats, err := adapter.Push(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pushed)
	require.NotNil(t, updated)
	assert.Equal(t, "default", updated["id"])
	assert.Equal(t, "Default", updated["name"])
}

func TestSpacesPushCreatesWhenAbsent(t *testing.T) {
	var created etl.Object
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/spaces/space/default", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /api/spaces/space", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &created)
		w.Write([]byte(`{}`))
	})
	env, fsys := newTestEnv(t, mux)

	require.NoError(t, codec.WriteFile(fsys, env.Layout.SpaceFile("default"), map[string]any{
		"id": "default", "name": "Default",
	}))

	adapter := &Spaces{}
	stats, err := adapter.Push(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pushed)
	assert.Equal(t, "Default", created["name"])
}
