package family

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

func writeIDManifest(t *testing.T, fsys afero.Fs, path string, ids ...string) {
	t.Helper()
	m := &project.IDManifest{}
	for _, id := range ids {
		m.Add(id, "")
	}
	require.NoError(t, m.Save(fsys, path))
}

func TestAgentsPullWritesFilesByID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent_builder/agents/a1", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Kibana", r.Header.Get("X-Elastic-Internal-Origin"))
		w.Write([]byte(`{"id":"a1","name":"Helper","readonly":false}`))
	})
	env, fsys := newTestEnv(t, mux)
	writeIDManifest(t, fsys, env.Layout.AgentsManifest("default"), "a1")

	adapter := &Agents{}
	stats, err := adapter.Pull(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pulled)

	obj, err := codec.ReadFile(fsys, env.Layout.AgentFile("default", "a1"))
	require.NoError(t, err)
	assert.Equal(t, "Helper", obj.(map[string]any)["name"])
}

func TestBuilderPullSkipsUnfetchableEntries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent_builder/tools/t1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"t1"}`))
	})
	env, fsys := newTestEnv(t, mux)
	writeIDManifest(t, fsys, env.Layout.ToolsManifest("default"), "t1", "gone")

	adapter := &Tools{}
	stats, err := adapter.Pull(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Pulled)
	assert.Equal(t, 1, stats.Skipped)
}

func TestBuilderPushStripsServerAssignedFields(t *testing.T) {
	var createBody, updateBody etl.Object
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /api/agent_builder/tools/t1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("HEAD /api/agent_builder/tools/t2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /api/agent_builder/tools", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &createBody)
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("PUT /api/agent_builder/tools/t2", func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &updateBody)
		w.Write([]byte(`{}`))
	})
	env, fsys := newTestEnv(t, mux)
	writeIDManifest(t, fsys, env.Layout.ToolsManifest("default"), "t1", "t2")

	require.NoError(t, codec.WriteFile(fsys, env.Layout.ToolFile("default", "t1"), map[string]any{
		"id": "t1", "readonly": true, "schema": map[string]any{}, "configuration": map[string]any{},
	}))
	require.NoError(t, codec.WriteFile(fsys, env.Layout.ToolFile("default", "t2"), map[string]any{
		"id": "t2", "readonly": true, "schema": map[string]any{}, "description": "keep me",
	}))

	adapter := &Tools{}
	stats, err := adapter.Push(context.Background(), env)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Pushed)

	// Create keeps the id but never sends readonly or schema.
	require.NotNil(t, createBody)
	assert.Equal(t, "t1", createBody["id"])
	_, hasReadonly := createBody["readonly"]
	assert.False(t, hasReadonly)
	_, hasSchema := createBody["schema"]
	assert.False(t, hasSchema)

	// Update drops the id too: it is carried by the URL.
	require.NotNil(t, updateBody)
	_, hasID := updateBody["id"]
	assert.False(t, hasID)
	_, hasReadonly = updateBody["readonly"]
	assert.False(t, hasReadonly)
	assert.Equal(t, "keep me", updateBody["description"])
}

func TestBuilderPushContinuesPastItemFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("HEAD /api/agent_builder/tools/t1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("PUT /api/agent_builder/tools/t1", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid configuration"}`))
	})
	mux.HandleFunc("HEAD /api/agent_builder/tools/t2", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /api/agent_builder/tools", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	env, fsys := newTestEnv(t, mux)
	writeIDManifest(t, fsys, env.Layout.ToolsManifest("default"), "t1", "t2")
	for _, id := range []string{"t1", "t2"} {
		require.NoError(t, codec.WriteFile(fsys, env.Layout.ToolFile("default", id), map[string]any{"id": id}))
	}

	adapter := &Tools{}
	stats, err := adapter.Push(context.Background(), env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "t1")
	assert.Equal(t, 1, stats.Pushed, "the rejected item must not block its sibling")
}

func TestListBuilderObjects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/agent_builder/agents", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[{"id":"a1"},{"id":"a2"}]}`))
	})
	env, _ := newTestEnv(t, mux)

	objects, err := ListBuilderObjects(context.Background(), env.Space, kibana.FamilyAgents)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.Equal(t, "a1", objects[0]["id"])
}
