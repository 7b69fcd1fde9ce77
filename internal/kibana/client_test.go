package kibana

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/project"
)

func statusHandler(version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"version":{"number":%q}}`, version)
	}
}

// testServer wires /api/status plus the given extra routes.
func testServer(t *testing.T, version string, routes map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", statusHandler(version))
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConnect(t *testing.T, srv *httptest.Server, fsys afero.Fs, maxInflight int) *Client {
	t.Helper()
	client, err := Connect(context.Background(), srv.URL, AuthNone{}, fsys, ".", maxInflight)
	require.NoError(t, err)
	return client
}

func projectWithSpaces(t *testing.T, ids ...string) afero.Fs {
	t.Helper()
	fsys := afero.NewMemMapFs()
	m := project.DefaultSpacesManifest()
	for _, id := range ids {
		m.Add(id, id)
	}
	require.NoError(t, m.Save(fsys, "."))
	return fsys
}

func TestConnectProbesVersion(t *testing.T) {
	srv := testServer(t, "9.3.0-SNAPSHOT", nil)
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	assert.Equal(t, ServerVersion{9, 3, 0}, client.Version())
	assert.Equal(t, DefaultMaxInflight, client.Capacity())
	assert.True(t, client.Supports(FamilyWorkflows).OK)
}

func TestConnectFailsOnUnreachableServer(t *testing.T) {
	srv := testServer(t, "9.3.0", nil)
	srv.Close()

	_, err := Connect(context.Background(), srv.URL, AuthNone{}, afero.NewMemMapFs(), ".", 0)
	require.Error(t, err)
	_, ok := errors.IsUserError(err)
	assert.True(t, ok)
}

func TestSpacePrefix(t *testing.T) {
	var paths []string
	var mu sync.Mutex
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/": func(w http.ResponseWriter, r *http.Request) {
			mu.Lock()
			paths = append(paths, r.URL.Path)
			mu.Unlock()
			w.Write([]byte(`{}`))
		},
	})
	client := testConnect(t, srv, projectWithSpaces(t, "team"), 0)

	defaultSpace, err := client.Space(project.DefaultSpaceID)
	require.NoError(t, err)
	team, err := client.Space("team")
	require.NoError(t, err)

	ctx := context.Background()
	_, err = defaultSpace.Get(ctx, "/api/workflows/w1")
	require.NoError(t, err)
	_, err = team.Get(ctx, "/api/workflows/w1")
	require.NoError(t, err)
	_, err = team.Get(ctx, "/s/team/api/workflows/w1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/api/workflows/w1",
		"/s/team/api/workflows/w1",
		"/s/team/api/workflows/w1",
	}, paths)
}

func TestSpaceRejectsUnknownID(t *testing.T) {
	srv := testServer(t, "9.3.0", nil)
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	_, err := client.Space("nope")
	require.Error(t, err)
	userErr, ok := errors.IsUserError(err)
	require.True(t, ok)
	assert.Contains(t, userErr.Message, "nope")
}

func TestDoRetriesOnceOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/flaky": func(w http.ResponseWriter, r *http.Request) {
			if calls.Add(1) == 1 {
				w.WriteHeader(http.StatusBadGateway)
				return
			}
			w.Write([]byte(`{}`))
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	resp, err := client.do(context.Background(), http.MethodGet, "/api/flaky", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/missing": func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(http.StatusNotFound)
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	resp, err := client.do(context.Background(), http.MethodGet, "/api/missing", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.Status)
	assert.Equal(t, int32(1), calls.Load())
	assert.True(t, IsStatus(resp.Err(), http.StatusNotFound))
}

func TestInflightCap(t *testing.T) {
	const limit = 2
	var current, peak atomic.Int32
	release := make(chan struct{})
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/slow": func(w http.ResponseWriter, r *http.Request) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			<-release
			current.Add(-1)
			w.Write([]byte(`{}`))
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), limit)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client.do(context.Background(), http.MethodGet, "/api/slow", nil, "", false)
		}()
	}
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(limit))
}

func TestRequestHeaders(t *testing.T) {
	var got http.Header
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/echo": func(w http.ResponseWriter, r *http.Request) {
			got = r.Header.Clone()
			w.Write([]byte(`{}`))
		},
	})
	client, err := Connect(context.Background(), srv.URL,
		AuthBasic{Username: "elastic", Password: "secret"}, afero.NewMemMapFs(), ".", 0)
	require.NoError(t, err)

	_, err = client.do(context.Background(), http.MethodGet, "/api/echo", nil, "", true)
	require.NoError(t, err)

	assert.Equal(t, "true", got.Get("kbn-xsrf"))
	assert.Equal(t, "Kibana", got.Get("X-Elastic-Internal-Origin"))
	assert.Contains(t, got.Get("Authorization"), "Basic ")

	_, err = client.do(context.Background(), http.MethodGet, "/api/echo", nil, "", false)
	require.NoError(t, err)
	assert.Empty(t, got.Get("X-Elastic-Internal-Origin"))
}

func TestPostNDJSONMultipartShape(t *testing.T) {
	var partName, partFile, partType, partBody string
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/saved_objects/_import": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			files := r.MultipartForm.File["file"]
			require.Len(t, files, 1)
			partName = "file"
			partFile = files[0].Filename
			partType = files[0].Header.Get("Content-Type")
			f, err := files[0].Open()
			require.NoError(t, err)
			defer f.Close()
			buf := make([]byte, files[0].Size)
			f.Read(buf)
			partBody = string(buf)
			w.Write([]byte(`{"success":true}`))
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)
	space, err := client.Space(project.DefaultSpaceID)
	require.NoError(t, err)

	resp, err := space.PostNDJSON(context.Background(), "/api/saved_objects/_import?overwrite=true",
		[]byte(`{"type":"dashboard","id":"d1"}`+"\n"))
	require.NoError(t, err)
	require.NoError(t, resp.Err())

	assert.Equal(t, "file", partName)
	assert.Equal(t, "dashboards.ndjson", partFile)
	assert.Equal(t, "application/x-ndjson", partType)
	assert.Contains(t, partBody, `"id":"d1"`)
}

func TestCheckAuth(t *testing.T) {
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/spaces/space/default": func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"id":"default","name":"Default","description":"the default space"}`))
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	info, err := client.CheckAuth(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "default", info.ID)
	assert.Equal(t, "Default", info.Name)
}

func TestCheckAuthRejected(t *testing.T) {
	srv := testServer(t, "9.3.0", map[string]http.HandlerFunc{
		"/api/spaces/space/default": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		},
	})
	client := testConnect(t, srv, afero.NewMemMapFs(), 0)

	_, err := client.CheckAuth(context.Background())
	require.Error(t, err)
	userErr, ok := errors.IsUserError(err)
	require.True(t, ok)
	assert.Contains(t, userErr.Hint, "KIBANA_")
}
