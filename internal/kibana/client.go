// Package kibana implements the HTTP client for the server: authentication,
// version probing, the per-family capability matrix, and space-aware request
// routing with a global in-flight request cap.
package kibana

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/sync/semaphore"

	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// DefaultMaxInflight caps concurrent requests when no override is set.
const DefaultMaxInflight = 8

const (
	headerXSRF           = "kbn-xsrf"
	headerInternalOrigin = "X-Elastic-Internal-Origin"
)

// Client talks to one server. All requests, across every space view, share
// one semaphore so total in-flight requests never exceed the configured cap.
type Client struct {
	httpClient *http.Client
	baseURL    string
	auth       Auth
	version    ServerVersion
	inflight   *semaphore.Weighted
	capacity   int
	registry   map[string]string
}

// Connect probes the server's status endpoint, records its version, and
// loads the space registry from the project's spaces.yml when one exists.
func Connect(ctx context.Context, baseURL string, auth Auth, fsys afero.Fs, projectDir string, maxInflight int) (*Client, error) {
	if maxInflight <= 0 {
		maxInflight = DefaultMaxInflight
	}
	c := &Client{
		httpClient: &http.Client{Timeout: 120 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		auth:       auth,
		inflight:   semaphore.NewWeighted(int64(maxInflight)),
		capacity:   maxInflight,
		registry:   map[string]string{project.DefaultSpaceID: project.DefaultSpaceName},
	}

	manifest, exists, err := project.LoadSpacesManifest(fsys, projectDir)
	if err != nil {
		return nil, err
	}
	if exists {
		for id, name := range manifest.Registry() {
			c.registry[id] = name
		}
	}

	version, err := c.probeVersion(ctx)
	if err != nil {
		return nil, errors.WrapUserError(fmt.Sprintf("failed to connect to %s", baseURL), err)
	}
	c.version = version
	logging.Debugf("connected to %s, server version %s", c.baseURL, version)
	return c, nil
}

func (c *Client) probeVersion(ctx context.Context) (ServerVersion, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/status", nil, "", false)
	if err != nil {
		return ServerVersion{}, err
	}
	if err := resp.Err(); err != nil {
		return ServerVersion{}, err
	}

	var status struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return ServerVersion{}, fmt.Errorf("failed to parse status response: %w", err)
	}
	return ParseServerVersion(status.Version.Number)
}

// Version returns the server version detected at connect time.
func (c *Client) Version() ServerVersion {
	return c.version
}

// Capacity returns the in-flight request cap. The engine reuses it to bound
// its own fan-out.
func (c *Client) Capacity() int {
	return c.capacity
}

// Supports answers the capability query for one family.
func (c *Client) Supports(f Family) Support {
	return Support{
		OK:       IsSupported(f, c.version),
		Required: MinVersion(f),
		Detected: c.version,
	}
}

// Profile returns the endpoint variant to use for a family on this server.
func (c *Client) Profile(f Family) Profile {
	return ProfileFor(f, c.version)
}

// SpaceName resolves a space id through the registry, falling back to the
// id itself for spaces discovered on the server but not yet in spaces.yml.
func (c *Client) SpaceName(id string) string {
	if name, ok := c.registry[id]; ok {
		return name
	}
	return id
}

// Space returns a view of the client scoped to one space. Views share the
// parent's connection, auth, and in-flight cap. Unregistered space ids are
// rejected so a typo cannot silently target the wrong namespace.
func (c *Client) Space(id string) (*SpaceClient, error) {
	if _, ok := c.registry[id]; !ok {
		return nil, errors.NewUserErrorWithHint(
			fmt.Sprintf("unknown space %q", id),
			"add the space to spaces.yml or check the --space value")
	}
	prefix := ""
	if id != project.DefaultSpaceID {
		prefix = "/s/" + id
	}
	return &SpaceClient{client: c, id: id, prefix: prefix}, nil
}

// SpaceInfo is the subset of a space definition shown by the auth command.
type SpaceInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CheckAuth verifies the credentials by fetching the default space.
func (c *Client) CheckAuth(ctx context.Context) (SpaceInfo, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/spaces/space/default", nil, "", false)
	if err != nil {
		return SpaceInfo{}, err
	}
	if err := resp.Err(); err != nil {
		if resp.Status == http.StatusUnauthorized || resp.Status == http.StatusForbidden {
			return SpaceInfo{}, errors.NewUserErrorWithHint(
				fmt.Sprintf("authentication failed (%s)", c.auth),
				"check KIBANA_USERNAME/KIBANA_PASSWORD or KIBANA_APIKEY")
		}
		return SpaceInfo{}, err
	}

	var info SpaceInfo
	if err := json.Unmarshal(resp.Body, &info); err != nil {
		return SpaceInfo{}, fmt.Errorf("failed to parse space response: %w", err)
	}
	return info, nil
}

// HTTPError is a non-2xx response surfaced as an error.
type HTTPError struct {
	Status int
	Body   []byte
}

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(string(e.Body))
	if len(body) > 300 {
		body = body[:300] + "..."
	}
	if body == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, body)
}

// IsStatus reports whether err is an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var httpErr *HTTPError
	return stderrors.As(err, &httpErr) && httpErr.Status == status
}

// Response is the outcome of one request with the body fully read.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Err converts a non-2xx response into an HTTPError.
func (r *Response) Err() error {
	if r.Status >= 200 && r.Status < 300 {
		return nil
	}
	return &HTTPError{Status: r.Status, Body: r.Body}
}

// do is the request primitive. It acquires the in-flight semaphore, sets the
// standard headers, and retries exactly once on a transport error or a 5xx
// response.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, internal bool) (*Response, error) {
	if err := c.inflight.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.inflight.Release(1)

	resp, err := c.roundTrip(ctx, method, path, body, contentType, internal)
	if err == nil && resp.Status < 500 {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	logging.Debugf("%s %s failed, retrying once: %v", method, path, firstError(err, resp))
	return c.roundTrip(ctx, method, path, body, contentType, internal)
}

func firstError(err error, resp *Response) any {
	if err != nil {
		return err
	}
	return resp.Status
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, contentType string, internal bool) (*Response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}

	req.Header.Set(headerXSRF, "true")
	if internal {
		req.Header.Set(headerInternalOrigin, "Kibana")
	}
	if h := c.auth.header(); h != "" {
		req.Header.Set("Authorization", h)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for %s %s: %w", method, path, err)
	}
	return &Response{Status: httpResp.StatusCode, Header: httpResp.Header, Body: data}, nil
}

// SpaceClient is a client view scoped to one space. Paths are rewritten with
// the /s/<id> prefix exactly once; the default space has no prefix.
type SpaceClient struct {
	client *Client
	id     string
	prefix string
}

// ID returns the space id this view targets.
func (s *SpaceClient) ID() string {
	return s.id
}

// Name returns the registered display name for this space.
func (s *SpaceClient) Name() string {
	return s.client.SpaceName(s.id)
}

// Version returns the server version detected at connect time.
func (s *SpaceClient) Version() ServerVersion {
	return s.client.version
}

// Profile returns the endpoint variant for a family on this server.
func (s *SpaceClient) Profile(f Family) Profile {
	return s.client.Profile(f)
}

func (s *SpaceClient) path(p string) string {
	if s.prefix == "" || strings.HasPrefix(p, s.prefix+"/") {
		return p
	}
	return s.prefix + p
}

func (s *SpaceClient) Get(ctx context.Context, path string) (*Response, error) {
	return s.client.do(ctx, http.MethodGet, s.path(path), nil, "", false)
}

func (s *SpaceClient) GetInternal(ctx context.Context, path string) (*Response, error) {
	return s.client.do(ctx, http.MethodGet, s.path(path), nil, "", true)
}

func (s *SpaceClient) Head(ctx context.Context, path string) (*Response, error) {
	return s.client.do(ctx, http.MethodHead, s.path(path), nil, "", false)
}

func (s *SpaceClient) HeadInternal(ctx context.Context, path string) (*Response, error) {
	return s.client.do(ctx, http.MethodHead, s.path(path), nil, "", true)
}

func (s *SpaceClient) Delete(ctx context.Context, path string) (*Response, error) {
	return s.client.do(ctx, http.MethodDelete, s.path(path), nil, "", false)
}

func (s *SpaceClient) PostJSON(ctx context.Context, path string, body any) (*Response, error) {
	return s.sendJSON(ctx, http.MethodPost, path, body, false)
}

func (s *SpaceClient) PostJSONInternal(ctx context.Context, path string, body any) (*Response, error) {
	return s.sendJSON(ctx, http.MethodPost, path, body, true)
}

func (s *SpaceClient) PutJSON(ctx context.Context, path string, body any) (*Response, error) {
	return s.sendJSON(ctx, http.MethodPut, path, body, false)
}

func (s *SpaceClient) PutJSONInternal(ctx context.Context, path string, body any) (*Response, error) {
	return s.sendJSON(ctx, http.MethodPut, path, body, true)
}

func (s *SpaceClient) sendJSON(ctx context.Context, method, path string, body any, internal bool) (*Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request body: %w", err)
	}
	return s.client.do(ctx, method, s.path(path), data, "application/json", internal)
}

// PostNDJSON uploads an NDJSON document as a multipart form, the shape the
// saved objects import endpoint expects.
func (s *SpaceClient) PostNDJSON(ctx context.Context, path string, ndjson []byte) (*Response, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="dashboards.ndjson"`)
	header.Set("Content-Type", "application/x-ndjson")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if _, err := part.Write(ndjson); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}
	return s.client.do(ctx, http.MethodPost, s.path(path), buf.Bytes(), writer.FormDataContentType(), false)
}
