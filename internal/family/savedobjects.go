package family

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// savedObjectDroppedFields are server-managed metadata stripped on pull so
// files stay stable across exports. References are kept: they are part of
// the object graph, not volatile metadata.
var savedObjectDroppedFields = []string{
	"created_at",
	"created_by",
	"updated_at",
	"updated_by",
	"version",
	"namespaces",
	"count",
	"managed",
}

// SavedObjects reconciles saved objects through the bulk export and import
// endpoints.
type SavedObjects struct{}

func (SavedObjects) Family() kibana.Family {
	return kibana.FamilySavedObjects
}

// Pull exports the manifest's objects and writes one file per object under
// objects/<type>/<id>.json.
func (a *SavedObjects) Pull(ctx context.Context, env *Env) (Stats, error) {
	manifest, err := project.LoadSavedObjectsManifest(env.Fs, env.Layout.SavedObjectsManifest(env.Space.ID()))
	if err != nil {
		return Stats{}, err
	}
	if len(manifest.Objects) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	pipeline := etl.Pipeline[etl.Object, etl.Object]{
		Extractor: etl.ExtractorFunc[etl.Object](func(ctx context.Context) ([]etl.Object, error) {
			return exportObjects(ctx, env.Space, manifest)
		}),
		Transformer: etl.Chain(
			etl.UnescapeFields(etl.DefaultEscapedFields...),
			etl.DropFields(savedObjectDroppedFields...),
		),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			count := 0
			for _, obj := range items {
				objectType := stringField(obj, "type")
				id := stringField(obj, "id")
				if objectType == "" || id == "" {
					logging.Warnf("skipping exported object without type or id")
					continue
				}
				path := env.Layout.ObjectFile(env.Space.ID(), objectType, id)
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
	return stats, err
}

// Push reads every manifest object from disk and imports them in one bulk
// request with overwrite enabled.
func (a *SavedObjects) Push(ctx context.Context, env *Env) (Stats, error) {
	manifest, err := project.LoadSavedObjectsManifest(env.Fs, env.Layout.SavedObjectsManifest(env.Space.ID()))
	if err != nil {
		return Stats{}, err
	}
	if len(manifest.Objects) == 0 {
		return Stats{}, nil
	}

	var stats Stats
	pipeline := etl.Pipeline[etl.Object, etl.Object]{
		Extractor: etl.ExtractorFunc[etl.Object](func(ctx context.Context) ([]etl.Object, error) {
			var objects []etl.Object
			for _, ref := range manifest.Objects {
				path := env.Layout.ObjectFile(env.Space.ID(), ref.Type, ref.ID)
				obj, err := codecReadObject(env.Fs, path)
				if err != nil {
					return nil, err
				}
				objects = append(objects, obj)
			}
			return objects, nil
		}),
		Transformer: etl.Chain(
			etl.EscapeFields(etl.DefaultEscapedFields...),
			etl.SetManagedFlag(env.Managed),
		),
		Loader: etl.LoaderFunc[etl.Object](func(ctx context.Context, items []etl.Object) (int, error) {
			return importObjects(ctx, env.Space, items)
		}),
		Concurrency: env.concurrency(),
	}

	pushed, err := pipeline.Run(ctx)
	stats.Pushed = pushed
	return stats, err
}

// exportObjects posts the manifest as the export request body and splits the
// NDJSON response. The trailing export-details line is dropped.
func exportObjects(ctx context.Context, space *kibana.SpaceClient, manifest *project.SavedObjectsManifest) ([]etl.Object, error) {
	resp, err := space.PostJSON(ctx, "/api/saved_objects/_export", manifest)
	if err != nil {
		return nil, err
	}
	if err := resp.Err(); err != nil {
		return nil, fmt.Errorf("failed to export saved objects: %w", err)
	}

	var objects []etl.Object
	scanner := bufio.NewScanner(bytes.NewReader(resp.Body))
	scanner.Buffer(make([]byte, 0, 64*1024), 32*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj etl.Object
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("failed to parse export line: %w", err)
		}
		if _, isDetails := obj["exportedCount"]; isDetails {
			continue
		}
		objects = append(objects, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read export response: %w", err)
	}
	return objects, nil
}

// importObjects uploads all objects as one NDJSON document.
func importObjects(ctx context.Context, space *kibana.SpaceClient, items []etl.Object) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	for _, obj := range items {
		line, err := json.Marshal(obj)
		if err != nil {
			return 0, fmt.Errorf("failed to encode saved object: %w", err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	resp, err := space.PostNDJSON(ctx, "/api/saved_objects/_import?overwrite=true", buf.Bytes())
	if err != nil {
		return 0, err
	}
	if err := resp.Err(); err != nil {
		return 0, fmt.Errorf("failed to import saved objects: %w", err)
	}

	var result struct {
		Success      bool `json:"success"`
		SuccessCount int  `json:"successCount"`
		Errors       []struct {
			ID    string          `json:"id"`
			Type  string          `json:"type"`
			Error json.RawMessage `json:"error"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(resp.Body, &result); err != nil {
		return 0, fmt.Errorf("failed to parse import response: %w", err)
	}
	if !result.Success {
		var failed []string
		for _, e := range result.Errors {
			failed = append(failed, fmt.Sprintf("%s/%s: %s", e.Type, e.ID, string(e.Error)))
		}
		return result.SuccessCount, fmt.Errorf("import rejected %d object(s): %s",
			len(result.Errors), strings.Join(failed, "; "))
	}
	return result.SuccessCount, nil
}
