package engine

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/family"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// Add brings server objects under management in one space: it fetches the
// selected objects, writes them to the tree, and records them in the
// manifests. With dependencies included, the reference graph is walked to a
// fixed point. Re-adding a managed id is a no-op.
func (e *Engine) Add(ctx context.Context, space string, f kibana.Family, selectors []string, includeDeps bool, force bool) (*Report, error) {
	report := &Report{}
	if _, _, err := e.resolveSpaces([]string{space}); err != nil {
		return report, err
	}

	support := e.client.Supports(f)
	if !support.OK {
		reason := support.Reason(f)
		if !force {
			report.addSkip(Skip{Family: f, Reason: reason})
			return report, nil
		}
		logging.Warnf("attempting unsupported family %s with --force (%s)", f, reason)
		report.addSkip(Skip{Family: f, Reason: reason, Forced: true})
	}

	view, err := e.client.Space(space)
	if err != nil {
		return report, err
	}
	env := &family.Env{
		Client:      e.client,
		Space:       view,
		Fs:          e.fs,
		Layout:      e.layout,
		Concurrency: e.client.Capacity(),
	}

	switch f {
	case kibana.FamilySavedObjects:
		return report, e.addSavedObjects(ctx, report, env, selectors)
	case kibana.FamilyWorkflows, kibana.FamilyAgents, kibana.FamilyTools:
		return report, e.addByID(ctx, report, env, f, selectors, includeDeps)
	default:
		return report, errors.NewUserError(fmt.Sprintf("add does not apply to family %q", f))
	}
}

// addSavedObjects records type:id selectors in the manifest, then pulls the
// family so the new objects land on disk.
func (e *Engine) addSavedObjects(ctx context.Context, report *Report, env *family.Env, selectors []string) error {
	manifestPath := e.layout.SavedObjectsManifest(env.Space.ID())
	manifest, err := project.LoadSavedObjectsManifest(e.fs, manifestPath)
	if err != nil {
		return err
	}

	changed := 0
	for _, sel := range selectors {
		objectType, id, ok := strings.Cut(sel, ":")
		if !ok || objectType == "" || id == "" {
			return errors.NewUserErrorWithHint(
				fmt.Sprintf("invalid saved object selector %q", sel),
				"use <type>:<id>, for example dashboard:abc")
		}
		if manifest.Add(project.ObjectRef{Type: objectType, ID: id}) {
			changed++
		} else {
			logging.Infof("%s already managed, no change", sel)
		}
	}
	if changed > 0 {
		if err := manifest.Save(e.fs, manifestPath); err != nil {
			return err
		}
	}

	adapter := &family.SavedObjects{}
	stats, err := adapter.Pull(ctx, env)
	report.addRow(Row{
		Space:  env.Space.ID(),
		Family: kibana.FamilySavedObjects,
		Action: "add",
		Stats:  stats,
		Err:    err,
	})
	return nil
}

// addByID fetches each selector (and optionally its dependency closure) and
// stores everything reached.
func (e *Engine) addByID(ctx context.Context, report *Report, env *family.Env, f kibana.Family, selectors []string, includeDeps bool) error {
	start := make([]family.Ref, 0, len(selectors))
	for _, id := range selectors {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		start = append(start, family.Ref{Family: f, ID: id})
	}

	var fetched map[family.Ref]etl.Object
	var err error
	if includeDeps {
		fetched, err = family.Closure(ctx, env.Space, start)
	} else {
		fetched = make(map[family.Ref]etl.Object, len(start))
		for _, ref := range start {
			obj, ferr := fetchOne(ctx, env, ref)
			if ferr != nil {
				logging.Warnf("failed to fetch %s %q: %v", ref.Family, ref.ID, ferr)
				continue
			}
			fetched[ref] = obj
		}
	}
	if err != nil {
		return err
	}

	perFamily := map[kibana.Family]family.Stats{}
	for ref, obj := range fetched {
		added, err := family.StoreObject(env, ref.Family, obj)
		if err != nil {
			return err
		}
		stats := perFamily[ref.Family]
		if added {
			stats.Pulled++
		} else {
			logging.Infof("%s %q already managed, no change", ref.Family, ref.ID)
			stats.Skipped++
		}
		perFamily[ref.Family] = stats
	}

	for _, fam := range kibana.AllFamilies() {
		if stats, ok := perFamily[fam]; ok {
			report.addRow(Row{
				Space:  env.Space.ID(),
				Family: fam,
				Action: "add",
				Stats:  stats,
			})
		}
	}
	return nil
}

func fetchOne(ctx context.Context, env *family.Env, ref family.Ref) (etl.Object, error) {
	if ref.Family == kibana.FamilyWorkflows {
		return family.FetchWorkflow(ctx, env.Space, ref.ID)
	}
	return family.FetchBuilderObject(ctx, env.Space, ref.Family, ref.ID)
}

// AddFile merges a saved objects export bundle into the manifest and the
// tree without touching the server.
func (e *Engine) AddFile(space, path string) (*Report, error) {
	report := &Report{}
	if _, _, err := e.resolveSpaces([]string{space}); err != nil {
		return report, err
	}

	data, err := afero.ReadFile(e.fs, path)
	if err != nil {
		return report, fmt.Errorf("failed to read %s: %w", path, err)
	}

	manifestPath := e.layout.SavedObjectsManifest(space)
	manifest, err := project.LoadSavedObjectsManifest(e.fs, manifestPath)
	if err != nil {
		return report, err
	}

	var stats family.Stats
	scanner := bufio.NewScanner(strings.NewReader(string(data)))
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
			return report, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if _, isDetails := obj["exportedCount"]; isDetails {
			continue
		}

		objectType, _ := obj["type"].(string)
		id, _ := obj["id"].(string)
		if objectType == "" || id == "" {
			logging.Warnf("skipping bundle record without type or id")
			continue
		}

		sanitized, err := family.SanitizeSavedObject(obj)
		if err != nil {
			return report, err
		}
		if err := codec.WriteFile(e.fs, e.layout.ObjectFile(space, objectType, id), map[string]any(sanitized)); err != nil {
			return report, err
		}
		if manifest.Add(project.ObjectRef{Type: objectType, ID: id}) {
			stats.Pulled++
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("failed to read %s: %w", path, err)
	}

	if err := manifest.Save(e.fs, manifestPath); err != nil {
		return report, err
	}
	report.addRow(Row{Space: space, Family: kibana.FamilySavedObjects, Action: "add", Stats: stats})
	return report, nil
}
