// Package migrate converts a legacy single-space project layout into the
// per-space layout. The legacy tree kept one manifest directory and flat
// object directories at the root:
//
//	manifest/saved_objects.json   →  default/manifest/saved_objects.json
//	manifest/workflows.yml        →  default/manifest/workflows.yml
//	manifest/agents.yml           →  default/manifest/agents.yml
//	manifest/tools.yml            →  default/manifest/tools.yml
//	manifest/spaces.yml           →  spaces.yml
//	objects/, workflows/,
//	agents/, tools/               →  default/<same>
package migrate

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

var legacyManifests = []string{
	"saved_objects.json",
	"workflows.yml",
	"agents.yml",
	"tools.yml",
}

var legacyDirs = []string{"objects", "workflows", "agents", "tools"}

// Needed reports whether the tree at root still uses the legacy layout.
func Needed(fsys afero.Fs, root string) bool {
	if ok, _ := afero.DirExists(fsys, filepath.Join(root, project.DefaultSpaceID, "manifest")); ok {
		return false
	}
	for _, name := range legacyManifests {
		if ok, _ := afero.Exists(fsys, filepath.Join(root, "manifest", name)); ok {
			return true
		}
	}
	return false
}

// Run migrates the project in place and returns the paths that moved. When a
// client is supplied, the default space definition is fetched and stored;
// offline migration leaves space.json absent.
func Run(ctx context.Context, client *kibana.Client, fsys afero.Fs, root string) ([]string, error) {
	if !Needed(fsys, root) {
		return nil, nil
	}

	layout := project.NewLayout(root)
	var moved []string

	if err := fsys.MkdirAll(layout.ManifestDir(project.DefaultSpaceID), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", layout.ManifestDir(project.DefaultSpaceID), err)
	}

	for _, name := range legacyManifests {
		from := filepath.Join(root, "manifest", name)
		to := filepath.Join(layout.ManifestDir(project.DefaultSpaceID), name)
		if err := moveIfExists(fsys, from, to, &moved); err != nil {
			return moved, err
		}
	}
	if err := moveIfExists(fsys, filepath.Join(root, "manifest", project.SpacesManifestFile), layout.SpacesManifest(), &moved); err != nil {
		return moved, err
	}
	for _, dir := range legacyDirs {
		from := filepath.Join(root, dir)
		to := filepath.Join(layout.SpaceDir(project.DefaultSpaceID), dir)
		if err := moveIfExists(fsys, from, to, &moved); err != nil {
			return moved, err
		}
	}

	// The legacy manifest directory should now only hold leftovers; remove
	// it when empty.
	if entries, err := afero.ReadDir(fsys, filepath.Join(root, "manifest")); err == nil && len(entries) == 0 {
		if err := fsys.Remove(filepath.Join(root, "manifest")); err != nil {
			logging.Debugf("could not remove empty manifest directory: %v", err)
		}
	}

	if _, exists, err := project.LoadSpacesManifest(fsys, root); err != nil {
		return moved, err
	} else if !exists {
		if err := project.DefaultSpacesManifest().Save(fsys, root); err != nil {
			return moved, err
		}
		moved = append(moved, layout.SpacesManifest())
	}

	if client != nil {
		if err := fetchSpaceDefinition(ctx, client, fsys, layout); err != nil {
			logging.Warnf("could not fetch default space definition: %v", err)
		} else {
			moved = append(moved, layout.SpaceFile(project.DefaultSpaceID))
		}
	}
	return moved, nil
}

func moveIfExists(fsys afero.Fs, from, to string, moved *[]string) error {
	ok, err := afero.Exists(fsys, from)
	if err != nil || !ok {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(to), err)
	}
	if err := fsys.Rename(from, to); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", from, to, err)
	}
	*moved = append(*moved, to)
	return nil
}

func fetchSpaceDefinition(ctx context.Context, client *kibana.Client, fsys afero.Fs, layout project.Layout) error {
	view, err := client.Space(project.DefaultSpaceID)
	if err != nil {
		return err
	}
	resp, err := view.Get(ctx, "/api/spaces/space/"+project.DefaultSpaceID)
	if err != nil {
		return err
	}
	if err := resp.Err(); err != nil {
		return err
	}
	obj, err := codec.Unmarshal(resp.Body)
	if err != nil {
		return err
	}
	record, ok := obj.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected space definition shape")
	}
	return codec.WriteFile(fsys, layout.SpaceFile(project.DefaultSpaceID), record)
}
