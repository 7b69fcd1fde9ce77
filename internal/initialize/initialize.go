// Package initialize bootstraps a fresh project: spaces.yml, the default
// space tree, a saved objects manifest sliced from an export bundle when one
// is present, and the .gitignore section for the tool's scratch files.
package initialize

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/family"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

const (
	gitignoreStart = "# Start kibob"
	gitignoreEnd   = "# End kibob"
)

var gitignorePatterns = []string{
	".env*",
	"export.ndjson",
	"import.ndjson",
	".import/",
	"response.json",
	"manifest_patch.json",
}

// Result reports what init produced.
type Result struct {
	Objects       int
	ManifestPath  string
	SpacesCreated bool
}

// Run initializes the project at root. When exportPath points at an export
// bundle, each record becomes a file under the default space and an entry in
// the saved objects manifest; otherwise the project starts empty.
func Run(fsys afero.Fs, root, exportPath string) (*Result, error) {
	layout := project.NewLayout(root)
	result := &Result{ManifestPath: layout.SavedObjectsManifest(project.DefaultSpaceID)}

	_, exists, err := project.LoadSpacesManifest(fsys, root)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := project.DefaultSpacesManifest().Save(fsys, root); err != nil {
			return nil, err
		}
		result.SpacesCreated = true
	}

	manifest, err := project.LoadSavedObjectsManifest(fsys, result.ManifestPath)
	if err != nil {
		return nil, err
	}

	if exportPath != "" {
		if ok, _ := afero.Exists(fsys, exportPath); !ok {
			return nil, fmt.Errorf("export bundle %s does not exist", exportPath)
		}
		count, err := sliceBundle(fsys, layout, manifest, exportPath)
		if err != nil {
			return nil, err
		}
		result.Objects = count
	}

	manifest.Sort()
	if err := manifest.Save(fsys, result.ManifestPath); err != nil {
		return nil, err
	}
	if err := UpdateGitignore(fsys, root); err != nil {
		return nil, err
	}
	return result, nil
}

// sliceBundle splits an export NDJSON file into per-object files and
// manifest entries.
func sliceBundle(fsys afero.Fs, layout project.Layout, manifest *project.SavedObjectsManifest, exportPath string) (int, error) {
	data, err := afero.ReadFile(fsys, exportPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", exportPath, err)
	}

	count := 0
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
			return count, fmt.Errorf("failed to parse %s: %w", exportPath, err)
		}
		if _, isDetails := obj["exportedCount"]; isDetails {
			continue
		}

		objectType, _ := obj["type"].(string)
		id, _ := obj["id"].(string)
		if objectType == "" || id == "" {
			logging.Warnf("skipping export record without type or id")
			continue
		}

		sanitized, err := family.SanitizeSavedObject(obj)
		if err != nil {
			return count, err
		}
		path := layout.ObjectFile(project.DefaultSpaceID, objectType, id)
		if err := codec.WriteFile(fsys, path, map[string]any(sanitized)); err != nil {
			return count, err
		}
		manifest.Add(project.ObjectRef{Type: objectType, ID: id})
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, fmt.Errorf("failed to read %s: %w", exportPath, err)
	}
	return count, nil
}

// UpdateGitignore appends the tool's ignore section once, bounded by marker
// lines so reruns are no-ops.
func UpdateGitignore(fsys afero.Fs, root string) error {
	path := filepath.Join(root, ".gitignore")
	var content string
	if ok, _ := afero.Exists(fsys, path); ok {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		content = string(data)
	}

	if strings.Contains(content, gitignoreStart) {
		return nil
	}
	if content != "" && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	content += gitignoreStart + "\n" + strings.Join(gitignorePatterns, "\n") + "\n" + gitignoreEnd + "\n"

	if err := afero.WriteFile(fsys, path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
