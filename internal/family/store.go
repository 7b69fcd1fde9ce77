package family

import (
	"fmt"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

// SanitizeSavedObject applies the pull-side transforms to one exported saved
// object record.
func SanitizeSavedObject(obj etl.Object) (etl.Object, error) {
	return etl.Chain(
		etl.UnescapeFields(etl.DefaultEscapedFields...),
		etl.DropFields(savedObjectDroppedFields...),
	).Transform(obj)
}

// LoadLocal reads every record of one family from the project tree, in
// manifest order, without touching the server. Saved objects come back
// wire-shaped: nested JSON re-escaped into strings.
func LoadLocal(env *Env, f kibana.Family) ([]etl.Object, error) {
	space := env.Space.ID()
	switch f {
	case kibana.FamilySpaces:
		path := env.Layout.SpaceFile(space)
		exists, err := afero.Exists(env.Fs, path)
		if err != nil || !exists {
			return nil, err
		}
		obj, err := codecReadObject(env.Fs, path)
		if err != nil {
			return nil, err
		}
		return []etl.Object{obj}, nil

	case kibana.FamilySavedObjects:
		manifest, err := project.LoadSavedObjectsManifest(env.Fs, env.Layout.SavedObjectsManifest(space))
		if err != nil {
			return nil, err
		}
		var records []etl.Object
		for _, ref := range manifest.Objects {
			obj, err := codecReadObject(env.Fs, env.Layout.ObjectFile(space, ref.Type, ref.ID))
			if err != nil {
				return nil, err
			}
			escaped, err := etl.EscapeFields(etl.DefaultEscapedFields...).Transform(obj)
			if err != nil {
				return nil, err
			}
			records = append(records, escaped)
		}
		return records, nil

	case kibana.FamilyWorkflows:
		manifest, err := project.LoadIDManifest(env.Fs, env.Layout.WorkflowsManifest(space))
		if err != nil {
			return nil, err
		}
		var records []etl.Object
		for _, entry := range manifest.Entries {
			name := entry.Name
			if name == "" {
				name = entry.ID
			}
			obj, err := codecReadObject(env.Fs, env.Layout.WorkflowFile(space, name))
			if err != nil {
				return nil, err
			}
			records = append(records, obj)
		}
		return records, nil

	case kibana.FamilyAgents, kibana.FamilyTools:
		kind := agentKind
		if f == kibana.FamilyTools {
			kind = toolKind
		}
		manifest, err := project.LoadIDManifest(env.Fs, kind.manifest(env.Layout, space))
		if err != nil {
			return nil, err
		}
		var records []etl.Object
		for _, id := range manifest.IDs() {
			obj, err := codecReadObject(env.Fs, kind.file(env.Layout, space, id))
			if err != nil {
				return nil, err
			}
			records = append(records, obj)
		}
		return records, nil
	}
	return nil, fmt.Errorf("unknown family %q", f)
}

// StoreObject writes a fetched object into the project tree and records it
// in its family manifest. It reports whether the manifest changed; an
// already-managed id rewrites the file but is not counted as a change.
func StoreObject(env *Env, f kibana.Family, obj etl.Object) (bool, error) {
	id := stringField(obj, "id")
	if id == "" {
		return false, fmt.Errorf("%s object missing id field", f)
	}

	var manifestPath, filePath, name string
	switch f {
	case kibana.FamilyWorkflows:
		sanitized, err := etl.DropFields(workflowDroppedFields...).Transform(obj)
		if err != nil {
			return false, err
		}
		obj = sanitized
		name = stringField(obj, "name")
		if name == "" {
			name = id
		}
		manifestPath = env.Layout.WorkflowsManifest(env.Space.ID())
		filePath = env.Layout.WorkflowFile(env.Space.ID(), name)
	case kibana.FamilyAgents:
		manifestPath = env.Layout.AgentsManifest(env.Space.ID())
		filePath = env.Layout.AgentFile(env.Space.ID(), id)
	case kibana.FamilyTools:
		manifestPath = env.Layout.ToolsManifest(env.Space.ID())
		filePath = env.Layout.ToolFile(env.Space.ID(), id)
	default:
		return false, fmt.Errorf("family %s does not store per-id objects", f)
	}

	if err := codecWrite(env.Fs, filePath, obj); err != nil {
		return false, err
	}

	manifest, err := project.LoadIDManifest(env.Fs, manifestPath)
	if err != nil {
		return false, err
	}
	if !manifest.Add(id, name) {
		return false, nil
	}
	if err := manifest.Save(env.Fs, manifestPath); err != nil {
		return false, err
	}
	return true, nil
}
