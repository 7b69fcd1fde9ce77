package project

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// ObjectRef identifies one saved object by type and id.
type ObjectRef struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

// SavedObjectsManifest mirrors manifest/saved_objects.json, which doubles as
// the export request body sent to the server.
type SavedObjectsManifest struct {
	Objects               []ObjectRef `json:"objects"`
	ExcludeExportDetails  bool        `json:"excludeExportDetails"`
	IncludeReferencesDeep bool        `json:"includeReferencesDeep"`
}

// DefaultSavedObjectsManifest returns an empty manifest with the export
// options every project starts with.
func DefaultSavedObjectsManifest() *SavedObjectsManifest {
	return &SavedObjectsManifest{
		Objects:               []ObjectRef{},
		ExcludeExportDetails:  true,
		IncludeReferencesDeep: true,
	}
}

// LoadSavedObjectsManifest reads the saved objects manifest for a space.
// A missing file yields the default manifest.
func LoadSavedObjectsManifest(fsys afero.Fs, path string) (*SavedObjectsManifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSavedObjectsManifest(), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var m SavedObjectsManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[ObjectRef]bool, len(m.Objects))
	for _, ref := range m.Objects {
		if ref.Type == "" || ref.ID == "" {
			return nil, fmt.Errorf("%s: object entry missing type or id", path)
		}
		if seen[ref] {
			return nil, fmt.Errorf("%s: duplicate object %s/%s", path, ref.Type, ref.ID)
		}
		seen[ref] = true
	}
	return &m, nil
}

// Save writes the manifest as indented JSON.
func (m *SavedObjectsManifest) Save(fsys afero.Fs, path string) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := afero.WriteFile(fsys, path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Contains reports whether the object is already tracked.
func (m *SavedObjectsManifest) Contains(ref ObjectRef) bool {
	for _, o := range m.Objects {
		if o == ref {
			return true
		}
	}
	return false
}

// Add tracks an object, reporting whether the manifest changed.
func (m *SavedObjectsManifest) Add(ref ObjectRef) bool {
	if m.Contains(ref) {
		return false
	}
	m.Objects = append(m.Objects, ref)
	return true
}

// Sort orders entries by type then id for stable diffs.
func (m *SavedObjectsManifest) Sort() {
	sort.Slice(m.Objects, func(i, j int) bool {
		if m.Objects[i].Type != m.Objects[j].Type {
			return m.Objects[i].Type < m.Objects[j].Type
		}
		return m.Objects[i].ID < m.Objects[j].ID
	})
}

// Entry is one item of an id-list manifest (workflows.yml, agents.yml,
// tools.yml). In YAML it is either a bare id string or an {id, name} object;
// both forms are accepted on read. On write, entries with a name render as
// objects and the rest as bare strings.
type Entry struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

func (e *Entry) UnmarshalJSON(data []byte) error {
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		e.ID = id
		e.Name = ""
		return nil
	}
	type plain Entry
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*e = Entry(p)
	return nil
}

func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Name == "" {
		return json.Marshal(e.ID)
	}
	type plain Entry
	return json.Marshal(plain(e))
}

// IDManifest is the shared shape of the workflows, agents and tools
// manifests.
type IDManifest struct {
	Entries []Entry
}

// LoadIDManifest reads an id-list manifest. A missing file yields an empty
// manifest.
func LoadIDManifest(fsys afero.Fs, path string) (*IDManifest, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return &IDManifest{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var entries []Entry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("%s: entry with empty id", path)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("%s: duplicate id %q", path, e.ID)
		}
		seen[e.ID] = true
	}
	return &IDManifest{Entries: entries}, nil
}

// Save writes the manifest as a YAML list.
func (m *IDManifest) Save(fsys afero.Fs, path string) error {
	entries := m.Entries
	if entries == nil {
		entries = []Entry{}
	}
	data, err := yaml.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// IDs returns entry ids in manifest order.
func (m *IDManifest) IDs() []string {
	ids := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		ids = append(ids, e.ID)
	}
	return ids
}

// Contains reports whether the id is tracked.
func (m *IDManifest) Contains(id string) bool {
	for _, e := range m.Entries {
		if e.ID == id {
			return true
		}
	}
	return false
}

// Add tracks an id, reporting whether the manifest changed. Name is optional
// and only meaningful for workflows.
func (m *IDManifest) Add(id, name string) bool {
	if m.Contains(id) {
		return false
	}
	m.Entries = append(m.Entries, Entry{ID: id, Name: name})
	return true
}

// Rename updates the recorded name for an id, reporting whether anything
// changed. Used when a pull observes a workflow rename.
func (m *IDManifest) Rename(id, name string) bool {
	for i := range m.Entries {
		if m.Entries[i].ID == id {
			if m.Entries[i].Name == name {
				return false
			}
			m.Entries[i].Name = name
			return true
		}
	}
	return false
}
