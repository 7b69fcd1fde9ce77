package project

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/afero"
	"sigs.k8s.io/yaml"
)

// SpaceEntry is one managed space in spaces.yml.
type SpaceEntry struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// KibanaInfo is the provenance block recorded after a successful pull.
type KibanaInfo struct {
	Version string `json:"version"`
}

// SpacesManifest mirrors the root spaces.yml file. Spaces keep their file
// order so rewrites produce minimal diffs.
type SpacesManifest struct {
	Spaces []SpaceEntry `json:"spaces"`
	Kibana *KibanaInfo  `json:"kibana,omitempty"`
}

// DefaultSpacesManifest is the manifest a fresh project starts with.
func DefaultSpacesManifest() *SpacesManifest {
	return &SpacesManifest{
		Spaces: []SpaceEntry{{ID: DefaultSpaceID, Name: DefaultSpaceName}},
	}
}

// LoadSpacesManifest reads spaces.yml from the project root. The boolean is
// false when the file does not exist; callers decide whether that is an error
// or an implicit default-space project.
func LoadSpacesManifest(fsys afero.Fs, root string) (*SpacesManifest, bool, error) {
	path := NewLayout(root).SpacesManifest()
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var m SpacesManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, false, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	seen := make(map[string]bool, len(m.Spaces))
	for _, s := range m.Spaces {
		if s.ID == "" {
			return nil, false, fmt.Errorf("%s: space entry with empty id", path)
		}
		if seen[s.ID] {
			return nil, false, fmt.Errorf("%s: duplicate space id %q", path, s.ID)
		}
		seen[s.ID] = true
	}
	return &m, true, nil
}

// Save writes the manifest back to spaces.yml.
func (m *SpacesManifest) Save(fsys afero.Fs, root string) error {
	path := NewLayout(root).SpacesManifest()
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Registry returns the id to name mapping the client uses for space routing.
func (m *SpacesManifest) Registry() map[string]string {
	reg := make(map[string]string, len(m.Spaces))
	for _, s := range m.Spaces {
		reg[s.ID] = s.Name
	}
	return reg
}

// IDs returns the managed space ids in a stable order: file order.
func (m *SpacesManifest) IDs() []string {
	ids := make([]string, 0, len(m.Spaces))
	for _, s := range m.Spaces {
		ids = append(ids, s.ID)
	}
	return ids
}

// Contains reports whether the space id is managed.
func (m *SpacesManifest) Contains(id string) bool {
	for _, s := range m.Spaces {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Add appends a space, reporting whether the manifest changed.
func (m *SpacesManifest) Add(id, name string) bool {
	if m.Contains(id) {
		return false
	}
	m.Spaces = append(m.Spaces, SpaceEntry{ID: id, Name: name})
	return true
}

// SetServerVersion records the server version observed during a pull.
// Existing entries are preserved; only the version field changes.
func (m *SpacesManifest) SetServerVersion(version string) {
	if m.Kibana == nil {
		m.Kibana = &KibanaInfo{}
	}
	m.Kibana.Version = version
}

// ServerVersion returns the recorded provenance version, or "" when no pull
// has been recorded yet.
func (m *SpacesManifest) ServerVersion() string {
	if m.Kibana == nil {
		return ""
	}
	return m.Kibana.Version
}

// SortSpaces orders entries with the default space first, then by id. Used
// by init and migrate when building a manifest from scratch.
func (m *SpacesManifest) SortSpaces() {
	sort.SliceStable(m.Spaces, func(i, j int) bool {
		if m.Spaces[i].ID == DefaultSpaceID {
			return m.Spaces[j].ID != DefaultSpaceID
		}
		if m.Spaces[j].ID == DefaultSpaceID {
			return false
		}
		return m.Spaces[i].ID < m.Spaces[j].ID
	})
}
