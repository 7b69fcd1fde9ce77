// Package project owns the on-disk layout of a managed project and the
// manifest files inside it. All path decisions live here; nothing else in
// the tool concatenates project paths.
//
// The canonical tree:
//
//	<root>/
//	  spaces.yml
//	  <space-id>/
//	    space.json
//	    manifest/
//	      saved_objects.json
//	      workflows.yml
//	      agents.yml
//	      tools.yml
//	    objects/<type>/<id>.json
//	    workflows/<name>.json
//	    agents/<id>.json
//	    tools/<id>.json
//	  bundle/
package project

import (
	"path/filepath"
	"strings"
)

const (
	// SpacesManifestFile is the root manifest listing managed spaces.
	SpacesManifestFile = "spaces.yml"

	// DefaultSpaceID is reserved: it maps to "no /s/ prefix" on the wire
	// but still gets its own directory on disk.
	DefaultSpaceID   = "default"
	DefaultSpaceName = "Default"

	manifestDirName = "manifest"
	bundleDirName   = "bundle"
)

// Layout resolves every path inside one project tree.
type Layout struct {
	Root string
}

func NewLayout(root string) Layout {
	return Layout{Root: root}
}

func (l Layout) SpacesManifest() string {
	return filepath.Join(l.Root, SpacesManifestFile)
}

func (l Layout) SpaceDir(space string) string {
	return filepath.Join(l.Root, space)
}

// SpaceFile is the space definition pulled from the server.
func (l Layout) SpaceFile(space string) string {
	return filepath.Join(l.SpaceDir(space), "space.json")
}

func (l Layout) ManifestDir(space string) string {
	return filepath.Join(l.SpaceDir(space), manifestDirName)
}

func (l Layout) SavedObjectsManifest(space string) string {
	return filepath.Join(l.ManifestDir(space), "saved_objects.json")
}

func (l Layout) WorkflowsManifest(space string) string {
	return filepath.Join(l.ManifestDir(space), "workflows.yml")
}

func (l Layout) AgentsManifest(space string) string {
	return filepath.Join(l.ManifestDir(space), "agents.yml")
}

func (l Layout) ToolsManifest(space string) string {
	return filepath.Join(l.ManifestDir(space), "tools.yml")
}

func (l Layout) ObjectsDir(space string) string {
	return filepath.Join(l.SpaceDir(space), "objects")
}

// ObjectFile stores a saved object under objects/<type>/<id>.json.
func (l Layout) ObjectFile(space, objectType, id string) string {
	return filepath.Join(l.ObjectsDir(space), objectType, SanitizeFilename(id)+".json")
}

func (l Layout) WorkflowsDir(space string) string {
	return filepath.Join(l.SpaceDir(space), "workflows")
}

// WorkflowFile stores workflows by name so diffs read well.
func (l Layout) WorkflowFile(space, name string) string {
	return filepath.Join(l.WorkflowsDir(space), SanitizeFilename(name)+".json")
}

func (l Layout) AgentsDir(space string) string {
	return filepath.Join(l.SpaceDir(space), "agents")
}

func (l Layout) AgentFile(space, id string) string {
	return filepath.Join(l.AgentsDir(space), SanitizeFilename(id)+".json")
}

func (l Layout) ToolsDir(space string) string {
	return filepath.Join(l.SpaceDir(space), "tools")
}

func (l Layout) ToolFile(space, id string) string {
	return filepath.Join(l.ToolsDir(space), SanitizeFilename(id)+".json")
}

// BundleDir holds togo output; the core never reads from it.
func (l Layout) BundleDir() string {
	return filepath.Join(l.Root, bundleDirName)
}

func (l Layout) BundleFile(space, family string) string {
	return filepath.Join(l.BundleDir(), space, family+".ndjson")
}

// SanitizeFilename makes an object id or name safe as a file stem. Path
// separators and characters that confuse common filesystems are replaced
// with underscores.
func SanitizeFilename(name string) string {
	replacer := strings.NewReplacer(
		"/", "_",
		"\\", "_",
		":", "_",
		"*", "_",
		"?", "_",
		"\"", "_",
		"<", "_",
		">", "_",
		"|", "_",
		"\x00", "_",
	)
	sanitized := replacer.Replace(name)
	sanitized = strings.Trim(sanitized, " .")
	if sanitized == "" {
		return "_"
	}
	return sanitized
}
