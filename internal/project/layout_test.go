package project

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLayoutPaths(t *testing.T) {
	l := NewLayout("proj")

	assert.Equal(t, filepath.Join("proj", "spaces.yml"), l.SpacesManifest())
	assert.Equal(t, filepath.Join("proj", "team", "space.json"), l.SpaceFile("team"))
	assert.Equal(t, filepath.Join("proj", "team", "manifest", "saved_objects.json"), l.SavedObjectsManifest("team"))
	assert.Equal(t, filepath.Join("proj", "team", "manifest", "workflows.yml"), l.WorkflowsManifest("team"))
	assert.Equal(t, filepath.Join("proj", "team", "objects", "dashboard", "d1.json"), l.ObjectFile("team", "dashboard", "d1"))
	assert.Equal(t, filepath.Join("proj", "team", "workflows", "Weekly Report.json"), l.WorkflowFile("team", "Weekly Report"))
	assert.Equal(t, filepath.Join("proj", "team", "agents", "a1.json"), l.AgentFile("team", "a1"))
	assert.Equal(t, filepath.Join("proj", "bundle", "team", "workflows.ndjson"), l.BundleFile("team", "workflows"))
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain-id", "plain-id"},
		{"a/b\\c", "a_b_c"},
		{`q:"u*e?r<y>|`, "q__u_e_r_y__"},
		{" padded. ", "padded"},
		{"...", "_"},
		{"", "_"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.input), tt.input)
	}
}
