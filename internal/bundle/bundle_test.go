package bundle

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

func TestWrite(t *testing.T) {
	fsys := afero.NewMemMapFs()
	layout := project.NewLayout(".")

	path, err := Write(fsys, layout, "team", kibana.FamilyWorkflows, []map[string]any{
		{"id": "w1", "name": "One"},
		{"id": "w2", "name": "Two"},
	})
	require.NoError(t, err)
	assert.Equal(t, layout.BundleFile("team", "workflows"), path)

	data, err := afero.ReadFile(fsys, path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"id":"w1"`)
	assert.Contains(t, lines[1], `"id":"w2"`)
}

func TestWriteNoRecordsWritesNothing(t *testing.T) {
	fsys := afero.NewMemMapFs()
	layout := project.NewLayout(".")

	path, err := Write(fsys, layout, "team", kibana.FamilyAgents, nil)
	require.NoError(t, err)
	assert.Empty(t, path)

	exists, _ := afero.DirExists(fsys, layout.BundleDir())
	assert.False(t, exists)
}
