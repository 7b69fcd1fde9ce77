package engine

import (
	"context"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.kibob.dev/kibob/internal/codec"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

func TestTogoBundlesLocalRecords(t *testing.T) {
	fsys := afero.NewMemMapFs()
	layout := project.NewLayout(".")

	m := &project.IDManifest{Entries: []project.Entry{{ID: "w1", Name: "One"}}}
	require.NoError(t, m.Save(fsys, layout.WorkflowsManifest("default")))
	require.NoError(t, codec.WriteFile(fsys, layout.WorkflowFile("default", "One"), map[string]any{
		"id": "w1", "name": "One",
	}))

	eng := newTestEngine(t, "9.3.0", fsys, nil)
	report, err := eng.Togo(context.Background(), Options{
		Families: []kibana.Family{kibana.FamilyWorkflows},
		Managed:  true,
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome(err))

	data, err := afero.ReadFile(fsys, layout.BundleFile("default", "workflows"))
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	assert.Contains(t, line, `"id":"w1"`)
	assert.Contains(t, line, `"managed":true`)

	rows := report.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, "togo", rows[0].Action)
	assert.Equal(t, 1, rows[0].Stats.Pushed)
}

func TestTogoNothingManagedProducesNoBundle(t *testing.T) {
	fsys := afero.NewMemMapFs()
	eng := newTestEngine(t, "9.3.0", fsys, nil)

	report, err := eng.Togo(context.Background(), Options{
		Families: []kibana.Family{kibana.FamilyWorkflows},
	})
	require.NoError(t, err)
	require.NoError(t, report.Outcome(err))

	exists, _ := afero.DirExists(fsys, project.NewLayout(".").BundleDir())
	assert.False(t, exists)
}
