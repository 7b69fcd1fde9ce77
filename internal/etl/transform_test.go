package etl

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDropFields(t *testing.T) {
	obj := Object{"id": "a", "updated_at": "now", "version": "1", "attributes": Object{}}

	out, err := DropFields("updated_at", "version", "not_there").Transform(obj)
	require.NoError(t, err)
	assert.Equal(t, Object{"id": "a", "attributes": Object{}}, out)
}

func TestUnescapeFields(t *testing.T) {
	tests := []struct {
		name string
		in   Object
		path string
		want any
	}{
		{
			name: "object string becomes json",
			in:   Object{"attributes": Object{"panelsJSON": `{"panels":[1]}`}},
			path: "attributes.panelsJSON",
			want: Object{"panels": []any{json.Number("1")}},
		},
		{
			name: "array string becomes json",
			in:   Object{"attributes": Object{"panelsJSON": `[{"x":1}]`}},
			path: "attributes.panelsJSON",
			want: []any{Object{"x": json.Number("1")}},
		},
		{
			name: "plain string left alone",
			in:   Object{"attributes": Object{"panelsJSON": "not json"}},
			path: "attributes.panelsJSON",
			want: "not json",
		},
		{
			name: "malformed json left alone",
			in:   Object{"attributes": Object{"panelsJSON": `{"broken":`}},
			path: "attributes.panelsJSON",
			want: `{"broken":`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := UnescapeFields(tt.path).Transform(tt.in)
			require.NoError(t, err)
			got := out["attributes"].(Object)["panelsJSON"]
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("unexpected value (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEscapeFieldsInvertsUnescape(t *testing.T) {
	obj := Object{
		"attributes": Object{
			"panelsJSON":  Object{"panels": []any{json.Number("1")}},
			"description": "untouched",
		},
	}

	out, err := EscapeFields("attributes.panelsJSON", "attributes.description").Transform(obj)
	require.NoError(t, err)

	attrs := out["attributes"].(Object)
	assert.Equal(t, `{"panels":[1]}`, attrs["panelsJSON"])
	assert.Equal(t, "untouched", attrs["description"])
}

func TestEscapeFieldsMissingPathIsNoop(t *testing.T) {
	obj := Object{"attributes": Object{}}
	out, err := EscapeFields("attributes.kibanaSavedObjectMeta.searchSourceJSON").Transform(obj)
	require.NoError(t, err)
	assert.Equal(t, Object{"attributes": Object{}}, out)
}

func TestSetManagedFlag(t *testing.T) {
	out, err := SetManagedFlag(true).Transform(Object{"id": "a"})
	require.NoError(t, err)
	assert.Equal(t, true, out["managed"])

	out, err = SetManagedFlag(false).Transform(Object{"id": "a", "managed": true})
	require.NoError(t, err)
	_, present := out["managed"]
	assert.False(t, present)
}

func TestChainAppliesInOrder(t *testing.T) {
	chain := Chain(
		SetManagedFlag(true),
		DropFields("managed"),
	)
	out, err := chain.Transform(Object{"id": "a"})
	require.NoError(t, err)
	_, present := out["managed"]
	assert.False(t, present)
}
