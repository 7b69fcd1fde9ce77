package codec

import (
	"encoding/json"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalExtendedSyntax(t *testing.T) {
	input := []byte(`{
  // workflow definition
  "name": "daily report", /* inline */
  "steps": [
    "collect",
    "render",
  ],
}`)

	v, err := Unmarshal(input)
	require.NoError(t, err)

	obj, ok := v.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "daily report", obj["name"])
	assert.Equal(t, []any{"collect", "render"}, obj["steps"])
}

func TestUnmarshalTripleQuotedString(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "multi line",
			input: `{"yaml": """line1` + "\n" + `line2"""}`,
			want:  "line1\nline2",
		},
		{
			name:  "embedded double quotes",
			input: `{"yaml": """say "hi" twice"""}`,
			want:  `say "hi" twice`,
		},
		{
			name:  "backslashes stay literal",
			input: `{"yaml": """C:\temp\file"""}`,
			want:  `C:\temp\file`,
		},
		{
			name:  "unicode",
			input: `{"yaml": """héllo` + "\n" + `wörld"""}`,
			want:  "héllo\nwörld",
		},
		{
			name:  "empty",
			input: `{"yaml": """"""}`,
			want:  "",
		},
		{
			name:  "trailing quote joins the closing run",
			input: `{"yaml": """FROM idx` + "\n" + `| WHERE x == "a""""}`,
			want:  "FROM idx\n| WHERE x == \"a\"",
		},
		{
			name:  "two trailing quotes join the closing run",
			input: `{"yaml": """he said ""ok"""""}`,
			want:  `he said ""ok""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := Unmarshal([]byte(tt.input))
			require.NoError(t, err)
			obj := v.(map[string]any)
			assert.Equal(t, tt.want, obj["yaml"])
		})
	}
}

func TestMarshalWritesMultilineStringsTripleQuoted(t *testing.T) {
	data, err := Marshal(map[string]any{
		"definition": "steps:\n  - collect\n  - render",
		"id":         "w1",
	})
	require.NoError(t, err)

	out := string(data)
	assert.Contains(t, out, `"definition": """steps:`)
	assert.Contains(t, out, `  - render"""`)
	assert.Contains(t, out, `"id": "w1"`)
}

func TestMarshalSortsKeysAndIndents(t *testing.T) {
	data, err := Marshal(map[string]any{
		"zeta":  true,
		"alpha": []any{},
		"mid":   map[string]any{"b": json.Number("2"), "a": json.Number("1")},
	})
	require.NoError(t, err)

	want := `{
  "alpha": [],
  "mid": {
    "a": 1,
    "b": 2
  },
  "zeta": true
}
`
	assert.Equal(t, want, string(data))
}

func TestRoundTripPreservesNumbers(t *testing.T) {
	input := []byte(`{
  "big": 9007199254740993,
  "frac": 0.1,
  "exp": 1e10
}
`)
	v, err := Unmarshal(input)
	require.NoError(t, err)
	out, err := Marshal(v)
	require.NoError(t, err)

	assert.Contains(t, string(out), `"big": 9007199254740993`)
	assert.Contains(t, string(out), `"frac": 0.1`)
	assert.Contains(t, string(out), `"exp": 1e10`)
}

func TestRoundTripMultilineString(t *testing.T) {
	original := map[string]any{
		"yaml": "name: test\ntriggers:\n  - type: manual\n",
		"tabs": "a\tb",
	}
	data, err := Marshal(original)
	require.NoError(t, err)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any(original), back)
}

func TestMarshalEscapesControlCharacters(t *testing.T) {
	data, err := Marshal(map[string]any{"s": "bell\x07 quote\" slash\\ tab\t"})
	require.NoError(t, err)
	assert.Contains(t, string(data), `bell\u0007 quote\" slash\\ tab\t`)
}

func TestStringWithTripleQuoteRunFallsBackToEscaping(t *testing.T) {
	original := map[string]any{"s": "has\n\"\"\"inside"}
	data, err := Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `\n\"\"\"`)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any(original), back)
}

func TestStringEndingInQuoteFallsBackToEscaping(t *testing.T) {
	original := map[string]any{"query": "FROM idx\n| WHERE x == \"a\""}
	data, err := Marshal(original)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"""`)
	assert.Contains(t, string(data), `\"a\"`)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, map[string]any(original), back)
}

func TestReadWriteFile(t *testing.T) {
	fsys := afero.NewMemMapFs()
	value := map[string]any{"id": "d1", "attributes": map[string]any{"title": "Dash"}}

	require.NoError(t, WriteFile(fsys, "proj/objects/dashboard/d1.json", value))

	back, err := ReadFile(fsys, "proj/objects/dashboard/d1.json")
	require.NoError(t, err)
	assert.Equal(t, value, back)

	_, err = ReadFile(fsys, "proj/objects/dashboard/missing.json")
	require.Error(t, err)
}
