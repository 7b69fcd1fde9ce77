// Package codec reads and writes the extended JSON dialect used for files on
// disk. The dialect is standard JSON plus // and /* */ comments, trailing
// commas, and triple-quoted multi-line strings:
//
//	{"yaml": """line1
//	line2"""}
//
// Multi-line strings keep their literal newlines in the file so diffs show
// line-by-line changes instead of one long escaped string.
package codec

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/spf13/afero"
	"github.com/tidwall/jsonc"
)

// Unmarshal parses extended JSON into json-shaped Go values: map[string]any,
// []any, string, bool, json.Number, nil. Numbers keep their literal form.
func Unmarshal(data []byte) (any, error) {
	normalized := normalizeTripleQuotes(data)
	plain := jsonc.ToJSON(normalized)

	dec := json.NewDecoder(bytes.NewReader(plain))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return v, nil
}

// Marshal renders a value as extended JSON with two-space indentation.
// Object keys are sorted so output is deterministic. Any string containing a
// newline is written triple-quoted, unless it contains a """ run or ends in
// a quote, in which case it falls back to standard escaping.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v, 0); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// ReadFile parses one extended JSON file.
func ReadFile(fsys afero.Fs, path string) (any, error) {
	data, err := afero.ReadFile(fsys, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}

// WriteFile renders a value and writes it, creating parent directories.
func WriteFile(fsys afero.Fs, path string, v any) error {
	data, err := Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func writeValue(buf *bytes.Buffer, v any, indent int) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case json.Number:
		buf.WriteString(val.String())
	case float64:
		data, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(data)
	case int:
		fmt.Fprintf(buf, "%d", val)
	case string:
		writeString(buf, val)
	case []any:
		return writeArray(buf, val, indent)
	case map[string]any:
		return writeObject(buf, val, indent)
	default:
		// Structured values from manifests etc. get flattened through
		// standard JSON first.
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("unsupported value %T: %w", v, err)
		}
		plain, err := Unmarshal(data)
		if err != nil {
			return err
		}
		return writeValue(buf, plain, indent)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	// A trailing quote would run into the closing delimiter, so such strings
	// stay in the escaped form.
	if strings.Contains(s, "\n") && !strings.Contains(s, `"""`) && !strings.HasSuffix(s, `"`) {
		buf.WriteString(`"""`)
		buf.WriteString(s)
		buf.WriteString(`"""`)
		return
	}
	buf.WriteByte('"')
	buf.WriteString(escapeString(s))
	buf.WriteByte('"')
}

func escapeString(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\b':
			b.WriteString(`\b`)
		case '\f':
			b.WriteString(`\f`)
		default:
			if unicode.IsControl(r) {
				fmt.Fprintf(&b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	return b.String()
}

func writeArray(buf *bytes.Buffer, arr []any, indent int) error {
	if len(arr) == 0 {
		buf.WriteString("[]")
		return nil
	}
	buf.WriteString("[\n")
	for i, item := range arr {
		writeIndent(buf, indent+2)
		if err := writeValue(buf, item, indent+2); err != nil {
			return err
		}
		if i < len(arr)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	writeIndent(buf, indent)
	buf.WriteByte(']')
	return nil
}

func writeObject(buf *bytes.Buffer, obj map[string]any, indent int) error {
	if len(obj) == 0 {
		buf.WriteString("{}")
		return nil
	}
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteString("{\n")
	for i, k := range keys {
		writeIndent(buf, indent+2)
		buf.WriteByte('"')
		buf.WriteString(escapeString(k))
		buf.WriteString(`": `)
		if err := writeValue(buf, obj[k], indent+2); err != nil {
			return err
		}
		if i < len(keys)-1 {
			buf.WriteByte(',')
		}
		buf.WriteByte('\n')
	}
	writeIndent(buf, indent)
	buf.WriteByte('}')
	return nil
}

func writeIndent(buf *bytes.Buffer, n int) {
	for i := 0; i < n; i++ {
		buf.WriteByte(' ')
	}
}

// normalizeTripleQuotes rewrites every """...""" run as a standard JSON
// string with escaped newlines so the remaining text is plain JSON with
// comments. When the content itself ends in a quote the run before the
// closing delimiter is four or more quotes; the final three always close and
// the rest belong to the content.
func normalizeTripleQuotes(input []byte) []byte {
	var out bytes.Buffer
	out.Grow(len(input))
	runes := []rune(string(input))

	i := 0
	for i < len(runes) {
		if runes[i] != '"' {
			out.WriteRune(runes[i])
			i++
			continue
		}
		if i+2 >= len(runes) || runes[i+1] != '"' || runes[i+2] != '"' {
			out.WriteRune(runes[i])
			i++
			continue
		}

		// Inside a triple-quoted string. Collect content until a run of
		// quotes at least three long; the whole run is consumed, the last
		// three close the string and the rest belong to the content.
		i += 3
		var content []rune
		for i < len(runes) {
			if runes[i] != '"' {
				content = append(content, runes[i])
				i++
				continue
			}
			run := 0
			for i < len(runes) && runes[i] == '"' {
				run++
				i++
			}
			if run >= 3 {
				for n := 0; n < run-3; n++ {
					content = append(content, '"')
				}
				break
			}
			for n := 0; n < run; n++ {
				content = append(content, '"')
			}
		}
		// Unterminated input falls through with the quotes already flushed;
		// the JSON parser reports the real error.

		out.WriteByte('"')
		out.WriteString(escapeString(string(content)))
		out.WriteByte('"')
	}
	return out.Bytes()
}
