package etl

import (
	"encoding/json"
	"fmt"
	"strings"

	"go.kibob.dev/kibob/internal/logging"
)

// Object is the json-shaped value family adapters move through pipelines.
type Object = map[string]any

// DefaultEscapedFields lists the saved object attributes the server stores
// as JSON strings. They are unescaped into real JSON on export and escaped
// back on import.
var DefaultEscapedFields = []string{
	"attributes.panelsJSON",
	"attributes.fieldFormatMap",
	"attributes.controlGroupInput.ignoreParentSettingsJSON",
	"attributes.controlGroupInput.panelsJSON",
	"attributes.kibanaSavedObjectMeta.searchSourceJSON",
	"attributes.optionsJSON",
	"attributes.visState",
	"attributes.fieldAttrs",
}

// DropFields removes top-level fields, typically server-managed metadata
// that should not be version controlled.
func DropFields(fields ...string) Transformer[Object, Object] {
	return TransformerFunc[Object, Object](func(obj Object) (Object, error) {
		for _, f := range fields {
			delete(obj, f)
		}
		return obj, nil
	})
}

// UnescapeFields parses the named dot-path fields from JSON strings into
// real JSON values. Strings that do not look like JSON, or fail to parse,
// are left alone.
func UnescapeFields(paths ...string) Transformer[Object, Object] {
	return TransformerFunc[Object, Object](func(obj Object) (Object, error) {
		for _, path := range paths {
			parent, key, ok := resolvePath(obj, path)
			if !ok {
				continue
			}
			s, ok := parent[key].(string)
			if !ok {
				continue
			}
			trimmed := strings.TrimSpace(s)
			if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
				continue
			}
			var parsed any
			dec := json.NewDecoder(strings.NewReader(s))
			dec.UseNumber()
			if err := dec.Decode(&parsed); err != nil {
				logging.Debugf("failed to unescape field %s, leaving as string", path)
				continue
			}
			parent[key] = parsed
		}
		return obj, nil
	})
}

// EscapeFields serializes the named dot-path fields back into compact JSON
// strings, the inverse of UnescapeFields. Fields that are already strings
// are left alone.
func EscapeFields(paths ...string) Transformer[Object, Object] {
	return TransformerFunc[Object, Object](func(obj Object) (Object, error) {
		for _, path := range paths {
			parent, key, ok := resolvePath(obj, path)
			if !ok {
				continue
			}
			switch parent[key].(type) {
			case map[string]any, []any:
				data, err := json.Marshal(parent[key])
				if err != nil {
					return nil, fmt.Errorf("failed to escape field %s: %w", path, err)
				}
				parent[key] = string(data)
			}
		}
		return obj, nil
	})
}

// SetManagedFlag marks objects as externally managed when managed is true,
// and strips the flag otherwise.
func SetManagedFlag(managed bool) Transformer[Object, Object] {
	return TransformerFunc[Object, Object](func(obj Object) (Object, error) {
		if managed {
			obj["managed"] = true
		} else {
			delete(obj, "managed")
		}
		return obj, nil
	})
}

// resolvePath walks a dot-separated path and returns the map holding the
// final segment. Missing intermediate segments make the lookup a no-op.
func resolvePath(obj Object, path string) (parent Object, key string, ok bool) {
	parts := strings.Split(path, ".")
	current := obj
	for _, part := range parts[:len(parts)-1] {
		next, isMap := current[part].(map[string]any)
		if !isMap {
			return nil, "", false
		}
		current = next
	}
	key = parts[len(parts)-1]
	_, exists := current[key]
	return current, key, exists
}
