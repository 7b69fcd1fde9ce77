// Package bundle writes portable NDJSON bundles under bundle/. Bundles are
// an export surface for handing objects to other tooling; nothing in the
// tool reads them back.
package bundle

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

// Write renders the records as one NDJSON file per space and family and
// returns the file path. No records means no file.
func Write(fsys afero.Fs, layout project.Layout, space string, f kibana.Family, records []map[string]any) (string, error) {
	if len(records) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for _, record := range records {
		line, err := json.Marshal(record)
		if err != nil {
			return "", fmt.Errorf("failed to encode %s record: %w", f, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	path := layout.BundleFile(space, string(f))
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := afero.WriteFile(fsys, path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}
