package engine

import (
	"context"

	"go.kibob.dev/kibob/internal/bundle"
	"go.kibob.dev/kibob/internal/etl"
	"go.kibob.dev/kibob/internal/family"
	"go.kibob.dev/kibob/internal/logging"
)

// Togo bundles the managed records of each selected space into NDJSON files
// under bundle/. Records are read from the tree only; the server is not
// contacted beyond the connect-time probe.
func (e *Engine) Togo(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{}
	_, spaces, err := e.resolveSpaces(opts.Spaces)
	if err != nil {
		return report, err
	}
	adapters := e.gateFamilies(opts, report)

	err = e.fanOut(ctx, spaces, func(ctx context.Context, space string) error {
		view, err := e.client.Space(space)
		if err != nil {
			return err
		}
		env := &family.Env{
			Client:      e.client,
			Space:       view,
			Fs:          e.fs,
			Layout:      e.layout,
			Concurrency: e.client.Capacity(),
		}

		for _, adapter := range adapters {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			records, err := family.LoadLocal(env, adapter.Family())
			if err == nil && opts.Managed {
				for i, record := range records {
					stamped, serr := etl.SetManagedFlag(true).Transform(record)
					if serr != nil {
						err = serr
						break
					}
					records[i] = stamped
				}
			}

			var stats family.Stats
			if err == nil {
				plain := make([]map[string]any, len(records))
				for i, record := range records {
					plain[i] = record
				}
				var path string
				path, err = bundle.Write(e.fs, e.layout, space, adapter.Family(), plain)
				if err == nil {
					stats.Pushed = len(records)
					if path != "" {
						logging.Debugf("wrote bundle %s", path)
					}
				}
			}
			report.addRow(Row{
				Space:  space,
				Family: adapter.Family(),
				Action: "togo",
				Stats:  stats,
				Err:    err,
			})
		}
		return nil
	})
	return report, err
}
