package engine

import (
	"fmt"
	"io"
	"sync"

	"github.com/rodaine/table"

	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/family"
	"go.kibob.dev/kibob/internal/kibana"
)

// Row is one space and family outcome in the command summary.
type Row struct {
	Space  string
	Family kibana.Family
	Action string
	Stats  family.Stats
	Err    error
}

// Skip records a family left out by preflight gating.
type Skip struct {
	Family kibana.Family
	Reason string
	Forced bool
}

// Report accumulates results across concurrent per-space work and renders
// the command-end summary.
type Report struct {
	mu      sync.Mutex
	rows    []Row
	skips   []Skip
	bypass  bool
	failure bool
}

func (r *Report) addRow(row Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if row.Err != nil {
		r.failure = true
	}
	r.rows = append(r.rows, row)
}

func (r *Report) addSkip(s Skip) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skips = append(r.skips, s)
}

// markBypass flags that a guard was overridden with --force.
func (r *Report) markBypass() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bypass = true
}

// Rows returns a copy of the accumulated rows.
func (r *Report) Rows() []Row {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Row(nil), r.rows...)
}

// Skips returns a copy of the skip records.
func (r *Report) Skips() []Skip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Skip(nil), r.skips...)
}

// Print renders the summary table and the skipped-family lines.
func (r *Report) Print(w io.Writer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.rows) > 0 {
		tbl := table.New("SPACE", "FAMILY", "ACTION", "PULLED", "PUSHED", "SKIPPED", "RESULT")
		tbl.WithWriter(w)
		for _, row := range r.rows {
			result := "ok"
			if row.Err != nil {
				result = "failed"
			}
			tbl.AddRow(row.Space, string(row.Family), row.Action,
				row.Stats.Pulled, row.Stats.Pushed, row.Stats.Skipped, result)
		}
		tbl.Print()
	}

	for _, s := range r.skips {
		if s.Forced {
			fmt.Fprintf(w, "forced: %s (%s)\n", s.Family, s.Reason)
		} else {
			fmt.Fprintf(w, "skipped: %s (%s)\n", s.Family, s.Reason)
		}
	}
}

// Outcome folds the report into the command's final error: nil on clean
// success, a warning when families were skipped or a guard was bypassed, and
// the fatal error itself when any item failed.
func (r *Report) Outcome(err error) error {
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failure {
		return errors.NewUserError("one or more items failed, see summary")
	}
	for _, s := range r.skips {
		if !s.Forced {
			return errors.NewWarning("skipped %s: %s", s.Family, s.Reason)
		}
	}
	if r.bypass || len(r.skips) > 0 {
		return errors.NewWarning("completed with forced bypass")
	}
	return nil
}
