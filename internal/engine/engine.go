// Package engine orchestrates commands across spaces and families: preflight
// version gating, push-floor enforcement, bounded space fan-out, dependency
// closure for add, and version provenance after pull.
package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/family"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/project"
)

// Options selects what a command operates on.
type Options struct {
	// Spaces filters the managed spaces; empty means all of them.
	Spaces []string

	// Families filters the object families; empty means all supported.
	Families []kibana.Family

	// Force attempts unsupported families and bypasses the push floor.
	Force bool

	// Managed stamps pushed saved objects with managed: true.
	Managed bool
}

// Engine runs commands against one server and one project tree.
type Engine struct {
	client *kibana.Client
	fs     afero.Fs
	layout project.Layout
}

func New(client *kibana.Client, fsys afero.Fs, root string) *Engine {
	return &Engine{
		client: client,
		fs:     fsys,
		layout: project.NewLayout(root),
	}
}

// Pull fetches every selected family in every selected space and records the
// server version in spaces.yml on success.
func (e *Engine) Pull(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{}
	manifest, spaces, err := e.resolveSpaces(opts.Spaces)
	if err != nil {
		return report, err
	}
	adapters := e.gateFamilies(opts, report)

	err = e.fanOut(ctx, spaces, func(ctx context.Context, space string) error {
		return e.runSpace(ctx, report, space, adapters, "pull", opts,
			func(ctx context.Context, a family.Adapter, env *family.Env) (family.Stats, error) {
				return a.Pull(ctx, env)
			})
	})
	if err != nil {
		return report, err
	}
	if report.failureSeen() {
		return report, nil
	}

	manifest.SetServerVersion(e.client.Version().String())
	if err := manifest.Save(e.fs, e.layout.Root); err != nil {
		return report, err
	}
	return report, nil
}

// Push writes every selected family in every selected space to the server,
// enforcing the push floor first.
func (e *Engine) Push(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{}
	manifest, spaces, err := e.resolveSpaces(opts.Spaces)
	if err != nil {
		return report, err
	}

	if err := e.checkPushFloor(manifest, opts.Force, report); err != nil {
		return report, err
	}

	adapters := e.gateFamilies(opts, report)
	err = e.fanOut(ctx, spaces, func(ctx context.Context, space string) error {
		return e.runSpace(ctx, report, space, adapters, "push", opts,
			func(ctx context.Context, a family.Adapter, env *family.Env) (family.Stats, error) {
				return a.Push(ctx, env)
			})
	})
	return report, err
}

// checkPushFloor compares the version recorded at the last pull with the
// connected server. Pushing to an older minor or a different major risks
// writing objects the server cannot represent, so it aborts before any
// mutation unless forced.
func (e *Engine) checkPushFloor(manifest *project.SpacesManifest, force bool, report *Report) error {
	recorded := manifest.ServerVersion()
	if recorded == "" {
		return nil
	}
	recordedVersion, err := kibana.ParseServerVersion(recorded)
	if err != nil {
		return fmt.Errorf("invalid kibana.version in spaces.yml: %w", err)
	}
	current := e.client.Version()
	if kibana.PushCompatible(recordedVersion, current) {
		return nil
	}

	floor := kibana.ServerVersion{Major: recordedVersion.Major, Minor: recordedVersion.Minor}
	reason := fmt.Sprintf("push requires server >= %s, detected %s", floor, current)
	if !force {
		return errors.NewWarning("%s", reason)
	}
	logging.Warnf("push floor bypassed with --force: %s", reason)
	report.markBypass()
	return nil
}

// gateFamilies applies preflight version gating and returns the adapters
// that will run. Unsupported families are skipped, or attempted with a
// warning when forced.
func (e *Engine) gateFamilies(opts Options, report *Report) []family.Adapter {
	requested := opts.Families
	if len(requested) == 0 {
		requested = kibana.AllFamilies()
	}

	var allowed []kibana.Family
	for _, f := range requested {
		support := e.client.Supports(f)
		if support.OK {
			allowed = append(allowed, f)
			continue
		}
		reason := support.Reason(f)
		if opts.Force {
			logging.Warnf("attempting unsupported family %s with --force (%s)", f, reason)
			report.addSkip(Skip{Family: f, Reason: reason, Forced: true})
			allowed = append(allowed, f)
			continue
		}
		logging.Warnf("skipping %s: %s", f, reason)
		report.addSkip(Skip{Family: f, Reason: reason})
	}
	return family.Adapters(allowed)
}

// resolveSpaces loads spaces.yml and intersects it with the filter. Unknown
// filter ids are errors, not silently dropped.
func (e *Engine) resolveSpaces(filter []string) (*project.SpacesManifest, []string, error) {
	manifest, exists, err := project.LoadSpacesManifest(e.fs, e.layout.Root)
	if err != nil {
		return nil, nil, err
	}
	if !exists {
		manifest = project.DefaultSpacesManifest()
	}

	if len(filter) == 0 {
		return manifest, manifest.IDs(), nil
	}

	var spaces []string
	for _, id := range filter {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if !manifest.Contains(id) {
			return nil, nil, errors.NewUserErrorWithHint(
				fmt.Sprintf("space %q is not managed by this project", id),
				"list managed spaces in spaces.yml")
		}
		spaces = append(spaces, id)
	}
	return manifest, spaces, nil
}

// fanOut runs fn once per space, concurrently, bounded by the client's
// in-flight capacity so the semaphore stays the only backpressure source.
func (e *Engine) fanOut(ctx context.Context, spaces []string, fn func(context.Context, string) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.client.Capacity())
	for _, space := range spaces {
		g.Go(func() error {
			return fn(gctx, space)
		})
	}
	return g.Wait()
}

// runSpace runs each adapter for one space, collecting per-family failures
// into the report instead of aborting the space.
func (e *Engine) runSpace(ctx context.Context, report *Report, space string, adapters []family.Adapter,
	action string, opts Options,
	run func(context.Context, family.Adapter, *family.Env) (family.Stats, error)) error {

	view, err := e.client.Space(space)
	if err != nil {
		return err
	}
	env := &family.Env{
		Client:      e.client,
		Space:       view,
		Fs:          e.fs,
		Layout:      e.layout,
		Managed:     opts.Managed,
		Concurrency: e.client.Capacity(),
	}

	for _, adapter := range adapters {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats, err := run(ctx, adapter, env)
		report.addRow(Row{
			Space:  space,
			Family: adapter.Family(),
			Action: action,
			Stats:  stats,
			Err:    err,
		})
		if err != nil {
			// Recorded in the report; sibling families and spaces keep going.
			logging.Errorf("%s %s in space %q: %v", action, adapter.Family(), space, err)
		}
	}
	return nil
}

func (r *Report) failureSeen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}
