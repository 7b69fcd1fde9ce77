package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/config"
	"go.kibob.dev/kibob/internal/engine"
	"go.kibob.dev/kibob/internal/kibana"
)

// connect resolves the configuration and opens a client against the server.
// The project root is the working directory.
func connect(ctx context.Context) (*kibana.Client, afero.Fs, string, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, "", err
	}
	fsys := afero.NewOsFs()
	root := "."
	client, err := kibana.Connect(ctx, cfg.URL, cfg.Auth, fsys, root, cfg.MaxInflight)
	if err != nil {
		return nil, nil, "", err
	}
	return client, fsys, root, nil
}

// osProject is the filesystem view used by the offline commands.
func osProject() (afero.Fs, string) {
	return afero.NewOsFs(), "."
}

// parseFamilies turns --api values into families, accepting the documented
// aliases.
func parseFamilies(names []string) ([]kibana.Family, error) {
	families := make([]kibana.Family, 0, len(names))
	for _, name := range names {
		f, err := kibana.ParseFamily(name)
		if err != nil {
			return nil, err
		}
		families = append(families, f)
	}
	return families, nil
}

// finish prints the summary and folds the report into the command error.
func finish(cmd *cobra.Command, report *engine.Report, err error) error {
	if report != nil {
		report.Print(cmd.OutOrStdout())
	}
	if report == nil {
		return err
	}
	return report.Outcome(err)
}

// selectionFlags registers the space and family selection flags shared by
// pull, push and togo.
func selectionFlags(cmd *cobra.Command, spaces, apis *[]string, force *bool) {
	cmd.Flags().StringSliceVar(spaces, "space", nil, "space ids to operate on (default: all managed)")
	cmd.Flags().StringSliceVar(apis, "api", nil, "object families to operate on (default: all supported)")
	cmd.Flags().BoolVar(force, "force", false, "attempt unsupported families and bypass version guards")
}

func printf(cmd *cobra.Command, format string, args ...any) {
	fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
