package cmd

import (
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/engine"
	"go.kibob.dev/kibob/internal/errors"
	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/project"
)

func newAddCmd() *cobra.Command {
	var (
		space       string
		excludeDeps bool
		force       bool
		file        string
	)

	cmd := &cobra.Command{
		Use:   "add <family> [selector...]",
		Short: "Bring server objects under management",
		Long: `Fetches the selected objects, writes them to the tree and records
them in the manifests. Saved objects use <type>:<id> selectors; workflows,
agents and tools use ids and pull their dependency closure unless
--exclude-dependencies is set. With --file, a saved objects export bundle is
merged offline instead.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := kibana.ParseFamily(args[0])
			if err != nil {
				return err
			}
			selectors := args[1:]

			if file != "" {
				if f != kibana.FamilySavedObjects {
					return errors.NewUserError("--file only applies to saved objects")
				}
				fsys, root := osProject()
				eng := engine.New(nil, fsys, root)
				report, err := eng.AddFile(space, file)
				return finish(cmd, report, err)
			}

			if len(selectors) == 0 {
				return errors.NewUserErrorWithHint(
					"no selectors given",
					"pass one or more ids, or <type>:<id> for saved objects")
			}

			client, fsys, root, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			eng := engine.New(client, fsys, root)
			report, err := eng.Add(cmd.Context(), space, f, selectors, !excludeDeps, force)
			return finish(cmd, report, err)
		},
	}

	cmd.Flags().StringVar(&space, "space", project.DefaultSpaceID, "space to add the objects to")
	cmd.Flags().BoolVar(&excludeDeps, "exclude-dependencies", false, "do not follow references to other objects")
	cmd.Flags().BoolVar(&force, "force", false, "attempt unsupported families")
	cmd.Flags().StringVar(&file, "file", "", "merge a saved objects export bundle instead of fetching")
	return cmd
}
