package cmd

import (
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/engine"
)

func newPushCmd() *cobra.Command {
	var (
		spaces  []string
		apis    []string
		force   bool
		managed bool
	)

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Write the tree's managed objects to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			families, err := parseFamilies(apis)
			if err != nil {
				return err
			}
			client, fsys, root, err := connect(cmd.Context())
			if err != nil {
				return err
			}

			eng := engine.New(client, fsys, root)
			report, err := eng.Push(cmd.Context(), engine.Options{
				Spaces:   spaces,
				Families: families,
				Force:    force,
				Managed:  managed,
			})
			return finish(cmd, report, err)
		},
	}

	selectionFlags(cmd, &spaces, &apis, &force)
	cmd.Flags().BoolVar(&managed, "managed", false, "stamp pushed saved objects with managed: true")
	return cmd
}
