package cmd

import (
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/engine"
)

func newPullCmd() *cobra.Command {
	var (
		spaces []string
		apis   []string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Fetch managed objects from the server into the tree",
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
			report, err := eng.Pull(cmd.Context(), engine.Options{
				Spaces:   spaces,
				Families: families,
				Force:    force,
			})
			return finish(cmd, report, err)
		},
	}

	selectionFlags(cmd, &spaces, &apis, &force)
	return cmd
}
