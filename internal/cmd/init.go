package cmd

import (
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/initialize"
)

func newInitCmd() *cobra.Command {
	var exportPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a project in the current directory",
		Long: `Creates spaces.yml, the default space manifests and the .gitignore
section. With --file, an export bundle is sliced into per-object files and
recorded in the saved objects manifest. Runs offline.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := initialize.Run(afero.NewOsFs(), ".", exportPath)
			if err != nil {
				return err
			}
			if result.SpacesCreated {
				printf(cmd, "created spaces.yml\n")
			}
			if result.Objects > 0 {
				printf(cmd, "recorded %d objects in %s\n", result.Objects, result.ManifestPath)
			}
			printf(cmd, "project initialized\n")
			return nil
		},
	}

	cmd.Flags().StringVar(&exportPath, "file", "", "export bundle to slice into the project")
	return cmd
}
