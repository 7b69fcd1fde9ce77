package cmd

import (
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/kibana"
	"go.kibob.dev/kibob/internal/logging"
	"go.kibob.dev/kibob/internal/migrate"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Convert a legacy single-space project to the per-space layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Migration is file moves; the server is only needed to fetch
			// the default space definition, so run offline when unreachable.
			var client *kibana.Client
			if c, _, _, err := connect(cmd.Context()); err == nil {
				client = c
			} else {
				logging.Warnf("migrating offline, space.json will not be fetched: %v", err)
			}

			fsys, root := osProject()
			if !migrate.Needed(fsys, root) {
				printf(cmd, "nothing to migrate\n")
				return nil
			}
			moved, err := migrate.Run(cmd.Context(), client, fsys, root)
			if err != nil {
				return err
			}
			for _, path := range moved {
				printf(cmd, "moved %s\n", path)
			}
			printf(cmd, "migration complete\n")
			return nil
		},
	}
}
