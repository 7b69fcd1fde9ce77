// Package cmd wires the CLI: one file per subcommand, shared helpers in
// utils.go.
package cmd

import (
	"github.com/spf13/cobra"

	"go.kibob.dev/kibob/internal/logging"
)

var (
	envFile string
	debug   bool
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kibob",
		Short: "Keep Kibana objects under version control",
		Long: `kibob mirrors saved objects, spaces, workflows, agents and tools
between a Kibana server and a version-controlled directory tree.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetDebug(debug)
		},
	}

	root.PersistentFlags().StringVar(&envFile, "env", "", "env file with KIBANA_* settings (default .env)")
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newAuthCmd(),
		newInitCmd(),
		newPullCmd(),
		newPushCmd(),
		newAddCmd(),
		newTogoCmd(),
		newMigrateCmd(),
	)
	return root
}

// Execute runs the CLI and returns the final error for main to map to an
// exit code.
func Execute() error {
	return newRootCmd().Execute()
}
