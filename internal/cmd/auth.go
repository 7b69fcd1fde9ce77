package cmd

import (
	"github.com/rodaine/table"
	"github.com/spf13/cobra"
)

func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Verify credentials against the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, _, _, err := connect(cmd.Context())
			if err != nil {
				return err
			}
			info, err := client.CheckAuth(cmd.Context())
			if err != nil {
				return err
			}

			tbl := table.New("SERVER VERSION", "SPACE", "NAME")
			tbl.WithWriter(cmd.OutOrStdout())
			tbl.AddRow(client.Version().String(), info.ID, info.Name)
			tbl.Print()
			return nil
		},
	}
}
