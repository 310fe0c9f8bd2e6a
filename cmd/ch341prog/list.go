package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/transport"
)

func newListCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List attached CH341A adapters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr := transport.NewManager(o.backend(), transport.WithLogger(o.logger))
			defer mgr.Close()

			adapters, err := mgr.ListAdapters(cmd.Context())
			if err != nil {
				return err
			}
			if len(adapters) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No adapters found.")
				return nil
			}
			for _, a := range adapters {
				fmt.Fprintln(cmd.OutOrStdout(), a.String())
			}
			return nil
		},
	}
}
