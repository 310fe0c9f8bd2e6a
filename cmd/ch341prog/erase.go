package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/programmer"
)

func newEraseCmd(o *rootOptions) *cobra.Command {
	var noVerify bool

	cmd := &cobra.Command{
		Use:   "erase",
		Short: "Fill the EEPROM with 0xFF",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openSession(cmd, programmer.WithVerify(!noVerify))
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.sess.Erase()
			if err != nil {
				return err
			}
			res := wait(cmd.Context(), a.sess, job)
			if res.Err != nil {
				return res.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Erased %s in %s\n", res.Profile.Name, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the blank check")
	return cmd
}
