package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/programmer"
)

func newWriteCmd(o *rootOptions) *cobra.Command {
	var (
		input    string
		offset   int
		noVerify bool
	)

	cmd := &cobra.Command{
		Use:   "write",
		Short: "Program an Intel HEX or binary file into the EEPROM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(input, offset)
			if err != nil {
				return err
			}

			a, err := o.openSession(cmd, programmer.WithVerify(!noVerify))
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.sess.Write(img)
			if err != nil {
				return err
			}
			res := wait(cmd.Context(), a.sess, job)
			if res.Err != nil {
				return res.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d bytes to %s in %s\n",
				img.Len(), res.Profile.Name, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "input file (.hex or .bin)")
	cmd.Flags().IntVar(&offset, "offset", 0, "load address for binary input")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip the read-back verification")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
