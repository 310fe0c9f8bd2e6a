package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

func newReadCmd(o *rootOptions) *cobra.Command {
	var (
		output string
		offset int
		length int
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read the EEPROM into an Intel HEX or binary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.sess.Read(offset, length)
			if err != nil {
				return err
			}
			res := wait(cmd.Context(), a.sess, job)
			if res.Err != nil {
				return res.Err
			}

			if err := saveImage(output, res.Image(), res.Offset, len(res.Data)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Read %d bytes from %s into %s in %s\n",
				len(res.Data), res.Profile.Name, output, res.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (.hex or .bin)")
	cmd.Flags().IntVar(&offset, "offset", 0, "first byte to read")
	cmd.Flags().IntVar(&length, "length", 0, "number of bytes to read (default: to the end of the chip)")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
