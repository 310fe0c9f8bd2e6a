package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVerifyCmd(o *rootOptions) *cobra.Command {
	var (
		input  string
		offset int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare the EEPROM with an Intel HEX or binary file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			img, err := loadImage(input, offset)
			if err != nil {
				return err
			}

			a, err := o.openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			job, err := a.sess.Verify(img)
			if err != nil {
				return err
			}
			res := wait(cmd.Context(), a.sess, job)
			if res.Err != nil {
				return res.Err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Verified %d bytes on %s\n", img.Len(), res.Profile.Name)
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "reference file (.hex or .bin)")
	cmd.Flags().IntVar(&offset, "offset", 0, "load address for binary input")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}
