package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newDetectCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect",
		Short: "Identify the EEPROM on the bus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := o.openSession(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			dev, err := a.sess.Detect(cmd.Context())
			if err != nil {
				return err
			}
			p := dev.Profile()
			fmt.Fprintf(cmd.OutOrStdout(), "%s at 0x%02X: %d bytes, %d-byte pages, %d address byte(s)\n",
				p.Name, dev.Address(), p.Size, p.PageSize, p.AddressWidth)
			return nil
		},
	}
}
