package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/i2c"
)

func newScanCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "scan",
		Short: "Probe every I2C address and list the ones that acknowledge",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			speed, err := i2c.ParseSpeed(o.speed)
			if err != nil {
				return err
			}

			mgr, h, err := o.openAdapter(cmd.Context())
			if err != nil {
				return err
			}
			defer mgr.Close()

			bus := i2c.New(h, i2c.WithLogger(o.logger.With("component", "i2c")))
			cfg := i2c.DefaultConfig()
			cfg.Speed = speed
			if err := bus.Configure(cmd.Context(), cfg); err != nil {
				return err
			}

			found, err := bus.Scan(cmd.Context(), 0x08, 0x77)
			if err != nil {
				return err
			}
			if len(found) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No devices found.")
				return nil
			}
			for _, addr := range found {
				fmt.Fprintf(cmd.OutOrStdout(), "0x%02X\n", addr)
			}
			return nil
		},
	}
}
