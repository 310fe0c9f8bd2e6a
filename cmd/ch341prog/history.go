package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/moffa90/go-ch341prog/journal"
)

func newHistoryCmd(o *rootOptions) *cobra.Command {
	var session string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show events recorded in a journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if o.journal == "" {
				return errors.New("--journal is required")
			}

			j, err := journal.Open(o.journal)
			if err != nil {
				return err
			}
			defer j.Close()

			entries, err := j.Entries(cmd.Context(), session)
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSESSION\tKIND\tOP\tSTATE\tMESSAGE\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
					e.Time.Format(time.RFC3339), e.SessionID, e.Kind, e.Op, e.State, e.Message, e.Err)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&session, "session", "", "only show this session")
	return cmd
}
