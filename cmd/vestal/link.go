package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLinkCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "link <kind> <id> <related-kind> <related-id>",
		Short: "Relate a record to another record",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			added, err := app.Records.Link(cmd.Context(), args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%s/%s is already linked to %s/%s\n", args[0], args[1], args[2], args[3])
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Linked %s/%s to %s/%s\n", args[0], args[1], args[2], args[3])
			return nil
		},
	}
}

func newUnlinkCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <kind> <id> <related-kind> <related-id>",
		Short: "Remove a relation between two records",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			removed, err := app.Records.Unlink(cmd.Context(), args[0], args[1], args[2], args[3])
			if err != nil {
				return err
			}
			if !removed {
				return fmt.Errorf("%s/%s is not linked to %s/%s", args[0], args[1], args[2], args[3])
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Unlinked %s/%s from %s/%s\n", args[0], args[1], args[2], args[3])
			return nil
		},
	}
}
