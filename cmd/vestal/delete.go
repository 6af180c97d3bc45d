package main

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newDeleteCmd(opts *globalOptions) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <kind> <id>",
		Short: "Delete a record with its relations and history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id := args[0], args[1]

			if !force {
				reader := bufio.NewReader(cmd.InOrStdin())
				fmt.Fprintf(cmd.ErrOrStderr(), "Delete %s/%s and its whole history? (y/N) ", kind, id)
				answer, err := reader.ReadString('\n')
				if err != nil {
					return err
				}

				answer = strings.TrimSpace(strings.ToLower(answer))
				if answer != "y" {
					fmt.Fprintln(cmd.OutOrStdout(), "Deletion cancelled")
					return nil
				}
			}

			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			deleted, err := app.Records.Delete(cmd.Context(), kind, id)
			if err != nil {
				return err
			}
			if !deleted {
				return fmt.Errorf("record not found: %s/%s", kind, id)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", kind, id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Skip confirmation prompt")

	return cmd
}
