package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vestalhq/vestal/internal/usecase"
)

func newRevertCmd(opts *globalOptions) *cobra.Command {
	var save bool

	cmd := &cobra.Command{
		Use:   "revert <kind> <id> <locator>",
		Short: "Revert a record to an earlier or later version",
		Long: `Revert a record to the version found by locator: a version number
(decimals are floored), an RFC3339 time, "first", "last" or an anchor
configured for the kind. Without --save the reverted record is printed and
nothing is stored.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			result, err := app.Records.Revert(cmd.Context(), usecase.RevertInput{
				Kind:    args[0],
				ID:      args[1],
				Locator: args[2],
				Save:    save,
			})
			if err != nil {
				return err
			}

			if result.Saved {
				fmt.Fprintf(cmd.ErrOrStderr(), "Saved %s/%s as version %d\n", args[0], args[1], result.Version)
			} else {
				fmt.Fprintf(cmd.ErrOrStderr(), "Preview of %s/%s at version %d (use --save to store it)\n", args[0], args[1], result.Version)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(newRecordOutput(result.Record, result.Version))
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Store the reverted attributes as a new version")

	return cmd
}
