package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vestalhq/vestal/internal/usecase"
)

func newSetCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <kind> [id] name=value...",
		Short: "Create a record or update its attributes",
		Long: `Create a record or update its attributes. Without an id a new record is
created with a generated id. Values that parse as JSON keep their type
(count=3, tags='["a","b"]'); name=null removes an attribute.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, id, assignments := splitSetArgs(args)

			values, err := usecase.ParseAssignments(assignments)
			if err != nil {
				return err
			}

			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			result, err := app.Records.Set(cmd.Context(), usecase.SetInput{
				Kind:   kind,
				ID:     id,
				Values: values,
			})
			if err != nil {
				return err
			}

			action := "Updated"
			if result.Created {
				action = "Created"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s/%s (version %d)\n", action, result.Record.Kind, result.Record.ID, result.Version)
			return nil
		},
	}

	return cmd
}

// splitSetArgs treats the second argument as an id unless it is an
// assignment.
func splitSetArgs(args []string) (kind, id string, assignments []string) {
	kind = args[0]
	rest := args[1:]
	if len(rest) > 0 && !strings.Contains(rest[0], "=") {
		id = rest[0]
		rest = rest[1:]
	}
	return kind, id, rest
}
