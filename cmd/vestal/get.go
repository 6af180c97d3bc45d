package main

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/vestalhq/vestal/internal/services"
)

type recordOutput struct {
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Version    int64          `json:"version"`
	Attributes map[string]any `json:"attributes"`
	CreatedAt  string         `json:"created_at"`
	UpdatedAt  string         `json:"updated_at"`
}

func newGetCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <kind> <id>",
		Short: "Print a record as JSON",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			result, err := app.Records.Get(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(newRecordOutput(result.Record, result.Version))
		},
	}

	return cmd
}

func newRecordOutput(rec *services.Record, version int64) recordOutput {
	attributes := rec.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}
	return recordOutput{
		Kind:       rec.Kind,
		ID:         rec.ID,
		Version:    version,
		Attributes: attributes,
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:  rec.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
