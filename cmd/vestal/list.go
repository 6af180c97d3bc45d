package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newListCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "list <kind>",
		Short: "List the records of a kind",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			ctx := cmd.Context()
			records := app.Records.Service()
			list, err := records.List(ctx, args[0])
			if err != nil {
				return err
			}

			output := make([]recordOutput, 0, len(list))
			for _, rec := range list {
				version, err := records.Engine().CurrentVersion(ctx, rec, &rec.Pointer)
				if err != nil {
					return err
				}
				output = append(output, newRecordOutput(rec, version))
			}

			switch format {
			case "json":
				encoder := json.NewEncoder(cmd.OutOrStdout())
				encoder.SetIndent("", "  ")
				return encoder.Encode(output)
			case "table":
				outputListTable(cmd.OutOrStdout(), output, getTerminalWidth())
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

func outputListTable(w io.Writer, records []recordOutput, termWidth int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Version", "Updated", "Attributes"})

	idWidth := 10
	for _, rec := range records {
		idWidth = max(idWidth, runewidth.StringWidth(rec.ID))
	}
	idWidth = min(idWidth, 40)

	attrWidth := max(termWidth-4*3-idWidth-7-20, 15)
	for _, rec := range records {
		t.AppendRow(table.Row{
			wrapString(rec.ID, idWidth),
			rec.Version,
			rec.UpdatedAt,
			runewidth.Truncate(formatValue(rec.Attributes), attrWidth, "..."),
		})
	}

	t.Render()
}
