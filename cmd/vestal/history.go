package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/vestalhq/vestal/internal/versioning"
)

func newHistoryCmd(opts *globalOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "history <kind> <id>",
		Short: "Show every version of a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := opts.open()
			if err != nil {
				return err
			}
			defer func() {
				_ = app.Close()
			}()

			versions, err := app.Records.History(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			switch format {
			case "json":
				return outputHistoryJSON(cmd.OutOrStdout(), versions)
			case "table":
				outputHistoryTable(cmd.OutOrStdout(), versions, getTerminalWidth())
				return nil
			default:
				return fmt.Errorf("invalid format: %s (valid values: table, json)", format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", "table", "Output format: table or json")

	return cmd
}

type historyOutputEntry struct {
	Version   int64               `json:"version"`
	CreatedAt string              `json:"created_at"`
	Changes   *versioning.Changes `json:"changes"`
}

func outputHistoryJSON(w io.Writer, versions []versioning.Version) error {
	output := make([]historyOutputEntry, 0, len(versions))
	for _, v := range versions {
		output = append(output, historyOutputEntry{
			Version:   v.Number,
			CreatedAt: v.CreatedAt.UTC().Format(time.RFC3339Nano),
			Changes:   v.Changes,
		})
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

type historyWidths struct {
	versionHeader string
	dateLayout    string
	changes       int
}

// calculateHistoryWidths gives the changes column whatever the version and
// date columns leave, switching to short headers on narrow terminals.
func calculateHistoryWidths(termWidth int) historyWidths {
	borderPadding := 3 * 3
	available := termWidth - borderPadding

	widths := historyWidths{
		versionHeader: "Version",
		dateLayout:    "2006-01-02 15:04:05",
		changes:       available - 7 - 19,
	}
	if widths.changes < 30 {
		widths.versionHeader = "Ver"
		widths.dateLayout = "01-02 15:04"
		widths.changes = available - 3 - 11
	}
	if widths.changes < 20 {
		widths.changes = 20
	}
	return widths
}

func outputHistoryTable(w io.Writer, versions []versioning.Version, termWidth int) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	widths := calculateHistoryWidths(termWidth)
	t.AppendHeader(table.Row{widths.versionHeader, "Created", "Changes"})

	valueWidth := max(widths.changes/3, 8)
	for _, v := range versions {
		lines := describeChanges(v.Changes, valueWidth)
		for i, line := range lines {
			lines[i] = wrapString(line, widths.changes)
		}
		t.AppendRow(table.Row{
			v.Number,
			v.CreatedAt.Local().Format(widths.dateLayout),
			strings.Join(lines, "\n"),
		})
	}

	t.Render()
}
