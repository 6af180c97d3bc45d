package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mattn/go-runewidth"
	"golang.org/x/term"

	"github.com/vestalhq/vestal/internal/versioning"
)

func getTerminalWidth() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// wrapString wraps a string to fit within maxWidth, accounting for multi-byte characters
func wrapString(s string, maxWidth int) string {
	if maxWidth <= 0 {
		return s
	}

	s = strings.TrimSpace(s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}

	var result strings.Builder
	var currentLine strings.Builder
	currentWidth := 0

	for _, r := range s {
		charWidth := runewidth.RuneWidth(r)
		if currentWidth+charWidth > maxWidth && currentWidth > 0 {
			result.WriteString(currentLine.String())
			result.WriteString("\n")
			currentLine.Reset()
			currentWidth = 0
		}
		currentLine.WriteRune(r)
		currentWidth += charWidth
	}

	if currentLine.Len() > 0 {
		result.WriteString(currentLine.String())
	}

	return result.String()
}

// formatValue renders an attribute value compactly. Strings are quoted so an
// empty string is distinguishable from a missing value.
func formatValue(value any) string {
	if value == nil {
		return "-"
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprint(value)
	}
	return string(data)
}

// describeChanges renders one line per changed key, sorted, with the relation
// event last.
func describeChanges(changes *versioning.Changes, valueWidth int) []string {
	if changes == nil {
		return []string{"(baseline)"}
	}

	lines := make([]string, 0, len(changes.Attributes)+1)
	for _, name := range changes.Keys() {
		if name == versioning.AssociationKey {
			continue
		}
		change := changes.Attributes[name]
		lines = append(lines, fmt.Sprintf("%s: %s -> %s", name,
			runewidth.Truncate(formatValue(change.Old), valueWidth, "..."),
			runewidth.Truncate(formatValue(change.New), valueWidth, "...")))
	}

	if event := changes.Association; event != nil {
		sign := "+"
		if event.Action == versioning.ActionRemove {
			sign = "-"
		}
		lines = append(lines, fmt.Sprintf("%s %s/%s", sign, event.RelatedType, event.RelatedID))
	}
	return lines
}
