// Package output renders CLI results as tables, markdown or JSON.
package output

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used when writing format to a file.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// Sheet is a titled grid of rows.
type Sheet struct {
	Title  string
	Header table.Row
	Rows   []table.Row
	Footer table.Row
	// Empty is shown instead of a table when there are no rows.
	Empty string
}

// Render writes sheet as a table or markdown, or payload as indented JSON.
func Render(format Format, sheet Sheet, payload any) (string, error) {
	if format == FormatJSON {
		data, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return "", err
		}
		return string(data), nil
	}

	if len(sheet.Rows) == 0 && sheet.Empty != "" {
		if format == FormatMarkdown && sheet.Title != "" {
			return "## " + sheet.Title + "\n\n" + sheet.Empty, nil
		}
		return sheet.Empty, nil
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	if sheet.Title != "" && format != FormatMarkdown {
		t.SetTitle(sheet.Title)
	}
	if len(sheet.Header) > 0 {
		t.AppendHeader(sheet.Header)
	}
	t.AppendRows(sheet.Rows)
	if len(sheet.Footer) > 0 {
		t.AppendFooter(sheet.Footer)
	}

	if format == FormatMarkdown {
		rendered := t.RenderMarkdown()
		if sheet.Title != "" {
			rendered = "## " + sheet.Title + "\n\n" + rendered
		}
		return rendered, nil
	}
	return t.Render(), nil
}
