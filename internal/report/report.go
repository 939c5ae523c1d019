// Package report renders decoded messages for people: a plain-text listing
// and a bordered table with one row per field.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/iso8583"
)

// Format selects the output rendering.
type Format string

const (
	FormatJSON  Format = "json"
	FormatText  Format = "text"
	FormatTable Format = "table"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatText, FormatTable:
		return f, nil
	case "":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, text or table)", s)
}

// Columns are the table headings.
var Columns = []string{"Field Number", "Label", "Type", "Length", "Value"}

// NotAvailable is shown when a field has no label.
const NotAvailable = "N/A"

// Item is one decoded message, or the error that stopped it, in an output
// listing.
type Item struct {
	Index   int                       `json:"index"`
	Source  string                    `json:"source,omitempty"`
	Message *iso8583.ParsedIsoMessage `json:"message,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

// WriteText writes the header, MTI and one "<label> (<type>) -> <value>"
// line per field.
func WriteText(w io.Writer, msg *iso8583.ParsedIsoMessage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Header: %s\n", msg.DisplayHeader())
	fmt.Fprintf(&b, "MTI: %s\n", msg.MTI)
	for _, f := range msg.Fields {
		switch f.Type {
		case iso8583.TypeUnknown:
			fmt.Fprintf(&b, "Unknown field: %d\n", f.FieldNumber)
		case iso8583.TypeError:
			fmt.Fprintf(&b, "Error processing field %d: %s\n", f.FieldNumber, strings.TrimPrefix(f.Value, "Error: "))
		default:
			fmt.Fprintf(&b, "%s (%s) -> %s\n", label(f), f.Type, f.Value)
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func label(f iso8583.ParsedField) string {
	if f.Label != "" {
		return f.Label
	}
	return "Field " + strconv.Itoa(f.FieldNumber)
}

// Rows returns the table cells for each field.
func Rows(msg *iso8583.ParsedIsoMessage) [][]string {
	rows := make([][]string, 0, len(msg.Fields))
	for _, f := range msg.Fields {
		l := f.Label
		if l == "" {
			l = NotAvailable
		}
		rows = append(rows, []string{
			strconv.Itoa(f.FieldNumber),
			l,
			f.Type,
			strconv.Itoa(f.Length),
			f.Value,
		})
	}
	return rows
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	faultStyle  = cellStyle.Foreground(lipgloss.Color("9"))
)

// Table renders the fields as a bordered table, preceded by the header, MTI
// and bitmaps.
func Table(msg *iso8583.ParsedIsoMessage) string {
	rows := Rows(msg)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(Columns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if row >= 0 && row < len(rows) && (rows[row][2] == iso8583.TypeUnknown || rows[row][2] == iso8583.TypeError) {
				return faultStyle
			}
			return cellStyle
		})

	var b strings.Builder
	fmt.Fprintf(&b, "Header: %s\n", msg.DisplayHeader())
	fmt.Fprintf(&b, "MTI: %s\n", msg.MTI)
	fmt.Fprintf(&b, "Primary Bitmap: %s\n", msg.PrimaryBitmap)
	if msg.HasSecondaryBitmap() {
		fmt.Fprintf(&b, "Secondary Bitmap: %s\n", msg.SecondaryBitmap)
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	return b.String()
}

// Banner is the separator printed before message n (1-based) in text output.
func Banner(n int) string {
	return fmt.Sprintf("------------------------- ISO Message %d -------------------------", n)
}

// WriteItems renders a listing of decoded messages in the given format.
func WriteItems(w io.Writer, items []Item, format Format, pretty bool) error {
	if format == FormatJSON {
		var (
			data []byte
			err  error
		)
		if pretty {
			data, err = json.MarshalIndent(items, "", "  ")
		} else {
			data, err = json.Marshal(items)
		}
		if err != nil {
			return fmt.Errorf("JSON encode error: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	}

	for _, it := range items {
		if _, err := fmt.Fprintln(w, Banner(it.Index+1)); err != nil {
			return err
		}
		if it.Message == nil {
			if _, err := fmt.Fprintf(w, "Error: %s\n", it.Error); err != nil {
				return err
			}
			continue
		}
		var err error
		if format == FormatTable {
			_, err = io.WriteString(w, Table(it.Message))
		} else {
			err = WriteText(w, it.Message)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// DictionaryColumns are the headings of a dictionary listing.
var DictionaryColumns = []string{"Field", "Label", "Type", "Max Length"}

// DictionaryTable renders dictionary entries as a bordered table.
func DictionaryTable(name string, entries []dictionary.Entry) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			strconv.Itoa(e.Field),
			e.Detail.Label,
			e.Detail.Definition.Type(),
			strconv.Itoa(e.Detail.Definition.Length),
		})
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(DictionaryColumns...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return fmt.Sprintf("Dictionary: %s (%d fields)\n%s\n", name, len(entries), t.String())
}
