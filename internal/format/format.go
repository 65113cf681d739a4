// Package format renders meetings and aggregation jobs for the CLI.
package format

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/mohammad-safakhou/meetflow/internal/aggregation"
	"github.com/mohammad-safakhou/meetflow/internal/meeting"
)

const (
	Table = "table"
	Plain = "plain"
	JSON  = "json"
	Auto  = "auto"
)

// Resolve turns "auto" into table for terminals and json otherwise.
func Resolve(format string, w io.Writer) string {
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "" && format != Auto {
		return format
	}
	if IsTerminal(w) {
		return Table
	}
	return JSON
}

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// WriteMeetings writes ms to w in the requested format.
func WriteMeetings(w io.Writer, ms []meeting.Meeting, format string) error {
	switch Resolve(format, w) {
	case Table:
		return writeMeetingsTable(w, ms)
	case Plain:
		return writeMeetingsPlain(w, ms)
	case JSON:
		return writeJSON(w, ms)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeMeetingsPlain(w io.Writer, ms []meeting.Meeting) error {
	for _, m := range ms {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			m.Start, m.ID, m.Source, duration(m.Duration), m.Title, strings.Join(m.AttendeeLabels(), ","))
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func writeMeetingsTable(w io.Writer, ms []meeting.Meeting) error {
	tw := table.NewWriter()
	tw.SetOutputMirror(w)
	tw.SetStyle(table.StyleRounded)
	tw.Style().Options.SeparateHeader = true
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 2, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 3, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 50},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignCenter},
		{Number: 5, Align: text.AlignLeft, AlignHeader: text.AlignCenter},
		{Number: 6, Align: text.AlignLeft, AlignHeader: text.AlignCenter, WidthMax: 40},
	})
	tw.AppendHeader(table.Row{"Start", "ID", "Title", "Minutes", "Source", "Attendees"})
	for _, m := range ms {
		tw.AppendRow(table.Row{
			m.Start,
			m.ID,
			strings.ReplaceAll(m.Title, "\n", " "),
			duration(m.Duration),
			m.Source,
			strings.Join(m.AttendeeLabels(), ", "),
		})
	}
	if len(ms) == 0 {
		tw.AppendRow(table.Row{"-", "(no meetings)", "-", "-", "-", "-"})
	}
	tw.AppendFooter(table.Row{"", "", "", "", "Total", len(ms)})
	_ = tw.Render()
	return nil
}

// WriteJob writes the final state of an aggregation job.
func WriteJob(w io.Writer, job aggregation.Job, format string) error {
	switch Resolve(format, w) {
	case Table, Plain:
		tw := table.NewWriter()
		tw.SetOutputMirror(w)
		tw.SetStyle(table.StyleRounded)
		tw.AppendRows([]table.Row{
			{"Domain", job.Domain},
			{"Run", job.RunID},
			{"State", job.State},
			{"Attempts", job.Attempts},
		})
		if job.Error != "" {
			tw.AppendRow(table.Row{"Error", job.Error})
		}
		if len(job.Summary) > 0 {
			tw.AppendRow(table.Row{"Summary", string(job.Summary)})
		}
		_ = tw.Render()
		return nil
	case JSON:
		return writeJSON(w, job)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func duration(d *float64) string {
	if d == nil {
		return "-"
	}
	return fmt.Sprintf("%.0f", *d)
}
