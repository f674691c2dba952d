package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/leapstack-labs/leapbase/internal/journal"
	"github.com/leapstack-labs/leapbase/pkg/core"
)

// renderRecords writes query results as a bordered table or JSON.
// Column order follows the requested field list when given, otherwise
// the sorted union of result keys.
func renderRecords(w io.Writer, fields []string, recs []core.Record, format string) error {
	if format == "json" {
		return renderJSON(w, recs)
	}

	cols := fields
	if len(cols) == 0 {
		cols = columnUnion(recs)
	}
	if len(recs) == 0 {
		_, _ = fmt.Fprintln(w, "(0 rows)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(cols))
	for i, col := range cols {
		header[i] = col
	}
	t.AppendHeader(header)

	for _, rec := range recs {
		row := make(table.Row, len(cols))
		for i, col := range cols {
			row[i] = formatValue(rec[col])
		}
		t.AppendRow(row)
	}

	t.Render()
	_, _ = fmt.Fprintf(w, "(%d rows)\n", len(recs))
	return nil
}

func renderJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func columnUnion(recs []core.Record) []string {
	seen := make(map[string]bool)
	for _, rec := range recs {
		for k := range rec {
			seen[k] = true
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// renderRuns writes journal history as a bordered table.
func renderRuns(w io.Writer, runs []journal.Run) {
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "No runs recorded")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Workflow", "Status", "Started", "Duration", "Error"})

	for _, r := range runs {
		duration := ""
		if r.CompletedAt != nil {
			duration = r.CompletedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
		}
		t.AppendRow(table.Row{
			r.ID,
			r.Workflow,
			r.Status,
			r.StartedAt.Format(time.RFC3339),
			duration,
			r.Error,
		})
	}
	t.Render()
}

func formatValue(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprintf("%v", v)
}
