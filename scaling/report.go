package scaling

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Report formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Formats lists the formats Render accepts.
var Formats = []string{FormatText, FormatJSON, FormatCSV}

// Row is one worker count of a report table. Speedup and efficiency are
// relative to the first row of the table.
type Row struct {
	Workers    int     `json:"workers"`
	Size       int     `json:"problem_size"`
	Seconds    float64 `json:"seconds"`
	Speedup    float64 `json:"speedup"`
	Efficiency float64 `json:"efficiency"`
}

// Table is the report of one tag.
type Table struct {
	Type Type   `json:"type"`
	Tag  string `json:"tag"`
	Rows []Row  `json:"rows"`
}

// Tables derives speedup and efficiency for each stored tag.
//
// For strong scaling the speedup of p workers over the baseline b is
// T(b)/T(p) and the efficiency is speedup·b/p. For weak scaling the
// efficiency is T(b)/T(p) and the scaled speedup is efficiency·p/b.
func Tables(results []TagResult) []Table {
	tables := make([]Table, 0, len(results))
	for _, r := range results {
		t := Table{Type: r.Type, Tag: r.Tag, Rows: make([]Row, 0, len(r.Measurements))}
		if len(r.Measurements) == 0 {
			tables = append(tables, t)
			continue
		}
		base := r.Measurements[0]
		for _, m := range r.Measurements {
			row := Row{Workers: m.Workers, Size: m.Size, Seconds: m.Seconds}
			if m.Seconds > 0 && m.Workers > 0 {
				ratio := base.Seconds / m.Seconds
				scale := float64(m.Workers) / float64(base.Workers)
				if r.Type == Weak {
					row.Efficiency = ratio
					row.Speedup = ratio * scale
				} else {
					row.Speedup = ratio
					row.Efficiency = ratio / scale
				}
			}
			t.Rows = append(t.Rows, row)
		}
		tables = append(tables, t)
	}
	return tables
}

// Render writes tables to w in format.
func Render(w io.Writer, format string, tables []Table) error {
	switch format {
	case FormatText:
		return renderText(w, tables)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if tables == nil {
			tables = []Table{}
		}
		return enc.Encode(tables)
	case FormatCSV:
		return renderCSV(w, tables)
	}
	return fmt.Errorf("invalid format %q: must be one of %v", format, Formats)
}

func renderText(w io.Writer, tables []Table) error {
	if len(tables) == 0 {
		_, err := fmt.Fprintln(w, "no results")
		return err
	}
	p := message.NewPrinter(language.English)
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "%s %s\n", t.Type, t.Tag)
		fmt.Fprintf(w, "%8s %14s %12s %9s %11s\n", "workers", "problem size", "seconds", "speedup", "efficiency")
		for _, r := range t.Rows {
			size := p.Sprintf("%d", r.Size)
			if _, err := fmt.Fprintf(w, "%8d %14s %12.6f %9.2f %10.1f%%\n",
				r.Workers, size, r.Seconds, r.Speedup, 100*r.Efficiency); err != nil {
				return err
			}
		}
	}
	return nil
}

func renderCSV(w io.Writer, tables []Table) error {
	cw := csv.NewWriter(w)
	cw.Write([]string{"type", "tag", "workers", "problem_size", "seconds", "speedup", "efficiency"})
	for _, t := range tables {
		for _, r := range t.Rows {
			cw.Write([]string{
				string(t.Type),
				t.Tag,
				strconv.Itoa(r.Workers),
				strconv.Itoa(r.Size),
				strconv.FormatFloat(r.Seconds, 'f', 6, 64),
				strconv.FormatFloat(r.Speedup, 'f', 4, 64),
				strconv.FormatFloat(r.Efficiency, 'f', 4, 64),
			})
		}
	}
	cw.Flush()
	return cw.Error()
}
