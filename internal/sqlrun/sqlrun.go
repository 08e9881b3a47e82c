// Package sqlrun runs an ad-hoc query against a source or the warehouse and
// renders the result for a terminal, a CSV file or a spreadsheet.
package sqlrun

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/xuri/excelize/v2"

	"github.com/ANIKETSHETTY47/building-energy-warehouse/internal/database"
)

const sheet = "Results"

type ResultSet struct {
	Columns []string
	Rows    [][]any
}

// Run executes query and buffers every row.
func Run(ctx context.Context, q database.Querier, query string) (*ResultSet, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("empty query")
	}
	rows, err := q.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		vals, err := rows.SliceScan()
		if err != nil {
			return nil, err
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		rs.Rows = append(rs.Rows, vals)
	}
	return rs, rows.Err()
}

func formatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "NULL"
	case time.Time:
		return v.UTC().Format("2006-01-02 15:04:05.999999999")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// RenderTable prints the result as a table followed by a row count.
func (r *ResultSet) RenderTable(w io.Writer) error {
	if len(r.Rows) == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(r.Columns))
	for i, c := range r.Columns {
		header[i] = c
	}
	t.AppendHeader(header)
	for _, vals := range r.Rows {
		row := make(table.Row, len(vals))
		for i, v := range vals {
			row[i] = formatValue(v)
		}
		t.AppendRow(row)
	}
	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", len(r.Rows))
	return err
}

func (r *ResultSet) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(r.Columns); err != nil {
		return err
	}
	rec := make([]string, len(r.Columns))
	for _, vals := range r.Rows {
		for i, v := range vals {
			rec[i] = formatValue(v)
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the result to a single-sheet workbook. NULLs are left
// as empty cells.
func (r *ResultSet) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	_ = f.DeleteSheet("Sheet1")
	idx, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(idx)

	for i, c := range r.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, c); err != nil {
			return err
		}
	}
	for row, vals := range r.Rows {
		for col, v := range vals {
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return f.Write(w)
}

// CheckOutput reports whether WriteFile supports path's extension.
func CheckOutput(path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".xlsx":
		return nil
	}
	return fmt.Errorf("unsupported output format %q (want .csv or .xlsx)", filepath.Ext(path))
}

// WriteFile picks the output format from the file extension.
func (r *ResultSet) WriteFile(path string) error {
	if err := CheckOutput(path); err != nil {
		return err
	}
	write := r.WriteCSV
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		write = r.WriteXLSX
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
