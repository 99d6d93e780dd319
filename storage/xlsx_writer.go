package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"carprep/models"
)

// XLSXWriter builds a workbook in memory and saves it on Close.
type XLSXWriter struct {
	path  string
	file  *excelize.File
	sheet string
}

// NewXLSXWriter creates a workbook whose first sheet is named sheet.
func NewXLSXWriter(path, sheet string) (*XLSXWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("xlsx: create output dir: %w", err)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("xlsx: name sheet: %w", err)
	}
	return &XLSXWriter{path: path, file: f, sheet: sheet}, nil
}

// WriteTable fills the first sheet with t.
func (x *XLSXWriter) WriteTable(t *models.Table) error {
	rows := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Headers))
	for i, h := range t.Headers {
		header[i] = h
	}
	rows = append(rows, header)
	for _, r := range t.Rows {
		rec := make([]any, len(t.Headers))
		for i, h := range t.Headers {
			rec[i] = r[h]
		}
		rows = append(rows, rec)
	}
	return x.writeRows(x.sheet, rows)
}

// WriteRealismReport writes a summary to the first sheet and adds one
// sheet per report section.
func (x *XLSXWriter) WriteRealismReport(r *models.RealismReport) error {
	b := r.Bounds
	summary := [][]any{
		{"Metric", "Value"},
		{"Total rows", r.TotalRows},
		{"Realistic rows", r.Realistic},
		{"Min price", b.MinPrice},
		{"Max price", b.MaxPrice},
		{"Min power (kW)", b.MinPower},
		{"Max power (kW)", b.MaxPower},
		{"Min year", b.MinYear},
		{"Max year", b.MaxYear},
	}
	if err := x.writeRows(x.sheet, summary); err != nil {
		return err
	}

	for _, sec := range r.Sections {
		rows := [][]any{{"Statistic", "Value"}}
		if s := sec.Stats; s != nil {
			rows = append(rows,
				[]any{"Count", s.Count}, []any{"Total", s.Total},
				[]any{"Min", s.Min}, []any{"Max", s.Max},
				[]any{"Mean", s.Mean}, []any{"Median", s.Median}, []any{"StdDev", s.StdDev},
			)
		}
		rows = append(rows, []any{})
		rows = append(rows, outlierRows(sec.Outliers, r.TotalRows)...)
		if err := x.addSheet(sec.Title, rows); err != nil {
			return err
		}
	}
	return x.addSheet("Combinations", outlierRows(r.Combinations, r.TotalRows))
}

func outlierRows(outliers []models.Outlier, total int) [][]any {
	rows := [][]any{{"Rule", "Count", "Percent", "Row", "Brand", "Model", "Year", "Price", "Power kW"}}
	for _, o := range outliers {
		rows = append(rows, []any{o.Label, o.Count, o.Percent(total)})
		for _, v := range o.Examples {
			price := ""
			if v.Price.Valid {
				price = v.Price.Decimal.StringFixed(2)
			}
			rows = append(rows, []any{"", "", "", v.Row, v.Brand, v.Model, v.Year, price, v.PowerKW})
		}
	}
	return rows
}

func (x *XLSXWriter) addSheet(name string, rows [][]any) error {
	if _, err := x.file.NewSheet(name); err != nil {
		return fmt.Errorf("xlsx: add sheet %q: %w", name, err)
	}
	return x.writeRows(name, rows)
}

func (x *XLSXWriter) writeRows(sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return fmt.Errorf("xlsx: %w", err)
		}
		if err := x.file.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx: write %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}

// Close saves the workbook to disk.
func (x *XLSXWriter) Close() error {
	defer x.file.Close()
	if err := x.file.SaveAs(x.path); err != nil {
		return fmt.Errorf("xlsx: save %q: %w", x.path, err)
	}
	return nil
}
