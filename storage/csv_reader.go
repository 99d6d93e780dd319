package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"carprep/models"
)

const utf8BOM = "\ufeff"

// LoadOptions tweaks how a dataset file is decoded.
type LoadOptions struct {
	// Latin1 decodes the file as ISO-8859-1 instead of UTF-8.
	Latin1 bool
	// Sheet selects the worksheet of an .xlsx file. Empty means the first.
	Sheet string
}

// LoadTable reads a CSV (or .xlsx) dataset into memory. Header whitespace
// and a UTF-8 BOM are stripped, short rows are padded and duplicate
// headers get a ".1", ".2" suffix. Blank rows are dropped but keep their
// place in the line numbering.
func LoadTable(path string, opts LoadOptions) (*models.Table, error) {
	if strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return loadXLSX(path, opts.Sheet)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	var r io.Reader = f
	if opts.Latin1 {
		r = transform.NewReader(f, charmap.ISO8859_1.NewDecoder())
	}
	t, err := ReadTable(r)
	if err != nil {
		return nil, fmt.Errorf("csv: read %q: %w", path, err)
	}
	return t, nil
}

// ReadTable parses CSV from r.
func ReadTable(r io.Reader) (*models.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	var records [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return buildTable(header, records), nil
}

func loadXLSX(path, sheet string) (*models.Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("xlsx: open %q: %w", path, err)
	}
	defer f.Close()

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("xlsx: %q has no sheets", path)
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("xlsx: read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("xlsx: sheet %q is empty", sheet)
	}
	return buildTable(rows[0], rows[1:]), nil
}

func buildTable(header []string, records [][]string) *models.Table {
	t := &models.Table{Headers: make([]string, len(header))}
	seen := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		h = strings.TrimSpace(h)
		if n := seen[h]; n > 0 {
			seen[h]++
			h = h + "." + strconv.Itoa(n)
		} else {
			seen[h] = 1
		}
		t.Headers[i] = h
	}

	t.Rows = make([]map[string]string, 0, len(records))
	t.Lines = make([]int, 0, len(records))
	for n, rec := range records {
		if isBlank(rec) {
			continue
		}
		row := make(map[string]string, len(t.Headers))
		for i, h := range t.Headers {
			if i < len(rec) {
				row[h] = rec[i]
			} else {
				row[h] = ""
			}
		}
		t.Rows = append(t.Rows, row)
		t.Lines = append(t.Lines, n+1)
	}
	return t
}

func isBlank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
