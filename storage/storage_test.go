package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/models"
)

func vehicle(id int, brand, model string, price float64, year, power int) *models.Vehicle {
	v := &models.Vehicle{ID: id, Row: id, Brand: brand, Model: model, Year: year, PowerKW: power}
	if price > 0 {
		v.Price = decimal.NewNullDecimal(decimal.NewFromFloat(price))
	}
	return v
}

func TestReadTableHandlesBOMAndRaggedRows(t *testing.T) {
	raw := "\ufeff Merk ,Model,Budget\nAudi,A4,25000\nFiat,Panda\n,,\nBMW,M5,90000,extra\n"
	tbl, err := ReadTable(strings.NewReader(raw))
	require.NoError(t, err)

	assert.Equal(t, []string{"Merk", "Model", "Budget"}, tbl.Headers)
	require.Len(t, tbl.Rows, 3)
	assert.Equal(t, "Audi", tbl.Rows[0]["Merk"])
	assert.Equal(t, "", tbl.Rows[1]["Budget"])
	assert.Equal(t, "90000", tbl.Rows[2]["Budget"])
	assert.Equal(t, []int{1, 2, 4}, tbl.Lines, "the blank row keeps its line number")
}

func TestReadTableRenamesDuplicateHeaders(t *testing.T) {
	tbl, err := ReadTable(strings.NewReader("Price,Price,Price\n1,2,3\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Price", "Price.1", "Price.2"}, tbl.Headers)
	assert.Equal(t, "3", tbl.Rows[0]["Price.2"])
}

func TestReadTableEmpty(t *testing.T) {
	_, err := ReadTable(strings.NewReader(""))
	assert.Error(t, err)
}

func TestLoadTableLatin1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cars.csv")
	require.NoError(t, os.WriteFile(path, []byte("Brand,Model\nCitro\xebn,C3\n"), 0644))

	tbl, err := LoadTable(path, LoadOptions{Latin1: true})
	require.NoError(t, err)
	assert.Equal(t, "Citroën", tbl.Rows[0]["Brand"])
}

func TestCSVRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "clean.csv")
	in := &models.Table{
		Headers: []string{"Merk", "Model", "Opmerking"},
		Rows: []map[string]string{
			{"Merk": "Audi", "Model": "A4", "Opmerking": "zuinig, ruim"},
			{"Merk": "BMW", "Model": "M5", "Opmerking": `"snel"`},
		},
	}
	require.NoError(t, WriteTableFile(path, in))

	out, err := LoadTable(path, LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, in.Headers, out.Headers)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestXLSXRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clean.xlsx")
	in := &models.Table{
		Headers: []string{"Brand", "Model", "Price"},
		Rows: []map[string]string{
			{"Brand": "Audi", "Model": "A4", "Price": "25000"},
			{"Brand": "Fiat", "Model": "Panda", "Price": "9000"},
		},
	}
	require.NoError(t, WriteTableFile(path, in))

	out, err := LoadTable(path, LoadOptions{Sheet: "dataset"})
	require.NoError(t, err)
	assert.Equal(t, in.Headers, out.Headers)
	assert.Equal(t, in.Rows, out.Rows)
}

func TestXLSXRealismReportSheets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	w, err := NewXLSXWriter(path, "data")
	require.NoError(t, err)

	report := &models.RealismReport{TotalRows: 2, Realistic: 1}
	require.NoError(t, w.WriteRealismReport(report))
	require.NoError(t, w.Close())

	tbl, err := LoadTable(path, LoadOptions{Sheet: "data"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Metric", "Value"}, tbl.Headers)
	assert.Equal(t, "Total rows", tbl.Rows[0]["Metric"])
	assert.Equal(t, "2", tbl.Rows[0]["Value"])
}

func TestTextListRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tools", "images_to_delete.txt")
	require.NoError(t, WriteLines(path, []string{"a.jpg", "b.jpg"}))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, lines)
}

func TestReadLinesTrimsAndSkipsBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("a.jpg\n\n  b.jpg  \r\n"), 0644))

	lines, err := ReadLines(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.jpg"}, lines)
}

func TestListImagesSkipsDirectories(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "thumbs"), 0755))

	names, err := ListImages(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.png", "b.jpg"}, names)
}

func TestWriteJSONIndents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mapping.json")
	require.NoError(t, WriteJSON(path, map[string]int{"audi|a4": 1}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"audi|a4\": 1\n}\n", string(data))
}

func TestInsertBatchPlaceholders(t *testing.T) {
	batch := []*models.Vehicle{
		vehicle(1, "Audi", "A4", 25000, 2019, 110),
		vehicle(2, "Fiat", "Panda", 0, 0, 0),
	}

	pq, args := postgresDialect.insertBatch("run-1", batch)
	assert.Contains(t, pq, "$26")
	assert.NotContains(t, pq, "$27")
	assert.Contains(t, pq, "ON CONFLICT (brand_model_key) DO UPDATE SET")
	assert.NotContains(t, pq, "brand_model_key = EXCLUDED")
	assert.Len(t, args, 2*len(vehicleColumns))

	lite, _ := sqliteDialect.insertBatch("run-1", batch)
	assert.Equal(t, 2*len(vehicleColumns), strings.Count(lite, "?"))
}

func TestDedupBatchKeepsLast(t *testing.T) {
	out := dedupBatch([]*models.Vehicle{
		vehicle(1, "Audi", "A4", 25000, 2019, 110),
		vehicle(2, "BMW", "M5", 90000, 2020, 441),
		vehicle(3, "audi", "a4", 27000, 2020, 120),
	})
	require.Len(t, out, 2)
	assert.Equal(t, 3, out[0].ID)
	assert.Equal(t, 2, out[1].ID)
}

func TestSQLiteWriteFetchAndUpsert(t *testing.T) {
	w, err := NewSQLiteWriter(filepath.Join(t.TempDir(), "db", "cars.db"))
	require.NoError(t, err)
	defer w.Close()

	first := []*models.Vehicle{
		vehicle(1, "Audi", "A4", 25000, 2019, 110),
		vehicle(2, "Fiat", "Panda", 0, 0, 0),
	}
	first[0].Mileage, first[0].HasMileage = 42000, true
	require.NoError(t, w.Write("run-1", first))

	got, err := w.FetchAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Audi", got[0].Brand)
	assert.Equal(t, 2019, got[0].Year)
	assert.Equal(t, 110, got[0].PowerKW)
	assert.True(t, got[0].Price.Valid)
	assert.Equal(t, 25000.0, got[0].PriceFloat())
	assert.True(t, got[0].HasMileage)
	assert.Equal(t, 42000.0, got[0].Mileage)
	assert.False(t, got[1].Price.Valid)
	assert.False(t, got[1].HasMileage)
	assert.Equal(t, 0, got[1].Year)

	require.NoError(t, w.Write("run-2", []*models.Vehicle{vehicle(7, "Audi", "A4", 31000, 2021, 140)}))
	got, err = w.FetchAll()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 7, got[0].ID)
	assert.Equal(t, 31000.0, got[0].PriceFloat())

	n, err := w.CountByRun("run-2")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, w.Clear())
	got, err = w.FetchAll()
	require.NoError(t, err)
	assert.Empty(t, got)
}
