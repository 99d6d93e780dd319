package services

import (
	"errors"
	"strings"
	"testing"

	"carprep/models"
	"carprep/storage"
	"carprep/utils"
)

func newTestLogger() *utils.Logger { return utils.NewTestLogger() }

func sampleTable() *models.Table {
	return &models.Table{
		Headers: []string{"Merk", "Model", "Budget", "Vermogen", "Bouwjaar", "Brandstof", "Type_auto"},
		Rows: []map[string]string{
			{"Merk": "Audi", "Model": "A4", "Budget": "€ 25.000,00", "Vermogen": "110 kW", "Bouwjaar": "2019", "Brandstof": "Benzine", "Type_auto": "Sedan"},
			{"Merk": "Audi", "Model": "A4", "Budget": "31000", "Vermogen": "140", "Bouwjaar": "2021", "Brandstof": "Diesel", "Type_auto": "Sedan"},
			{"Merk": "Fiat", "Model": "Panda", "Budget": "150", "Vermogen": "51", "Bouwjaar": "2015"},
			{"Merk": "", "Model": "Ghost", "Budget": "9000", "Vermogen": "90", "Bouwjaar": "2018"},
			{"Merk": "Tesla", "Model": "Model 3", "Budget": "45000", "Vermogen": "", "Bouwjaar": "2022"},
		},
	}
}

func TestCleanerVehiclesParsesFields(t *testing.T) {
	c := NewCleaner(newTestLogger(), DefaultBounds())
	vs, err := c.Vehicles(sampleTable())
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if len(vs) != 5 {
		t.Fatalf("expected 5 vehicles, got %d", len(vs))
	}

	first := vs[0]
	if first.ID != 1 || first.Row != 1 {
		t.Errorf("ID/Row: got %d/%d, want 1/1", first.ID, first.Row)
	}
	if got := first.PriceFloat(); got != 25000 {
		t.Errorf("price: got %.2f, want 25000", got)
	}
	if first.PowerKW != 110 {
		t.Errorf("power: got %d, want 110", first.PowerKW)
	}
	if first.Year != 2019 {
		t.Errorf("year: got %d, want 2019", first.Year)
	}
	if first.Fuel != "Benzine" || first.BodyType != "Sedan" {
		t.Errorf("fuel/body: got %q/%q", first.Fuel, first.BodyType)
	}
}

func TestCleanerVehiclesKeepsSourceLineAcrossBlankRows(t *testing.T) {
	tbl, err := storage.ReadTable(strings.NewReader("merk,model,prijs\nAudi,A4,20000\n,,\nBMW,X5,50000\n"))
	if err != nil {
		t.Fatalf("ReadTable: %v", err)
	}
	vs, err := NewCleaner(newTestLogger(), DefaultBounds()).Vehicles(tbl)
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if len(vs) != 2 {
		t.Fatalf("expected 2 vehicles, got %d", len(vs))
	}
	if vs[1].Model != "X5" || vs[1].ID != 3 || vs[1].Row != 3 {
		t.Errorf("BMW X5: got model %q ID/Row %d/%d, want X5 3/3", vs[1].Model, vs[1].ID, vs[1].Row)
	}

	kept := KeptTable(tbl, vs[1:])
	if got := kept.Line(0); got != 3 {
		t.Errorf("kept line: got %d, want 3", got)
	}
}

func TestCleanerVehiclesUsesIDColumn(t *testing.T) {
	c := NewCleaner(newTestLogger(), DefaultBounds())
	table := &models.Table{
		Headers: []string{"id", "brand", "model"},
		Rows:    []map[string]string{{"id": "42", "brand": "Kia", "model": "Ceed"}},
	}
	vs, err := c.Vehicles(table)
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if vs[0].ID != 42 {
		t.Errorf("ID: got %d, want 42", vs[0].ID)
	}
}

func TestCleanerVehiclesConvertsHorsepower(t *testing.T) {
	c := NewCleaner(newTestLogger(), DefaultBounds())
	table := &models.Table{
		Headers: []string{"Company Names", "Cars Names", "HorsePower"},
		Rows:    []map[string]string{{"Company Names": "Ford", "Cars Names": "Mustang", "HorsePower": "450 hp"}},
	}
	vs, err := c.Vehicles(table)
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}
	if vs[0].PowerKW != 336 {
		t.Errorf("power: got %d kW, want 336", vs[0].PowerKW)
	}
}

func TestCleanerVehiclesMissingBrand(t *testing.T) {
	c := NewCleaner(newTestLogger(), DefaultBounds())
	_, err := c.Vehicles(&models.Table{Headers: []string{"model", "price"}})
	if !errors.Is(err, ErrNoBrandColumn) {
		t.Errorf("expected ErrNoBrandColumn, got %v", err)
	}
}

func TestCleanerCleanFiltersAndDeduplicates(t *testing.T) {
	c := NewCleaner(newTestLogger(), DefaultBounds())
	vs, err := c.Vehicles(sampleTable())
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}

	res := c.Clean(vs)
	// Panda is too cheap and Tesla has no power. Ghost passes the filter
	// but dedup drops it for its empty brand.
	if len(res.Filter.Rejected) != 2 {
		t.Errorf("rejected: got %d, want 2", len(res.Filter.Rejected))
	}
	if res.Filter.Reasons[ReasonPriceLow] != 1 {
		t.Errorf("price-low count: got %d, want 1", res.Filter.Reasons[ReasonPriceLow])
	}
	if res.Filter.Reasons[ReasonPowerMissing] != 1 {
		t.Errorf("power-missing count: got %d, want 1", res.Filter.Reasons[ReasonPowerMissing])
	}
	if len(res.Dedup.Kept) != 1 {
		t.Fatalf("kept: got %d, want 1", len(res.Dedup.Kept))
	}
	if got := res.Dedup.Kept[0].PriceFloat(); got != 31000 {
		t.Errorf("kept A4 price: got %.2f, want 31000", got)
	}
	if Violations(res.Dedup.Kept, DefaultBounds()) != 0 {
		t.Error("cleaned set should have no violations")
	}
}

func TestNormaliseText(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{"  Land   Rover ", "Land Rover"},
		{"A4\tAvant", "A4 Avant"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normaliseText(tt.raw); got != tt.want {
			t.Errorf("normaliseText(%q) = %q; want %q", tt.raw, got, tt.want)
		}
	}
}

func TestKeptTablePreservesSourceCells(t *testing.T) {
	src := sampleTable()
	c := NewCleaner(newTestLogger(), DefaultBounds())
	vs, err := c.Vehicles(src)
	if err != nil {
		t.Fatalf("Vehicles: %v", err)
	}

	out := KeptTable(src, c.Clean(vs).Dedup.Kept)
	if len(out.Headers) != len(src.Headers) {
		t.Fatalf("headers: got %v, want %v", out.Headers, src.Headers)
	}
	if len(out.Rows) != 1 {
		t.Fatalf("rows: got %d, want 1", len(out.Rows))
	}
	if got := out.Rows[0]["Budget"]; got != "31000" {
		t.Errorf("Budget cell: got %q, want the raw source value", got)
	}
}
