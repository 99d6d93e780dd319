package models

// FieldStats summarises one numeric column.
type FieldStats struct {
	Field  string
	Unit   string
	Count  int
	Total  int
	Min    float64
	Max    float64
	Mean   float64
	Median float64
	StdDev float64
}

// Outlier is a named rule with the vehicles that broke it.
type Outlier struct {
	Label    string
	Count    int
	Examples []*Vehicle
}

// Percent returns Count as a percentage of total.
func (o Outlier) Percent(total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(o.Count) / float64(total) * 100
}

// RealismSection groups the stats and outliers for one field.
type RealismSection struct {
	Title    string
	Stats    *FieldStats
	Outliers []Outlier
}

// RealismReport holds the full data-realism analysis.
type RealismReport struct {
	TotalRows    int
	Realistic    int
	Bounds       Bounds
	Sections     []RealismSection
	Combinations []Outlier
}

// InsightReport holds the computed overview of a cleaned dataset.
type InsightReport struct {
	TotalVehicles   int
	UniqueKeys      int
	AveragePrice    float64
	MinPrice        float64
	MaxPrice        float64
	MostExpensive   *Vehicle
	MostPowerful    []*Vehicle
	VehiclesByBrand map[string]int
	VehiclesByFuel  map[string]int
	VehiclesByBody  map[string]int
}

// DedupResult is the outcome of a Brand|Model deduplication.
type DedupResult struct {
	Kept       []*Vehicle
	Discarded  int
	InputRows  int
	Duplicates map[string]int // key -> number of rows that shared it
}
