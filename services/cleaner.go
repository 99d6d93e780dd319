package services

import (
	"math"
	"strconv"
	"strings"
	"time"

	"carprep/models"
	"carprep/utils"
)

// Cleaner turns raw CSV rows into vehicles and reduces them to a realistic,
// deduplicated set.
type Cleaner struct {
	logger *utils.Logger
	bounds models.Bounds
}

// NewCleaner creates a Cleaner that filters with bounds.
func NewCleaner(logger *utils.Logger, bounds models.Bounds) *Cleaner {
	return &Cleaner{logger: logger, bounds: bounds}
}

// CleanResult carries both stages of a clean run.
type CleanResult struct {
	Filter FilterResult
	Dedup  models.DedupResult
}

// Vehicles parses every row of t. Unparseable fields are left at their
// zero value. It fails only when brand or model columns are missing.
func (c *Cleaner) Vehicles(t *models.Table) ([]*models.Vehicle, error) {
	cols := DetectColumns(t.Headers)
	if err := cols.Require(); err != nil {
		return nil, err
	}
	c.logger.Debug("[cleaner] Columns: brand=%q model=%q price=%q power=%q year=%q",
		cols.Brand, cols.Model, cols.Price, cols.Power, cols.Year)

	maxYear := time.Now().Year() + 1
	hpColumn := strings.Contains(strings.ToLower(cols.Power), "horse")

	out := make([]*models.Vehicle, 0, len(t.Rows))
	for i, row := range t.Rows {
		line := t.Line(i)
		v := &models.Vehicle{
			ID:           line,
			Row:          line,
			Brand:        normaliseText(row[cols.Brand]),
			Model:        normaliseText(row[cols.Model]),
			Year:         ParseYear(row[cols.Year], maxYear),
			Price:        ParsePrice(row[cols.Price]),
			Fuel:         normaliseText(row[cols.Fuel]),
			BodyType:     normaliseText(row[cols.Body]),
			Transmission: normaliseText(row[cols.Transmission]),
			ImagePath:    strings.TrimSpace(row[cols.Image]),
			Fields:       row,
		}
		if cols.ID != "" {
			if id, ok := parseID(row[cols.ID]); ok {
				v.ID = id
			}
		}

		rawPower := row[cols.Power]
		v.PowerKW = ParsePower(rawPower)
		if v.PowerKW > 0 && (hpColumn || strings.Contains(strings.ToLower(rawPower), "hp")) {
			v.PowerKW = int(math.Round(float64(v.PowerKW) * HorsepowerToKW))
		}

		if m, ok := ParseNumber(row[cols.Mileage], "km", "miles"); ok {
			v.Mileage, v.HasMileage = m, true
		}

		if raw := strings.TrimSpace(row[cols.Price]); raw != "" && !v.Price.Valid {
			c.logger.Debug("[cleaner] Row %d: unparseable price %q", v.Row, raw)
		}
		out = append(out, v)
	}
	return out, nil
}

// Clean keeps realistic vehicles, then deduplicates by Brand|Model keeping
// the highest price.
func (c *Cleaner) Clean(vehicles []*models.Vehicle) *CleanResult {
	filtered := Filter(vehicles, c.bounds)
	for reason, n := range filtered.Reasons {
		c.logger.Debug("[cleaner] %d rows rejected: %s", n, reason)
	}

	dedup := Deduplicate(filtered.Kept)
	c.logger.Info("[cleaner] Cleaned %d → %d realistic → %d unique vehicles (dropped %d)",
		len(vehicles), len(filtered.Kept), len(dedup.Kept), len(vehicles)-len(dedup.Kept))

	return &CleanResult{Filter: filtered, Dedup: dedup}
}

func parseID(raw string) (int, bool) {
	raw = strings.TrimSpace(raw)
	if id, err := strconv.Atoi(raw); err == nil {
		return id, true
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil && f == math.Trunc(f) {
		return int(f), true
	}
	return 0, false
}

// KeptTable rebuilds a table holding only the rows behind vs, with the
// source headers and cell values untouched.
func KeptTable(src *models.Table, vs []*models.Vehicle) *models.Table {
	out := &models.Table{
		Headers: append([]string(nil), src.Headers...),
		Rows:    make([]map[string]string, 0, len(vs)),
		Lines:   make([]int, 0, len(vs)),
	}
	for _, v := range vs {
		if v.Fields != nil {
			out.Rows = append(out.Rows, v.Fields)
			out.Lines = append(out.Lines, v.Row)
		}
	}
	return out
}
