package services

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-gota/gota/series"

	"carprep/models"
	"carprep/utils"
)

// maxFillPowerKW bounds power values taken from secondary sources.
const maxFillPowerKW = 1000

var ErrNoSources = errors.New("no enrichment sources loaded")

// FieldKind selects how a field is aggregated across source rows.
type FieldKind int

const (
	// Numeric fields aggregate to their median.
	Numeric FieldKind = iota
	// Categorical fields aggregate to their mode.
	Categorical
)

// FieldSpec copies one source header into an enriched output column.
type FieldSpec struct {
	Column string
	Header string
	Kind   FieldKind
	// Parse converts a numeric cell. Nil means ParseNumber without units.
	Parse func(string) (float64, bool)
}

// Source describes one secondary dataset used to enrich the base file.
type Source struct {
	Name   string
	File   string
	Latin1 bool
	Brand  string
	Model  string
	Year   string // empty when the source has no year column
	Fields []FieldSpec
	// Power, when set, is a kW candidate used to fill missing base power.
	Power *FieldSpec
}

// SourceData pairs a Source with its loaded table.
type SourceData struct {
	Source
	Table *models.Table
}

func units(u ...string) func(string) (float64, bool) {
	return func(s string) (float64, bool) { return ParseNumber(s, u...) }
}

func horsepowerKW(s string) (float64, bool) {
	hp, ok := ParseNumber(s, "hp")
	if !ok {
		return 0, false
	}
	return hp * HorsepowerToKW, true
}

// BuiltinSources lists the known enrichment datasets in fill priority order.
func BuiltinSources() []Source {
	return []Source{
		{
			Name: "price_prediction", File: "car_price_prediction_.csv",
			Brand: "Brand", Model: "Model", Year: "Year",
			Fields: []FieldSpec{
				{Column: "Transmission", Header: "Transmission", Kind: Categorical},
				{Column: "Mileage", Header: "Mileage", Kind: Numeric, Parse: units("km")},
				{Column: "Condition", Header: "Condition", Kind: Categorical},
				{Column: "Engine_Size_L", Header: "Engine Size", Kind: Numeric, Parse: units("l")},
			},
		},
		{
			Name: "cars2025", File: "CarsDatasets 2025.csv", Latin1: true,
			Brand: "Company Names", Model: "Cars Names",
			Fields: []FieldSpec{
				{Column: "Torque_Nm", Header: "Torque", Kind: Numeric, Parse: units("nm")},
				{Column: "Performance_0_100_sec", Header: "Performance(0 - 100 )KM/H", Kind: Numeric, Parse: units("sec")},
				{Column: "Seats", Header: "Seats", Kind: Numeric, Parse: ParseSeats},
			},
			Power: &FieldSpec{Header: "HorsePower", Kind: Numeric, Parse: horsepowerKW},
		},
		{
			Name: "vehicles", File: "vehicles.csv",
			Brand: "Brand", Model: "Veh_Model",
			Fields: []FieldSpec{
				{Column: "CO2_wltp", Header: "CO2_wltp", Kind: Numeric},
				{Column: "Electric_range_km", Header: "Electric range (km)", Kind: Numeric},
				{Column: "El_Consumpt_whkm", Header: "El_Consumpt_whkm", Kind: Numeric},
				{Column: "Engine_cm3", Header: "Engine_cm3", Kind: Numeric},
			},
			Power: &FieldSpec{Header: "Power_KW", Kind: Numeric},
		},
		{
			Name: "cars2023", File: "2023 Car Dataset.csv",
			Brand: "Car Make", Model: "Car Model", Year: "Year",
			Fields: []FieldSpec{
				{Column: "Torque_Nm", Header: "Torque (Nm)", Kind: Numeric, Parse: units("nm")},
				{Column: "Engine_Size_L", Header: "Engine Size (L)", Kind: Numeric, Parse: units("l")},
				{Column: "Transmission", Header: "Transmission Type", Kind: Categorical},
				{Column: "Top_Speed_mph", Header: "Top Speed (mph)", Kind: Numeric, Parse: units("mph")},
			},
			Power: &FieldSpec{Header: "Horsepower", Kind: Numeric, Parse: horsepowerKW},
		},
	}
}

// SourceStats reports how one source contributed to a merge.
type SourceStats struct {
	Name        string
	Rows        int
	Groups      int
	MatchedRows int
}

// MergeReport summarises an enrichment run.
type MergeReport struct {
	Rows              int
	Sources           []SourceStats
	Filled            map[string]int
	PowerMissingAfter int
	PowerFilled       int
	PowerBlanked      int
}

// aggregate holds the collected values of one (brand, model[, year]) group.
type aggregate struct {
	numeric     map[string][]float64
	categorical map[string]map[string]int
}

func newAggregate() *aggregate {
	return &aggregate{numeric: make(map[string][]float64), categorical: make(map[string]map[string]int)}
}

// value returns the median or mode for column, or "" if nothing was collected.
func (a *aggregate) value(column string, kind FieldKind) string {
	if kind == Categorical {
		return mode(a.categorical[column])
	}
	vals := a.numeric[column]
	if len(vals) == 0 {
		return ""
	}
	return formatNumber(series.New(vals, series.Float, column).Median())
}

func (a *aggregate) median(column string) (float64, bool) {
	vals := a.numeric[column]
	if len(vals) == 0 {
		return 0, false
	}
	return series.New(vals, series.Float, column).Median(), true
}

const powerColumn = "\x00power"

type sourceIndex struct {
	src    Source
	byYear map[string]*aggregate
	noYear map[string]*aggregate
}

// lookup returns the year-keyed aggregate first, then the no-year one.
func (s *sourceIndex) lookup(key string, year int) []*aggregate {
	var out []*aggregate
	if year > 0 && s.src.Year != "" {
		if a, ok := s.byYear[key+"|"+strconv.Itoa(year)]; ok {
			out = append(out, a)
		}
	}
	if a, ok := s.noYear[key]; ok {
		out = append(out, a)
	}
	return out
}

type Merger struct {
	logger *utils.Logger
}

func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge enriches base in place from sources and reports what it filled.
// Empty cells are filled from the year-matched group first, then from the
// brand/model group. Missing or zero power is filled from the sources'
// power candidates, in order, using only values in (0, 1000] kW.
func (m *Merger) Merge(base *models.Table, sources []SourceData) (*MergeReport, error) {
	if len(sources) == 0 {
		return nil, ErrNoSources
	}
	cols := DetectColumns(base.Headers)
	if err := cols.Require(); err != nil {
		return nil, fmt.Errorf("merge: base dataset: %w", err)
	}

	r := &MergeReport{Rows: len(base.Rows), Filled: make(map[string]int)}
	maxYear := time.Now().Year() + 1

	indexes := make([]*sourceIndex, 0, len(sources))
	for _, sd := range sources {
		idx := m.index(sd, maxYear)
		indexes = append(indexes, idx)
		for _, f := range sd.Fields {
			base.AddColumn(f.Column)
		}
		r.Sources = append(r.Sources, SourceStats{Name: sd.Name, Rows: len(sd.Table.Rows), Groups: len(idx.noYear)})
	}

	for _, row := range base.Rows {
		key := NormalizeBrand(row[cols.Brand]) + "|" + NormalizeModel(row[cols.Model])
		year := ParseYear(row[cols.Year], maxYear)

		for i, idx := range indexes {
			aggs := idx.lookup(key, year)
			if len(aggs) == 0 {
				continue
			}
			r.Sources[i].MatchedRows++
			for _, f := range idx.src.Fields {
				if strings.TrimSpace(row[f.Column]) != "" {
					continue
				}
				for _, a := range aggs {
					if v := a.value(f.Column, f.Kind); v != "" {
						row[f.Column] = v
						r.Filled[f.Column]++
						break
					}
				}
			}
		}

		if cols.Power != "" {
			m.fillPower(row, cols.Power, key, year, indexes, r)
		}
	}

	m.logger.Info("[merge] Enriched %d rows from %d sources; power filled %d, blanked %d, still missing %d",
		r.Rows, len(sources), r.PowerFilled, r.PowerBlanked, r.PowerMissingAfter)
	return r, nil
}

func (m *Merger) fillPower(row map[string]string, column, key string, year int, indexes []*sourceIndex, r *MergeReport) {
	current, ok := ParseNumber(row[column], "kw")
	if !ok || current == 0 {
	candidates:
		for _, idx := range indexes {
			if idx.src.Power == nil {
				continue
			}
			for _, a := range idx.lookup(key, year) {
				kw, ok := a.median(powerColumn)
				if ok && kw > 0 && kw <= maxFillPowerKW {
					row[column] = formatNumber(kw)
					current = kw
					r.PowerFilled++
					break candidates
				}
			}
		}
	}
	if current > maxFillPowerKW {
		row[column] = ""
		current = 0
		r.PowerBlanked++
	}
	if current == 0 {
		r.PowerMissingAfter++
	}
}

// index groups a source's rows by normalised brand/model, with and without year.
func (m *Merger) index(sd SourceData, maxYear int) *sourceIndex {
	idx := &sourceIndex{src: sd.Source, byYear: make(map[string]*aggregate), noYear: make(map[string]*aggregate)}
	get := func(set map[string]*aggregate, key string) *aggregate {
		a, ok := set[key]
		if !ok {
			a = newAggregate()
			set[key] = a
		}
		return a
	}

	for _, row := range sd.Table.Rows {
		brand := NormalizeBrand(row[sd.Brand])
		model := NormalizeModel(row[sd.Model])
		if brand == "" || model == "" {
			continue
		}
		key := brand + "|" + model
		groups := []*aggregate{get(idx.noYear, key)}
		if sd.Year != "" {
			if y := ParseYear(row[sd.Year], maxYear); y > 0 {
				groups = append(groups, get(idx.byYear, key+"|"+strconv.Itoa(y)))
			}
		}

		for _, f := range sd.Fields {
			collect(groups, f.Column, f, row[f.Header])
		}
		if sd.Power != nil {
			collect(groups, powerColumn, *sd.Power, row[sd.Power.Header])
		}
	}
	m.logger.Debug("[merge] %s: %d rows → %d brand/model groups, %d year groups",
		sd.Name, len(sd.Table.Rows), len(idx.noYear), len(idx.byYear))
	return idx
}

func collect(groups []*aggregate, column string, f FieldSpec, raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	if f.Kind == Categorical {
		for _, g := range groups {
			if g.categorical[column] == nil {
				g.categorical[column] = make(map[string]int)
			}
			g.categorical[column][raw]++
		}
		return
	}
	parse := f.Parse
	if parse == nil {
		parse = func(s string) (float64, bool) { return ParseNumber(s) }
	}
	v, ok := parse(raw)
	if !ok {
		return
	}
	for _, g := range groups {
		g.numeric[column] = append(g.numeric[column], v)
	}
}

// mode returns the most frequent value. Ties go to the lexically smallest.
func mode(counts map[string]int) string {
	best, bestN := "", 0
	for v, n := range counts {
		if n > bestN || (n == bestN && v < best) {
			best, bestN = v, n
		}
	}
	return best
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(round2(v), 'f', -1, 64)
}

func (m *Merger) Print(w io.Writer, r *MergeReport) {
	printBanner(w, "🔗 MERGE SUMMARY")

	printSection(w, "Sources")
	for _, s := range r.Sources {
		fmt.Fprintf(w, "  %-18s rows %7d  groups %6d  matched %6d (%.1f%%)\n",
			s.Name, s.Rows, s.Groups, s.MatchedRows, pct(s.MatchedRows, r.Rows))
	}
	fmt.Fprintln(w)

	printSection(w, "Filled Columns")
	cols := make([]string, 0, len(r.Filled))
	for c := range r.Filled {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		fmt.Fprintf(w, "  %-24s %6d (%.1f%%)\n", c, r.Filled[c], pct(r.Filled[c], r.Rows))
	}
	fmt.Fprintln(w)

	printSection(w, "Power")
	fmt.Fprintf(w, "  Filled         : \033[1;32m%d\033[0m\n", r.PowerFilled)
	fmt.Fprintf(w, "  Blanked >%d kW : %d\n", maxFillPowerKW, r.PowerBlanked)
	fmt.Fprintf(w, "  Still missing  : %d\n", r.PowerMissingAfter)

	printFooter(w)
}
