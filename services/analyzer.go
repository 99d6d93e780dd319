package services

import (
	"fmt"
	"io"

	"github.com/go-gota/gota/series"

	"carprep/models"
	"carprep/utils"
)

const (
	maxExamples    = 10
	maxMileageKM   = 500000
	printedExample = 5
)

// Mileage outlier labels.
const (
	MileageNegative = "negative mileage"
	MileageExtreme  = "mileage above 500000 km"
	MileageMissing  = "mileage missing"
)

// Analyzer builds the realism report for a dataset. Its price, power and
// year outliers are exactly the reasons Check returns.
type Analyzer struct {
	logger *utils.Logger
	bounds models.Bounds
}

func NewAnalyzer(logger *utils.Logger, bounds models.Bounds) *Analyzer {
	return &Analyzer{logger: logger, bounds: bounds}
}

// Analyze computes per-field statistics, outliers and suspicious combinations.
func (a *Analyzer) Analyze(vehicles []*models.Vehicle) *models.RealismReport {
	r := &models.RealismReport{TotalRows: len(vehicles), Bounds: a.bounds}

	outliers := newOutlierSet()
	var prices, years, powers, mileages []float64

	for _, v := range vehicles {
		reasons := Check(v, a.bounds)
		if len(reasons) == 0 {
			r.Realistic++
		}
		for _, reason := range reasons {
			outliers.add(reason, v)
		}
		for _, s := range Suspicions(v) {
			outliers.add(s, v)
		}

		if v.Price.Valid {
			prices = append(prices, v.PriceFloat())
		}
		if v.Year > 0 {
			years = append(years, float64(v.Year))
		}
		if v.PowerKW > 0 {
			powers = append(powers, float64(v.PowerKW))
		}
		switch {
		case !v.HasMileage:
			outliers.add(MileageMissing, v)
		case v.Mileage < 0:
			outliers.add(MileageNegative, v)
			mileages = append(mileages, v.Mileage)
		case v.Mileage > maxMileageKM:
			outliers.add(MileageExtreme, v)
			mileages = append(mileages, v.Mileage)
		default:
			mileages = append(mileages, v.Mileage)
		}
	}

	total := len(vehicles)
	r.Sections = []models.RealismSection{
		{
			Title:    "Price",
			Stats:    fieldStats("price", "€", prices, total),
			Outliers: outliers.pick(ReasonPriceMissing, ReasonPriceLow, ReasonPriceHigh),
		},
		{
			Title:    "Year",
			Stats:    fieldStats("year", "", years, total),
			Outliers: outliers.pick(ReasonYearMissing, ReasonYearLow, ReasonYearHigh),
		},
		{
			Title:    "Power",
			Stats:    fieldStats("power", "kW", powers, total),
			Outliers: outliers.pick(ReasonPowerMissing, ReasonPowerLow, ReasonPowerHigh),
		},
		{
			Title:    "Mileage",
			Stats:    fieldStats("mileage", "km", mileages, total),
			Outliers: outliers.pick(MileageMissing, MileageNegative, MileageExtreme),
		},
	}
	r.Combinations = outliers.pick(SuspectOldExpensive, SuspectNewCheap, SuspectPowerCheap)

	a.logger.Info("[analyzer] %d rows analysed, %d realistic", r.TotalRows, r.Realistic)
	return r
}

// fieldStats summarises vals. It returns nil when there is nothing to summarise.
func fieldStats(field, unit string, vals []float64, total int) *models.FieldStats {
	if len(vals) == 0 {
		return nil
	}
	s := series.New(vals, series.Float, field)
	fs := &models.FieldStats{
		Field:  field,
		Unit:   unit,
		Count:  s.Len(),
		Total:  total,
		Min:    s.Min(),
		Max:    s.Max(),
		Mean:   s.Mean(),
		Median: s.Median(),
	}
	if s.Len() > 1 {
		fs.StdDev = s.StdDev()
	}
	return fs
}

type outlierSet struct {
	byLabel map[string]*models.Outlier
}

func newOutlierSet() *outlierSet {
	return &outlierSet{byLabel: make(map[string]*models.Outlier)}
}

func (o *outlierSet) add(label string, v *models.Vehicle) {
	out, ok := o.byLabel[label]
	if !ok {
		out = &models.Outlier{Label: label}
		o.byLabel[label] = out
	}
	out.Count++
	if len(out.Examples) < maxExamples {
		out.Examples = append(out.Examples, v)
	}
}

// pick returns the outliers for labels in the given order, zero counts included.
func (o *outlierSet) pick(labels ...string) []models.Outlier {
	out := make([]models.Outlier, 0, len(labels))
	for _, l := range labels {
		if x, ok := o.byLabel[l]; ok {
			out = append(out, *x)
		} else {
			out = append(out, models.Outlier{Label: l})
		}
	}
	return out
}

// Print renders the report to w.
func (a *Analyzer) Print(w io.Writer, r *models.RealismReport) {
	printBanner(w, "🔍 DATA REALISM ANALYSIS")

	printSection(w, "Overview")
	fmt.Fprintf(w, "  Total rows     : \033[1m%d\033[0m\n", r.TotalRows)
	fmt.Fprintf(w, "  Realistic rows : \033[1;32m%d\033[0m (%.1f%%)\n", r.Realistic, pct(r.Realistic, r.TotalRows))
	fmt.Fprintf(w, "  Bounds         : price %.0f-%.0f, power %d-%d kW, year %d-%d\n",
		r.Bounds.MinPrice, r.Bounds.MaxPrice, r.Bounds.MinPower, r.Bounds.MaxPower, r.Bounds.MinYear, r.Bounds.MaxYear)
	fmt.Fprintln(w)

	for _, sec := range r.Sections {
		printSection(w, sec.Title)
		if sec.Stats == nil {
			fmt.Fprintf(w, "  No %s data\n", sec.Title)
		} else {
			s := sec.Stats
			fmt.Fprintf(w, "  Present : %d / %d\n", s.Count, s.Total)
			fmt.Fprintf(w, "  Min/Max : %.2f / %.2f %s\n", s.Min, s.Max, s.Unit)
			fmt.Fprintf(w, "  Mean    : %.2f  Median: %.2f  StdDev: %.2f\n", s.Mean, s.Median, s.StdDev)
		}
		printOutliers(w, sec.Outliers, r.TotalRows)
		fmt.Fprintln(w)
	}

	printSection(w, "Suspicious Combinations")
	printOutliers(w, r.Combinations, r.TotalRows)

	printFooter(w)
}

func printOutliers(w io.Writer, outliers []models.Outlier, total int) {
	for _, o := range outliers {
		color := "32"
		if o.Count > 0 {
			color = "31"
		}
		fmt.Fprintf(w, "  %-38s \033[1;%sm%d\033[0m (%.1f%%)\n", o.Label, color, o.Count, o.Percent(total))
		for i, v := range o.Examples {
			if i == printedExample {
				break
			}
			fmt.Fprintf(w, "      row %-6d %s\n", v.Row, describe(v))
		}
	}
}

// describe renders a vehicle on one line for reports.
func describe(v *models.Vehicle) string {
	p := "-"
	if v.Price.Valid {
		p = "€" + v.Price.Decimal.StringFixed(0)
	}
	return fmt.Sprintf("%s %s (%d) %s %d kW", truncate(v.Brand, 16), truncate(v.Model, 24), v.Year, p, v.PowerKW)
}
