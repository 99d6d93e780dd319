package services

import (
	"fmt"
	"io"

	"carprep/models"
)

// FilterCheck verifies that applying a bound set leaves no violations.
type FilterCheck struct {
	Bounds     models.Bounds
	Input      int
	Result     FilterResult
	Violations int
	Stats      []*models.FieldStats
}

// VerifyFilter filters vehicles with b and re-checks the kept set.
func VerifyFilter(vehicles []*models.Vehicle, b models.Bounds) *FilterCheck {
	res := Filter(vehicles, b)
	c := &FilterCheck{
		Bounds:     b,
		Input:      len(vehicles),
		Result:     res,
		Violations: Violations(res.Kept, b),
	}

	var prices, powers, years []float64
	for _, v := range res.Kept {
		prices = append(prices, v.PriceFloat())
		powers = append(powers, float64(v.PowerKW))
		years = append(years, float64(v.Year))
	}
	for _, fs := range []*models.FieldStats{
		fieldStats("price", "€", prices, len(res.Kept)),
		fieldStats("power", "kW", powers, len(res.Kept)),
		fieldStats("year", "", years, len(res.Kept)),
	} {
		if fs != nil {
			c.Stats = append(c.Stats, fs)
		}
	}
	return c
}

// OK reports whether the kept set is free of violations.
func (c *FilterCheck) OK() bool { return c.Violations == 0 }

func PrintFilterCheck(w io.Writer, c *FilterCheck) {
	printBanner(w, "✅ FILTER VERIFICATION")

	printSection(w, "Bounds")
	fmt.Fprintf(w, "  Price : %.0f - %.0f\n", c.Bounds.MinPrice, c.Bounds.MaxPrice)
	fmt.Fprintf(w, "  Power : %d - %d kW\n", c.Bounds.MinPower, c.Bounds.MaxPower)
	fmt.Fprintf(w, "  Year  : %d - %d\n", c.Bounds.MinYear, c.Bounds.MaxYear)
	fmt.Fprintln(w)

	printSection(w, "Result")
	fmt.Fprintf(w, "  Input    : \033[1m%d\033[0m\n", c.Input)
	fmt.Fprintf(w, "  Kept     : \033[1;32m%d\033[0m (%.1f%%)\n", len(c.Result.Kept), pct(len(c.Result.Kept), c.Input))
	fmt.Fprintf(w, "  Filtered : \033[1;31m%d\033[0m (%.1f%%)\n", len(c.Result.Rejected), pct(len(c.Result.Rejected), c.Input))
	if c.OK() {
		fmt.Fprintf(w, "  Violations in kept set: \033[1;32m0\033[0m\n")
	} else {
		fmt.Fprintf(w, "  Violations in kept set: \033[1;31m%d\033[0m\n", c.Violations)
	}
	fmt.Fprintln(w)

	printSection(w, "Why Rows Were Filtered")
	rows := sortedCounts(c.Result.Reasons)
	if len(rows) == 0 {
		fmt.Fprintf(w, "  Nothing filtered\n")
	}
	for _, lc := range rows {
		fmt.Fprintf(w, "  %-26s %6d (%.1f%%)\n", lc.label, lc.count, pct(lc.count, c.Input))
	}
	fmt.Fprintln(w)

	printSection(w, "Kept Set")
	for _, s := range c.Stats {
		fmt.Fprintf(w, "  %-6s min %.0f  max %.0f  mean %.1f  median %.1f %s\n",
			s.Field, s.Min, s.Max, s.Mean, s.Median, s.Unit)
	}

	printFooter(w)
}
