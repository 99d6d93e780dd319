package services

import (
	"fmt"
	"io"
	"sort"

	"carprep/models"
	"carprep/utils"
)

type InsightService struct {
	logger *utils.Logger
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{logger: logger}
}

func (s *InsightService) Generate(vehicles []*models.Vehicle) *models.InsightReport {
	report := &models.InsightReport{
		VehiclesByBrand: make(map[string]int),
		VehiclesByFuel:  make(map[string]int),
		VehiclesByBody:  make(map[string]int),
	}

	if len(vehicles) == 0 {
		return report
	}

	report.TotalVehicles = len(vehicles)
	report.UniqueKeys = CountUnique(vehicles)

	var priced []*models.Vehicle
	var powered []*models.Vehicle

	for _, v := range vehicles {
		if v.PriceFloat() > 0 {
			priced = append(priced, v)
		}
		if v.PowerKW > 0 {
			powered = append(powered, v)
		}
		if v.Brand != "" {
			report.VehiclesByBrand[v.Brand]++
		}
		if v.Fuel != "" {
			report.VehiclesByFuel[v.Fuel]++
		}
		if v.BodyType != "" {
			report.VehiclesByBody[v.BodyType]++
		}
	}

	// Price stats (only vehicles with price > 0)
	if len(priced) > 0 {
		report.MinPrice = priced[0].PriceFloat()
		report.MaxPrice = priced[0].PriceFloat()
		report.MostExpensive = priced[0]
		var total float64
		for _, v := range priced {
			p := v.PriceFloat()
			total += p
			if p < report.MinPrice {
				report.MinPrice = p
			}
			if p > report.MaxPrice {
				report.MaxPrice = p
				report.MostExpensive = v
			}
		}
		report.AveragePrice = round2(total / float64(len(priced)))
		report.MinPrice = round2(report.MinPrice)
		report.MaxPrice = round2(report.MaxPrice)
	}

	// Top 5 by power
	sort.SliceStable(powered, func(i, j int) bool {
		return powered[i].PowerKW > powered[j].PowerKW
	})
	if len(powered) > 5 {
		report.MostPowerful = powered[:5]
	} else {
		report.MostPowerful = powered
	}

	s.logger.Debug("[insights] %d vehicles, %d brands, %d fuel types, %d body types",
		report.TotalVehicles, len(report.VehiclesByBrand), len(report.VehiclesByFuel), len(report.VehiclesByBody))
	return report
}

func (s *InsightService) Print(w io.Writer, r *models.InsightReport) {
	printBanner(w, "🚗 DATASET INSIGHTS")

	printSection(w, "Overview")
	fmt.Fprintf(w, "  Total vehicles         : \033[1m%d\033[0m\n", r.TotalVehicles)
	fmt.Fprintf(w, "  Unique brand|model     : \033[1m%d\033[0m\n", r.UniqueKeys)
	fmt.Fprintf(w, "  Brands / fuels / bodies: \033[1m%d / %d / %d\033[0m\n",
		len(r.VehiclesByBrand), len(r.VehiclesByFuel), len(r.VehiclesByBody))
	fmt.Fprintln(w)

	printSection(w, "Price Statistics")
	if r.AveragePrice > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m€%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m€%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m€%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if r.MostExpensive != nil {
		v := r.MostExpensive
		printSection(w, "Most Expensive Vehicle")
		fmt.Fprintf(w, "  %s\n", truncate(v.Brand+" "+v.Model, 50))
		fmt.Fprintf(w, "  Year  : %d\n", v.Year)
		fmt.Fprintf(w, "  Price : \033[1;31m€%s\033[0m\n", v.Price.Decimal.StringFixed(2))
		fmt.Fprintln(w)
	}

	printSection(w, "Top 5 Most Powerful")
	if len(r.MostPowerful) == 0 {
		fmt.Fprintf(w, "  No power data found\n")
	} else {
		for i, v := range r.MostPowerful {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s \033[1;32m%d kW\033[0m\n",
				i+1, truncate(v.Brand+" "+v.Model, 38), v.PowerKW)
		}
	}
	fmt.Fprintln(w)

	printCounts(w, "Vehicles by Brand", r.VehiclesByBrand, 15)
	printCounts(w, "Fuel Types", r.VehiclesByFuel, 0)
	printCounts(w, "Body Types", r.VehiclesByBody, 0)

	printFooter(w)
}

// printCounts renders a count map as a bar chart. limit 0 prints all.
func printCounts(w io.Writer, title string, counts map[string]int, limit int) {
	printSection(w, title)
	rows := sortedCounts(counts)
	if len(rows) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	max := rows[0].count
	for _, lc := range rows {
		fmt.Fprintf(w, "  %-24s %s (%d)\n", truncate(lc.label, 22), bar(lc.count, max), lc.count)
	}
	fmt.Fprintln(w)
}
