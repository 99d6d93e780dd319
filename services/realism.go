package services

import (
	"fmt"
	"strings"
	"time"

	"carprep/models"
)

// Rejection reasons returned by Check.
const (
	ReasonPriceMissing = "price missing or <= 0"
	ReasonPriceLow     = "price below minimum"
	ReasonPriceHigh    = "price above maximum"
	ReasonPowerMissing = "power missing or <= 0"
	ReasonPowerLow     = "power below minimum"
	ReasonPowerHigh    = "power above maximum"
	ReasonYearMissing  = "year missing"
	ReasonYearLow      = "year below minimum"
	ReasonYearHigh     = "year above maximum"
)

// Suspicion labels returned by Suspicions.
const (
	SuspectOldExpensive = "old (<2000) and expensive (>50000)"
	SuspectNewCheap     = "new (>=2020) and cheap (<5000)"
	SuspectPowerCheap   = "powerful (>300 kW) and cheap (<20000)"
)

// DefaultBounds returns the bounds used by the recommendation app.
func DefaultBounds() models.Bounds {
	return models.Bounds{
		MinPrice: 300,
		MaxPrice: 500000,
		MinPower: 20,
		MaxPower: 800,
		MinYear:  1990,
		MaxYear:  time.Now().Year() + 1,
	}
}

// StrictBounds raises the price and power floors.
func StrictBounds() models.Bounds {
	b := DefaultBounds()
	b.MinPrice = 500
	b.MinPower = 30
	return b
}

// Preset resolves a named bound set. "config" returns base unchanged.
func Preset(name string, base models.Bounds) (models.Bounds, error) {
	switch strings.ToLower(name) {
	case "", "config":
		return base, nil
	case "default":
		return DefaultBounds(), nil
	case "strict":
		return StrictBounds(), nil
	default:
		return models.Bounds{}, fmt.Errorf("unknown preset %q (want config, default or strict)", name)
	}
}

// Check returns every reason v fails b. An empty result means realistic.
func Check(v *models.Vehicle, b models.Bounds) []string {
	var reasons []string

	price := v.PriceFloat()
	switch {
	case !v.Price.Valid || price <= 0:
		reasons = append(reasons, ReasonPriceMissing)
	case price < b.MinPrice:
		reasons = append(reasons, ReasonPriceLow)
	case price > b.MaxPrice:
		reasons = append(reasons, ReasonPriceHigh)
	}

	switch {
	case v.PowerKW <= 0:
		reasons = append(reasons, ReasonPowerMissing)
	case v.PowerKW < b.MinPower:
		reasons = append(reasons, ReasonPowerLow)
	case v.PowerKW > b.MaxPower:
		reasons = append(reasons, ReasonPowerHigh)
	}

	switch {
	case v.Year == 0:
		reasons = append(reasons, ReasonYearMissing)
	case v.Year < b.MinYear:
		reasons = append(reasons, ReasonYearLow)
	case v.Year > b.MaxYear:
		reasons = append(reasons, ReasonYearHigh)
	}
	return reasons
}

// IsRealistic reports whether v passes every bound in b.
func IsRealistic(v *models.Vehicle, b models.Bounds) bool {
	return len(Check(v, b)) == 0
}

// Suspicions flags value combinations that are legal but unlikely.
func Suspicions(v *models.Vehicle) []string {
	var out []string
	price := v.PriceFloat()
	if v.Year > 0 && v.Year < 2000 && price > 50000 {
		out = append(out, SuspectOldExpensive)
	}
	if v.Year >= 2020 && v.Price.Valid && price < 5000 {
		out = append(out, SuspectNewCheap)
	}
	if v.PowerKW > 300 && price > 0 && price < 20000 {
		out = append(out, SuspectPowerCheap)
	}
	return out
}

// FilterResult is the outcome of applying the realism predicate.
type FilterResult struct {
	Kept     []*models.Vehicle
	Rejected []*models.Vehicle
	// Reasons counts rejected rows per reason. A row may count under
	// several reasons.
	Reasons map[string]int
}

// Filter splits vehicles into realistic and rejected sets.
func Filter(vehicles []*models.Vehicle, b models.Bounds) FilterResult {
	res := FilterResult{Reasons: make(map[string]int)}
	for _, v := range vehicles {
		reasons := Check(v, b)
		if len(reasons) == 0 {
			res.Kept = append(res.Kept, v)
			continue
		}
		res.Rejected = append(res.Rejected, v)
		for _, r := range reasons {
			res.Reasons[r]++
		}
	}
	return res
}

// Violations counts vehicles that fail b. A filtered set must yield 0.
func Violations(vehicles []*models.Vehicle, b models.Bounds) int {
	n := 0
	for _, v := range vehicles {
		if !IsRealistic(v, b) {
			n++
		}
	}
	return n
}
