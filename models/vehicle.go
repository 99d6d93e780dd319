package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Vehicle is one parsed dataset row. Identity is derived from Brand and
// Model; nothing here is a persisted identifier except what the source
// CSV supplied as ID.
type Vehicle struct {
	ID           int
	Row          int
	Brand        string
	Model        string
	Year         int // 0 when unknown
	Price        decimal.NullDecimal
	PowerKW      int // 0 when unknown
	Fuel         string
	BodyType     string
	Transmission string
	Mileage      float64
	HasMileage   bool
	ImagePath    string

	// Fields holds every source column by header, for passthrough writes.
	Fields map[string]string
}

// Key returns the lower-cased Brand|Model key used for deduplication.
func (v *Vehicle) Key() string {
	return BrandModelKey(v.Brand, v.Model)
}

// PriceFloat returns the price as float64, or 0 when missing.
func (v *Vehicle) PriceFloat() float64 {
	if !v.Price.Valid {
		return 0
	}
	return v.Price.Decimal.InexactFloat64()
}

// BrandModelKey builds the lower(brand)|lower(model) identity key.
func BrandModelKey(brand, model string) string {
	return strings.ToLower(strings.TrimSpace(brand)) + "|" + strings.ToLower(strings.TrimSpace(model))
}

// Bounds is a realism bound set. All limits are inclusive.
type Bounds struct {
	MinPrice float64
	MaxPrice float64
	MinPower int
	MaxPower int
	MinYear  int
	MaxYear  int
}
