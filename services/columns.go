package services

import (
	"errors"
	"strings"
)

var (
	ErrNoBrandColumn = errors.New("no brand column found")
	ErrNoModelColumn = errors.New("no model column found")
)

// Column aliases, matched case-insensitively as substrings of a header.
// The first header containing any alias wins.
var (
	brandAliases        = []string{"merk", "brand", "company names"}
	modelAliases        = []string{"model", "cars names"}
	powerAliases        = []string{"vermogen", "power", "horsepower", "engines"}
	fuelAliases         = []string{"brandstof", "fuel", "fuel types"}
	priceAliases        = []string{"budget", "prijs", "price", "cars prices"}
	yearAliases         = []string{"bouwjaar", "year", "jaar"}
	transmissionAliases = []string{"transmission", "transmissie"}
	bodyAliases         = []string{"type_auto", "bodytype", "body type", "carrosserie", "type"}
	imageAliases        = []string{"image_path", "imagepath", "image name"}
	mileageAliases      = []string{"mileage", "kilometerstand"}
)

// Columns names the header used for each vehicle attribute. An empty
// string means the dataset has no such column.
type Columns struct {
	ID           string
	Brand        string
	Model        string
	Power        string
	Fuel         string
	Price        string
	Year         string
	Transmission string
	Body         string
	Image        string
	Mileage      string
}

// DetectColumns maps headers onto vehicle attributes. A header claimed by
// one attribute is not reused for another, so "Fuel Types" can never also
// be picked up as the body type.
func DetectColumns(headers []string) Columns {
	claimed := make(map[string]bool)
	pick := func(aliases []string) string {
		h := findColumn(headers, claimed, aliases)
		if h != "" {
			claimed[h] = true
		}
		return h
	}

	var c Columns
	for _, h := range headers {
		if strings.EqualFold(strings.TrimSpace(h), "id") {
			c.ID = h
			claimed[h] = true
			break
		}
	}
	c.Brand = pick(brandAliases)
	c.Model = pick(modelAliases)
	c.Fuel = pick(fuelAliases)
	c.Price = pick(priceAliases)
	c.Year = pick(yearAliases)
	c.Power = pick(powerAliases)
	c.Transmission = pick(transmissionAliases)
	c.Image = pick(imageAliases)
	c.Body = pick(bodyAliases)
	c.Mileage = pick(mileageAliases)
	return c
}

// Require reports whether the columns needed to build an identity key exist.
func (c Columns) Require() error {
	if c.Brand == "" {
		return ErrNoBrandColumn
	}
	if c.Model == "" {
		return ErrNoModelColumn
	}
	return nil
}

func findColumn(headers []string, claimed map[string]bool, aliases []string) string {
	for _, h := range headers {
		if claimed[h] {
			continue
		}
		lower := strings.ToLower(strings.TrimSpace(h))
		for _, a := range aliases {
			if strings.Contains(lower, a) {
				return h
			}
		}
	}
	return ""
}
