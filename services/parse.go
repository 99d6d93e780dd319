package services

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// HorsepowerToKW is the hp to kW conversion factor used by every source.
const HorsepowerToKW = 0.7457

var (
	// yearRegexp captures a four-digit year from 1900 to 2099
	yearRegexp = regexp.MustCompile(`\b(?:19|20)\d{2}\b`)
	// numberRegexp captures the first number, optionally as an "a-b" range
	numberRegexp = regexp.MustCompile(`(\d+(?:\.\d+)?)(?:\s*-\s*(\d+(?:\.\d+)?))?`)
	// rangeRegexp matches a whole-string "a - b" range
	rangeRegexp = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*-\s*(\d+(?:\.\d+)?)$`)
)

// ParsePrice extracts a price from free text such as "€ 12.500,00",
// "$1,200" or "15000.0". A leading minus sign is kept so that negative
// prices can be rejected rather than silently flipped.
func ParsePrice(raw string) decimal.NullDecimal {
	raw = strings.TrimSpace(raw)
	negative := strings.HasPrefix(raw, "-")

	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == ',' {
			b.WriteRune(r)
		}
	}
	cleaned, ok := normaliseSeparators(b.String())
	if !ok {
		return decimal.NullDecimal{}
	}

	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.NullDecimal{}
	}
	if negative {
		d = d.Neg()
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}

// normaliseSeparators rewrites s to use '.' as the only decimal mark.
func normaliseSeparators(s string) (string, bool) {
	s = strings.Trim(s, ".,")
	if s == "" {
		return "", false
	}
	lastDot := strings.LastIndex(s, ".")
	lastComma := strings.LastIndex(s, ",")

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			s = strings.Replace(s, ",", ".", 1)
		} else {
			s = strings.ReplaceAll(s, ",", "")
		}
	case lastComma >= 0:
		if thousandsGrouped(s, ",") {
			s = strings.ReplaceAll(s, ",", "")
		} else if strings.Count(s, ",") == 1 {
			s = strings.Replace(s, ",", ".", 1)
		} else {
			return "", false
		}
	case strings.Count(s, ".") > 1:
		if !thousandsGrouped(s, ".") {
			return "", false
		}
		s = strings.ReplaceAll(s, ".", "")
	}
	return s, strings.Count(s, ".") <= 1
}

// thousandsGrouped reports whether s looks like "1,234,567" for sep ",".
func thousandsGrouped(s, sep string) bool {
	groups := strings.Split(s, sep)
	if len(groups) < 2 || len(groups[0]) == 0 || len(groups[0]) > 3 {
		return false
	}
	for _, g := range groups[1:] {
		if len(g) != 3 {
			return false
		}
	}
	return true
}

// ParsePower extracts power as whole kW from text like "110", "110.4 kW"
// or "70-85". Ranges average. Missing or unparseable input yields 0.
func ParsePower(raw string) int {
	v, ok := firstNumber(raw)
	if !ok {
		return 0
	}
	return int(math.Round(v))
}

// ParseYear returns the first plausible four-digit year in raw, accepted
// only within 1900..maxYear. It returns 0 when none is found.
func ParseYear(raw string, maxYear int) int {
	for _, m := range yearRegexp.FindAllString(raw, -1) {
		y, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		if y >= 1900 && y <= maxYear {
			return y
		}
	}
	return 0
}

// ParseNumber strips the given unit suffixes (and "(est.)" markers) and
// parses what remains. "a - b" ranges return their midpoint.
func ParseNumber(raw string, units ...string) (float64, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" || s == "n/a" || s == "nan" {
		return 0, false
	}
	s = strings.ReplaceAll(s, "(est.)", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimPrefix(s, "$")
	for _, u := range units {
		s = strings.ReplaceAll(s, strings.ToLower(u), "")
	}
	s = strings.TrimSpace(s)

	if m := rangeRegexp.FindStringSubmatch(s); m != nil {
		a, errA := strconv.ParseFloat(m[1], 64)
		b, errB := strconv.ParseFloat(m[2], 64)
		if errA != nil || errB != nil {
			return 0, false
		}
		return (a + b) / 2, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// ParseSeats handles plain counts and "2+2" layouts.
func ParseSeats(raw string) (float64, bool) {
	s := strings.TrimSpace(raw)
	if a, b, found := strings.Cut(s, "+"); found {
		x, errA := strconv.Atoi(strings.TrimSpace(a))
		y, errB := strconv.Atoi(strings.TrimSpace(b))
		if errA == nil && errB == nil {
			return float64(x + y), true
		}
	}
	v, ok := ParseNumber(s)
	if !ok {
		return 0, false
	}
	return math.Trunc(v), true
}

func firstNumber(raw string) (float64, bool) {
	m := numberRegexp.FindStringSubmatch(strings.ReplaceAll(raw, ",", "."))
	if m == nil {
		return 0, false
	}
	a, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if m[2] != "" {
		if b, err := strconv.ParseFloat(m[2], 64); err == nil {
			return (a + b) / 2, true
		}
	}
	return a, true
}
