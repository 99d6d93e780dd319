package services

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"
	"unicode"

	"carprep/models"
	"carprep/utils"
)

// Placeholder values that show up in price columns instead of numbers.
var nullPriceTokens = map[string]bool{
	"nan": true, "none": true, "null": true, "n/a": true, "na": true, "-": true, "?": true,
}

// PriceBand counts kept vehicles within [Low, High).
type PriceBand struct {
	Label string
	Low   float64
	High  float64
	Count int
}

// PriceReport is the keep-highest price analysis of a dataset.
type PriceReport struct {
	InputRows  int
	UniqueKeys int
	Unpriced   int
	Bands      []PriceBand
	Highest    []*models.Vehicle
	AboveMax   []*models.Vehicle
	// SuspiciousText maps raw non-numeric price cells to their frequency.
	SuspiciousText map[string]int
}

type PriceAnalyzer struct {
	logger *utils.Logger
	bounds models.Bounds
}

func NewPriceAnalyzer(logger *utils.Logger, bounds models.Bounds) *PriceAnalyzer {
	return &PriceAnalyzer{logger: logger, bounds: bounds}
}

// Analyze deduplicates vehicles keeping the highest price, then buckets the
// kept prices. priceColumn names the raw column scanned for text values;
// an empty name skips that scan.
func (p *PriceAnalyzer) Analyze(vehicles []*models.Vehicle, priceColumn string) *PriceReport {
	dedup := Deduplicate(vehicles)
	r := &PriceReport{
		InputRows:      len(vehicles),
		UniqueKeys:     len(dedup.Kept),
		SuspiciousText: make(map[string]int),
		Bands: []PriceBand{
			{Label: fmt.Sprintf("< %.0f (below minimum)", p.bounds.MinPrice), Low: math.Inf(-1), High: p.bounds.MinPrice},
			{Label: fmt.Sprintf("%.0f-500 (very suspicious)", p.bounds.MinPrice), Low: p.bounds.MinPrice, High: 500},
			{Label: "500-1000 (suspicious)", Low: 500, High: 1000},
			{Label: ">= 1000 (ok)", Low: 1000, High: math.Inf(1)},
		},
	}

	var priced []*models.Vehicle
	for _, v := range dedup.Kept {
		if !v.Price.Valid {
			r.Unpriced++
			continue
		}
		priced = append(priced, v)
		price := v.PriceFloat()
		for i := range r.Bands {
			b := &r.Bands[i]
			if price >= b.Low && price < b.High {
				b.Count++
				break
			}
		}
		if price > p.bounds.MaxPrice {
			r.AboveMax = append(r.AboveMax, v)
		}
	}

	sort.SliceStable(priced, func(i, j int) bool {
		return priced[i].Price.Decimal.GreaterThan(priced[j].Price.Decimal)
	})
	if len(priced) > 10 {
		priced = priced[:10]
	}
	r.Highest = priced

	if priceColumn != "" {
		for _, v := range vehicles {
			raw := strings.TrimSpace(v.Fields[priceColumn])
			if SuspiciousPriceText(raw) {
				r.SuspiciousText[raw]++
			}
		}
	}

	p.logger.Info("[prices] %d rows → %d unique keys, %d without price, %d suspicious cells",
		r.InputRows, r.UniqueKeys, r.Unpriced, len(r.SuspiciousText))
	return r
}

// SuspiciousPriceText reports whether a non-empty price cell holds text
// rather than a number, e.g. "nan", "NULL" or "C2-15".
func SuspiciousPriceText(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	if nullPriceTokens[strings.ToLower(raw)] {
		return true
	}
	for _, r := range raw {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return !ParsePrice(raw).Valid
}

func (p *PriceAnalyzer) Print(w io.Writer, r *PriceReport) {
	printBanner(w, "💶 PRICE ANALYSIS (keep highest)")

	printSection(w, "Overview")
	fmt.Fprintf(w, "  Input rows        : \033[1m%d\033[0m\n", r.InputRows)
	fmt.Fprintf(w, "  Unique brand|model: \033[1m%d\033[0m\n", r.UniqueKeys)
	fmt.Fprintf(w, "  Without price     : \033[1m%d\033[0m\n", r.Unpriced)
	fmt.Fprintln(w)

	printSection(w, "Price Bands")
	max := 0
	for _, b := range r.Bands {
		if b.Count > max {
			max = b.Count
		}
	}
	for _, b := range r.Bands {
		fmt.Fprintf(w, "  %-28s %6d %s\n", b.Label, b.Count, bar(b.Count, max))
	}
	fmt.Fprintln(w)

	printSection(w, "Highest Prices")
	for i, v := range r.Highest {
		fmt.Fprintf(w, "  \033[1m%2d.\033[0m %s\n", i+1, describe(v))
	}
	fmt.Fprintln(w)

	if len(r.AboveMax) > 0 {
		printSection(w, fmt.Sprintf("Above Maximum (%d)", len(r.AboveMax)))
		for _, v := range r.AboveMax {
			fmt.Fprintf(w, "  \033[1;31m%s\033[0m\n", describe(v))
		}
		fmt.Fprintln(w)
	}

	printSection(w, "Suspicious Price Text")
	if len(r.SuspiciousText) == 0 {
		fmt.Fprintf(w, "  \033[1;32mNone found\033[0m\n")
	}
	for _, lc := range sortedCounts(r.SuspiciousText) {
		fmt.Fprintf(w, "  %-28q %d\n", lc.label, lc.count)
	}

	printFooter(w)
}
