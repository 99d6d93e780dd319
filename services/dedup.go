package services

import (
	"strings"

	"carprep/models"
)

// Deduplicate keeps one vehicle per Brand|Model key: the highest priced
// one, or the earliest on ties. Priced rows beat unpriced rows and a
// group with no prices keeps its first row. Output follows the order in
// which keys first appear. Rows with an empty brand or model are dropped.
func Deduplicate(vehicles []*models.Vehicle) models.DedupResult {
	res := models.DedupResult{
		InputRows:  len(vehicles),
		Duplicates: make(map[string]int),
	}

	best := make(map[string]*models.Vehicle)
	var order []string

	for _, v := range vehicles {
		if strings.TrimSpace(v.Brand) == "" || strings.TrimSpace(v.Model) == "" {
			res.Discarded++
			continue
		}
		key := v.Key()
		res.Duplicates[key]++

		cur, ok := best[key]
		if !ok {
			best[key] = v
			order = append(order, key)
			continue
		}
		res.Discarded++
		if beats(v, cur) {
			best[key] = v
		}
	}

	for key, n := range res.Duplicates {
		if n < 2 {
			delete(res.Duplicates, key)
		}
	}

	res.Kept = make([]*models.Vehicle, 0, len(order))
	for _, key := range order {
		res.Kept = append(res.Kept, best[key])
	}
	return res
}

// beats reports whether candidate should replace the current pick.
// Callers pass rows in file order, so equal prices keep cur.
func beats(candidate, cur *models.Vehicle) bool {
	if !candidate.Price.Valid {
		return false
	}
	if !cur.Price.Valid {
		return true
	}
	return candidate.Price.Decimal.GreaterThan(cur.Price.Decimal)
}

// CountUnique returns the number of distinct Brand|Model keys.
func CountUnique(vehicles []*models.Vehicle) int {
	seen := make(map[string]struct{}, len(vehicles))
	for _, v := range vehicles {
		if strings.TrimSpace(v.Brand) == "" || strings.TrimSpace(v.Model) == "" {
			continue
		}
		seen[v.Key()] = struct{}{}
	}
	return len(seen)
}
