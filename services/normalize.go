package services

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonSearchRegexp = regexp.MustCompile(`[^a-z0-9_]`)
	punctRegexp     = regexp.MustCompile(`[^\p{L}\p{N}\s-]`)
	fileTokenRegexp = regexp.MustCompile(`[^A-Za-z0-9-]`)
)

// brandMap folds manufacturer names used by the secondary sources onto
// the brand names of the base dataset. Keys are upper-case.
var brandMap = map[string]string{
	"DAIMLER AG":        "mercedes-benz",
	"MERCEDES":          "mercedes-benz",
	"MERCEDES BENZ":     "mercedes-benz",
	"MERCEDES-AMG":      "mercedes-benz",
	"BMW AG":            "bmw",
	"VOLKSWAGEN AG":     "volkswagen",
	"VW":                "volkswagen",
	"AUDI AG":           "audi",
	"TOYOTA MOTOR":      "toyota",
	"ROLLS ROYCE":       "rolls-royce",
	"LAND ROVER":        "land rover",
	"RANGE ROVER":       "land rover",
	"ALFA":              "alfa romeo",
	"CHEVY":             "chevrolet",
	"CITROËN":           "citroen",
	"SKODA AUTO":        "skoda",
	"ŠKODA":             "skoda",
	"HYUNDAI MOTOR":     "hyundai",
	"KIA MOTORS":        "kia",
	"JAGUAR LAND ROVER": "jaguar",
	"FORD-WERKE":        "ford",
	"OPEL AUTOMOBILE":   "opel",
	"TESLA MOTORS":      "tesla",
}

// CompactName lower-cases s and removes spaces, dashes and underscores,
// so "Land Rover", "land-rover" and "Land_Rover" compare equal.
func CompactName(s string) string {
	s = strings.ToLower(strings.TrimSpace(FoldDiacritics(s)))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

// ImageSearchName turns "Alfa Romeo" into "alfa_romeo".
func ImageSearchName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "_", "-", "_").Replace(s)
	return nonSearchRegexp.ReplaceAllString(s, "")
}

// NormalizeBrand maps a source brand onto the base dataset's naming.
func NormalizeBrand(s string) string {
	s = normaliseText(s)
	if mapped, ok := brandMap[strings.ToUpper(s)]; ok {
		return mapped
	}
	return strings.ToLower(s)
}

// NormalizeModel lower-cases a model name, drops punctuation and
// diacritics and collapses whitespace.
func NormalizeModel(s string) string {
	s = strings.ToLower(FoldDiacritics(s))
	s = punctRegexp.ReplaceAllString(s, "")
	return normaliseText(s)
}

// FoldDiacritics removes combining marks, turning "Citroën" into "Citroen".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FileToken makes s safe as one "_"-separated part of an image file name.
func FileToken(s string) string {
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(strings.TrimSpace(FoldDiacritics(s)))
	return fileTokenRegexp.ReplaceAllString(s, "")
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
