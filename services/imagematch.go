package services

import (
	"fmt"
	"io"
	"path"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"carprep/models"
	"carprep/utils"
)

// Match confidence tiers.
const (
	TierHigh   = "high"
	TierMedium = "medium"
	TierLow    = "low"
	// TierScored marks a fallback hit from FindBestImage.
	TierScored = "scored"
)

// minImageScore is the least FindBestImage accepts. An exact brand match
// alone reaches it.
const minImageScore = 10

var (
	imageSeparators = []string{"$$", "_", "-", " "}
	fourDigits      = regexp.MustCompile(`^\d{4}$`)
	digitsRegexp    = regexp.MustCompile(`\d+`)
)

// ImageInfo is what an image file name says about the car it shows.
type ImageInfo struct {
	File  string
	Brand string
	Model string
	Year  int // 0 when the name carries no year within bounds
}

// Key returns the compact brand|model key used for matching.
func (i ImageInfo) Key() string {
	return ImageKey(i.Brand, i.Model)
}

// URL returns the path the web app serves the image under.
func (i ImageInfo) URL() string {
	return path.Join("/images", i.File)
}

// ImageKey builds the compact brand|model key.
func ImageKey(brand, model string) string {
	return CompactName(brand) + "|" + CompactName(model)
}

// ParseImageName reads Brand_Model_Year_... style names. Separators are
// tried in the order "$$", "_", "-", " " and the first one present wins.
// The year is the first four-digit part after the model within
// [minYear, maxYear]. ok is false when brand or model cannot be found.
func ParseImageName(file string, minYear, maxYear int) (ImageInfo, bool) {
	info := ImageInfo{File: file}
	stem := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))

	var parts []string
	for _, sep := range imageSeparators {
		if strings.Contains(stem, sep) {
			for _, p := range strings.Split(stem, sep) {
				if p = strings.TrimSpace(p); p != "" {
					parts = append(parts, p)
				}
			}
			break
		}
	}
	if len(parts) < 2 {
		return info, false
	}

	info.Brand, info.Model = parts[0], parts[1]
	for _, p := range parts[2:] {
		if !fourDigits.MatchString(p) {
			continue
		}
		y, _ := strconv.Atoi(p)
		if y >= minYear && y <= maxYear {
			info.Year = y
			break
		}
	}
	return info, CompactName(info.Brand) != "" && CompactName(info.Model) != ""
}

// IsImageFile reports whether name has a supported image extension.
func IsImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// ImageIndex groups parsed image files by brand|model and by year.
type ImageIndex struct {
	Images   []ImageInfo
	Unparsed []string
	byModel  map[string][]ImageInfo
	byYear   map[string][]ImageInfo
}

// NewImageIndex parses files and indexes them. Files are sorted first so
// every lookup is deterministic.
func NewImageIndex(files []string, minYear, maxYear int) *ImageIndex {
	sorted := append([]string(nil), files...)
	sort.Strings(sorted)

	ix := &ImageIndex{byModel: make(map[string][]ImageInfo), byYear: make(map[string][]ImageInfo)}
	for _, f := range sorted {
		if !IsImageFile(f) {
			continue
		}
		info, ok := ParseImageName(f, minYear, maxYear)
		if !ok {
			ix.Unparsed = append(ix.Unparsed, f)
			continue
		}
		ix.Images = append(ix.Images, info)
		key := info.Key()
		ix.byModel[key] = append(ix.byModel[key], info)
		if info.Year > 0 {
			yk := key + "|" + strconv.Itoa(info.Year)
			ix.byYear[yk] = append(ix.byYear[yk], info)
		}
	}
	return ix
}

// Total counts every image file seen, parsed or not.
func (ix *ImageIndex) Total() int { return len(ix.Images) + len(ix.Unparsed) }

// ModelKeys returns the brand|model keys present in the index, sorted.
func (ix *ImageIndex) ModelKeys() []string {
	keys := make([]string, 0, len(ix.byModel))
	for k := range ix.byModel {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ImagesFor returns every image for brand and model.
func (ix *ImageIndex) ImagesFor(brand, model string) []ImageInfo {
	return ix.byModel[ImageKey(brand, model)]
}

// bestYear picks the year with the most images, preferring the newer
// year on ties. When no image has a year, all images are returned.
func bestYear(images []ImageInfo) (int, []ImageInfo) {
	counts := make(map[int]int)
	for _, img := range images {
		if img.Year > 0 {
			counts[img.Year]++
		}
	}
	if len(counts) == 0 {
		return 0, images
	}
	best := 0
	for y, n := range counts {
		if n > counts[best] || (n == counts[best] && y > best) {
			best = y
		}
	}
	var out []ImageInfo
	for _, img := range images {
		if img.Year == best {
			out = append(out, img)
		}
	}
	return best, out
}

// ImageMatch is one car linked to its single best image.
type ImageMatch struct {
	CarID      int    `json:"car_id"`
	CarBrand   string `json:"car_brand"`
	CarModel   string `json:"car_model"`
	CarYear    int    `json:"car_year,omitempty"`
	ImageFile  string `json:"image_filename"`
	ImageURL   string `json:"image_path"`
	Confidence string `json:"match_confidence"`
}

// SingleMatchReport is the match-images output document.
type SingleMatchReport struct {
	TotalCars    int          `json:"total_cars"`
	TotalImages  int          `json:"total_images"`
	MatchedCount int          `json:"matched_count"`
	ScoredCount  int          `json:"scored_count"`
	MatchRate    string       `json:"match_rate"`
	Mappings     []ImageMatch `json:"mappings"`
}

// MultiMapReport is the map-images outcome. Mapping is what gets written.
type MultiMapReport struct {
	Mapping     map[string][]string
	Cars        int
	ExactYear   int
	BestYear    int
	Partial     int
	Scored      int
	Unmatched   int
	ImagesTotal int
}

// Matched returns the number of cars that received images.
func (r *MultiMapReport) Matched() int { return r.ExactYear + r.BestYear + r.Partial + r.Scored }

type ImageMatcher struct {
	logger *utils.Logger
	bounds models.Bounds
}

func NewImageMatcher(logger *utils.Logger, bounds models.Bounds) *ImageMatcher {
	return &ImageMatcher{logger: logger, bounds: bounds}
}

// Index parses files using the matcher's year bounds.
func (m *ImageMatcher) Index(files []string) *ImageIndex {
	ix := NewImageIndex(files, m.bounds.MinYear, m.bounds.MaxYear)
	if len(ix.Unparsed) > 0 {
		m.logger.Warn("[images] %d file names could not be parsed", len(ix.Unparsed))
	}
	return ix
}

// MatchSingle links every car to the first image with the same compact
// brand and model. The match is high confidence when the years agree or
// either is unknown. Cars without such an image fall back to
// FindBestImage and are marked TierScored.
func (m *ImageMatcher) MatchSingle(vehicles []*models.Vehicle, ix *ImageIndex) *SingleMatchReport {
	r := &SingleMatchReport{TotalCars: len(vehicles), TotalImages: ix.Total(), Mappings: []ImageMatch{}}

	for _, v := range vehicles {
		if CompactName(v.Brand) == "" || CompactName(v.Model) == "" {
			continue
		}
		var img ImageInfo
		conf := TierMedium
		if images := ix.ImagesFor(v.Brand, v.Model); len(images) > 0 {
			img = images[0]
			if img.Year == 0 || v.Year == 0 || img.Year == v.Year {
				conf = TierHigh
			}
		} else if best, ok := FindBestImage(ix, v.Brand, v.Model, v.Year); ok {
			img, conf = best, TierScored
			r.ScoredCount++
		} else {
			continue
		}
		r.Mappings = append(r.Mappings, ImageMatch{
			CarID:      v.ID,
			CarBrand:   v.Brand,
			CarModel:   v.Model,
			CarYear:    v.Year,
			ImageFile:  img.File,
			ImageURL:   img.URL(),
			Confidence: conf,
		})
	}

	r.MatchedCount = len(r.Mappings)
	r.MatchRate = fmt.Sprintf("%.1f%%", pct(r.MatchedCount, r.TotalCars))
	m.logger.Info("[images] %d/%d cars matched to a single image (%s)", r.MatchedCount, r.TotalCars, r.MatchRate)
	return r
}

// MapAll deduplicates vehicles and assigns each remaining car every image
// of one year: the exact year when present, else the year with the most
// images, else that of a partial model match.
func (m *ImageMatcher) MapAll(vehicles []*models.Vehicle, ix *ImageIndex) *MultiMapReport {
	cars := Deduplicate(vehicles).Kept
	r := &MultiMapReport{Mapping: make(map[string][]string), Cars: len(cars)}
	keys := ix.ModelKeys()

	for _, v := range cars {
		images, tier := m.imagesFor(v, ix, keys)
		if len(images) == 0 {
			r.Unmatched++
			continue
		}
		switch tier {
		case TierHigh:
			r.ExactYear++
		case TierMedium:
			r.BestYear++
		case TierScored:
			r.Scored++
		default:
			r.Partial++
		}
		urls := make([]string, len(images))
		for i, img := range images {
			urls[i] = img.URL()
		}
		r.Mapping[strconv.Itoa(v.ID)] = urls
		r.ImagesTotal += len(urls)
	}

	m.logger.Info("[images] %d/%d cars mapped (exact %d, best year %d, partial %d, scored %d), %d images assigned",
		r.Matched(), r.Cars, r.ExactYear, r.BestYear, r.Partial, r.Scored, r.ImagesTotal)
	return r
}

func (m *ImageMatcher) imagesFor(v *models.Vehicle, ix *ImageIndex, keys []string) ([]ImageInfo, string) {
	key := ImageKey(v.Brand, v.Model)

	if v.Year >= m.bounds.MinYear && v.Year <= m.bounds.MaxYear {
		if imgs := ix.byYear[key+"|"+strconv.Itoa(v.Year)]; len(imgs) > 0 {
			return imgs, TierHigh
		}
	}

	if imgs, ok := ix.byModel[key]; ok {
		if _, best := bestYear(imgs); len(best) > 0 {
			return best, TierMedium
		}
	}

	brand, model, _ := strings.Cut(key, "|")
	modelNoDigits := digitsRegexp.ReplaceAllString(model, "")
	for _, k := range keys {
		if modelNoDigits == "" {
			break
		}
		imgBrand, imgModel, _ := strings.Cut(k, "|")
		if imgBrand != brand || !partialModelMatch(model, modelNoDigits, imgModel) {
			continue
		}
		if _, best := bestYear(ix.byModel[k]); len(best) > 0 {
			return best, TierLow
		}
	}

	if img, ok := FindBestImage(ix, v.Brand, v.Model, v.Year); ok {
		var same []ImageInfo
		for _, other := range ix.byModel[img.Key()] {
			if other.Year == img.Year {
				same = append(same, other)
			}
		}
		return same, TierScored
	}
	return nil, ""
}

// partialModelMatch applies the prefix heuristics used when no exact
// model key exists, e.g. "a4avant" against "a4".
func partialModelMatch(model, modelNoDigits, imgModel string) bool {
	imgNoDigits := digitsRegexp.ReplaceAllString(imgModel, "")
	switch {
	case strings.HasPrefix(model, imgModel), strings.HasPrefix(imgModel, model):
		return true
	case strings.HasPrefix(imgModel, modelNoDigits):
		return true
	case imgNoDigits != "" && strings.HasPrefix(model, imgNoDigits):
		return true
	case len(model) >= 2 && strings.HasPrefix(imgModel, model[:2]):
		return true
	case len(imgModel) >= 2 && strings.HasPrefix(model, imgModel[:2]):
		return true
	}
	return false
}

// FindBestImage scores every image against brand, model and year and
// returns the highest scorer. Exact brand or model earns 10 points, a
// substring match 5, and a year within two of the car's adds 2. Scores
// below 10 never match.
func FindBestImage(ix *ImageIndex, brand, model string, year int) (ImageInfo, bool) {
	b, m := ImageSearchName(brand), ImageSearchName(model)
	if b == "" || m == "" {
		return ImageInfo{}, false
	}

	var best ImageInfo
	bestScore := 0
	for _, img := range ix.Images {
		score := nameScore(b, ImageSearchName(img.Brand)) + nameScore(m, ImageSearchName(img.Model))
		if year > 0 && img.Year > 0 && abs(img.Year-year) <= 2 {
			score += 2
		}
		if score > bestScore && score >= minImageScore {
			best, bestScore = img, score
		}
	}
	return best, bestScore > 0
}

func nameScore(want, got string) int {
	switch {
	case got == "":
		return 0
	case want == got:
		return 10
	case strings.Contains(got, want) || strings.Contains(want, got):
		return 5
	}
	return 0
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// UnusedImages returns the image files whose brand|model key belongs to
// no car in the deduplicated dataset, sorted by file name, along with the
// unused keys themselves.
func UnusedImages(vehicles []*models.Vehicle, ix *ImageIndex) (files, keys []string) {
	used := make(map[string]bool)
	for _, v := range Deduplicate(vehicles).Kept {
		used[ImageKey(v.Brand, v.Model)] = true
	}
	for _, k := range ix.ModelKeys() {
		if used[k] {
			continue
		}
		keys = append(keys, k)
		for _, img := range ix.byModel[k] {
			files = append(files, img.File)
		}
	}
	sort.Strings(files)
	return files, keys
}

func (m *ImageMatcher) PrintMultiMap(w io.Writer, r *MultiMapReport) {
	printBanner(w, "🖼  IMAGE MAPPING (one year per car)")
	printSection(w, "Result")
	fmt.Fprintf(w, "  Unique cars       : \033[1m%d\033[0m\n", r.Cars)
	fmt.Fprintf(w, "  Cars with images  : \033[1;32m%d\033[0m (%.1f%%)\n", r.Matched(), pct(r.Matched(), r.Cars))
	fmt.Fprintf(w, "    exact year      : %d\n", r.ExactYear)
	fmt.Fprintf(w, "    best year       : %d\n", r.BestYear)
	fmt.Fprintf(w, "    partial model   : %d\n", r.Partial)
	fmt.Fprintf(w, "    scored fallback : %d\n", r.Scored)
	fmt.Fprintf(w, "  Cars without      : \033[1;31m%d\033[0m\n", r.Unmatched)
	fmt.Fprintf(w, "  Images assigned   : %d\n", r.ImagesTotal)
	if r.Matched() > 0 {
		fmt.Fprintf(w, "  Images per car    : %.1f\n", float64(r.ImagesTotal)/float64(r.Matched()))
	}
	printFooter(w)
}
