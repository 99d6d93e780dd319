package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/models"
)

func imageFiles() []string {
	return []string{
		"Audi_A4_2020_1.jpg",
		"Audi_A4_2019_2.jpg",
		"Audi_A4_2019_1.jpg",
		"BMW_X5_2018_a.jpg",
		"BMW_X5_2021_a.jpg",
		"Land-Rover_Range-Rover_2020.png",
		"Tesla$$Model 3$$2021$$x.jpg",
		"Fiat_500X.jpg",
		"Opel_Astra_1985.jpg",
		"logo.jpg",
		"readme.txt",
	}
}

func imageCars() []*models.Vehicle {
	return []*models.Vehicle{
		{ID: 1, Brand: "Audi", Model: "A4", Year: 2019},
		{ID: 2, Brand: "BMW", Model: "X5", Year: 2015},
		{ID: 3, Brand: "Land Rover", Model: "Range Rover", Year: 2020},
		{ID: 4, Brand: "Tesla", Model: "Model 3", Year: 2021},
		{ID: 5, Brand: "Fiat", Model: "500X Cross", Year: 2019},
		{ID: 6, Brand: "Opel", Model: "Corsa", Year: 2015},
		{ID: 7, Brand: "Kia", Model: "Ceed", Year: 2020},
	}
}

func TestParseImageName(t *testing.T) {
	tests := []struct {
		file  string
		brand string
		model string
		year  int
		ok    bool
	}{
		{"Tesla$$Model 3$$2021$$x.jpg", "Tesla", "Model 3", 2021, true},
		{"audi-a4-2019.jpg", "audi", "a4", 2019, true},
		{"Audi A4 2019.jpg", "Audi", "A4", 2019, true},
		{"Acura_ILX_2013_24_17_200_24_4_70_55_179_25_FWD_5_4_4dr_lbm.jpg", "Acura", "ILX", 2013, true},
		{"Opel_Astra_1985.jpg", "Opel", "Astra", 0, true},
		{"Fiat_500X.jpg", "Fiat", "500X", 0, true},
		{"logo.jpg", "", "", 0, false},
	}
	for _, tt := range tests {
		info, ok := ParseImageName(tt.file, 1990, 2026)
		assert.Equal(t, tt.ok, ok, tt.file)
		if !tt.ok {
			continue
		}
		assert.Equal(t, tt.brand, info.Brand, tt.file)
		assert.Equal(t, tt.model, info.Model, tt.file)
		assert.Equal(t, tt.year, info.Year, tt.file)
	}
}

func TestImageIndex(t *testing.T) {
	ix := NewImageIndex(imageFiles(), 1990, 2026)
	assert.Equal(t, 10, ix.Total(), "non-image files are ignored")
	assert.Equal(t, []string{"logo.jpg"}, ix.Unparsed)
	assert.Len(t, ix.ImagesFor("audi", "a4"), 3)
	assert.Len(t, ix.ImagesFor("Land Rover", "Range Rover"), 1)
	assert.Equal(t, []string{
		"audi|a4", "bmw|x5", "fiat|500x", "landrover|rangerover", "opel|astra", "tesla|model3",
	}, ix.ModelKeys())
}

func TestMatchSingle(t *testing.T) {
	m := NewImageMatcher(newTestLogger(), DefaultBounds())
	ix := m.Index(imageFiles())
	r := m.MatchSingle(imageCars(), ix)

	assert.Equal(t, 7, r.TotalCars)
	assert.Equal(t, 10, r.TotalImages)
	assert.Equal(t, 6, r.MatchedCount)
	assert.Equal(t, 2, r.ScoredCount)
	assert.Equal(t, "85.7%", r.MatchRate)

	byID := make(map[int]ImageMatch)
	for _, mt := range r.Mappings {
		byID[mt.CarID] = mt
	}
	assert.Equal(t, "Audi_A4_2019_1.jpg", byID[1].ImageFile)
	assert.Equal(t, TierHigh, byID[1].Confidence)
	assert.Equal(t, "BMW_X5_2018_a.jpg", byID[2].ImageFile)
	assert.Equal(t, TierMedium, byID[2].Confidence)
	assert.Equal(t, "/images/Tesla$$Model 3$$2021$$x.jpg", byID[4].ImageURL)
	assert.Equal(t, "Fiat_500X.jpg", byID[5].ImageFile)
	assert.Equal(t, TierScored, byID[5].Confidence)
	assert.Equal(t, "Opel_Astra_1985.jpg", byID[6].ImageFile, "an exact brand alone is enough for the scored fallback")
	assert.Equal(t, TierScored, byID[6].Confidence)
	assert.NotContains(t, byID, 7)
}

func TestMapAllTiers(t *testing.T) {
	m := NewImageMatcher(newTestLogger(), DefaultBounds())
	r := m.MapAll(imageCars(), m.Index(imageFiles()))

	assert.Equal(t, 7, r.Cars)
	assert.Equal(t, 3, r.ExactYear)
	assert.Equal(t, 1, r.BestYear)
	assert.Equal(t, 1, r.Partial)
	assert.Equal(t, 1, r.Scored)
	assert.Equal(t, 1, r.Unmatched)
	assert.Equal(t, 6, r.Matched())
	assert.Equal(t, 7, r.ImagesTotal)

	assert.Equal(t, []string{"/images/Audi_A4_2019_1.jpg", "/images/Audi_A4_2019_2.jpg"}, r.Mapping["1"])
	assert.Equal(t, []string{"/images/BMW_X5_2021_a.jpg"}, r.Mapping["2"], "tie between years goes to the newer one")
	assert.Equal(t, []string{"/images/Fiat_500X.jpg"}, r.Mapping["5"])
	assert.Equal(t, []string{"/images/Opel_Astra_1985.jpg"}, r.Mapping["6"])
	assert.NotContains(t, r.Mapping, "7")
}

func TestMapAllScoredFallbackKeepsYear(t *testing.T) {
	m := NewImageMatcher(newTestLogger(), DefaultBounds())
	files := []string{"Volvo_V70_2010_1.jpg", "Volvo_V70_2010_2.jpg", "Volvo_V70_2016.jpg"}
	r := m.MapAll([]*models.Vehicle{{ID: 3, Brand: "Volvo", Model: "XC90", Year: 2011}}, m.Index(files))

	assert.Equal(t, 1, r.Scored)
	assert.Equal(t, 0, r.Partial)
	assert.Equal(t, []string{"/images/Volvo_V70_2010_1.jpg", "/images/Volvo_V70_2010_2.jpg"}, r.Mapping["3"])
}

func TestMapAllSingleYear(t *testing.T) {
	m := NewImageMatcher(newTestLogger(), DefaultBounds())
	files := []string{"Audi_A4_2019_1.jpg", "Audi_A4_2019_2.jpg", "Audi_A4_2020_1.jpg", "Audi_A4_x.jpg"}
	r := m.MapAll([]*models.Vehicle{{ID: 9, Brand: "Audi", Model: "A4"}}, m.Index(files))

	require.Contains(t, r.Mapping, "9")
	assert.Equal(t, []string{"/images/Audi_A4_2019_1.jpg", "/images/Audi_A4_2019_2.jpg"}, r.Mapping["9"])
}

func TestMapAllDeduplicatesFirst(t *testing.T) {
	m := NewImageMatcher(newTestLogger(), DefaultBounds())
	cars := []*models.Vehicle{
		{ID: 1, Brand: "Audi", Model: "A4", Year: 2019, Price: price("10000")},
		{ID: 2, Brand: "audi", Model: "a4", Year: 2020, Price: price("20000")},
	}
	r := m.MapAll(cars, m.Index(imageFiles()))
	assert.Equal(t, 1, r.Cars)
	assert.Equal(t, []string{"/images/Audi_A4_2020_1.jpg"}, r.Mapping["2"])
}

func TestFindBestImage(t *testing.T) {
	ix := NewImageIndex(imageFiles(), 1990, 2026)

	img, ok := FindBestImage(ix, "Land Rover", "Range Rover Sport", 0)
	require.True(t, ok)
	assert.Equal(t, "Land-Rover_Range-Rover_2020.png", img.File)

	img, ok = FindBestImage(ix, "Audi", "A4", 2021)
	require.True(t, ok)
	assert.Equal(t, "Audi_A4_2019_1.jpg", img.File, "first image wins among equal scores")

	_, ok = FindBestImage(ix, "Kia", "Ceed", 2020)
	assert.False(t, ok)
}

func TestUnusedImages(t *testing.T) {
	ix := NewImageIndex(imageFiles(), 1990, 2026)
	files, keys := UnusedImages(imageCars(), ix)
	assert.Equal(t, []string{"Fiat_500X.jpg", "Opel_Astra_1985.jpg"}, files)
	assert.Equal(t, []string{"fiat|500x", "opel|astra"}, keys)
}
