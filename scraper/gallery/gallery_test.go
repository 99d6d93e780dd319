package gallery

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/config"
	"carprep/models"
	"carprep/services"
	"carprep/utils"
)

func TestBuildURL(t *testing.T) {
	got, err := BuildURL("https://media.example.com/{brand}/{model}/{year}",
		Target{Brand: "Land Rover", Model: "Range Rover Sport", Year: 2021})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/land-rover/range-rover-sport/2021", got)
}

func TestBuildURLFoldsDiacritics(t *testing.T) {
	got, err := BuildURL("https://media.example.com/gallery?make={brand}&model={model}",
		Target{Brand: "Škoda", Model: "Octavia"})
	require.NoError(t, err)
	assert.Equal(t, "https://media.example.com/gallery?make=skoda&model=octavia", got)
}

func TestBuildURLErrors(t *testing.T) {
	_, err := BuildURL("", Target{Brand: "Audi", Model: "A4"})
	assert.ErrorIs(t, err, ErrNoSourceURL)

	_, err = BuildURL("https://media.example.com/{brand}", Target{Brand: "Audi", Model: "A4"})
	assert.Error(t, err)

	_, err = BuildURL("file:///{brand}/{model}", Target{Brand: "Audi", Model: "A4"})
	assert.Error(t, err)
}

func TestFileNameParsesBack(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	target := Target{Brand: "Land Rover", Model: "Range Rover", Year: 2020}

	name := FileName(target, id)
	assert.Equal(t, "Land-Rover_Range-Rover_2020_harvest_0f8fad5b.jpg", name)

	info, ok := services.ParseImageName(name, 1990, 2030)
	require.True(t, ok)
	assert.Equal(t, services.ImageKey(target.Brand, target.Model), info.Key())
	assert.Equal(t, 2020, info.Year)
}

func TestFileNameWithoutYear(t *testing.T) {
	id := uuid.MustParse("0f8fad5b-d9cb-469f-a165-70867728950e")
	name := FileName(Target{Brand: "Fiat", Model: "500e"}, id)
	assert.Equal(t, "Fiat_500e_harvest_0f8fad5b.jpg", name)
}

func TestTargetsSkipsCarsWithImages(t *testing.T) {
	price := func(f float64) decimal.NullDecimal { return decimal.NewNullDecimal(decimal.NewFromFloat(f)) }
	vehicles := []*models.Vehicle{
		{ID: 1, Brand: "Audi", Model: "A4", Year: 2019, Price: price(25000)},
		{ID: 2, Brand: "Audi", Model: "A4", Year: 2021, Price: price(31000)},
		{ID: 3, Brand: "Fiat", Model: "Panda", Year: 2015, Price: price(9000)},
	}
	ix := services.NewImageIndex([]string{"Audi_A4_2019_1.jpg"}, 1990, 2030)

	got := Targets(vehicles, ix)
	require.Len(t, got, 1)
	assert.Equal(t, Target{ID: 3, Brand: "Fiat", Model: "Panda", Year: 2015}, got[0])
}

func newTestHarvester(t *testing.T) *Harvester {
	t.Helper()
	cfg := &config.Config{ImagesDir: t.TempDir(), MaxConcurrency: 1, MaxRetries: 1, ImagesPerCar: 3}
	return New(cfg, utils.NewTestLogger())
}

func TestDownloadAllCountsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpeg"))
		case "/page.html":
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte("<html></html>"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	h := newTestHarvester(t)
	target := Target{Brand: "Audi", Model: "A4", Year: 2019}
	saved, err := h.downloadAll(context.Background(), target,
		[]string{srv.URL + "/ok.jpg", srv.URL + "/missing.jpg", srv.URL + "/page.html"})
	require.NoError(t, err)
	require.Len(t, saved, 1)
	assert.FileExists(t, filepath.Join(h.cfg.ImagesDir, saved[0]))

	res := h.snapshot()
	assert.Equal(t, 2, res.DownloadsFailed)
	assert.Equal(t, saved, res.Saved)

	_, err = h.downloadAll(context.Background(), target, []string{srv.URL + "/missing.jpg"})
	assert.Error(t, err, "a car whose downloads all fail is a failure")
	assert.Equal(t, 3, h.snapshot().DownloadsFailed)
}

func TestSaveFileRejectsOversizedBodies(t *testing.T) {
	dir := t.TempDir()

	dest := filepath.Join(dir, "big.jpg")
	err := saveFile(dest, bytes.NewReader(make([]byte, 11)), 10)
	assert.ErrorIs(t, err, errImageTooLarge)
	assert.NoFileExists(t, dest)

	dest = filepath.Join(dir, "fits.jpg")
	require.NoError(t, saveFile(dest, strings.NewReader("0123456789"), 10))
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))
}
