package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carprep/models"
)

func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o644))
	}
}

func TestDeleteListed(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.jpg", "keep.jpg")
	c := NewImageCleaner(newTestLogger(), dir)

	_, err := c.DeleteListed([]string{"a.jpg"}, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)
	assert.FileExists(t, filepath.Join(dir, "a.jpg"))

	r, err := c.DeleteListed([]string{"a.jpg", "missing.jpg", "../keep.jpg"}, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Deleted)
	assert.Equal(t, 1, r.NotFound)
	assert.Equal(t, 1, r.Errors)
	assert.NoFileExists(t, filepath.Join(dir, "a.jpg"))
	assert.FileExists(t, filepath.Join(dir, "keep.jpg"))
}

func TestDeleteListedRefusesDirectories(t *testing.T) {
	parent := t.TempDir()
	dir := filepath.Join(parent, "images")
	require.NoError(t, os.Mkdir(dir, 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755))
	touch(t, parent, "notes.txt")
	c := NewImageCleaner(newTestLogger(), dir)

	r, err := c.DeleteListed([]string{".", "..", "sub.jpg", "notes.txt", "../notes.txt"}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Deleted)
	assert.Equal(t, 5, r.Errors)
	assert.Equal(t, []string{".", "..", "sub.jpg", "notes.txt", "../notes.txt"}, r.Failed)
	assert.DirExists(t, dir)
	assert.DirExists(t, filepath.Join(dir, "sub.jpg"))
	assert.FileExists(t, filepath.Join(parent, "notes.txt"))
}

func TestCleanupUnmatched(t *testing.T) {
	dir := t.TempDir()
	files := []string{"Audi_A4_2019.jpg", "Land-Rover_Range-Rover_2020.jpg", "Opel_Astra_2015.jpg", "logo.jpg"}
	touch(t, dir, files...)

	cars := []*models.Vehicle{
		{Brand: "Audi", Model: "A4"},
		{Brand: "Land Rover", Model: "Range Rover Sport"},
	}
	ix := NewImageIndex(files, 1990, 2026)
	c := NewImageCleaner(newTestLogger(), dir)

	_, err := c.CleanupUnmatched(cars, ix, false)
	assert.ErrorIs(t, err, ErrNotConfirmed)

	r, err := c.CleanupUnmatched(cars, ix, true)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Deleted)
	assert.Equal(t, 3, r.Kept)
	assert.NoFileExists(t, filepath.Join(dir, "Opel_Astra_2015.jpg"))
	assert.FileExists(t, filepath.Join(dir, "logo.jpg"), "unparseable names are never deleted")
	assert.FileExists(t, filepath.Join(dir, "Land-Rover_Range-Rover_2020.jpg"), "partial model match is kept")
}

func TestCleanupUnmatchedNeedsCars(t *testing.T) {
	c := NewImageCleaner(newTestLogger(), t.TempDir())
	_, err := c.CleanupUnmatched(nil, NewImageIndex(nil, 1990, 2026), true)
	assert.Error(t, err)
}
