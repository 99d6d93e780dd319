package services

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"carprep/models"
	"carprep/utils"
)

var ErrNotConfirmed = errors.New("refusing to delete files without --yes")

// DeleteReport counts the outcome of a deletion run.
type DeleteReport struct {
	Requested int
	Deleted   int
	NotFound  int
	Kept      int
	Errors    int
	Failed    []string
}

type ImageCleaner struct {
	logger *utils.Logger
	dir    string
}

// NewImageCleaner creates a cleaner that only ever touches files directly
// inside dir.
func NewImageCleaner(logger *utils.Logger, dir string) *ImageCleaner {
	return &ImageCleaner{logger: logger, dir: dir}
}

// DeleteListed removes each named file from the image directory. Names
// that are missing count as not found. Names containing a path, names
// without an image extension and anything that is not a regular file are
// refused.
func (c *ImageCleaner) DeleteListed(names []string, confirmed bool) (*DeleteReport, error) {
	if !confirmed {
		return nil, ErrNotConfirmed
	}
	r := &DeleteReport{Requested: len(names)}
	for _, name := range names {
		c.remove(r, strings.TrimSpace(name))
	}
	c.logger.Info("[cleanup] Deleted %d, not found %d, errors %d (of %d listed)",
		r.Deleted, r.NotFound, r.Errors, r.Requested)
	return r, nil
}

// CleanupUnmatched deletes images whose brand and model match no vehicle,
// allowing substring matches either way. Files whose names cannot be
// parsed are always kept.
func (c *ImageCleaner) CleanupUnmatched(vehicles []*models.Vehicle, ix *ImageIndex, confirmed bool) (*DeleteReport, error) {
	if !confirmed {
		return nil, ErrNotConfirmed
	}

	type carName struct{ brand, model string }
	exact := make(map[carName]bool)
	for _, v := range vehicles {
		n := carName{ImageSearchName(v.Brand), ImageSearchName(v.Model)}
		if n.brand != "" && n.model != "" {
			exact[n] = true
		}
	}
	if len(exact) == 0 {
		return nil, fmt.Errorf("images: dataset has no usable brand/model pairs, nothing would be kept")
	}

	r := &DeleteReport{Requested: len(ix.Images), Kept: len(ix.Unparsed)}
	for _, img := range ix.Images {
		n := carName{ImageSearchName(img.Brand), ImageSearchName(img.Model)}
		if exact[n] {
			r.Kept++
			continue
		}
		matched := false
		for car := range exact {
			if looseMatch(n.brand, car.brand) && looseMatch(n.model, car.model) {
				matched = true
				break
			}
		}
		if matched {
			r.Kept++
			continue
		}
		c.remove(r, img.File)
	}

	c.logger.Info("[cleanup] Kept %d images, deleted %d, errors %d", r.Kept, r.Deleted, r.Errors)
	return r, nil
}

func looseMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return a == b || strings.Contains(a, b) || strings.Contains(b, a)
}

func (c *ImageCleaner) remove(r *DeleteReport, name string) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name || !IsImageFile(name) {
		c.refuse(r, name, "not a plain image file name")
		return
	}
	target := filepath.Join(c.dir, name)
	if info, err := os.Lstat(target); err == nil && !info.Mode().IsRegular() {
		c.refuse(r, name, "not a regular file")
		return
	}
	err := os.Remove(target)
	switch {
	case err == nil:
		r.Deleted++
		if r.Deleted%100 == 0 {
			c.logger.Info("[cleanup] %d files deleted...", r.Deleted)
		}
	case errors.Is(err, fs.ErrNotExist):
		r.NotFound++
	default:
		c.logger.Error("[cleanup] Failed to delete %s: %v", name, err)
		r.Errors++
		r.Failed = append(r.Failed, name)
	}
}

func (c *ImageCleaner) refuse(r *DeleteReport, name, why string) {
	c.logger.Warn("[cleanup] Refusing to delete %q: %s", name, why)
	r.Errors++
	r.Failed = append(r.Failed, name)
}
