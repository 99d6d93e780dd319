package gallery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"carprep/config"
	"carprep/models"
	"carprep/services"
	"carprep/utils"
)

// ErrNoSourceURL is returned when no gallery URL template is configured.
var ErrNoSourceURL = errors.New("images: CARPREP_IMAGE_SOURCE_URL is not set")

const maxImageBytes = 10 << 20

var errImageTooLarge = fmt.Errorf("image exceeds %d bytes", maxImageBytes)

// Target is one car that needs pictures.
type Target struct {
	ID    int
	Brand string
	Model string
	Year  int
}

// Result summarises a harvest run. Saved is sorted by file name.
type Result struct {
	Targets         int
	Visited         int
	Failed          int
	DownloadsFailed int
	Saved           []string
}

// Harvester collects gallery images for cars that have none yet.
type Harvester struct {
	cfg     *config.Config
	logger  *utils.Logger
	pool    *utils.WorkerPool
	seen    *utils.StringSet
	saved   *utils.StringSet
	retry   *utils.RetryConfig
	limiter *rate.Limiter
	client  *http.Client

	mu     sync.Mutex
	result Result
}

// New creates a ready-to-use Harvester.
func New(cfg *config.Config, logger *utils.Logger) *Harvester {
	return &Harvester{
		cfg:    cfg,
		logger: logger,
		pool:   utils.NewWorkerPool(cfg.MaxConcurrency, cfg.RateLimitMs),
		seen:   utils.NewStringSet(),
		saved:  utils.NewStringSet(),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		limiter: rate.NewLimiter(rate.Every(250*time.Millisecond), cfg.ImagesPerCar),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Targets returns the deduplicated cars with no image in ix.
func Targets(vehicles []*models.Vehicle, ix *services.ImageIndex) []Target {
	var out []Target
	for _, v := range services.Deduplicate(vehicles).Kept {
		if len(ix.ImagesFor(v.Brand, v.Model)) > 0 {
			continue
		}
		out = append(out, Target{ID: v.ID, Brand: v.Brand, Model: v.Model, Year: v.Year})
	}
	return out
}

// BuildURL fills the {brand}, {model} and {year} placeholders of tmpl.
func BuildURL(tmpl string, t Target) (string, error) {
	if tmpl == "" {
		return "", ErrNoSourceURL
	}
	if !strings.Contains(tmpl, "{brand}") || !strings.Contains(tmpl, "{model}") {
		return "", fmt.Errorf("images: source URL %q needs {brand} and {model}", tmpl)
	}
	year := ""
	if t.Year > 0 {
		year = strconv.Itoa(t.Year)
	}
	raw := strings.NewReplacer(
		"{brand}", url.PathEscape(urlToken(t.Brand)),
		"{model}", url.PathEscape(urlToken(t.Model)),
		"{year}", year,
	).Replace(tmpl)

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("images: bad source URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("images: source URL must be http(s), got %q", u.Scheme)
	}
	return u.String(), nil
}

func urlToken(s string) string {
	return strings.ToLower(services.FileToken(s))
}

// FileName names a harvested file so that ParseImageName reads it back
// as the target's brand, model and year.
func FileName(t Target, id uuid.UUID) string {
	parts := []string{services.FileToken(t.Brand), services.FileToken(t.Model)}
	if t.Year > 0 {
		parts = append(parts, strconv.Itoa(t.Year))
	}
	parts = append(parts, "harvest", id.String()[:8])
	return strings.Join(parts, "_") + ".jpg"
}

// Harvest visits the gallery page of every target and saves up to
// ImagesPerCar images into the images directory.
func (h *Harvester) Harvest(ctx context.Context, targets []Target) (*Result, error) {
	if h.cfg.ImageSourceURL == "" {
		return nil, ErrNoSourceURL
	}
	if err := os.MkdirAll(h.cfg.ImagesDir, 0755); err != nil {
		return nil, fmt.Errorf("images: create dir: %w", err)
	}

	h.result = Result{Targets: len(targets)}
	h.saved = utils.NewStringSet()
	h.logger.Info("[gallery] Harvesting images for %d cars (concurrency %d, %d per car)",
		len(targets), h.cfg.MaxConcurrency, h.cfg.ImagesPerCar)

	chromeBin := h.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	h.logger.Info("[gallery] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	// Suppress chromedp log noise
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	defer cancelBrowser()

	for _, target := range targets {
		t := target
		if ctx.Err() != nil {
			break
		}
		h.pool.Submit(func() {
			err := h.harvestOne(browserCtx, t)
			h.mu.Lock()
			defer h.mu.Unlock()
			h.result.Visited++
			if err != nil {
				h.result.Failed++
				h.logger.Warn("[gallery] %s %s: %v", t.Brand, t.Model, err)
			}
		})
	}
	h.pool.Wait()

	res := h.snapshot()
	h.logger.Info("[gallery] Done: %d/%d cars visited, %d failed, %d images saved, %d downloads failed",
		res.Visited, res.Targets, res.Failed, len(res.Saved), res.DownloadsFailed)
	return res, ctx.Err()
}

func (h *Harvester) snapshot() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	res := h.result
	res.Saved = h.saved.Sorted()
	return &res
}

func (h *Harvester) harvestOne(browserCtx context.Context, t Target) error {
	pageURL, err := BuildURL(h.cfg.ImageSourceURL, t)
	if err != nil {
		return err
	}

	srcs, err := h.collectImageURLs(browserCtx, pageURL)
	if err != nil {
		return err
	}
	if len(srcs) == 0 {
		return fmt.Errorf("no images on %s", pageURL)
	}
	if len(srcs) > h.cfg.ImagesPerCar {
		srcs = srcs[:h.cfg.ImagesPerCar]
	}
	_, err = h.downloadAll(browserCtx, t, srcs)
	return err
}

// downloadAll fetches srcs concurrently and returns the saved file names.
// Single failed downloads are counted and skipped; cancellation stops the
// whole batch. It fails when no source could be saved.
func (h *Harvester) downloadAll(ctx context.Context, t Target, srcs []string) ([]string, error) {
	var mu sync.Mutex
	var saved []string
	failed := 0

	g, gctx := errgroup.WithContext(ctx)
	for _, src := range srcs {
		src := src
		g.Go(func() error {
			name := FileName(t, uuid.New())
			err := h.download(gctx, src, filepath.Join(h.cfg.ImagesDir, name))
			if err != nil && ctx.Err() != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				h.logger.Debug("[gallery] Download %s failed: %v", src, err)
				failed++
				return nil
			}
			saved = append(saved, name)
			return nil
		})
	}
	err := g.Wait()

	h.mu.Lock()
	h.result.DownloadsFailed += failed
	h.mu.Unlock()
	for _, name := range saved {
		h.saved.Add(name)
	}

	if err != nil {
		return saved, err
	}
	if len(saved) == 0 && failed > 0 {
		return nil, fmt.Errorf("all %d downloads failed", failed)
	}
	return saved, nil
}

// collectImageURLs loads a gallery page and returns the unique, absolute
// image sources that have not been seen in this run.
func (h *Harvester) collectImageURLs(browserCtx context.Context, pageURL string) ([]string, error) {
	var found []string

	err := h.retry.Do(browserCtx, "gallery-page", func(context.Context) error {
		ctx, cancel := chromedp.NewContext(browserCtx)
		defer cancel()

		ctx, cancelTimeout := context.WithTimeout(ctx, time.Duration(h.cfg.PageTimeoutSecs)*time.Second)
		defer cancelTimeout()

		var srcs []string
		err := chromedp.Run(ctx,
			chromedp.Navigate(pageURL),
			chromedp.Sleep(3*time.Second),
			chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
			chromedp.Sleep(1*time.Second),
			chromedp.Evaluate(`
				(function() {
					var out = [];
					var imgs = document.querySelectorAll('img');
					for (var i = 0; i < imgs.length; i++) {
						var img = imgs[i];
						var src = img.currentSrc || img.src || '';
						if (!src || src.indexOf('data:') === 0) continue;
						// Skip icons and logos.
						if (img.naturalWidth && img.naturalWidth < 300) continue;
						out.push(src);
					}
					return out;
				})()
			`, &srcs),
		)
		if err != nil {
			return fmt.Errorf("chromedp gallery extract: %w", err)
		}
		found = srcs
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(found))
	for _, src := range found {
		if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
			continue
		}
		if h.seen.Add(src) {
			out = append(out, src)
		}
	}
	return out, nil
}

func (h *Harvester) download(ctx context.Context, src, dest string) error {
	return h.retry.Do(ctx, "image-download", func(ctx context.Context) error {
		if err := h.limiter.Wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
		if err != nil {
			return err
		}
		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("status %d", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
			return fmt.Errorf("not an image: %s", ct)
		}
		if resp.ContentLength > maxImageBytes {
			return errImageTooLarge
		}
		return saveFile(dest, resp.Body, maxImageBytes)
	})
}

// saveFile writes r to dest, refusing bodies longer than limit bytes.
// Nothing is left behind on failure.
func saveFile(dest string, r io.Reader, limit int64) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(r, limit+1))
	if err == nil && n > limit {
		err = errImageTooLarge
	}
	if err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	return f.Close()
}

// findChromeBinary locates a Chrome/Chromium binary on PATH or in the
// usual install locations.
func findChromeBinary() string {
	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
