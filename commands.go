package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"carprep/config"
	"carprep/models"
	"carprep/scraper/gallery"
	"carprep/services"
	"carprep/storage"
	"carprep/utils"
)

// session bundles what every command needs.
type session struct {
	cfg    *config.Config
	logger *utils.Logger
	runID  string
	out    io.Writer
}

func newSession(c *cli.Context) (*session, error) {
	cfg, err := config.Load(c.StringSlice("env-file")...)
	if err != nil {
		return nil, err
	}
	s := &session{
		cfg:    cfg,
		logger: utils.NewLoggerWithLevel(cfg.LogLevel),
		runID:  uuid.NewString(),
		out:    c.App.Writer,
	}
	if l := c.String("log-level"); l != "" {
		s.logger.SetLevel(l)
	}
	s.logger.Debug("[%s] run %s", c.Command.Name, s.runID)
	return s, nil
}

// action adapts a session-aware command body to a cli.ActionFunc.
func action(fn func(c *cli.Context, s *session) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		return fn(c, s)
	}
}

func inputFlag(usage string) cli.Flag {
	return &cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: usage + " (default: CARPREP_DATASET_FILE)"}
}

func outputFlag(usage string) cli.Flag {
	return &cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: usage}
}

// pathOr resolves the flag value against the data dir, falling back to def.
func (s *session) pathOr(c *cli.Context, flag, def string) string {
	if v := c.String(flag); v != "" {
		return s.cfg.DataPath(v)
	}
	return s.cfg.DataPath(def)
}

// loadVehicles reads a dataset and parses every row.
func (s *session) loadVehicles(path string) (*models.Table, []*models.Vehicle, error) {
	t, err := storage.LoadTable(path, storage.LoadOptions{})
	if err != nil {
		return nil, nil, err
	}
	vs, err := services.NewCleaner(s.logger, s.cfg.Bounds()).Vehicles(t)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	s.logger.Info("Loaded %d rows from %s", len(vs), path)
	return t, vs, nil
}

// loadImages indexes the image directory.
func (s *session) loadImages() (*services.ImageIndex, error) {
	names, err := storage.ListImages(s.cfg.ImagesDir)
	if err != nil {
		return nil, fmt.Errorf("images: %w", err)
	}
	files := names[:0]
	for _, n := range names {
		if services.IsImageFile(n) {
			files = append(files, n)
		}
	}
	ix := services.NewImageMatcher(s.logger, s.cfg.Bounds()).Index(files)
	s.logger.Info("Indexed %d images from %s", ix.Total(), s.cfg.ImagesDir)
	return ix, nil
}

func (s *session) openStore() (storage.VehicleWriter, error) {
	switch s.cfg.StorageDriver {
	case "postgres":
		return storage.NewPostgresWriter(s.cfg.DSN())
	case "sqlite":
		return storage.NewSQLiteWriter(s.cfg.SQLitePath)
	default:
		return nil, errors.New("no storage configured: set CARPREP_STORAGE_DRIVER to postgres or sqlite")
	}
}

// store upserts vehicles and returns what the backend now holds along
// with how many rows this run wrote.
func (s *session) store(vs []*models.Vehicle, replace bool) ([]*models.Vehicle, int, error) {
	w, err := s.openStore()
	if err != nil {
		return nil, 0, err
	}
	defer w.Close()

	if replace {
		if err := w.Clear(); err != nil {
			return nil, 0, err
		}
	}
	if err := w.Write(s.runID, vs); err != nil {
		return nil, 0, err
	}
	written, err := w.CountByRun(s.runID)
	if err != nil {
		return nil, 0, err
	}
	s.logger.Info("Stored %d vehicles in %s (run %s)", written, s.cfg.StorageDriver, s.runID)
	stored, err := w.FetchAll()
	return stored, written, err
}

func cleanCommand() *cli.Command {
	return &cli.Command{
		Name:  "clean",
		Usage: "Keep realistic cars, deduplicate by brand and model, and write the result",
		Flags: []cli.Flag{
			inputFlag("dataset to clean"),
			outputFlag("cleaned dataset (default: CARPREP_CLEANED_FILE)"),
			&cli.BoolFlag{Name: "xlsx", Usage: "write the cleaned dataset as .xlsx"},
			&cli.BoolFlag{Name: "store", Usage: "also store the cleaned cars in CARPREP_STORAGE_DRIVER"},
		},
		Action: action(runClean),
	}
}

func runClean(c *cli.Context, s *session) error {
	src, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}

	res := services.NewCleaner(s.logger, s.cfg.Bounds()).Clean(vs)
	if len(res.Dedup.Kept) == 0 {
		return errors.New("all cars were dropped during cleaning")
	}

	out := s.pathOr(c, "output", s.cfg.CleanedFile)
	if c.Bool("xlsx") {
		out = strings.TrimSuffix(out, filepath.Ext(out)) + ".xlsx"
	}
	if err := storage.WriteTableFile(out, services.KeptTable(src, res.Dedup.Kept)); err != nil {
		return err
	}
	s.logger.Info("Cleaned dataset saved to %s", out)

	report := res.Dedup.Kept
	if c.Bool("store") {
		stored, _, err := s.store(res.Dedup.Kept, false)
		if err != nil {
			return err
		}
		report = stored
	}

	insights := services.NewInsightService(s.logger)
	insights.Print(s.out, insights.Generate(report))
	return nil
}

func countCommand() *cli.Command {
	return &cli.Command{
		Name:   "count",
		Usage:  "Count unique brand and model combinations",
		Flags:  []cli.Flag{inputFlag("dataset to count")},
		Action: action(runCount),
	}
}

func runCount(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	insights := services.NewInsightService(s.logger)
	insights.Print(s.out, insights.Generate(vs))
	return nil
}

func analyzeCommand() *cli.Command {
	return &cli.Command{
		Name:  "analyze",
		Usage: "Report distributions and unrealistic values per field",
		Flags: []cli.Flag{
			inputFlag("dataset to analyze"),
			&cli.StringFlag{Name: "xlsx", Usage: "also export the report to this .xlsx file"},
		},
		Action: action(runAnalyze),
	}
}

func runAnalyze(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	a := services.NewAnalyzer(s.logger, s.cfg.Bounds())
	report := a.Analyze(vs)
	a.Print(s.out, report)

	path := c.String("xlsx")
	if path == "" {
		return nil
	}
	w, err := storage.NewXLSXWriter(s.cfg.ToolsPath(path), "Summary")
	if err != nil {
		return err
	}
	if err := w.WriteRealismReport(report); err != nil {
		_ = w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	s.logger.Info("Report exported to %s", s.cfg.ToolsPath(path))
	return nil
}

func pricesCommand() *cli.Command {
	return &cli.Command{
		Name:   "prices",
		Usage:  "Show kept prices after deduplication and flag suspicious ones",
		Flags:  []cli.Flag{inputFlag("dataset to inspect")},
		Action: action(runPrices),
	}
}

func runPrices(c *cli.Context, s *session) error {
	src, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	p := services.NewPriceAnalyzer(s.logger, s.cfg.Bounds())
	p.Print(s.out, p.Analyze(vs, services.DetectColumns(src.Headers).Price))
	return nil
}

func testFiltersCommand() *cli.Command {
	return &cli.Command{
		Name:  "test-filters",
		Usage: "Apply the realism filter and verify the kept set has no violations",
		Flags: []cli.Flag{
			inputFlag("dataset to check"),
			&cli.StringFlag{Name: "preset", Value: "config", Usage: "bound set: config, default or strict"},
		},
		Action: action(runTestFilters),
	}
}

func runTestFilters(c *cli.Context, s *session) error {
	bounds, err := services.Preset(c.String("preset"), s.cfg.Bounds())
	if err != nil {
		return err
	}
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	check := services.VerifyFilter(vs, bounds)
	services.PrintFilterCheck(s.out, check)
	if !check.OK() {
		return fmt.Errorf("filter left %d violations in the kept set", check.Violations)
	}
	return nil
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:  "merge",
		Usage: "Enrich the dataset from secondary sources",
		Flags: []cli.Flag{
			inputFlag("base dataset"),
			outputFlag("enriched dataset (default: CARPREP_ENRICHED_FILE)"),
			&cli.StringFlag{Name: "sources", Usage: "YAML file describing the sources (default: built-in list)"},
		},
		Action: action(runMerge),
	}
}

func runMerge(c *cli.Context, s *session) error {
	base, err := storage.LoadTable(s.pathOr(c, "input", s.cfg.DatasetFile), storage.LoadOptions{})
	if err != nil {
		return err
	}

	sources := services.BuiltinSources()
	if path := c.String("sources"); path != "" {
		if sources, err = services.LoadSources(path); err != nil {
			return err
		}
	}

	var loaded []services.SourceData
	for _, src := range sources {
		path := s.cfg.DataPath(src.File)
		t, err := storage.LoadTable(path, storage.LoadOptions{Latin1: src.Latin1})
		if err != nil {
			s.logger.Warn("[merge] Skipping %s: %v", src.Name, err)
			continue
		}
		loaded = append(loaded, services.SourceData{Source: src, Table: t})
	}

	m := services.NewMerger(s.logger)
	report, err := m.Merge(base, loaded)
	if err != nil {
		return err
	}
	out := s.pathOr(c, "output", s.cfg.EnrichedFile)
	if err := storage.WriteTableFile(out, base); err != nil {
		return err
	}
	m.Print(s.out, report)
	s.logger.Info("Enriched dataset saved to %s", out)
	return nil
}

func matchImagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "match-images",
		Usage: "Link each car to its single best image and write a JSON report",
		Flags: []cli.Flag{
			inputFlag("dataset to match"),
			outputFlag("report path (default: tools/image_matches.json)"),
		},
		Action: action(runMatchImages),
	}
}

func runMatchImages(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	ix, err := s.loadImages()
	if err != nil {
		return err
	}
	report := services.NewImageMatcher(s.logger, s.cfg.Bounds()).MatchSingle(vs, ix)

	out := s.cfg.ToolsPath("image_matches.json")
	if v := c.String("output"); v != "" {
		out = s.cfg.ToolsPath(v)
	}
	if err := storage.WriteJSON(out, report); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Matched %d of %d cars (%s). Report: %s\n",
		report.MatchedCount, report.TotalCars, report.MatchRate, out)
	return nil
}

func mapImagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "map-images",
		Usage: "Map every car to all images of one year and write the mapping JSON",
		Flags: []cli.Flag{
			inputFlag("dataset to map"),
			outputFlag("mapping path (default: CARPREP_MAPPING_FILE)"),
		},
		Action: action(runMapImages),
	}
}

func runMapImages(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	ix, err := s.loadImages()
	if err != nil {
		return err
	}
	m := services.NewImageMatcher(s.logger, s.cfg.Bounds())
	report := m.MapAll(vs, ix)

	out := s.pathOr(c, "output", s.cfg.MappingFile)
	if err := storage.WriteJSON(out, report.Mapping); err != nil {
		return err
	}
	m.PrintMultiMap(s.out, report)
	s.logger.Info("Mapping saved to %s", out)
	return nil
}

func unusedImagesCommand() *cli.Command {
	return &cli.Command{
		Name:   "unused-images",
		Usage:  "List images whose brand and model are not in the dataset",
		Flags:  []cli.Flag{inputFlag("dataset to compare against")},
		Action: action(runUnusedImages),
	}
}

func runUnusedImages(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	ix, err := s.loadImages()
	if err != nil {
		return err
	}
	files, keys := services.UnusedImages(vs, ix)

	out := s.cfg.ToolsPath(s.cfg.DeleteList)
	if err := storage.WriteLines(out, files); err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d unused images across %d brand/model keys (of %d images). List: %s\n",
		len(files), len(keys), ix.Total(), out)
	return nil
}

func yesFlag() cli.Flag {
	return &cli.BoolFlag{Name: "yes", Aliases: []string{"y"}, Usage: "actually delete files"}
}

func printDeleteReport(w io.Writer, r *services.DeleteReport) {
	fmt.Fprintf(w, "Deleted: %d | Not found: %d | Kept: %d | Errors: %d\n",
		r.Deleted, r.NotFound, r.Kept, r.Errors)
	for _, f := range r.Failed {
		fmt.Fprintf(w, "  failed: %s\n", f)
	}
}

func deleteImagesCommand() *cli.Command {
	return &cli.Command{
		Name:   "delete-images",
		Usage:  "Delete the images named in the deletion list",
		Flags:  []cli.Flag{yesFlag()},
		Action: action(runDeleteImages),
	}
}

func runDeleteImages(c *cli.Context, s *session) error {
	names, err := storage.ReadLines(s.cfg.ToolsPath(s.cfg.DeleteList))
	if err != nil {
		return err
	}
	if !c.Bool("yes") {
		fmt.Fprintf(s.out, "%d files would be deleted from %s. Re-run with --yes.\n", len(names), s.cfg.ImagesDir)
		return services.ErrNotConfirmed
	}
	r, err := services.NewImageCleaner(s.logger, s.cfg.ImagesDir).DeleteListed(names, true)
	if err != nil {
		return err
	}
	printDeleteReport(s.out, r)
	return nil
}

func cleanupImagesCommand() *cli.Command {
	return &cli.Command{
		Name:   "cleanup-images",
		Usage:  "Delete images that match no car in the dataset",
		Flags:  []cli.Flag{inputFlag("dataset to compare against"), yesFlag()},
		Action: action(runCleanupImages),
	}
}

func runCleanupImages(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	ix, err := s.loadImages()
	if err != nil {
		return err
	}
	r, err := services.NewImageCleaner(s.logger, s.cfg.ImagesDir).CleanupUnmatched(vs, ix, c.Bool("yes"))
	if err != nil {
		return err
	}
	printDeleteReport(s.out, r)
	return nil
}

func harvestImagesCommand() *cli.Command {
	return &cli.Command{
		Name:  "harvest-images",
		Usage: "Fetch gallery images for cars that have none",
		Flags: []cli.Flag{
			inputFlag("dataset to harvest for"),
			&cli.IntFlag{Name: "limit", Usage: "harvest at most this many cars (0 = all)"},
		},
		Action: action(runHarvestImages),
	}
}

func runHarvestImages(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.DatasetFile))
	if err != nil {
		return err
	}
	ix, err := s.loadImages()
	if err != nil {
		return err
	}
	targets := gallery.Targets(vs, ix)
	if n := c.Int("limit"); n > 0 && n < len(targets) {
		targets = targets[:n]
	}
	if len(targets) == 0 {
		fmt.Fprintln(s.out, "Every car already has images.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := gallery.New(s.cfg, s.logger).Harvest(ctx, targets)
	if res != nil {
		fmt.Fprintf(s.out, "Visited %d of %d cars, %d failed, %d images saved to %s (%d downloads failed)\n",
			res.Visited, res.Targets, res.Failed, len(res.Saved), s.cfg.ImagesDir, res.DownloadsFailed)
	}
	return err
}

func publishCommand() *cli.Command {
	return &cli.Command{
		Name:  "publish",
		Usage: "Store a cleaned dataset in Postgres or SQLite",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "cleaned dataset (default: CARPREP_CLEANED_FILE)"},
			&cli.BoolFlag{Name: "replace", Usage: "clear the table before writing"},
		},
		Action: action(runPublish),
	}
}

func runPublish(c *cli.Context, s *session) error {
	_, vs, err := s.loadVehicles(s.pathOr(c, "input", s.cfg.CleanedFile))
	if err != nil {
		return err
	}
	stored, written, err := s.store(services.Deduplicate(vs).Kept, c.Bool("replace"))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d vehicles written by run %s, %d now stored\n", written, s.runID, len(stored))
	return nil
}
