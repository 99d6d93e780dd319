package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"carprep/utils"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		utils.NewLogger().Error("%v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "carprep",
		Usage:   "Prepare the car dataset and image library for the web app",
		Version: version,

		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "env-file",
				Usage: ".env files to load before reading CARPREP_* variables",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error); overrides CARPREP_LOG_LEVEL",
				EnvVars: []string{"CARPREP_LOG_LEVEL"},
			},
		},

		Commands: []*cli.Command{
			cleanCommand(),
			countCommand(),
			analyzeCommand(),
			pricesCommand(),
			testFiltersCommand(),
			mergeCommand(),
			matchImagesCommand(),
			mapImagesCommand(),
			unusedImagesCommand(),
			deleteImagesCommand(),
			cleanupImagesCommand(),
			harvestImagesCommand(),
			publishCommand(),
		},
	}
}
