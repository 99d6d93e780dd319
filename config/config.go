package config

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"carprep/models"
)

// Config holds all application configuration loaded from environment
// variables prefixed with CARPREP_.
type Config struct {
	DataDir   string `envconfig:"DATA_DIR" default:"backend/data" validate:"required"`
	ImagesDir string `envconfig:"IMAGES_DIR" default:"backend/images" validate:"required"`
	ToolsDir  string `envconfig:"TOOLS_DIR" default:"tools" validate:"required"`

	DatasetFile  string `envconfig:"DATASET_FILE" default:"df_master_v8_def.csv"`
	EnrichedFile string `envconfig:"ENRICHED_FILE" default:"Cleaned_Car_Data_For_App_Fully_Enriched.csv"`
	CleanedFile  string `envconfig:"CLEANED_FILE" default:"cars_clean.csv"`
	MappingFile  string `envconfig:"MAPPING_FILE" default:"car_image_mapping.json"`
	DeleteList   string `envconfig:"DELETE_LIST" default:"images_to_delete.txt"`

	MinPrice float64 `envconfig:"MIN_PRICE" default:"300" validate:"gte=0,ltfield=MaxPrice"`
	MaxPrice float64 `envconfig:"MAX_PRICE" default:"500000" validate:"gt=0"`
	MinPower int     `envconfig:"MIN_POWER_KW" default:"20" validate:"gte=0,ltfield=MaxPower"`
	MaxPower int     `envconfig:"MAX_POWER_KW" default:"800" validate:"gt=0"`
	MinYear  int     `envconfig:"MIN_YEAR" default:"1990" validate:"gte=1900"`
	// MaxYear of 0 means current year + 1.
	MaxYear  int     `envconfig:"MAX_YEAR" default:"0" validate:"eq=0|gtefield=MinYear"`

	StorageDriver    string `envconfig:"STORAGE_DRIVER" default:"none" validate:"oneof=postgres sqlite none"`
	PostgresHost     string `envconfig:"POSTGRES_HOST" default:"localhost"`
	PostgresPort     string `envconfig:"POSTGRES_PORT" default:"5432"`
	PostgresUser     string `envconfig:"POSTGRES_USER" default:"carprep"`
	PostgresPassword string `envconfig:"POSTGRES_PASSWORD" default:"carprep"`
	PostgresDB       string `envconfig:"POSTGRES_DB" default:"cars"`
	PostgresSSLMode  string `envconfig:"POSTGRES_SSLMODE" default:"disable"`
	SQLitePath       string `envconfig:"SQLITE_PATH" default:"backend/data/cars.db"`

	MaxConcurrency  int    `envconfig:"MAX_CONCURRENCY" default:"3" validate:"gte=1"`
	RateLimitMs     int    `envconfig:"RATE_LIMIT_MS" default:"2000" validate:"gte=0"`
	MaxRetries      int    `envconfig:"MAX_RETRIES" default:"3" validate:"gte=1"`
	ImageSourceURL  string `envconfig:"IMAGE_SOURCE_URL"`
	ImagesPerCar    int    `envconfig:"IMAGES_PER_CAR" default:"3" validate:"gte=1"`
	ChromeBin       string `envconfig:"CHROME_BIN"`
	PageTimeoutSecs int    `envconfig:"PAGE_TIMEOUT_SECS" default:"60" validate:"gte=1"`
	LogLevel        string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
}

// Load reads the optional .env files and returns a validated Config.
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	cfg := &Config{}
	if err := envconfig.Process("carprep", cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints declared in the struct tags.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

// Bounds returns the realism bound set described by this config.
func (c *Config) Bounds() models.Bounds {
	maxYear := c.MaxYear
	if maxYear == 0 {
		maxYear = time.Now().Year() + 1
	}
	return models.Bounds{
		MinPrice: c.MinPrice,
		MaxPrice: c.MaxPrice,
		MinPower: c.MinPower,
		MaxPower: c.MaxPower,
		MinYear:  c.MinYear,
		MaxYear:  maxYear,
	}
}

// DataPath joins name onto DataDir unless name is already a path.
func (c *Config) DataPath(name string) string {
	return resolve(c.DataDir, name)
}

// ToolsPath joins name onto ToolsDir unless name is already a path.
func (c *Config) ToolsPath(name string) string {
	return resolve(c.ToolsDir, name)
}

func resolve(dir, name string) string {
	if name == "" || filepath.IsAbs(name) || filepath.Dir(name) != "." {
		return name
	}
	return filepath.Join(dir, name)
}
