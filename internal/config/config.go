package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cleared-dev/tally/internal/category"
)

// FileName is the config file created by `tally init`.
const FileName = "tally.yaml"

// Store drivers.
const (
	DriverFile     = "file"
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
)

// Environment variables that override the file.
const (
	EnvDatabaseURL = "DATABASE_URL"
	EnvStore       = "TALLY_STORE"
	EnvAddr        = "TALLY_ADDR"
)

// Config represents the top-level tally.yaml configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Import ImportConfig `yaml:"import"`
	Server ServerConfig `yaml:"server"`
	Venmo  VenmoConfig  `yaml:"venmo"`

	// Lookup tables. A missing section falls back to the built-in table.
	Categories       []category.Rule     `yaml:"categories,omitempty"`
	MerchantNotes    []category.NoteRule `yaml:"merchant_notes,omitempty"`
	NativeCategories map[string]string   `yaml:"native_categories,omitempty"`
}

// StoreConfig selects where transactions are kept.
type StoreConfig struct {
	Driver      string `yaml:"driver"`
	Dir         string `yaml:"dir,omitempty"` // relative to the repo root
	DatabaseURL string `yaml:"database_url,omitempty"`
}

// ImportConfig controls the import directory sweep.
type ImportConfig struct {
	Dir      string `yaml:"dir"`
	Schedule string `yaml:"schedule"` // cron spec for `tally sweep --watch`
	Timezone string `yaml:"timezone"`
}

// ServerConfig controls `tally serve`.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// VenmoConfig identifies the owner of Venmo statements.
type VenmoConfig struct {
	Owner string `yaml:"owner,omitempty"`
}

// Load reads a tally.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new repo.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver: DriverFile,
			Dir:    "data",
		},
		Import: ImportConfig{
			Dir:      "import",
			Schedule: "*/15 * * * *",
			Timezone: "UTC",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadEnv loads a .env file into the process environment. Variables that
// are already set win. A missing file is not an error.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides cfg from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvStore); v != "" {
		cfg.Store.Driver = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		cfg.Store.DatabaseURL = v
	}
	if v := os.Getenv(EnvAddr); v != "" {
		cfg.Server.Addr = v
	}
}

// Validate checks the settings the commands depend on.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverFile:
		if c.Store.Dir == "" {
			return errors.New("store.dir is required for the file store")
		}
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store.database_url or %s is required for the postgres store", EnvDatabaseURL)
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location returns the timezone scheduled sweeps run in.
func (c *Config) Location() (*time.Location, error) {
	if c.Import.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(c.Import.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", c.Import.Timezone, err)
	}
	return loc, nil
}

// Tables returns the category tables, using the built-in table for any
// section the file leaves out.
func (c *Config) Tables() category.Tables {
	tables := category.Default()
	if len(c.Categories) > 0 {
		tables.Rules = c.Categories
	}
	if len(c.MerchantNotes) > 0 {
		tables.Notes = c.MerchantNotes
	}
	if len(c.NativeCategories) > 0 {
		tables.Native = c.NativeCategories
	}
	return tables
}
