// Package config loads the engine configuration from environment
// variables and an optional YAML file. Defaults apply first, then
// environment variables, then file values for the keys the file sets.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

// Config is the complete engine configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server" envconfig:"SERVER"`
	Logging    LoggingConfig    `yaml:"logging" envconfig:"LOGGING"`
	Paths      PathsConfig      `yaml:"paths" envconfig:"PATHS"`
	Reference  ReferenceConfig  `yaml:"reference" envconfig:"REFERENCE"`
	Analysis   AnalysisConfig   `yaml:"analysis" envconfig:"ANALYSIS"`
	Raking     RakingConfig     `yaml:"raking" envconfig:"RAKING"`
}

// ServerConfig controls the HTTP artifact server.
type ServerConfig struct {
	Port            int           `yaml:"port" envconfig:"PORT" default:"8080" validate:"gt=0,lte=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `yaml:"write_timeout" envconfig:"WRITE_TIMEOUT" default:"15s"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" envconfig:"IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
	RateLimitRPS    float64       `yaml:"rate_limit_rps" envconfig:"RATE_LIMIT_RPS" default:"50"`
	RateLimitBurst  int           `yaml:"rate_limit_burst" envconfig:"RATE_LIMIT_BURST" default:"25"`
}

// LoggingConfig controls structured log output.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" envconfig:"FORMAT" default:"json" validate:"oneof=json text"`
	Output string `yaml:"output" envconfig:"OUTPUT" default:"console"`
}

// PathsConfig locates the panel extract, the reference cache, and the
// report output tree.
type PathsConfig struct {
	PanelFile string `yaml:"panel_file" envconfig:"PANEL_FILE" default:"data/panel.csv"`
	CacheDir  string `yaml:"cache_dir" envconfig:"CACHE_DIR" default:"data/reference"`
	ReportDir string `yaml:"report_dir" envconfig:"REPORT_DIR" default:"reports"`
}

// ReferenceConfig controls the reference data fetch. States lists the
// FIPS codes whose employment and establishment-count series are
// fetched alongside the national set.
type ReferenceConfig struct {
	APIKey    string   `yaml:"api_key" envconfig:"API_KEY"`
	BaseURL   string   `yaml:"base_url" envconfig:"BASE_URL"`
	StartYear int      `yaml:"start_year" envconfig:"START_YEAR" default:"2019" validate:"gte=1990"`
	EndYear   int      `yaml:"end_year" envconfig:"END_YEAR" default:"2026" validate:"gte=1990"`
	States    []string `yaml:"states" envconfig:"STATES"`
}

// AnalysisConfig carries the statistical thresholds.
type AnalysisConfig struct {
	MinClients      int     `yaml:"min_clients" envconfig:"MIN_CLIENTS" default:"30" validate:"gt=0"`
	MinCoverage     float64 `yaml:"min_coverage" envconfig:"MIN_COVERAGE" default:"0.005" validate:"gt=0,lt=1"`
	MaxMoMChange    float64 `yaml:"max_mom_change" envconfig:"MAX_MOM_CHANGE" default:"0.5" validate:"gt=0"`
	MaxRecentShare  float64 `yaml:"max_recent_share" envconfig:"MAX_RECENT_SHARE" default:"0.3" validate:"gt=0,lt=1"`
	MinTenureMonths int     `yaml:"min_tenure_months" envconfig:"MIN_TENURE_MONTHS" default:"12" validate:"gte=0"`
	MaxLagMonths    int     `yaml:"max_lag_months" envconfig:"MAX_LAG_MONTHS" default:"6" validate:"gt=0"`
	TurningWindow   int     `yaml:"turning_window" envconfig:"TURNING_WINDOW" default:"2" validate:"gt=0"`
}

// RakingConfig controls iterative proportional fitting.
type RakingConfig struct {
	MaxIterations int     `yaml:"max_iterations" envconfig:"MAX_ITERATIONS" default:"100" validate:"gt=0"`
	Tolerance     float64 `yaml:"tolerance" envconfig:"TOLERANCE" default:"1e-6" validate:"gt=0"`
	Renormalize   bool    `yaml:"renormalize" envconfig:"RENORMALIZE" default:"false"`
}

// envPrefix namespaces every environment variable.
const envPrefix = "PANELREP"

// Load reads configuration: file first when present, then environment
// overrides, then validation.
func Load() (*Config, error) {
	return LoadFrom(configFilePath())
}

// LoadFrom loads from an explicit config file path. A missing file is
// fine; defaults plus environment still apply.
func LoadFrom(path string) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// The file overlays onto the env-initialized struct; keys the
			// file omits keep their env or default values.
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	if cfg.Reference.EndYear < cfg.Reference.StartYear {
		return nil, fmt.Errorf("config validation failed: end_year %d before start_year %d",
			cfg.Reference.EndYear, cfg.Reference.StartYear)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func configFilePath() string {
	if p := os.Getenv(envPrefix + "_CONFIG"); p != "" {
		return p
	}
	return filepath.Join(".", "panelrep.yaml")
}
