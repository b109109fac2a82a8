// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/chatforge/planledger/domain/plan"
)

// Config is the root configuration structure.
type Config struct {
	Server   ServerConfig  `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig   `yaml:"admin"`
	Pricing  PricingConfig `yaml:"pricing"`
	Ledger   LedgerConfig  `yaml:"ledger"`
	Logging  LoggingConfig `yaml:"logging"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP admin server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig configures the entry store.
type DatabaseConfig struct {
	// Driver is "sqlite" or "memory".
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AdminConfig configures access to the admin API.
type AdminConfig struct {
	// TokenHash is the bcrypt hash of the admin bearer token. Empty
	// disables auth (development only).
	TokenHash string `yaml:"token_hash"`
}

// PricingConfig carries the repriceable policy constants of the ledger.
// Zero values fall back to the production defaults.
type PricingConfig struct {
	KudosPerUnit          float64  `yaml:"kudos_per_unit"`
	ExternalImageUnitCost float64  `yaml:"external_image_unit_cost"`
	MediaSecondCost       float64  `yaml:"media_second_cost"`
	FlatVideoCost         float64  `yaml:"flat_video_cost"`
	FlatRateVideoModels   []string `yaml:"flat_rate_video_models"`
	SummaryTokenUnit      float64  `yaml:"summary_token_unit"`
	SummaryUnitCost       float64  `yaml:"summary_unit_cost"`
	ImageBonus            *float64 `yaml:"image_bonus"`
	VideoBonus            *float64 `yaml:"video_bonus"`
	SummarizationBonus    *float64 `yaml:"summarization_bonus"`
	ConversationalBonus   *float64 `yaml:"conversational_bonus"`
}

// LedgerConfig configures ledger bookkeeping.
type LedgerConfig struct {
	// MaxExpenseHistory bounds the per-plan expense history.
	MaxExpenseHistory int `yaml:"max_expense_history"`
	// RecentWindow is how many recent expenses/credits a usage report carries.
	RecentWindow int `yaml:"recent_window"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or console
}

// MetricsConfig configures the /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Rates converts the pricing section into the domain policy, filling
// unset fields from the production defaults.
func (c PricingConfig) Rates(maxHistory int) plan.Rates {
	r := plan.DefaultRates()
	if c.KudosPerUnit > 0 {
		r.KudosPerUnit = c.KudosPerUnit
	}
	if c.ExternalImageUnitCost > 0 {
		r.ExternalImageUnitCost = c.ExternalImageUnitCost
	}
	if c.MediaSecondCost > 0 {
		r.MediaSecondCost = c.MediaSecondCost
	}
	if c.FlatVideoCost > 0 {
		r.FlatVideoCost = c.FlatVideoCost
	}
	if len(c.FlatRateVideoModels) > 0 {
		r.FlatRateVideoModels = c.FlatRateVideoModels
	}
	if c.SummaryTokenUnit > 0 {
		r.SummaryTokenUnit = c.SummaryTokenUnit
	}
	if c.SummaryUnitCost > 0 {
		r.SummaryUnitCost = c.SummaryUnitCost
	}
	// Bonuses are pointers so zero is an expressible override.
	if c.ImageBonus != nil {
		r.ImageBonus = *c.ImageBonus
	}
	if c.VideoBonus != nil {
		r.VideoBonus = *c.VideoBonus
	}
	if c.SummarizationBonus != nil {
		r.SummarizationBonus = *c.SummarizationBonus
	}
	if c.ConversationalBonus != nil {
		r.ConversationalBonus = *c.ConversationalBonus
	}
	if maxHistory > 0 {
		r.MaxExpenseHistory = maxHistory
	}
	return r
}

// Load reads, parses and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv builds a config purely from PLANLEDGER_* environment
// variables:
//
//	PLANLEDGER_DATABASE_DRIVER - sqlite or memory (default: sqlite)
//	PLANLEDGER_DATABASE_DSN    - Database path (default: planledger.db)
//	PLANLEDGER_SERVER_HOST     - Server host (default: 0.0.0.0)
//	PLANLEDGER_SERVER_PORT     - Server port (default: 8080)
//	PLANLEDGER_ADMIN_TOKEN_HASH - bcrypt hash of the admin token
//	PLANLEDGER_LOG_LEVEL       - debug, info, warn, error (default: info)
//	PLANLEDGER_LOG_FORMAT      - json or console (default: json)
//	PLANLEDGER_METRICS_ENABLED - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback loads from the file if it exists, otherwise from the
// environment.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies PLANLEDGER_* environment variables.
// Env vars take precedence over file values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANLEDGER_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("PLANLEDGER_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PLANLEDGER_DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("PLANLEDGER_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("PLANLEDGER_ADMIN_TOKEN_HASH"); v != "" {
		cfg.Admin.TokenHash = v
	}
	if v := os.Getenv("PLANLEDGER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PLANLEDGER_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("PLANLEDGER_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "planledger.db"
	}
	if cfg.Ledger.MaxExpenseHistory == 0 {
		cfg.Ledger.MaxExpenseHistory = plan.DefaultMaxExpenseHistory
	}
	if cfg.Ledger.RecentWindow == 0 {
		cfg.Ledger.RecentWindow = 10
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if os.Getenv("PLANLEDGER_METRICS_ENABLED") == "" {
		cfg.Metrics.Enabled = true
	}
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port: must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	switch cfg.Database.Driver {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("database.driver: must be sqlite or memory, got %q", cfg.Database.Driver)
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: must be debug, info, warn or error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format: must be json or console, got %q", cfg.Logging.Format)
	}
	if cfg.Ledger.MaxExpenseHistory < 0 {
		return fmt.Errorf("ledger.max_expense_history: must be >= 0, got %d", cfg.Ledger.MaxExpenseHistory)
	}
	if cfg.Ledger.RecentWindow < 0 {
		return fmt.Errorf("ledger.recent_window: must be >= 0, got %d", cfg.Ledger.RecentWindow)
	}
	if err := validatePricing(&cfg.Pricing); err != nil {
		return err
	}
	return nil
}

func validatePricing(p *PricingConfig) error {
	if p.KudosPerUnit < 0 {
		return fmt.Errorf("pricing.kudos_per_unit: must be >= 0")
	}
	if p.ExternalImageUnitCost < 0 {
		return fmt.Errorf("pricing.external_image_unit_cost: must be >= 0")
	}
	if p.MediaSecondCost < 0 {
		return fmt.Errorf("pricing.media_second_cost: must be >= 0")
	}
	if p.FlatVideoCost < 0 {
		return fmt.Errorf("pricing.flat_video_cost: must be >= 0")
	}
	for _, b := range []*float64{p.ImageBonus, p.VideoBonus, p.SummarizationBonus, p.ConversationalBonus} {
		if b != nil && *b < 0 {
			return fmt.Errorf("pricing: bonus rates must be >= 0")
		}
	}
	return nil
}
