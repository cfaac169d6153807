// Package common provides shared utilities for Folio
package common

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds all configuration for Folio
type Config struct {
	Environment       string         `toml:"environment"`
	ReportingCurrency string         `toml:"reporting_currency"` // default currency for valuations
	Server            ServerConfig   `toml:"server"`
	Storage           StorageConfig  `toml:"storage"`
	Postgres          PostgresConfig `toml:"postgres"`
	Redis             RedisConfig    `toml:"redis"`
	FX                FXConfig       `toml:"fx"`
	Engine            EngineConfig   `toml:"engine"`
	Logging           LoggingConfig  `toml:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host      string  `toml:"host"`
	Port      int     `toml:"port"`
	RateLimit float64 `toml:"rate_limit"` // requests per second per owner, 0 disables
	Burst     int     `toml:"burst"`
}

// StorageConfig holds SurrealDB connection settings and backend selection.
type StorageConfig struct {
	Address   string        `toml:"address"`
	Namespace string        `toml:"namespace"`
	Database  string        `toml:"database"`
	Username  string        `toml:"username"`
	Password  string        `toml:"password"`
	DataPath  string        `toml:"data_path"` // file market backend and chart output
	Market    BackendConfig `toml:"market"`
	Trades    BackendConfig `toml:"trades"`
	Cache     BackendConfig `toml:"cache"`
}

// BackendConfig selects the implementation behind one store.
type BackendConfig struct {
	Backend string `toml:"backend"` // "surrealdb", "file" (market), "postgres" (trades), "redis" (cache)
}

// PostgresConfig holds Postgres configuration for the relational trade store.
type PostgresConfig struct {
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Database       string `toml:"database"`
	User           string `toml:"user"`
	Password       string `toml:"password"`
	MaxConnections int    `toml:"max_connections"`
}

// URL returns the postgres:// connection URL.
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// RedisConfig holds Redis configuration for the valuation cache.
type RedisConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

// Addr returns host:port.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// FXConfig holds exchange-rate settings.
type FXConfig struct {
	BaseCurrency string `toml:"base_currency"` // currency the stored rates are expressed in
}

// EngineConfig tunes the valuation engine.
type EngineConfig struct {
	CacheTTL      string `toml:"cache_ttl"`
	PriceCacheTTL string `toml:"price_cache_ttl"`
	MaxDays       int    `toml:"max_days"` // simulation iteration ceiling

	// WarmOwners are valued in the reporting currency at server start.
	WarmOwners []string `toml:"warm_owners"`
}

// GetCacheTTL parses and returns the valuation cache TTL
func (c *EngineConfig) GetCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.CacheTTL)
	if err != nil || d <= 0 {
		return FreshnessValuation
	}
	return d
}

// GetPriceCacheTTL parses and returns the price history cache TTL
func (c *EngineConfig) GetPriceCacheTTL() time.Duration {
	d, err := time.ParseDuration(c.PriceCacheTTL)
	if err != nil || d <= 0 {
		return FreshnessPriceHistory
	}
	return d
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Outputs    []string `toml:"outputs"`
	FilePath   string   `toml:"file_path"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// NewDefaultConfig returns a Config with sensible defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment:       "development",
		ReportingCurrency: "USD",
		Server: ServerConfig{
			Host:      "0.0.0.0",
			Port:      8080,
			RateLimit: 20,
			Burst:     40,
		},
		Storage: StorageConfig{
			Address:   "ws://localhost:8000/rpc",
			Namespace: "folio",
			Database:  "folio",
			Username:  "root",
			Password:  "root",
			DataPath:  "data",
			Market:    BackendConfig{Backend: "surrealdb"},
			Trades:    BackendConfig{Backend: "surrealdb"},
			Cache:     BackendConfig{Backend: "surrealdb"},
		},
		Postgres: PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			Database:       "folio",
			User:           "folio",
			Password:       "folio",
			MaxConnections: 10,
		},
		Redis: RedisConfig{
			Host: "localhost",
			Port: 6379,
		},
		FX: FXConfig{
			BaseCurrency: "USD",
		},
		Engine: EngineConfig{
			CacheTTL:      "24h",
			PriceCacheTTL: "1h",
			MaxDays:       DefaultMaxSimulationDays,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Outputs:    []string{"console"},
			FilePath:   "./logs/folio.log",
			MaxSizeMB:  100,
			MaxBackups: 3,
		},
	}
}

// LoadConfig loads configuration from files with environment overrides
func LoadConfig(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	// Later files override earlier ones
	for _, path := range paths {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	// .env is optional; existing environment variables win
	_ = godotenv.Load()

	applyEnvOverrides(config)

	config.ReportingCurrency = ValidateCurrency(config.ReportingCurrency, "USD")
	config.FX.BaseCurrency = ValidateCurrency(config.FX.BaseCurrency, "USD")

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("FOLIO_ENV"); env != "" {
		config.Environment = env
	}

	if host := os.Getenv("FOLIO_HOST"); host != "" {
		config.Server.Host = host
	}

	if port := os.Getenv("FOLIO_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	if level := os.Getenv("FOLIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if ccy := os.Getenv("FOLIO_REPORTING_CURRENCY"); ccy != "" {
		config.ReportingCurrency = strings.ToUpper(ccy)
	}

	if path := os.Getenv("FOLIO_DATA_PATH"); path != "" {
		config.Storage.DataPath = filepath.Clean(path)
	}

	// Storage overrides
	if v := os.Getenv("FOLIO_STORAGE_ADDRESS"); v != "" {
		config.Storage.Address = v
	}
	if v := os.Getenv("FOLIO_STORAGE_USERNAME"); v != "" {
		config.Storage.Username = v
	}
	if v := os.Getenv("FOLIO_STORAGE_PASSWORD"); v != "" {
		config.Storage.Password = v
	}
	if v := os.Getenv("FOLIO_MARKET_BACKEND"); v != "" {
		config.Storage.Market.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FOLIO_TRADES_BACKEND"); v != "" {
		config.Storage.Trades.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("FOLIO_CACHE_BACKEND"); v != "" {
		config.Storage.Cache.Backend = strings.ToLower(v)
	}

	if v := os.Getenv("FOLIO_POSTGRES_HOST"); v != "" {
		config.Postgres.Host = v
	}
	if v := os.Getenv("FOLIO_POSTGRES_PASSWORD"); v != "" {
		config.Postgres.Password = v
	}
	if v := os.Getenv("FOLIO_REDIS_HOST"); v != "" {
		config.Redis.Host = v
	}
	if v := os.Getenv("FOLIO_REDIS_PASSWORD"); v != "" {
		config.Redis.Password = v
	}
	if v := os.Getenv("FOLIO_WARM_OWNERS"); v != "" {
		config.Engine.WarmOwners = nil
		for _, owner := range strings.Split(v, ",") {
			if owner = strings.TrimSpace(owner); owner != "" {
				config.Engine.WarmOwners = append(config.Engine.WarmOwners, owner)
			}
		}
	}
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(c.Environment))
	return env == "production" || env == "prod"
}

// ValidateCurrency upper-cases code and returns it when it is a known ISO
// 4217 currency, otherwise fallback.
func ValidateCurrency(code, fallback string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if money.GetCurrency(code) == nil {
		return fallback
	}
	return code
}

// IsKnownCurrency reports whether code is a known ISO 4217 currency.
func IsKnownCurrency(code string) bool {
	return money.GetCurrency(strings.ToUpper(strings.TrimSpace(code))) != nil
}
