// Package config loads the session configuration from the environment and
// the calendar schedule from YAML.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve on hosts without a zoneinfo database

	"github.com/joho/godotenv"

	"backtestCore/internal/adapters/logger" // Import the logger package for LogLevel
	"backtestCore/internal/ports"
)

// Mode selects how time advances.
type Mode string

const (
	ModeBacktest Mode = "backtest"
	ModeLive     Mode = "live"
)

const dateLayout = "2006-01-02"

// Config holds all application configuration.
type Config struct {
	Mode        Mode
	InitialCash float64
	Location    *time.Location // Calendar and date interpretation

	// Backtest range; End is the last instant of BACKTEST_END's day.
	Start time.Time
	End   time.Time

	// Inputs
	SchedulePath    string
	PricesCSV       string
	TransactionsCSV string

	// Outputs
	DBPath    string // Empty disables the blotter export
	TradesCSV string // Empty disables the trade CSV export

	// Logging
	LogLevel  logger.LogLevel // Use the LogLevel type from the logger adapter
	LogFormat string          // text or json

	// Live mode
	MetricsAddr    string // Empty disables the metrics endpoint
	APIKey         string
	SecretKey      string
	IsTestnet      bool
	PriceRateLimit float64 // Price requests per second
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars)
	_ = godotenv.Load()

	cfg := &Config{}
	var err error
	var errs []string // Collect validation errors

	cfg.Mode = Mode(strings.ToLower(getEnv("MODE", string(ModeBacktest))))
	if cfg.Mode != ModeBacktest && cfg.Mode != ModeLive {
		errs = append(errs, fmt.Sprintf("MODE must be %q or %q, got %q", ModeBacktest, ModeLive, cfg.Mode))
	}

	cfg.InitialCash, err = getEnvAsFloatRequired("INITIAL_CASH", 100000)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid INITIAL_CASH: %v", err))
	} else if cfg.InitialCash < 0 {
		errs = append(errs, "INITIAL_CASH cannot be negative")
	}

	cfg.Location, err = time.LoadLocation(getEnv("TIMEZONE", "UTC"))
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid TIMEZONE: %v", err))
		cfg.Location = time.UTC
	}

	// Backtest range
	startStr := getEnv("BACKTEST_START", "")
	endStr := getEnv("BACKTEST_END", "")
	if startStr != "" {
		if cfg.Start, err = time.ParseInLocation(dateLayout, startStr, cfg.Location); err != nil {
			errs = append(errs, fmt.Sprintf("invalid BACKTEST_START (want YYYY-MM-DD): %v", err))
		}
	}
	if endStr != "" {
		day, perr := time.ParseInLocation(dateLayout, endStr, cfg.Location)
		if perr != nil {
			errs = append(errs, fmt.Sprintf("invalid BACKTEST_END (want YYYY-MM-DD): %v", perr))
		} else {
			cfg.End = day.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
	}
	if cfg.Mode == ModeBacktest {
		if startStr == "" {
			errs = append(errs, "BACKTEST_START must be set in backtest mode")
		}
		if endStr == "" {
			errs = append(errs, "BACKTEST_END must be set in backtest mode")
		}
	}
	if !cfg.Start.IsZero() && !cfg.End.IsZero() && cfg.End.Before(cfg.Start) {
		errs = append(errs, "BACKTEST_END must not be before BACKTEST_START")
	}

	// Inputs and outputs
	cfg.SchedulePath = getEnv("SCHEDULE_PATH", "./schedule.yaml")
	cfg.PricesCSV = getEnv("PRICES_CSV", "")
	cfg.TransactionsCSV = getEnv("TRANSACTIONS_CSV", "")
	cfg.DBPath = getEnvOrDisabled("DB_PATH", "./data/blotter.db")
	cfg.TradesCSV = getEnv("TRADES_CSV", "")
	if cfg.Mode == ModeBacktest && cfg.PricesCSV == "" {
		errs = append(errs, "PRICES_CSV must be set in backtest mode")
	}

	// Logging
	logLevelStr := getEnv("LOG_LEVEL", "INFO")
	cfg.LogLevel = logger.ParseLevel(logLevelStr) // Use the parser from the logger package
	cfg.LogFormat = strings.ToLower(getEnv("LOG_FORMAT", "text"))
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT must be text or json, got %q", cfg.LogFormat))
	}

	// Live mode
	cfg.MetricsAddr = getEnvOrDisabled("METRICS_ADDR", ":9090")
	cfg.APIKey = getEnv("BINANCE_API_KEY", "")
	cfg.SecretKey = getEnv("BINANCE_API_SECRET", "")
	cfg.IsTestnet = getEnvAsBool("IS_TESTNET", true) // Default to testnet for safety

	cfg.PriceRateLimit, err = getEnvAsFloatRequired("PRICE_RATE_LIMIT", 10)
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid PRICE_RATE_LIMIT: %v", err))
	} else if cfg.PriceRateLimit <= 0 {
		errs = append(errs, "PRICE_RATE_LIMIT must be positive")
	}

	// Combine validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: configuration validation failed: %s", ports.ErrConfiguration, strings.Join(errs, "; "))
	}

	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvOrDisabled returns defaultValue only when key is unset, so an
// explicitly empty value can switch a feature off.
func getEnvOrDisabled(key, defaultValue string) string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return defaultValue
	}
	return value
}

func getEnvAsFloatRequired(key string, defaultValue float64) (float64, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float value '%s' for key %s: %w", valueStr, key, err)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
