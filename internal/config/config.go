// Package config loads ledger configuration from the environment.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP server
	Port string

	// Database
	SQLiteDBPath string
	QueryTimeout time.Duration

	// Currencies
	BaseCurrency     string
	BaseCurrencyName string
	DefaultCurrency  string
	RateProviderURL  string
	RateMaxAge       time.Duration
	RateRefreshEvery time.Duration

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Workers
	RecurringInterval time.Duration
	BackupInterval    time.Duration

	// Google Drive backup
	DriveFolderID        string
	DriveCredentialsFile string
}

func Load() *Config {
	cfg := &Config{
		Port:         getEnv("PORT", "8082"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/finitor.db"),
		QueryTimeout: getEnvDuration("QUERY_TIMEOUT", 10*time.Second),

		BaseCurrency:     getEnv("BASE_CURRENCY", "VND"),
		BaseCurrencyName: getEnv("BASE_CURRENCY_NAME", "Vietnamese Dong"),
		DefaultCurrency:  getEnv("DEFAULT_CURRENCY", ""),
		RateProviderURL:  getEnv("RATE_PROVIDER_URL", ""),
		RateMaxAge:       getEnvDuration("RATE_MAX_AGE", 24*time.Hour),
		RateRefreshEvery: getEnvDuration("RATE_REFRESH_INTERVAL", 6*time.Hour),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "finitor"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_events"),

		RecurringInterval: getEnvDuration("RECURRING_INTERVAL", time.Hour),
		BackupInterval:    getEnvDuration("BACKUP_INTERVAL", 12*time.Hour),

		DriveFolderID:        getEnv("GOOGLE_DRIVE_FOLDER_ID", ""),
		DriveCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = cfg.BaseCurrency
	}
	return cfg
}

// Validate checks the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if c.SQLiteDBPath == "" {
		problems = append(problems, "SQLite database path cannot be empty")
	} else {
		dir := filepath.Dir(c.SQLiteDBPath)
		if dir != "." && dir != "" {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				if err := os.MkdirAll(dir, 0755); err != nil {
					problems = append(problems, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
				}
			}
		}
	}

	if len(strings.TrimSpace(c.BaseCurrency)) != 3 {
		problems = append(problems, fmt.Sprintf("invalid base currency '%s': must be a 3-letter code", c.BaseCurrency))
	}
	if len(strings.TrimSpace(c.DefaultCurrency)) != 3 {
		problems = append(problems, fmt.Sprintf("invalid default currency '%s': must be a 3-letter code", c.DefaultCurrency))
	}

	if c.RateProviderURL != "" {
		if u, err := url.Parse(c.RateProviderURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid rate provider URL '%s': %v", c.RateProviderURL, err))
		} else if u.Scheme != "http" && u.Scheme != "https" {
			problems = append(problems, fmt.Sprintf("invalid rate provider URL scheme '%s': must be http or https", u.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.QueryTimeout < time.Second {
		problems = append(problems, fmt.Sprintf("invalid query timeout %v: must be at least 1 second", c.QueryTimeout))
	}
	if c.RateMaxAge < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid rate max age %v: must be at least 1 minute", c.RateMaxAge))
	}
	if c.RecurringInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid recurring interval %v: must be at least 1 minute", c.RecurringInterval))
	}
	if c.BackupInterval < time.Minute {
		problems = append(problems, fmt.Sprintf("invalid backup interval %v: must be at least 1 minute", c.BackupInterval))
	}

	if c.DriveFolderID != "" && c.DriveCredentialsFile != "" {
		if _, err := os.Stat(c.DriveCredentialsFile); os.IsNotExist(err) {
			problems = append(problems, fmt.Sprintf("Google credentials file does not exist: %s", c.DriveCredentialsFile))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
