// Package config loads daemon configuration from environment variables
// and schema-validated bootstrap documents.
package config

import (
	"os"
	"strconv"
)

// Config holds daemon configuration.
type Config struct {
	Addr                   string
	LogLevel               string
	DatabaseURL            string
	Driver                 string
	RedemptionDelaySeconds int64
	TokenSecret            string
	BootstrapPath          string
}

// Load loads configuration from environment variables.
func Load() *Config {
	addr := os.Getenv("VAULTGATE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		if dbURL == "" {
			// Default to a local SQLite file
			driver = "sqlite"
			dbURL = "file:vaultgate.db"
		} else {
			driver = "postgres"
		}
	}

	delay := int64(0)
	if raw := os.Getenv("REDEMPTION_DELAY_SECONDS"); raw != "" {
		if parsed, err := strconv.ParseInt(raw, 10, 64); err == nil {
			delay = parsed
		}
	}

	return &Config{
		Addr:                   addr,
		LogLevel:               logLevel,
		DatabaseURL:            dbURL,
		Driver:                 driver,
		RedemptionDelaySeconds: delay,
		TokenSecret:            os.Getenv("VAULTGATE_TOKEN_SECRET"),
		BootstrapPath:          os.Getenv("VAULTGATE_BOOTSTRAP"),
	}
}
