package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/xray-io/xray/internal/config"
)

var errDatabaseURLRequired = errors.New("XRAY_DATABASE_URL is required")

// Config carries the two settings the migrator needs: where the database
// lives and which table tracks applied versions.
type Config struct {
	DatabaseURL    string
	MigrationTable string
}

// LoadMigratorConfig reads the migrator settings from the environment.
// XRAY_DATABASE_URL has no default; refusing to guess a connection string
// beats migrating the wrong database.
func LoadMigratorConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("XRAY_DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("XRAY_MIGRATION_TABLE", "schema_migrations"),
	}

	if cfg.DatabaseURL == "" {
		return nil, errDatabaseURLRequired
	}

	return cfg, nil
}

// RedactedURL returns the database URL with any password replaced, safe for
// logs. Unparseable URLs are hidden entirely rather than risk leaking a
// credential that confused the parser.
func (c *Config) RedactedURL() string {
	parsed, err := url.Parse(c.DatabaseURL)
	if err != nil {
		return "(unparseable database URL)"
	}

	return parsed.Redacted()
}

func (c *Config) String() string {
	return fmt.Sprintf("migrator config: database=%s table=%s", c.RedactedURL(), c.MigrationTable)
}
