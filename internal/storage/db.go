package storage

import (
	"context"
	"fmt"
)

// Driver names accepted by Open.
const (
	DriverNone       = "none"
	DriverSQLite     = "sqlite"
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
)

// Config selects a backend and holds the settings for each one.
type Config struct {
	Driver     string
	SQLitePath string
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
}

// DefaultConfig returns a configuration with default local development settings.
func DefaultConfig() Config {
	return Config{
		Driver:     DriverNone,
		SQLitePath: "iso8583.db",
		Postgres: PostgresConfig{
			Host:     "localhost",
			Port:     5432,
			Database: "iso8583",
			User:     "iso8583",
			SSLMode:  "disable",
		},
		ClickHouse: ClickHouseConfig{
			Addr:     "localhost:9000",
			Database: "iso8583",
			User:     "default",
		},
	}
}

// Open connects to the configured backend. It returns a nil Store and no
// error when the driver is "none" or empty.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverNone:
		return nil, nil
	case DriverSQLite:
		db, err := OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite: %w", err)
		}
		return db, nil
	case DriverPostgres:
		db, err := OpenPostgres(ctx, cfg.Postgres)
		if err != nil {
			return nil, fmt.Errorf("postgres: %w", err)
		}
		return db, nil
	case DriverClickHouse:
		db, err := OpenClickHouse(ctx, cfg.ClickHouse)
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		return db, nil
	}
	return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
