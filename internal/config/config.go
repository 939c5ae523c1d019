// Package config loads the iso8583_parser configuration.
//
// Configuration is read from a single YAML file given by:
//   - the --config flag passed to a command, or
//   - the ISO8583_CONFIG environment variable.
//
// Without either, Default() values are used. Secrets and endpoints can be
// supplied through the environment (POSTGRES_*, CLICKHOUSE_*, NATS_URL,
// ISO8583_API_KEYS), which takes precedence over the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "ISO8583_CONFIG"

// Config is the top-level configuration.
type Config struct {
	Decoder DecoderConfig `yaml:"decoder"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	NATS    NATSConfig    `yaml:"nats"`
}

// DecoderConfig configures message decoding.
type DecoderConfig struct {
	// Dictionary is a registered dictionary name or a path to a dictionary file.
	Dictionary string `yaml:"dictionary"`

	// HeaderMode is marker, fixed or none.
	HeaderMode string `yaml:"header_mode"`

	// HeaderLength is the header width for the marker and fixed modes.
	HeaderLength int `yaml:"header_length"`

	// HeaderMarker is the prefix that signals a header in marker mode.
	HeaderMarker string `yaml:"header_marker"`

	// FailureMode is lenient or strict.
	FailureMode string `yaml:"failure_mode"`

	// Workers bounds batch decoding concurrency.
	Workers int `yaml:"workers"`

	// Delimiter separates messages in plain-text input files.
	Delimiter string `yaml:"delimiter"`
}

// LogConfig configures the logger.
type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// APIConfig configures the REST API.
type APIConfig struct {
	Addr    string        `yaml:"addr"`
	Timeout time.Duration `yaml:"timeout"`

	// APIKeys enables key authentication when non-empty.
	APIKeys []string `yaml:"api_keys"`

	// MaxBatch caps the number of messages in one batch request.
	MaxBatch int `yaml:"max_batch"`
}

// StorageConfig selects and configures the message store.
type StorageConfig struct {
	// Driver is none, sqlite, postgres or clickhouse.
	Driver string `yaml:"driver"`

	SQLite     SQLiteConfig     `yaml:"sqlite"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

type ClickHouseConfig struct {
	Addr     string `yaml:"addr"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// NATSConfig configures the NATS feed.
type NATSConfig struct {
	URL            string `yaml:"url"`
	Subject        string `yaml:"subject"`
	Queue          string `yaml:"queue"`
	PublishSubject string `yaml:"publish_subject"`

	// Encoding of published envelopes: json or cbor.
	Encoding string `yaml:"encoding"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Decoder: DecoderConfig{
			Dictionary:   "iso87",
			HeaderMode:   "marker",
			HeaderLength: 12,
			HeaderMarker: "ISO",
			FailureMode:  "lenient",
			Workers:      4,
			Delimiter:    "?",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		API: APIConfig{
			Addr:     ":8080",
			Timeout:  30 * time.Second,
			MaxBatch: 100,
		},
		Storage: StorageConfig{
			Driver: "none",
			SQLite: SQLiteConfig{Path: "iso8583.db"},
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
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Subject:        "iso8583.raw",
			Queue:          "iso8583-parser",
			PublishSubject: "iso8583.decoded",
			Encoding:       "json",
		},
	}
}

// Load reads the file at path, or the file named by ISO8583_CONFIG when path
// is empty, then applies environment overrides. With neither set it returns
// the defaults plus overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfig)
	}

	cfg := Default()
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("load config %s: %w", path, err)
		}
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

// loadFile merges a YAML file into the current config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// applyEnv overrides endpoints and secrets from the environment.
func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(dst *int, key string) {
		if v := getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	set(&c.Storage.Postgres.Host, "POSTGRES_HOST")
	setInt(&c.Storage.Postgres.Port, "POSTGRES_PORT")
	set(&c.Storage.Postgres.Database, "POSTGRES_DB")
	set(&c.Storage.Postgres.User, "POSTGRES_USER")
	set(&c.Storage.Postgres.Password, "POSTGRES_PASSWORD")
	set(&c.Storage.Postgres.SSLMode, "POSTGRES_SSLMODE")

	set(&c.Storage.ClickHouse.Addr, "CLICKHOUSE_ADDR")
	set(&c.Storage.ClickHouse.Database, "CLICKHOUSE_DB")
	set(&c.Storage.ClickHouse.User, "CLICKHOUSE_USER")
	set(&c.Storage.ClickHouse.Password, "CLICKHOUSE_PASSWORD")

	set(&c.NATS.URL, "NATS_URL")

	if v := getenv("ISO8583_API_KEYS"); v != "" {
		c.API.APIKeys = splitList(v)
	}
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	switch c.Decoder.HeaderMode {
	case "marker", "fixed", "none":
	default:
		errs = append(errs, fmt.Errorf("invalid decoder.header_mode: %q", c.Decoder.HeaderMode))
	}
	if c.Decoder.HeaderMode != "none" && c.Decoder.HeaderLength <= 0 {
		errs = append(errs, fmt.Errorf("decoder.header_length must be positive, got %d", c.Decoder.HeaderLength))
	}
	switch c.Decoder.FailureMode {
	case "lenient", "strict":
	default:
		errs = append(errs, fmt.Errorf("invalid decoder.failure_mode: %q", c.Decoder.FailureMode))
	}
	if c.Decoder.Workers < 1 {
		errs = append(errs, fmt.Errorf("decoder.workers must be at least 1, got %d", c.Decoder.Workers))
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("invalid log.format: %q", c.Log.Format))
	}

	switch c.Storage.Driver {
	case "none", "":
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, errors.New("storage.sqlite.path is required"))
		}
	case "postgres":
		if c.Storage.Postgres.Host == "" {
			errs = append(errs, errors.New("storage.postgres.host is required"))
		}
	case "clickhouse":
		if c.Storage.ClickHouse.Addr == "" {
			errs = append(errs, errors.New("storage.clickhouse.addr is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid storage.driver: %q", c.Storage.Driver))
	}

	switch c.NATS.Encoding {
	case "json", "cbor":
	default:
		errs = append(errs, fmt.Errorf("invalid nats.encoding: %q", c.NATS.Encoding))
	}

	if c.API.MaxBatch < 1 {
		errs = append(errs, fmt.Errorf("api.max_batch must be at least 1, got %d", c.API.MaxBatch))
	}

	return errors.Join(errs...)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log.level: %q", s)
}

// Logger builds a logger writing to w.
func (l LogConfig) Logger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(l.Level)
	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
