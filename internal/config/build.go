package config

import (
	"fmt"
	"log/slog"

	"iso8583_parser/internal/decoder"
	_ "iso8583_parser/internal/dictionaries"
	"iso8583_parser/internal/registry"
	"iso8583_parser/internal/storage"
)

// NewDecoder resolves the configured dictionary and builds a Decoder with
// the configured header and failure policies.
func (d DecoderConfig) NewDecoder(logger *slog.Logger) (*decoder.Decoder, error) {
	headerMode, err := decoder.ParseHeaderMode(d.HeaderMode)
	if err != nil {
		return nil, err
	}
	failureMode, err := decoder.ParseFailureMode(d.FailureMode)
	if err != nil {
		return nil, err
	}
	dict, err := registry.Default().Resolve(d.Dictionary)
	if err != nil {
		return nil, fmt.Errorf("resolve dictionary: %w", err)
	}
	return decoder.New(dict,
		decoder.WithHeader(headerMode, d.HeaderLength, d.HeaderMarker),
		decoder.WithFailureMode(failureMode),
		decoder.WithLogger(logger),
		decoder.WithName(dict.Name()),
	), nil
}

// StoreConfig converts the storage section for storage.Open.
func (s StorageConfig) StoreConfig() storage.Config {
	return storage.Config{
		Driver:     s.Driver,
		SQLitePath: s.SQLite.Path,
		Postgres: storage.PostgresConfig{
			Host:     s.Postgres.Host,
			Port:     s.Postgres.Port,
			Database: s.Postgres.Database,
			User:     s.Postgres.User,
			Password: s.Postgres.Password,
			SSLMode:  s.Postgres.SSLMode,
		},
		ClickHouse: storage.ClickHouseConfig{
			Addr:     s.ClickHouse.Addr,
			Database: s.ClickHouse.Database,
			User:     s.ClickHouse.User,
			Password: s.ClickHouse.Password,
		},
	}
}
