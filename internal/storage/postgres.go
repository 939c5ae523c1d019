package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// PostgresDB stores messages in PostgreSQL with the fields as JSONB.
type PostgresDB struct {
	pool *pgxpool.Pool
}

// OpenPostgres opens a connection pool to PostgreSQL and creates the schema.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*PostgresDB, error) {
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connStr := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, sslMode)

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}

	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	// Test the connection.
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	d := &PostgresDB{pool: pool}
	if err := d.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the PostgreSQL connection pool.
func (d *PostgresDB) Close() error {
	d.pool.Close()
	return nil
}

// Pool returns the underlying connection pool for advanced operations.
func (d *PostgresDB) Pool() *pgxpool.Pool {
	return d.pool
}

// CreateSchema creates the PostgreSQL tables.
func (d *PostgresDB) CreateSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS iso_messages (
		id               BIGSERIAL PRIMARY KEY,
		fingerprint      TEXT NOT NULL UNIQUE,
		source           TEXT NOT NULL DEFAULT '',
		dictionary       TEXT NOT NULL,
		received_at      TIMESTAMPTZ NOT NULL,
		header           TEXT NOT NULL DEFAULT '',
		mti              TEXT NOT NULL,
		primary_bitmap   TEXT NOT NULL,
		secondary_bitmap TEXT NOT NULL DEFAULT '',
		raw_text         TEXT NOT NULL,
		fields           JSONB NOT NULL,
		field_count      INTEGER NOT NULL,
		degraded_count   INTEGER NOT NULL,
		seen_count       INTEGER NOT NULL DEFAULT 1,
		last_seen        TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_iso_messages_mti ON iso_messages(mti);
	CREATE INDEX IF NOT EXISTS idx_iso_messages_received ON iso_messages(received_at);
	CREATE INDEX IF NOT EXISTS idx_iso_messages_fields ON iso_messages USING GIN (fields jsonb_path_ops);
	`
	if _, err := d.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Save upserts a record. A repeated fingerprint bumps seen_count and
// last_seen and returns the original ID.
func (d *PostgresDB) Save(ctx context.Context, r *Record) (int64, error) {
	fieldsJSON, err := r.fieldsJSON()
	if err != nil {
		return 0, err
	}

	var id int64
	err = d.pool.QueryRow(ctx, `
		INSERT INTO iso_messages (fingerprint, source, dictionary, received_at, header, mti, primary_bitmap, secondary_bitmap, raw_text, fields, field_count, degraded_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12)
		ON CONFLICT (fingerprint) DO UPDATE SET
			seen_count = iso_messages.seen_count + 1,
			last_seen = NOW()
		RETURNING id
	`, r.Fingerprint, r.Source, r.Dictionary, r.ReceivedAt, r.Header, r.MTI, r.PrimaryBitmap,
		r.SecondaryBitmap, r.Raw, fieldsJSON, r.FieldCount, r.DegradedCount).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert message: %w", err)
	}
	r.ID = id
	return id, nil
}

const postgresColumns = `id, fingerprint, source, dictionary, received_at, header, mti,
	primary_bitmap, secondary_bitmap, raw_text, fields, field_count, degraded_count`

func scanPostgresRecord(row pgx.Row) (*Record, error) {
	var r Record
	var fields []byte
	err := row.Scan(&r.ID, &r.Fingerprint, &r.Source, &r.Dictionary, &r.ReceivedAt, &r.Header, &r.MTI,
		&r.PrimaryBitmap, &r.SecondaryBitmap, &r.Raw, &fields, &r.FieldCount, &r.DegradedCount)
	if err != nil {
		return nil, err
	}
	if err := r.setFields(fields); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get retrieves a message by ID.
func (d *PostgresDB) Get(ctx context.Context, id int64) (*Record, error) {
	r, err := scanPostgresRecord(d.pool.QueryRow(ctx, `SELECT `+postgresColumns+` FROM iso_messages WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return r, nil
}

// Query retrieves messages matching the given parameters, newest first.
func (d *PostgresDB) Query(ctx context.Context, p QueryParams) ([]Record, error) {
	var conditions []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if p.MTI != "" {
		conditions = append(conditions, "mti = "+arg(p.MTI))
	}
	if p.Source != "" {
		conditions = append(conditions, "source = "+arg(p.Source))
	}
	if p.Field > 0 {
		conditions = append(conditions, "fields @> "+arg(fmt.Sprintf(`[{"fieldNumber": %d}]`, p.Field))+"::jsonb")
	}
	if p.Degraded {
		conditions = append(conditions, "degraded_count > 0")
	}
	if p.FullText != "" {
		conditions = append(conditions, "raw_text LIKE "+arg("%"+p.FullText+"%"))
	}

	query := `SELECT ` + postgresColumns + ` FROM iso_messages`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d OFFSET %d", p.limit(), p.Offset)

	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// Stats returns statistics about the stored messages.
func (d *PostgresDB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByMTI:     make(map[string]int64),
		TopFields: make(map[int]int64),
	}

	err := d.pool.QueryRow(ctx, `SELECT COUNT(*), COUNT(*) FILTER (WHERE degraded_count > 0) FROM iso_messages`).
		Scan(&stats.TotalMessages, &stats.DegradedMessages)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	rows, err := d.pool.Query(ctx, `SELECT mti, COUNT(*) FROM iso_messages GROUP BY mti ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var mti string
		var count int64
		if err := rows.Scan(&mti, &count); err != nil {
			rows.Close()
			return nil, err
		}
		stats.ByMTI[mti] = count
	}
	rows.Close()

	rows, err = d.pool.Query(ctx, `
		SELECT (f->>'fieldNumber')::int AS field, COUNT(*)
		FROM iso_messages, jsonb_array_elements(fields) AS f
		GROUP BY field ORDER BY COUNT(*) DESC LIMIT 20
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var field int
		var count int64
		if err := rows.Scan(&field, &count); err != nil {
			return nil, err
		}
		stats.TopFields[field] = count
	}
	return stats, rows.Err()
}
