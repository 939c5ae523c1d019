package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	Addr     string // host:port of the native protocol endpoint.
	Database string
	User     string
	Password string
}

// ClickHouseDB stores messages in ClickHouse for analytics. Each message is
// written to iso_messages and each of its fields to iso_fields.
type ClickHouseDB struct {
	conn driver.Conn

	mu     sync.Mutex
	nextID uint64
}

// Conn returns the underlying ClickHouse connection for direct queries.
func (d *ClickHouseDB) Conn() driver.Conn {
	return d.conn
}

// OpenClickHouse opens a connection to ClickHouse and creates the schema.
func OpenClickHouse(ctx context.Context, cfg ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("open clickhouse: %w", err)
	}

	// Test the connection.
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping clickhouse: %w", err)
	}

	d := &ClickHouseDB{conn: conn}
	if err := d.CreateSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	maxID, err := d.MaxID(ctx)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("read max id: %w", err)
	}
	d.nextID = maxID + 1
	return d, nil
}

// Close closes the ClickHouse connection.
func (d *ClickHouseDB) Close() error {
	return d.conn.Close()
}

// CreateSchema creates the ClickHouse tables.
func (d *ClickHouseDB) CreateSchema(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS iso_messages (
			id               UInt64,
			fingerprint      String,
			source           LowCardinality(String),
			dictionary       LowCardinality(String),
			received_at      DateTime64(3),
			header           String,
			mti              LowCardinality(String),
			primary_bitmap   String,
			secondary_bitmap String,
			raw_text         String,
			fields_json      String,
			field_count      UInt16,
			degraded_count   UInt16,
			created_at       DateTime64(3) DEFAULT now64(3)
		)
		ENGINE = ReplacingMergeTree()
		PARTITION BY toYYYYMM(received_at)
		ORDER BY (mti, fingerprint)
		SETTINGS index_granularity = 8192`,

		`CREATE TABLE IF NOT EXISTS iso_fields (
			message_id   UInt64,
			received_at  DateTime64(3),
			mti          LowCardinality(String),
			field_number UInt8,
			label        LowCardinality(String),
			type         LowCardinality(String),
			value        String,
			length       UInt16
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(received_at)
		ORDER BY (field_number, mti, received_at, message_id)`,
	}

	for _, q := range queries {
		if err := d.conn.Exec(ctx, q); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	// Add bloom filter index for full-text search (ignore error if already exists).
	_ = d.conn.Exec(ctx, `ALTER TABLE iso_messages ADD INDEX IF NOT EXISTS idx_raw_text_bloom raw_text TYPE ngrambf_v1(4, 32768, 3, 0) GRANULARITY 1`)

	return nil
}

// MaxID returns the maximum message ID in the table.
func (d *ClickHouseDB) MaxID(ctx context.Context) (uint64, error) {
	var maxID uint64
	row := d.conn.QueryRow(ctx, "SELECT max(id) FROM iso_messages")
	if err := row.Scan(&maxID); err != nil {
		return 0, err
	}
	return maxID, nil
}

func (d *ClickHouseDB) allocateID() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	return id
}

// lookup returns the ID already stored for a fingerprint, or 0.
func (d *ClickHouseDB) lookup(ctx context.Context, fingerprint string) (uint64, error) {
	var ids []struct {
		ID uint64 `ch:"id"`
	}
	if err := d.conn.Select(ctx, &ids, `SELECT id FROM iso_messages WHERE fingerprint = ? LIMIT 1`, fingerprint); err != nil {
		return 0, fmt.Errorf("lookup fingerprint: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	return ids[0].ID, nil
}

// Save stores one record. See InsertBatch for bulk loads.
func (d *ClickHouseDB) Save(ctx context.Context, r *Record) (int64, error) {
	if err := d.InsertBatch(ctx, []*Record{r}); err != nil {
		return 0, err
	}
	return r.ID, nil
}

// InsertBatch stores records with one batch per table. Records whose
// fingerprint is already stored get the existing ID and are skipped.
func (d *ClickHouseDB) InsertBatch(ctx context.Context, records []*Record) error {
	var fresh []*Record
	for _, r := range records {
		existing, err := d.lookup(ctx, r.Fingerprint)
		if err != nil {
			return err
		}
		if existing != 0 {
			r.ID = int64(existing)
			continue
		}
		r.ID = int64(d.allocateID())
		fresh = append(fresh, r)
	}
	if len(fresh) == 0 {
		return nil
	}

	batch, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO iso_messages (id, fingerprint, source, dictionary, received_at, header, mti, primary_bitmap, secondary_bitmap, raw_text, fields_json, field_count, degraded_count)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}
	for _, r := range fresh {
		fieldsJSON, err := r.fieldsJSON()
		if err != nil {
			return err
		}
		err = batch.Append(uint64(r.ID), r.Fingerprint, r.Source, r.Dictionary, r.ReceivedAt, r.Header, r.MTI,
			r.PrimaryBitmap, r.SecondaryBitmap, r.Raw, fieldsJSON, uint16(r.FieldCount), uint16(r.DegradedCount))
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	fields, err := d.conn.PrepareBatch(ctx, `
		INSERT INTO iso_fields (message_id, received_at, mti, field_number, label, type, value, length)
	`)
	if err != nil {
		return fmt.Errorf("prepare field batch: %w", err)
	}
	for _, r := range fresh {
		if r.Message == nil {
			continue
		}
		for _, f := range r.Message.Fields {
			err := fields.Append(uint64(r.ID), r.ReceivedAt, r.MTI, uint8(f.FieldNumber), f.Label, f.Type, f.Value, uint16(f.Length))
			if err != nil {
				return fmt.Errorf("append field to batch: %w", err)
			}
		}
	}
	if err := fields.Send(); err != nil {
		return fmt.Errorf("send field batch: %w", err)
	}
	return nil
}

type chRecord struct {
	ID              uint64    `ch:"id"`
	Fingerprint     string    `ch:"fingerprint"`
	Source          string    `ch:"source"`
	Dictionary      string    `ch:"dictionary"`
	ReceivedAt      time.Time `ch:"received_at"`
	Header          string    `ch:"header"`
	MTI             string    `ch:"mti"`
	PrimaryBitmap   string    `ch:"primary_bitmap"`
	SecondaryBitmap string    `ch:"secondary_bitmap"`
	Raw             string    `ch:"raw_text"`
	FieldsJSON      string    `ch:"fields_json"`
	FieldCount      uint16    `ch:"field_count"`
	DegradedCount   uint16    `ch:"degraded_count"`
}

func (c chRecord) record() (Record, error) {
	r := Record{
		ID:              int64(c.ID),
		Fingerprint:     c.Fingerprint,
		Source:          c.Source,
		Dictionary:      c.Dictionary,
		ReceivedAt:      c.ReceivedAt,
		Header:          c.Header,
		MTI:             c.MTI,
		PrimaryBitmap:   c.PrimaryBitmap,
		SecondaryBitmap: c.SecondaryBitmap,
		Raw:             c.Raw,
		FieldCount:      int(c.FieldCount),
		DegradedCount:   int(c.DegradedCount),
	}
	err := r.setFields([]byte(c.FieldsJSON))
	return r, err
}

const clickhouseColumns = `id, fingerprint, source, dictionary, received_at, header, mti,
	primary_bitmap, secondary_bitmap, raw_text, fields_json, field_count, degraded_count`

// Get retrieves a message by ID.
func (d *ClickHouseDB) Get(ctx context.Context, id int64) (*Record, error) {
	var rows []chRecord
	if err := d.conn.Select(ctx, &rows, `SELECT `+clickhouseColumns+` FROM iso_messages WHERE id = ? LIMIT 1`, uint64(id)); err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	if len(rows) == 0 {
		return nil, ErrNotFound
	}
	r, err := rows[0].record()
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Query retrieves messages matching the given parameters, newest first.
func (d *ClickHouseDB) Query(ctx context.Context, p QueryParams) ([]Record, error) {
	var conditions []string
	var args []any

	if p.MTI != "" {
		conditions = append(conditions, "mti = ?")
		args = append(args, p.MTI)
	}
	if p.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, p.Source)
	}
	if p.Field > 0 {
		conditions = append(conditions, "id IN (SELECT message_id FROM iso_fields WHERE field_number = ?)")
		args = append(args, uint8(p.Field))
	}
	if p.Degraded {
		conditions = append(conditions, "degraded_count > 0")
	}
	if p.FullText != "" {
		conditions = append(conditions, "raw_text LIKE ?")
		args = append(args, "%"+p.FullText+"%")
	}

	query := `SELECT ` + clickhouseColumns + ` FROM iso_messages FINAL`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY id DESC LIMIT %d OFFSET %d", p.limit(), p.Offset)

	var rows []chRecord
	if err := d.conn.Select(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		r, err := row.record()
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, nil
}

// Stats returns statistics about stored messages.
func (d *ClickHouseDB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByMTI:     make(map[string]int64),
		TopFields: make(map[int]int64),
	}

	var total, degraded uint64
	row := d.conn.QueryRow(ctx, "SELECT count(), countIf(degraded_count > 0) FROM iso_messages FINAL")
	if err := row.Scan(&total, &degraded); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}
	stats.TotalMessages = int64(total)
	stats.DegradedMessages = int64(degraded)

	rows, err := d.conn.Query(ctx, "SELECT mti, count() FROM iso_messages FINAL GROUP BY mti ORDER BY count() DESC")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var mti string
		var count uint64
		if err := rows.Scan(&mti, &count); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan mti stats: %w", err)
		}
		stats.ByMTI[mti] = int64(count)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate mti stats: %w", err)
	}
	rows.Close()

	rows, err = d.conn.Query(ctx, "SELECT field_number, count() FROM iso_fields GROUP BY field_number ORDER BY count() DESC LIMIT 20")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var field uint8
		var count uint64
		if err := rows.Scan(&field, &count); err != nil {
			return nil, fmt.Errorf("scan field stats: %w", err)
		}
		stats.TopFields[int(field)] = int64(count)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field stats: %w", err)
	}
	return stats, nil
}
