package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteDB stores messages in a local SQLite file.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens or creates a SQLite database at the given path.
func OpenSQLite(path string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite has a single writer; one connection avoids SQLITE_BUSY under
	// concurrent saves.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent access.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createSQLiteSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection.
func (d *SQLiteDB) Close() error {
	return d.db.Close()
}

func createSQLiteSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		fingerprint      TEXT NOT NULL UNIQUE,
		source           TEXT,
		dictionary       TEXT NOT NULL,
		received_at      TEXT NOT NULL,
		header           TEXT,
		mti              TEXT NOT NULL,
		primary_bitmap   TEXT NOT NULL,
		secondary_bitmap TEXT,
		raw_text         TEXT NOT NULL,
		fields_json      TEXT NOT NULL,
		field_count      INTEGER NOT NULL DEFAULT 0,
		degraded_count   INTEGER NOT NULL DEFAULT 0,
		created_at       TEXT DEFAULT (datetime('now'))
	);

	CREATE INDEX IF NOT EXISTS idx_messages_mti ON messages(mti);
	CREATE INDEX IF NOT EXISTS idx_messages_source ON messages(source);
	CREATE INDEX IF NOT EXISTS idx_messages_degraded ON messages(degraded_count);
	CREATE INDEX IF NOT EXISTS idx_messages_received ON messages(received_at);

	-- One row per decoded field, for field-level queries and stats.
	CREATE TABLE IF NOT EXISTS message_fields (
		message_id   INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
		field_number INTEGER NOT NULL,
		label        TEXT,
		type         TEXT NOT NULL,
		value        TEXT NOT NULL,
		length       INTEGER NOT NULL,
		PRIMARY KEY (message_id, field_number)
	);

	CREATE INDEX IF NOT EXISTS idx_message_fields_number ON message_fields(field_number);

	-- Substring search over the raw text. ISO messages are one long token,
	-- so the trigram tokenizer is needed for MATCH to find anything inside.
	CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(
		raw_text,
		content='messages',
		content_rowid='id',
		tokenize='trigram'
	);

	CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
		INSERT INTO messages_fts(rowid, raw_text) VALUES (new.id, new.raw_text);
	END;

	CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
		INSERT INTO messages_fts(messages_fts, rowid, raw_text) VALUES('delete', old.id, old.raw_text);
	END;
	`

	_, err := db.Exec(schema)
	return err
}

// Save stores a record and its fields. A record whose fingerprint is
// already present is not stored again; the existing ID is returned.
func (d *SQLiteDB) Save(ctx context.Context, r *Record) (int64, error) {
	fieldsJSON, err := r.fieldsJSON()
	if err != nil {
		return 0, err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM messages WHERE fingerprint = ?`, r.Fingerprint).Scan(&existing)
	switch {
	case err == nil:
		r.ID = existing
		return existing, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup fingerprint: %w", err)
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO messages (fingerprint, source, dictionary, received_at, header, mti, primary_bitmap, secondary_bitmap, raw_text, fields_json, field_count, degraded_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Fingerprint, r.Source, r.Dictionary, r.ReceivedAt.UTC().Format(time.RFC3339Nano), r.Header, r.MTI,
		r.PrimaryBitmap, r.SecondaryBitmap, r.Raw, fieldsJSON, r.FieldCount, r.DegradedCount)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}

	if r.Message != nil {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO message_fields (message_id, field_number, label, type, value, length)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return 0, fmt.Errorf("prepare fields: %w", err)
		}
		defer func() { _ = stmt.Close() }()
		for _, f := range r.Message.Fields {
			if _, err := stmt.ExecContext(ctx, id, f.FieldNumber, f.Label, f.Type, f.Value, f.Length); err != nil {
				return 0, fmt.Errorf("insert field %d: %w", f.FieldNumber, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	r.ID = id
	return id, nil
}

const sqliteColumns = `m.id, m.fingerprint, m.source, m.dictionary, m.received_at, m.header, m.mti,
	m.primary_bitmap, m.secondary_bitmap, m.raw_text, m.fields_json, m.field_count, m.degraded_count`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRecord(row rowScanner) (*Record, error) {
	var (
		r                         Record
		source, header, secondary sql.NullString
		receivedAt, fieldsJSON    string
	)
	err := row.Scan(&r.ID, &r.Fingerprint, &source, &r.Dictionary, &receivedAt, &header, &r.MTI,
		&r.PrimaryBitmap, &secondary, &r.Raw, &fieldsJSON, &r.FieldCount, &r.DegradedCount)
	if err != nil {
		return nil, err
	}
	r.Source = source.String
	r.Header = header.String
	r.SecondaryBitmap = secondary.String
	r.ReceivedAt, _ = time.Parse(time.RFC3339Nano, receivedAt)
	if err := r.setFields([]byte(fieldsJSON)); err != nil {
		return nil, err
	}
	return &r, nil
}

// Get retrieves a single message by ID.
func (d *SQLiteDB) Get(ctx context.Context, id int64) (*Record, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM messages m WHERE m.id = ?`, id)
	r, err := scanSQLiteRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get message %d: %w", id, err)
	}
	return r, nil
}

// Query retrieves messages matching the given parameters, newest first.
func (d *SQLiteDB) Query(ctx context.Context, p QueryParams) ([]Record, error) {
	var conditions []string
	var args []any

	if p.MTI != "" {
		conditions = append(conditions, "m.mti = ?")
		args = append(args, p.MTI)
	}
	if p.Source != "" {
		conditions = append(conditions, "m.source = ?")
		args = append(args, p.Source)
	}
	if p.Field > 0 {
		conditions = append(conditions, "m.id IN (SELECT message_id FROM message_fields WHERE field_number = ?)")
		args = append(args, p.Field)
	}
	if p.Degraded {
		conditions = append(conditions, "m.degraded_count > 0")
	}

	query := `SELECT ` + sqliteColumns + ` FROM messages m`
	if p.FullText != "" {
		query += ` JOIN messages_fts fts ON m.id = fts.rowid`
		conditions = append([]string{"messages_fts MATCH ?"}, conditions...)
		args = append([]any{ftsPhrase(p.FullText)}, args...)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += fmt.Sprintf(" ORDER BY m.id DESC LIMIT %d OFFSET %d", p.limit(), p.Offset)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []Record
	for rows.Next() {
		r, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// ftsPhrase quotes a search term as a single FTS5 phrase.
func ftsPhrase(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Stats returns statistics about the stored messages.
func (d *SQLiteDB) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		ByMTI:     make(map[string]int64),
		TopFields: make(map[int]int64),
	}

	row := d.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(degraded_count > 0), 0) FROM messages`)
	if err := row.Scan(&stats.TotalMessages, &stats.DegradedMessages); err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	rows, err := d.db.QueryContext(ctx, `SELECT mti, COUNT(*) FROM messages GROUP BY mti ORDER BY COUNT(*) DESC`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var mti string
		var count int64
		if err := rows.Scan(&mti, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.ByMTI[mti] = count
	}
	_ = rows.Close()

	rows, err = d.db.QueryContext(ctx, `SELECT field_number, COUNT(*) FROM message_fields GROUP BY field_number ORDER BY COUNT(*) DESC LIMIT 20`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var field int
		var count int64
		if err := rows.Scan(&field, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		stats.TopFields[field] = count
	}
	_ = rows.Close()

	return stats, nil
}
