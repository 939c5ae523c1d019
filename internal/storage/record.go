// Package storage persists decoded ISO 8583 messages.
//
// Three backends implement Store: SQLite for local files, PostgreSQL for a
// shared message archive and ClickHouse for analytics over large volumes.
package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"iso8583_parser/internal/iso8583"
)

// ErrNotFound is returned by Get when no record has the requested ID.
var ErrNotFound = errors.New("message not found")

// Record is a stored message with its decode result.
type Record struct {
	ID              int64                     `json:"id"`
	Fingerprint     string                    `json:"fingerprint"`
	Source          string                    `json:"source,omitempty"`
	Dictionary      string                    `json:"dictionary"`
	ReceivedAt      time.Time                 `json:"receivedAt"`
	Header          string                    `json:"header"`
	MTI             string                    `json:"mti"`
	PrimaryBitmap   string                    `json:"primaryBitmap"`
	SecondaryBitmap string                    `json:"secondaryBitmap,omitempty"`
	Raw             string                    `json:"raw"`
	FieldCount      int                       `json:"fieldCount"`
	DegradedCount   int                       `json:"degradedCount"`
	Message         *iso8583.ParsedIsoMessage `json:"message"`
}

// Fingerprint returns the hex BLAKE3-256 digest of a sanitised message
// together with the dictionary and the header it was decoded with. The stores
// dedupe on it, so the same text decoded under another dictionary or header
// policy is kept as a separate record.
func Fingerprint(dict, header, raw string) string {
	h := blake3.New()
	for _, part := range []string{dict, header, raw} {
		_, _ = h.Write([]byte(part))
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// NewRecord builds a Record for a decoded message.
func NewRecord(raw, source, dict string, msg *iso8583.ParsedIsoMessage) *Record {
	r := &Record{
		Source:     source,
		Dictionary: dict,
		ReceivedAt: time.Now().UTC(),
		Raw:        raw,
		Message:    msg,
	}
	if msg != nil {
		r.Header = msg.Header
		r.MTI = msg.MTI
		r.PrimaryBitmap = msg.PrimaryBitmap
		r.SecondaryBitmap = msg.SecondaryBitmap
		r.FieldCount = len(msg.Fields)
		r.DegradedCount = msg.Degraded()
	}
	r.Fingerprint = Fingerprint(dict, r.Header, raw)
	return r
}

// fieldsJSON encodes the parsed fields for storage.
func (r *Record) fieldsJSON() (string, error) {
	var fields []iso8583.ParsedField
	if r.Message != nil {
		fields = r.Message.Fields
	}
	if fields == nil {
		fields = []iso8583.ParsedField{}
	}
	b, err := json.Marshal(fields)
	if err != nil {
		return "", fmt.Errorf("marshal fields: %w", err)
	}
	return string(b), nil
}

// setFields rebuilds Message from the stored columns and fields JSON.
func (r *Record) setFields(data []byte) error {
	var fields []iso8583.ParsedField
	if len(data) > 0 {
		if err := json.Unmarshal(data, &fields); err != nil {
			return fmt.Errorf("unmarshal fields: %w", err)
		}
	}
	r.Message = &iso8583.ParsedIsoMessage{
		Header:          r.Header,
		MTI:             r.MTI,
		PrimaryBitmap:   r.PrimaryBitmap,
		SecondaryBitmap: r.SecondaryBitmap,
		Fields:          fields,
	}
	return nil
}

// QueryParams contains filtering options for querying messages.
type QueryParams struct {
	MTI      string // Exact MTI match.
	Field    int    // Only messages carrying this field number.
	Degraded bool   // Only messages with UNKNOWN or ERROR fields.
	FullText string // Search on the raw message text.
	Source   string // Exact source match.
	Limit    int    // Max results (default 100).
	Offset   int    // Pagination offset.
}

// DefaultLimit caps query results when QueryParams.Limit is unset.
const DefaultLimit = 100

func (p QueryParams) limit() int {
	if p.Limit > 0 {
		return p.Limit
	}
	return DefaultLimit
}

// Stats returns aggregate statistics about stored messages.
type Stats struct {
	TotalMessages    int64            `json:"totalMessages"`
	DegradedMessages int64            `json:"degradedMessages"`
	ByMTI            map[string]int64 `json:"byMti"`
	TopFields        map[int]int64    `json:"topFields,omitempty"`
}

// Store is implemented by every storage backend.
type Store interface {
	// Save stores a record and returns its ID. Saving a message whose
	// fingerprint is already stored returns the existing ID.
	Save(ctx context.Context, r *Record) (int64, error)
	Get(ctx context.Context, id int64) (*Record, error)
	Query(ctx context.Context, p QueryParams) ([]Record, error)
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}
