// Package main provides a tool to export stored ISO 8583 messages to CSV.
//
// Each decoded field becomes one row:
// id,fingerprint,source,mti,field,label,type,length,value
// so a corpus can be loaded into a spreadsheet or another database.
package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/pflag"

	"iso8583_parser/internal/config"
	"iso8583_parser/internal/storage"
)

// Header is the CSV header row.
var Header = []string{"id", "fingerprint", "source", "mti", "field", "label", "type", "length", "value"}

const pageSize = 500

func main() {
	cfgPath := pflag.String("config", "", "YAML config file (selects the store)")
	driver := pflag.String("store", "", "Message store: sqlite, postgres or clickhouse")
	output := pflag.StringP("output", "o", "", "Output CSV file (default: stdout)")
	mti := pflag.String("mti", "", "Only export messages with this MTI")
	degraded := pflag.Bool("degraded", false, "Only export messages with placeholder fields")
	noHeader := pflag.Bool("no-header", false, "Omit the header row")
	verbose := pflag.BoolP("verbose", "v", false, "Verbose output")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("store") {
		cfg.Storage.Driver = *driver
	}
	if cfg.Storage.Driver == "" || cfg.Storage.Driver == storage.DriverNone {
		fmt.Fprintf(os.Stderr, "No store configured; use --store or storage.driver\n")
		os.Exit(2)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Storage.StoreConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	// Write output.
	var writer *csv.Writer
	if *output != "" {
		file, err := os.Create(*output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = file.Close() }()
		writer = csv.NewWriter(file)
	} else {
		writer = csv.NewWriter(os.Stdout)
	}

	if !*noHeader {
		_ = writer.Write(Header)
	}

	messages, rows, err := Export(ctx, store, storage.QueryParams{MTI: *mti, Degraded: *degraded}, writer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error exporting: %v\n", err)
		os.Exit(1)
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing CSV: %v\n", err)
		os.Exit(1)
	}

	if *verbose {
		fmt.Fprintf(os.Stderr, "Exported %d messages (%d field rows)\n", messages, rows)
	}
}

// Export pages through the store and writes one row per field. It returns
// the number of messages and rows written.
func Export(ctx context.Context, store storage.Store, p storage.QueryParams, w *csv.Writer) (int, int, error) {
	p.Limit = pageSize
	messages, rows := 0, 0
	for {
		records, err := store.Query(ctx, p)
		if err != nil {
			return messages, rows, fmt.Errorf("query at offset %d: %w", p.Offset, err)
		}
		for i := range records {
			n, err := writeRecord(w, &records[i])
			if err != nil {
				return messages, rows, err
			}
			messages++
			rows += n
		}
		if len(records) < pageSize {
			return messages, rows, nil
		}
		p.Offset += len(records)
	}
}

func writeRecord(w *csv.Writer, r *storage.Record) (int, error) {
	if r.Message == nil {
		return 0, nil
	}
	id := strconv.FormatInt(r.ID, 10)
	for _, f := range r.Message.Fields {
		row := []string{
			id,
			r.Fingerprint,
			r.Source,
			r.MTI,
			strconv.Itoa(f.FieldNumber),
			f.Label,
			f.Type,
			strconv.Itoa(f.Length),
			f.Value,
		}
		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	return len(r.Message.Fields), nil
}
