// Command-line entry point for the ISO 8583 parser.
//
// Input formats
// -------------
// The decoder expects one raw ISO 8583 text message: an optional header, a
// 4-character MTI, a 16-hex primary bitmap (plus a secondary bitmap when bit 1
// is set) and the field data. Files fed to "decode" may hold either:
//  1. Plain text: messages separated by "?" (or --delimiter), wrapped over
//     any number of lines.
//  2. JSONL: one object per line, {"isoMessage": "..."} or a nested wrapper.
//
// The shape is autodetected. Use --strict to stop a message at its first bad
// field instead of recording an error placeholder and carrying on.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/klauspost/compress/zstd"
	"github.com/spf13/pflag"

	"iso8583_parser/internal/config"
	"iso8583_parser/internal/decoder"
	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/feed"
	"iso8583_parser/internal/input"
	"iso8583_parser/internal/iso8583"
	"iso8583_parser/internal/registry"
	"iso8583_parser/internal/report"
	"iso8583_parser/internal/storage"
)

type Stats struct {
	Messages int
	Decoded  int
	Failed   int
	Degraded int
	Stored   int
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "iso8583_parser - commands:")
	fmt.Fprintln(w, "  decode      - decode ISO 8583 messages from a file or stdin")
	fmt.Fprintln(w, "  listen      - decode messages arriving on a NATS subject")
	fmt.Fprintln(w, "  dictionary  - list or export a field dictionary")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  iso8583_parser decode [--input messages.txt] [--output out.json[.zst]] [--format json|text|table] [--pretty] [--strict] [--store] [--stats]")
	fmt.Fprintln(w, "  iso8583_parser listen [--config iso8583.yaml] [--subject iso8583.raw] [--store]")
	fmt.Fprintln(w, "  iso8583_parser dictionary [--dictionary iso93] [--list] [--export fields.yaml]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - Every command accepts --config; ISO8583_CONFIG names a default config file.")
	fmt.Fprintln(w, "  - --dictionary takes a registered name or a path to a .json, .jsonc or .yaml file.")
	fmt.Fprintln(w, "")
}

func main() {
	if len(os.Args) < 2 {
		usage(os.Stderr)
		os.Exit(2)
	}
	cmd := strings.ToLower(os.Args[1])
	switch cmd {
	case "decode":
		runDecode(os.Args[2:])
	case "listen":
		runListen(os.Args[2:])
	case "dictionary", "dict":
		runDictionary(os.Args[2:])
	case "-h", "--help", "help":
		usage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage(os.Stderr)
		os.Exit(2)
	}
}

// parseFlags parses args and exits on error or --help.
func parseFlags(fs *pflag.FlagSet, args []string) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "%s: %v\n", fs.Name(), err)
		os.Exit(2)
	}
}

// loadConfig reads the config file, applies overrides and validates.
func loadConfig(path string, override func(*config.Config)) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if override != nil {
		override(cfg)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func runDecode(args []string) {
	fs := pflag.NewFlagSet("decode", pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	inPath := fs.StringP("input", "i", "", "Input file (default: stdin)")
	outPath := fs.StringP("output", "o", "", "Output file, zstd-compressed when it ends in .zst (default: stdout)")
	format := fs.StringP("format", "f", "json", "Output format: json, text or table")
	pretty := fs.Bool("pretty", false, "Pretty-print JSON output")
	delim := fs.String("delimiter", "", "Message delimiter for plain-text input")
	headerMode := fs.String("header-mode", "", "Header handling: marker, fixed or none")
	headerLen := fs.Int("header-length", 0, "Header width for the marker and fixed modes")
	strict := fs.Bool("strict", false, "Stop a message at its first bad field")
	dict := fs.StringP("dictionary", "d", "", "Dictionary name or file")
	workers := fs.IntP("workers", "w", 0, "Concurrent decoders")
	store := fs.Bool("store", false, "Save decoded messages to the configured store")
	showStats := fs.Bool("stats", false, "Print basic counters to stderr")
	trace := fs.Bool("trace", false, "Print a per-field cursor trace to stderr")
	parseFlags(fs, args)

	outFormat, err := report.ParseFormat(*format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	cfg := loadConfig(*cfgPath, func(c *config.Config) {
		if fs.Changed("delimiter") {
			c.Decoder.Delimiter = *delim
		}
		if fs.Changed("header-mode") {
			c.Decoder.HeaderMode = *headerMode
		}
		if fs.Changed("header-length") {
			c.Decoder.HeaderLength = *headerLen
		}
		if *strict {
			c.Decoder.FailureMode = "strict"
		}
		if fs.Changed("dictionary") {
			c.Decoder.Dictionary = *dict
		}
		if fs.Changed("workers") {
			c.Decoder.Workers = *workers
		}
	})
	logger := cfg.Log.Logger(os.Stderr)

	dec, err := cfg.Decoder.NewDecoder(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build decoder: %v\n", err)
		os.Exit(1)
	}

	var r io.Reader = os.Stdin
	if *inPath != "" {
		f, err := os.Open(*inPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		r = f
	}

	msgs, inStats, err := input.ReadAll(r, cfg.Decoder.Delimiter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Input read error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	items := decodeAll(ctx, dec, msgs, cfg.Decoder.Workers, *trace)
	st := &Stats{Messages: len(items)}
	for _, it := range items {
		if it.Message == nil {
			st.Failed++
			continue
		}
		st.Decoded++
		if it.Message.Degraded() > 0 {
			st.Degraded++
		}
	}

	if *store {
		cfg.Storage.Driver = storeDriver(cfg.Storage.Driver)
		n, err := saveAll(ctx, cfg.Storage.StoreConfig(), dec.Name(), msgs, items)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Store error: %v\n", err)
			os.Exit(1)
		}
		st.Stored = n
	}

	if err := writeOutput(*outPath, items, outFormat, *pretty); err != nil {
		fmt.Fprintf(os.Stderr, "Output error: %v\n", err)
		os.Exit(1)
	}

	if *showStats {
		fmt.Fprintf(os.Stderr,
			"stats: lines=%d input(plain=%d jsonl=%d) skipped=%d messages=%d decoded=%d failed=%d degraded=%d stored=%d\n",
			inStats.Lines, inStats.PlainChunks, inStats.JSONLines, inStats.Skipped,
			st.Messages, st.Decoded, st.Failed, st.Degraded, st.Stored,
		)
	}
}

// decodeAll decodes every message, in parallel unless a trace is requested.
func decodeAll(ctx context.Context, dec *decoder.Decoder, msgs []input.Message, workers int, trace bool) []report.Item {
	items := make([]report.Item, len(msgs))
	for i, m := range msgs {
		items[i] = report.Item{Index: i, Source: m.Source}
	}

	if trace {
		for i, m := range msgs {
			msg, tr, err := dec.DecodeWithTrace(m.Raw)
			fmt.Fprintf(os.Stderr, "%s\n", report.Banner(i+1))
			if tr != nil {
				tr.Write(os.Stderr)
			}
			setResult(&items[i], msg, err)
		}
		return items
	}

	raws := make([]string, len(msgs))
	for i, m := range msgs {
		raws[i] = m.Raw
	}
	for _, res := range dec.DecodeBatch(ctx, raws, workers) {
		setResult(&items[res.Index], res.Message, res.Err)
	}
	return items
}

func setResult(it *report.Item, msg *iso8583.ParsedIsoMessage, err error) {
	if err != nil {
		it.Error = err.Error()
		return
	}
	it.Message = msg
}

// storeDriver falls back to SQLite when --store is given without a driver.
func storeDriver(d string) string {
	if d == "" || d == storage.DriverNone {
		return storage.DriverSQLite
	}
	return d
}

// batchInserter is implemented by stores that write many records at once.
type batchInserter interface {
	InsertBatch(ctx context.Context, records []*storage.Record) error
}

func saveAll(ctx context.Context, cfg storage.Config, dict string, msgs []input.Message, items []report.Item) (int, error) {
	store, err := storage.Open(ctx, cfg)
	if err != nil {
		return 0, err
	}
	defer store.Close()

	records := make([]*storage.Record, 0, len(items))
	for i, it := range items {
		if it.Message == nil {
			continue
		}
		records = append(records, storage.NewRecord(msgs[i].Raw, it.Source, dict, it.Message))
	}

	if b, ok := store.(batchInserter); ok {
		if err := b.InsertBatch(ctx, records); err != nil {
			return 0, err
		}
		return len(records), nil
	}
	for _, rec := range records {
		if _, err := store.Save(ctx, rec); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func writeOutput(path string, items []report.Item, format report.Format, pretty bool) error {
	if path == "" {
		return report.WriteItems(os.Stdout, items, format, pretty)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if !strings.HasSuffix(path, ".zst") {
		if err := report.WriteItems(f, items, format, pretty); err != nil {
			return err
		}
		return f.Close()
	}

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return err
	}
	if err := report.WriteItems(zw, items, format, pretty); err != nil {
		zw.Close()
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

func runListen(args []string) {
	fs := pflag.NewFlagSet("listen", pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	url := fs.String("url", "", "NATS server URL")
	subject := fs.StringP("subject", "s", "", "Subject carrying raw messages")
	queue := fs.StringP("queue", "q", "", "Queue group")
	publish := fs.String("publish", "", "Subject for decoded envelopes (empty disables publishing)")
	encoding := fs.String("encoding", "", "Envelope encoding: json or cbor")
	dict := fs.StringP("dictionary", "d", "", "Dictionary name or file")
	store := fs.Bool("store", false, "Save decoded messages to the configured store")
	parseFlags(fs, args)

	cfg := loadConfig(*cfgPath, func(c *config.Config) {
		if fs.Changed("url") {
			c.NATS.URL = *url
		}
		if fs.Changed("subject") {
			c.NATS.Subject = *subject
		}
		if fs.Changed("queue") {
			c.NATS.Queue = *queue
		}
		if fs.Changed("publish") {
			c.NATS.PublishSubject = *publish
		}
		if fs.Changed("encoding") {
			c.NATS.Encoding = *encoding
		}
		if fs.Changed("dictionary") {
			c.Decoder.Dictionary = *dict
		}
		if *store {
			c.Storage.Driver = storeDriver(c.Storage.Driver)
		}
	})
	logger := cfg.Log.Logger(os.Stderr)

	dec, err := cfg.Decoder.NewDecoder(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build decoder: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := storage.Open(ctx, cfg.Storage.StoreConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open store: %v\n", err)
		os.Exit(1)
	}
	if st != nil {
		defer st.Close()
	}

	codec, err := feed.NewCodec(cfg.NATS.Encoding)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	sub, err := feed.NewSubscriber(feed.Config{
		URL:            cfg.NATS.URL,
		Subject:        cfg.NATS.Subject,
		Queue:          cfg.NATS.Queue,
		PublishSubject: cfg.NATS.PublishSubject,
		Codec:          codec,
	}, feed.NewProcessor(dec, st, logger), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if err := sub.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Listener error: %v\n", err)
		os.Exit(1)
	}

	c := sub.Stats()
	logger.Info("listener stopped",
		"received", c.Received.Load(),
		"decoded", c.Decoded.Load(),
		"failed", c.Failed.Load(),
		"published", c.Published.Load(),
	)
}

func runDictionary(args []string) {
	fs := pflag.NewFlagSet("dictionary", pflag.ContinueOnError)
	cfgPath := fs.String("config", "", "YAML config file")
	dict := fs.StringP("dictionary", "d", "", "Dictionary name or file")
	list := fs.BoolP("list", "l", false, "List registered dictionaries")
	export := fs.StringP("export", "e", "", "Write the dictionary to a .json, .jsonc or .yaml file")
	parseFlags(fs, args)

	if *list {
		reg := registry.Default()
		for _, name := range reg.Names() {
			e, _ := reg.Get(name)
			fmt.Printf("%-8s %3d fields  %s\n", name, e.Dictionary.Len(), e.Description)
		}
		return
	}

	cfg := loadConfig(*cfgPath, func(c *config.Config) {
		if fs.Changed("dictionary") {
			c.Decoder.Dictionary = *dict
		}
	})

	d, err := registry.Default().Resolve(cfg.Decoder.Dictionary)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	if *export == "" {
		fmt.Print(report.DictionaryTable(d.Name(), d.Entries()))
		return
	}

	format, err := dictionary.FormatFromPath(*export)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}
	data, err := d.ToFile().Encode(format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Encode error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*export, data, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", filepath.Base(*export), err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wrote %d fields to %s\n", d.Len(), *export)
}
