// Package main provides the iso8583-api server.
//
// This is a standalone REST API server that decodes ISO 8583 text messages
// and, when a store is configured, keeps them for later lookup.
//
// Usage:
//
//	iso8583-api [options]
//
// Options:
//
//	--config PATH        YAML config file (env: ISO8583_CONFIG)
//	--addr ADDR          Listen address (default: :8080)
//	--dictionary NAME    Dictionary name or file (default: iso87)
//	--strict             Reject a message at its first bad field
//	--store DRIVER       Message store: none, sqlite, postgres or clickhouse
//	--api-keys KEYS      Comma-separated list of valid API keys (env: ISO8583_API_KEYS)
//
// API Endpoints:
//
//	GET /api/iso8583/health
//	    Health check endpoint.
//
//	POST /api/iso8583/parse
//	    Decode one message. Body: {"isoMessage": "..."}
//
//	POST /api/iso8583/parse/batch
//	    Decode several messages. Body: {"isoMessages": ["...", "..."]}
//
//	GET /api/iso8583/dictionary
//	GET /api/iso8583/dictionary/{field}
//	    Field definitions of the active dictionary.
//
//	GET /api/iso8583/messages?mti=0200&field=2&degraded=true&q=4111&limit=50
//	GET /api/iso8583/messages/stats
//	GET /api/iso8583/messages/{id}
//	    Stored messages (503 when no store is configured).
//
// Authentication:
//
//	When API keys are configured, requests must include one via:
//	  - X-API-Key header
//	  - Authorization: Bearer <key> header
//	  - ?api_key=<key> query parameter
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"iso8583_parser/internal/api"
	"iso8583_parser/internal/config"
	"iso8583_parser/internal/storage"
)

func main() {
	cfgPath := pflag.String("config", "", "YAML config file")
	addr := pflag.String("addr", "", "HTTP listen address")
	dict := pflag.StringP("dictionary", "d", "", "Dictionary name or file")
	strict := pflag.Bool("strict", false, "Reject a message at its first bad field")
	store := pflag.String("store", "", "Message store: none, sqlite, postgres or clickhouse")
	apiKeys := pflag.String("api-keys", "", "Comma-separated list of valid API keys")
	pflag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if pflag.CommandLine.Changed("addr") {
		cfg.API.Addr = *addr
	}
	if pflag.CommandLine.Changed("dictionary") {
		cfg.Decoder.Dictionary = *dict
	}
	if *strict {
		cfg.Decoder.FailureMode = "strict"
	}
	if pflag.CommandLine.Changed("store") {
		cfg.Storage.Driver = *store
	}
	if *apiKeys != "" {
		cfg.API.APIKeys = nil
		for _, k := range strings.Split(*apiKeys, ",") {
			if k = strings.TrimSpace(k); k != "" {
				cfg.API.APIKeys = append(cfg.API.APIKeys, k)
			}
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := cfg.Log.Logger(os.Stderr)

	dec, err := cfg.Decoder.NewDecoder(logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build decoder: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Open the message store, if any.
	st, err := storage.Open(ctx, cfg.Storage.StoreConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening store: %v\n", err)
		os.Exit(1)
	}
	if st != nil {
		defer st.Close()
	}

	server := api.NewServer(dec, st, api.Config{
		Addr:     cfg.API.Addr,
		Timeout:  cfg.API.Timeout,
		APIKeys:  cfg.API.APIKeys,
		MaxBatch: cfg.API.MaxBatch,
		Logger:   logger,
	})

	logger.Info("starting API server",
		"addr", cfg.API.Addr,
		"dictionary", dec.Name(),
		"failure_mode", dec.FailureMode().String(),
		"store", cfg.Storage.Driver,
		"auth", len(cfg.API.APIKeys) > 0,
	)

	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Server error: %v\n", err)
		os.Exit(1)
	}
}
