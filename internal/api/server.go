// Package api provides the REST API for decoding ISO 8583 messages and
// browsing stored ones.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"iso8583_parser/internal/decoder"
	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/input"
	"iso8583_parser/internal/iso8583"
	"iso8583_parser/internal/storage"
)

// DefaultMaxBatch caps the number of messages in one batch request.
const DefaultMaxBatch = 100

// Server serves the decoder over HTTP.
type Server struct {
	dec      *decoder.Decoder
	store    storage.Store // nil when persistence is disabled.
	addr     string
	timeout  time.Duration
	apiKeys  map[string]bool // Simple API key auth (when non-empty).
	maxBatch int
	logger   *slog.Logger
}

// Config holds configuration for the API server.
type Config struct {
	Addr     string
	Timeout  time.Duration
	APIKeys  []string // Enables authentication when non-empty.
	MaxBatch int
	Logger   *slog.Logger
}

// NewServer creates an API server. store may be nil.
func NewServer(dec *decoder.Decoder, store storage.Store, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	s := &Server{
		dec:      dec,
		store:    store,
		addr:     cfg.Addr,
		timeout:  cfg.Timeout,
		apiKeys:  keys,
		maxBatch: cfg.MaxBatch,
		logger:   cfg.Logger,
	}
	if s.addr == "" {
		s.addr = ":8080"
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.maxBatch <= 0 {
		s.maxBatch = DefaultMaxBatch
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("ISO 8583 API starting", "addr", s.addr, "auth", len(s.apiKeys) > 0, "store", s.store != nil)

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Handler returns the full handler with standard middleware and routes
// mounted under /api/iso8583.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Standard middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(s.timeout))

	// CORS for browser access.
	r.Use(corsMiddleware)

	r.Mount("/api/iso8583", s.Router())
	return r
}

// Router returns the API routes for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Health check (no auth required).
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if len(s.apiKeys) > 0 {
			r.Use(s.authMiddleware)
		}

		r.Post("/parse", s.handleParse)
		r.Post("/parse/batch", s.handleParseBatch)

		r.Get("/dictionary", s.handleDictionary)
		r.Get("/dictionary/{field}", s.handleDictionaryField)

		r.Get("/messages", s.handleListMessages)
		r.Get("/messages/stats", s.handleStats)
		r.Get("/messages/{id}", s.handleGetMessage)
	})

	return r
}

// corsMiddleware adds CORS headers for browser access.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// authMiddleware validates API key authentication.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check X-API-Key header first.
		apiKey := r.Header.Get("X-API-Key")

		// Fall back to Authorization: Bearer <key>.
		if apiKey == "" {
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				apiKey = strings.TrimPrefix(auth, "Bearer ")
			}
		}

		// Fall back to query parameter (for simple testing).
		if apiKey == "" {
			apiKey = r.URL.Query().Get("api_key")
		}

		if apiKey == "" {
			writeError(w, http.StatusUnauthorized, "API key required")
			return
		}

		if !s.apiKeys[apiKey] {
			writeError(w, http.StatusForbidden, "Invalid API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Response is the envelope of every API response.
type Response struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// Response statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response messages.
const (
	MsgParsed         = "ISO message parsed successfully"
	MsgMissingMessage = "The field 'isoMessage' is required."
	MsgNoStore        = "Message storage is not configured"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	data := map[string]any{
		"time":       time.Now().UTC().Format(time.RFC3339),
		"dictionary": s.dec.Name(),
		"store":      s.store != nil,
	}
	writeJSON(w, http.StatusOK, Response{Status: "ok", Data: data})
}

// ParseRequest is the body of POST /parse.
type ParseRequest struct {
	IsoMessage *string `json:"isoMessage"`
	Source     string  `json:"source,omitempty"`
}

// ParseResult is the data of a successful parse. ID is set when the message
// was stored.
type ParseResult struct {
	*iso8583.ParsedIsoMessage
	ID int64 `json:"id,omitempty"`
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if req.IsoMessage == nil || strings.TrimSpace(*req.IsoMessage) == "" {
		writeError(w, http.StatusBadRequest, MsgMissingMessage)
		return
	}

	raw := input.Sanitize(*req.IsoMessage)
	msg, err := s.dec.Decode(raw)
	if err != nil {
		writeError(w, decodeStatus(err), err.Error())
		return
	}

	result := ParseResult{ParsedIsoMessage: msg}
	if s.store != nil {
		id, err := s.store.Save(r.Context(), storage.NewRecord(raw, req.Source, s.dec.Name(), msg))
		if err != nil {
			s.logger.Error("store message", "error", err)
			writeError(w, http.StatusInternalServerError, unexpected(err))
			return
		}
		result.ID = id
	}

	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: result, Message: MsgParsed})
}

// decodeStatus maps a decode error to an HTTP status. Prelude and strict
// field failures describe bad input; anything else is a server fault.
func decodeStatus(err error) int {
	var fe *iso8583.FieldError
	if iso8583.IsPreludeError(err) || errors.As(err, &fe) {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func unexpected(err error) string {
	return "An unexpected error occurred: " + err.Error() + " please try again!"
}

// BatchRequest is the body of POST /parse/batch.
type BatchRequest struct {
	IsoMessages []string `json:"isoMessages"`
	Source      string   `json:"source,omitempty"`
}

// BatchItem is the outcome for one message of a batch.
type BatchItem struct {
	Index   int                       `json:"index"`
	Status  string                    `json:"status"`
	ID      int64                     `json:"id,omitempty"`
	Data    *iso8583.ParsedIsoMessage `json:"data,omitempty"`
	Message string                    `json:"message,omitempty"`
}

func (s *Server) handleParseBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if len(req.IsoMessages) == 0 {
		writeError(w, http.StatusBadRequest, "The field 'isoMessages' is required.")
		return
	}
	if len(req.IsoMessages) > s.maxBatch {
		writeError(w, http.StatusBadRequest, "Maximum "+strconv.Itoa(s.maxBatch)+" messages per batch request")
		return
	}

	raws := make([]string, len(req.IsoMessages))
	for i, m := range req.IsoMessages {
		raws[i] = input.Sanitize(m)
	}

	results := s.dec.DecodeBatch(r.Context(), raws, 0)
	items := make([]BatchItem, len(results))
	for i, res := range results {
		item := BatchItem{Index: res.Index, Status: StatusSuccess, Data: res.Message}
		switch {
		case res.Err != nil:
			item.Status = StatusError
			item.Message = res.Err.Error()
		case s.store != nil:
			id, err := s.store.Save(r.Context(), storage.NewRecord(raws[i], req.Source, s.dec.Name(), res.Message))
			if err != nil {
				s.logger.Error("store message", "index", i, "error", err)
				item.Status = StatusError
				item.Message = unexpected(err)
				break
			}
			item.ID = id
		}
		items[i] = item
	}

	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: items})
}

// DictionaryEntry describes one field definition.
type DictionaryEntry struct {
	Field    int    `json:"field"`
	Label    string `json:"label"`
	Type     string `json:"type"`
	Encoding string `json:"encoding"`
	Class    string `json:"class,omitempty"`
	Length   int    `json:"length"`
}

func entryResponse(field int, d iso8583.FieldDetail) DictionaryEntry {
	return DictionaryEntry{
		Field:    field,
		Label:    d.Label,
		Type:     d.Definition.Type(),
		Encoding: d.Definition.Encoding.String(),
		Class:    string(d.Definition.Class),
		Length:   d.Definition.Length,
	}
}

type entryLister interface {
	Entries() []dictionary.Entry
}

func (s *Server) handleDictionary(w http.ResponseWriter, r *http.Request) {
	var entries []DictionaryEntry
	if l, ok := s.dec.Dictionary().(entryLister); ok {
		for _, e := range l.Entries() {
			entries = append(entries, entryResponse(e.Field, e.Detail))
		}
	} else {
		for n := dictionary.MinField; n <= dictionary.MaxField; n++ {
			if d, ok := s.dec.Dictionary().Lookup(n); ok {
				entries = append(entries, entryResponse(n, d))
			}
		}
	}
	writeJSON(w, http.StatusOK, Response{
		Status: StatusSuccess,
		Data: map[string]any{
			"name":   s.dec.Name(),
			"fields": entries,
		},
	})
}

func (s *Server) handleDictionaryField(w http.ResponseWriter, r *http.Request) {
	n, err := strconv.Atoi(chi.URLParam(r, "field"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid field number")
		return
	}
	d, ok := s.dec.Dictionary().Lookup(n)
	if !ok {
		writeError(w, http.StatusNotFound, "Field "+strconv.Itoa(n)+" is not defined")
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: entryResponse(n, d)})
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, MsgNoStore)
		return
	}

	q := r.URL.Query()
	p := storage.QueryParams{
		MTI:      q.Get("mti"),
		Source:   q.Get("source"),
		FullText: q.Get("q"),
		Degraded: q.Get("degraded") == "true" || q.Get("degraded") == "1",
	}
	for key, dst := range map[string]*int{"field": &p.Field, "limit": &p.Limit, "offset": &p.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "Invalid "+key)
				return
			}
			*dst = n
		}
	}

	records, err := s.store.Query(r.Context(), p)
	if err != nil {
		writeError(w, http.StatusInternalServerError, unexpected(err))
		return
	}
	if records == nil {
		records = []storage.Record{}
	}
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: records})
}

func (s *Server) handleGetMessage(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, MsgNoStore)
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message id")
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Message not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, unexpected(err))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: rec})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, MsgNoStore)
		return
	}
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, unexpected(err))
		return
	}
	writeJSON(w, http.StatusOK, Response{Status: StatusSuccess, Data: stats})
}

// Helper functions.

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, Response{Status: StatusError, Message: message})
}
