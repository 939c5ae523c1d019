// Package feed decodes ISO 8583 messages arriving on a NATS subject and
// publishes the results.
package feed

import (
	"bytes"
	"context"
	"log/slog"
	"time"

	"iso8583_parser/internal/decoder"
	"iso8583_parser/internal/input"
	"iso8583_parser/internal/storage"
)

// Processor turns one payload into an Envelope. It is independent of the
// transport so it can be driven directly.
type Processor struct {
	dec    *decoder.Decoder
	store  storage.Store // optional
	logger *slog.Logger
}

// NewProcessor creates a Processor. store and logger may be nil.
func NewProcessor(dec *decoder.Decoder, store storage.Store, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{dec: dec, store: store, logger: logger}
}

// Process decodes a payload. The payload is either raw message text or a
// JSON object accepted by input.DecodeEnvelope. Decode and storage failures
// are reported in Envelope.Error.
func (p *Processor) Process(ctx context.Context, payload []byte) *Envelope {
	var msg input.Message
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		m, ok := input.DecodeEnvelope(trimmed)
		if !ok {
			return p.fail("payload is JSON but carries no ISO message")
		}
		msg = m
	} else {
		msg.Raw = input.Sanitize(string(payload))
	}

	env := &Envelope{
		Fingerprint: storage.Fingerprint(p.dec.Name(), "", msg.Raw),
		Source:      msg.Source,
		Dictionary:  p.dec.Name(),
		ReceivedAt:  time.Now().UTC(),
	}

	decoded, err := p.dec.Decode(msg.Raw)
	if err != nil {
		p.logger.Warn("decode failed", "fingerprint", env.Fingerprint, "error", err)
		env.Error = err.Error()
		return env
	}
	env.Message = decoded
	env.Fingerprint = storage.Fingerprint(p.dec.Name(), decoded.Header, msg.Raw)

	if p.store != nil {
		rec := storage.NewRecord(msg.Raw, msg.Source, p.dec.Name(), decoded)
		rec.ReceivedAt = env.ReceivedAt
		id, err := p.store.Save(ctx, rec)
		if err != nil {
			p.logger.Error("store message", "fingerprint", env.Fingerprint, "error", err)
			env.Error = "store: " + err.Error()
			return env
		}
		env.ID = id
	}
	return env
}

func (p *Processor) fail(reason string) *Envelope {
	p.logger.Warn("payload rejected", "reason", reason)
	return &Envelope{
		Dictionary: p.dec.Name(),
		ReceivedAt: time.Now().UTC(),
		Error:      reason,
	}
}
