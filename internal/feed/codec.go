package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"iso8583_parser/internal/iso8583"
)

// Envelope is published for every message the feed decodes.
type Envelope struct {
	Fingerprint string                    `json:"fingerprint" cbor:"fingerprint"`
	Source      string                    `json:"source,omitempty" cbor:"source,omitempty"`
	ID          int64                     `json:"id,omitempty" cbor:"id,omitempty"` // Stored record ID.
	Dictionary  string                    `json:"dictionary" cbor:"dictionary"`
	ReceivedAt  time.Time                 `json:"receivedAt" cbor:"receivedAt"`
	Message     *iso8583.ParsedIsoMessage `json:"message,omitempty" cbor:"message,omitempty"`
	Error       string                    `json:"error,omitempty" cbor:"error,omitempty"`
}

// Codec encodes envelopes for publishing.
type Codec interface {
	Name() string
	ContentType() string
	Marshal(e *Envelope) ([]byte, error)
	Unmarshal(data []byte, e *Envelope) error
}

// NewCodec returns the codec called name: "json" (the default) or "cbor".
func NewCodec(name string) (Codec, error) {
	switch name {
	case "", "json":
		return jsonCodec{}, nil
	case "cbor":
		return cborCodec{}, nil
	}
	return nil, fmt.Errorf("unknown envelope encoding %q (want json or cbor)", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string        { return "json" }
func (jsonCodec) ContentType() string { return "application/json" }

func (jsonCodec) Marshal(e *Envelope) ([]byte, error) {
	return json.Marshal(e)
}

func (jsonCodec) Unmarshal(data []byte, e *Envelope) error {
	return json.Unmarshal(data, e)
}

// cborEncMode uses Core Deterministic Encoding (RFC 8949 §4.2), so the same
// envelope always produces identical bytes. Times keep nanoseconds.
var (
	cborEncMode cbor.EncMode
	cborDecMode cbor.DecMode
)

func init() {
	var err error

	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	cborEncMode, err = encOptions.EncMode()
	if err != nil {
		panic("feed: CBOR encoder initialization failed: " + err.Error())
	}

	cborDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("feed: CBOR decoder initialization failed: " + err.Error())
	}
}

type cborCodec struct{}

func (cborCodec) Name() string        { return "cbor" }
func (cborCodec) ContentType() string { return "application/cbor" }

func (cborCodec) Marshal(e *Envelope) ([]byte, error) {
	return cborEncMode.Marshal(e)
}

func (cborCodec) Unmarshal(data []byte, e *Envelope) error {
	return cborDecMode.Unmarshal(data, e)
}
