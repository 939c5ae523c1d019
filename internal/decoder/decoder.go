// Package decoder turns an ISO 8583 text message into a ParsedIsoMessage:
// header, MTI, primary and optional secondary bitmap, then one data field per
// set bit, looked up in a field dictionary.
//
// Fields are laid out back to back, so a field that fails to decode leaves
// the cursor where it was and every following field in the same message is
// read from the wrong offset. Lenient mode reports those fields as they come
// out; callers that need guaranteed alignment should use Strict.
package decoder

import (
	"fmt"
	"log/slog"
	"strings"

	"iso8583_parser/internal/bitmap"
	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/extractor"
	"iso8583_parser/internal/iso8583"
)

// MTILength is the size of the message type indicator.
const MTILength = 4

// Decoder decodes messages against one dictionary. It holds no per-call
// state and is safe for concurrent use.
type Decoder struct {
	dict         dictionary.Dictionary
	name         string
	headerMode   HeaderMode
	headerLength int
	headerMarker string
	failureMode  FailureMode
	logger       *slog.Logger
}

// New creates a Decoder. The defaults are marker header detection ("ISO",
// 12 characters) and lenient failure handling.
func New(dict dictionary.Dictionary, opts ...Option) *Decoder {
	d := &Decoder{
		dict:         dict,
		headerMode:   HeaderMarker,
		headerLength: DefaultHeaderLength,
		headerMarker: DefaultHeaderMarker,
		failureMode:  Lenient,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// FailureMode returns the configured failure mode.
func (d *Decoder) FailureMode() FailureMode {
	return d.failureMode
}

// Dictionary returns the dictionary the decoder consults.
func (d *Decoder) Dictionary() dictionary.Dictionary {
	return d.dict
}

// Name returns the dictionary name set with WithName.
func (d *Decoder) Name() string {
	return d.name
}

// Decode decodes one sanitised message. Prelude problems (too short, bad
// bitmap) always fail the call; field problems fail it only in Strict mode.
func (d *Decoder) Decode(raw string) (*iso8583.ParsedIsoMessage, error) {
	return d.decode(raw, nil)
}

// DecodeWithTrace decodes like Decode and also returns the cursor trace.
func (d *Decoder) DecodeWithTrace(raw string) (*iso8583.ParsedIsoMessage, *Trace, error) {
	tr := &Trace{}
	msg, err := d.decode(raw, tr)
	return msg, tr, err
}

func (d *Decoder) decode(raw string, tr *Trace) (*iso8583.ParsedIsoMessage, error) {
	buf := []rune(raw)

	// Stage 1: header.
	header, cursor := d.header(raw, buf)
	prelude := cursor + MTILength + bitmap.HexLength
	if len(buf) < prelude {
		return nil, fmt.Errorf("%w: need %d characters, got %d", iso8583.ErrMissingHeaderOrMTI, prelude, len(buf))
	}

	// Stage 2: MTI.
	mti, cursor, _ := extractor.ExtractFixed(buf, cursor, MTILength)

	// Stage 3: primary bitmap.
	primaryHex, cursor, _ := extractor.ExtractFixed(buf, cursor, bitmap.HexLength)
	bm, err := bitmap.DecodePrimary(primaryHex)
	if err != nil {
		return nil, fmt.Errorf("primary bitmap: %w", err)
	}

	// Stage 4: secondary bitmap when bit 1 is set.
	if bm.HasSecondary() {
		secondaryHex, next, err := extractor.ExtractFixed(buf, cursor, bitmap.HexLength)
		if err != nil {
			return nil, fmt.Errorf("%w: secondary bitmap indicated but only %d characters remain",
				iso8583.ErrMissingHeaderOrMTI, len(buf)-cursor)
		}
		if err := bm.SetSecondary(secondaryHex); err != nil {
			return nil, fmt.Errorf("secondary bitmap: %w", err)
		}
		cursor = next
	}

	msg := &iso8583.ParsedIsoMessage{
		Header:          header,
		MTI:             mti,
		PrimaryBitmap:   bm.Primary,
		SecondaryBitmap: bm.Secondary,
	}
	if tr != nil {
		tr.DataStart = cursor
	}

	// Stage 5: field scan.
	fields := bm.Fields()
	msg.Fields = make([]iso8583.ParsedField, 0, len(fields))
	for _, n := range fields {
		field, next, err := d.field(buf, cursor, n)
		if tr != nil {
			tr.add(n, cursor, next, field, err)
		}
		if err != nil {
			if d.failureMode == Strict {
				return nil, &iso8583.FieldError{Field: n, Cursor: cursor, Err: err}
			}
			d.logger.Debug("degraded field",
				"dictionary", d.name, "mti", mti, "field", n, "offset", cursor, "error", err)
		}
		msg.Fields = append(msg.Fields, field)
		cursor = next
	}

	if tr != nil {
		tr.End = cursor
		tr.Trailing = len(buf) - cursor
	}
	return msg, nil
}

// header applies the header policy and returns the header and the MTI offset.
func (d *Decoder) header(raw string, buf []rune) (string, int) {
	switch d.headerMode {
	case HeaderNone:
		return "", 0
	case HeaderFixed:
		n := min(d.headerLength, len(buf))
		return string(buf[:n]), d.headerLength
	default:
		if !strings.HasPrefix(raw, d.headerMarker) {
			return "", 0
		}
		n := min(d.headerLength, len(buf))
		return string(buf[:n]), d.headerLength
	}
}

// field decodes data element n at cursor. On failure it returns the
// placeholder, the unchanged cursor and the cause.
func (d *Decoder) field(buf []rune, cursor, n int) (iso8583.ParsedField, int, error) {
	detail, ok := d.dict.Lookup(n)
	if !ok {
		return iso8583.UnknownField(n), cursor, iso8583.ErrUnknownField
	}

	value, next, err := extractor.Extract(buf, cursor, detail.Definition)
	if err != nil {
		return iso8583.ErrorField(n, fmt.Errorf("field %d: %w", n, err)), cursor, err
	}

	return iso8583.ParsedField{
		FieldNumber: n,
		Label:       detail.Label,
		Type:        detail.Definition.Type(),
		Value:       value,
		Length:      len([]rune(value)),
	}, next, nil
}
