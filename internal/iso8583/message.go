// Package iso8583 provides the ISO 8583 message types shared by the decoder,
// the dictionaries and the outer layers (API, storage, feed).
package iso8583

// Placeholder field types recorded when a set bit cannot be decoded.
const (
	TypeUnknown = "UNKNOWN"
	TypeError   = "ERROR"
)

// UnknownFieldValue is the value of an UNKNOWN placeholder.
const UnknownFieldValue = "Unknown field"

// NoHeader is how presentation layers show an absent header.
const NoHeader = "No Header"

// ParsedField is a single decoded data element.
type ParsedField struct {
	FieldNumber int    `json:"fieldNumber"`
	Label       string `json:"label,omitempty"`
	Type        string `json:"type"`
	Value       string `json:"value"`
	Length      int    `json:"length"` // Actual character length of Value.
}

// IsPlaceholder reports whether the field is an UNKNOWN or ERROR entry.
func (f ParsedField) IsPlaceholder() bool {
	return f.Type == TypeUnknown || f.Type == TypeError
}

// ParsedIsoMessage is the structured result of decoding one message.
type ParsedIsoMessage struct {
	Header          string        `json:"header"`
	MTI             string        `json:"mti"`
	PrimaryBitmap   string        `json:"primaryBitmap"`
	SecondaryBitmap string        `json:"secondaryBitmap,omitempty"`
	Fields          []ParsedField `json:"fields"`
}

// HasSecondaryBitmap reports whether fields 65-128 were present.
func (m *ParsedIsoMessage) HasSecondaryBitmap() bool {
	return m.SecondaryBitmap != ""
}

// Field returns the parsed field with the given number, if present.
func (m *ParsedIsoMessage) Field(n int) (ParsedField, bool) {
	for _, f := range m.Fields {
		if f.FieldNumber == n {
			return f, true
		}
	}
	return ParsedField{}, false
}

// Degraded counts the placeholder fields in the message.
func (m *ParsedIsoMessage) Degraded() int {
	n := 0
	for _, f := range m.Fields {
		if f.IsPlaceholder() {
			n++
		}
	}
	return n
}

// DisplayHeader returns the header, or NoHeader when it is empty.
func (m *ParsedIsoMessage) DisplayHeader() string {
	if m.Header == "" {
		return NoHeader
	}
	return m.Header
}

// UnknownField builds the placeholder for a set bit with no dictionary entry.
func UnknownField(n int) ParsedField {
	return ParsedField{
		FieldNumber: n,
		Type:        TypeUnknown,
		Value:       UnknownFieldValue,
	}
}

// ErrorField builds the placeholder for a field whose extraction failed.
func ErrorField(n int, err error) ParsedField {
	return ParsedField{
		FieldNumber: n,
		Type:        TypeError,
		Value:       "Error: " + err.Error(),
	}
}
