package decoder

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"iso8583_parser/internal/dictionary"
	"iso8583_parser/internal/iso8583"
)

// bitmapHex builds a hex bitmap with the given data fields set, adding the
// secondary bitmap (and bit 1) when any field is above 64.
func bitmapHex(fields ...int) string {
	var primary, secondary uint64
	for _, f := range fields {
		if f <= 64 {
			primary |= 1 << (64 - f)
		} else {
			secondary |= 1 << (128 - f)
		}
	}
	if secondary != 0 {
		primary |= 1 << 63
		return fmt.Sprintf("%016X%016X", primary, secondary)
	}
	return fmt.Sprintf("%016X", primary)
}

func testDictionary(t *testing.T) *dictionary.Static {
	t.Helper()
	d, err := dictionary.New("test", map[int]iso8583.FieldDetail{
		2:  iso8583.LLVarField(iso8583.ClassNumeric, 19, "Primary Account Number (PAN)"),
		3:  iso8583.FixedField(iso8583.ClassNumeric, 6, "Processing Code"),
		4:  iso8583.FixedField(iso8583.ClassNumeric, 12, "Amount, Transaction"),
		11: iso8583.FixedField(iso8583.ClassNumeric, 6, "System Trace Audit Number (STAN)"),
		48: iso8583.LLLVarField(iso8583.ClassANS, 999, "Additional Data - Private"),
		49: iso8583.FixedField(iso8583.ClassNumeric, 3, "Currency Code, Transaction"),
		70: iso8583.FixedField(iso8583.ClassNumeric, 3, "Network Management Information Code"),
	})
	if err != nil {
		t.Fatalf("dictionary.New error: %v", err)
	}
	return d
}

func TestBitmapHexHelper(t *testing.T) {
	if got := bitmapHex(2); got != "4000000000000000" {
		t.Errorf("bitmapHex(2) = %s", got)
	}
	if got := bitmapHex(3, 70); got != "A0000000000000000400000000000000" {
		t.Errorf("bitmapHex(3, 70) = %s", got)
	}
}

func TestDecodeEndToEnd(t *testing.T) {
	dec := New(testDictionary(t))

	msg, err := dec.Decode("0200" + bitmapHex(2) + "03USD")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if msg.MTI != "0200" {
		t.Errorf("MTI = %q, want %q", msg.MTI, "0200")
	}
	if msg.Header != "" {
		t.Errorf("Header = %q, want empty", msg.Header)
	}
	if len(msg.PrimaryBitmap) != 64 || msg.PrimaryBitmap[0] != '0' {
		t.Errorf("PrimaryBitmap = %q", msg.PrimaryBitmap)
	}
	if msg.HasSecondaryBitmap() {
		t.Error("HasSecondaryBitmap() = true, want false")
	}
	if len(msg.Fields) != 1 {
		t.Fatalf("len(Fields) = %d, want 1", len(msg.Fields))
	}

	want := iso8583.ParsedField{
		FieldNumber: 2,
		Label:       "Primary Account Number (PAN)",
		Type:        "LLVAR n",
		Value:       "USD",
		Length:      3,
	}
	if msg.Fields[0] != want {
		t.Errorf("Fields[0] = %+v, want %+v", msg.Fields[0], want)
	}
}

func TestDecodeZeroLengthPrefix(t *testing.T) {
	dec := New(testDictionary(t))

	// "00" on an LLVAR field is an empty value; the rest is left unread.
	msg, tr, err := dec.DecodeWithTrace("0200" + bitmapHex(2) + "002USD")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(msg.Fields) != 1 {
		t.Fatalf("len(Fields) = %d, want 1", len(msg.Fields))
	}

	want := iso8583.ParsedField{
		FieldNumber: 2,
		Label:       "Primary Account Number (PAN)",
		Type:        "LLVAR n",
		Value:       "",
		Length:      0,
	}
	if msg.Fields[0] != want {
		t.Errorf("Fields[0] = %+v, want %+v", msg.Fields[0], want)
	}

	step := tr.Steps[0]
	if step.Start != 20 || step.Next != 22 || step.Consumed != 2 || step.Err != nil {
		t.Errorf("step = %+v, want [20, 22) with 2 consumed", step)
	}
	if tr.Trailing != 4 {
		t.Errorf("Trailing = %d, want 4", tr.Trailing)
	}
}

func TestDecodeLLLVarPrefix(t *testing.T) {
	dec := New(testDictionary(t))

	// "004" prefix on an LLLVAR field reads exactly four characters.
	msg, err := dec.Decode("0100" + bitmapHex(48, 49) + "004ABCD840")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got := msg.Fields[0].Value; got != "ABCD" {
		t.Errorf("field 48 = %q, want ABCD", got)
	}
	if got := msg.Fields[1].Value; got != "840" {
		t.Errorf("field 49 = %q, want 840", got)
	}
}

func TestDecodeSecondaryBitmap(t *testing.T) {
	dec := New(testDictionary(t))

	msg, err := dec.Decode("0800" + bitmapHex(3, 11, 70) + "990000" + "000001" + "301")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !msg.HasSecondaryBitmap() || len(msg.SecondaryBitmap) != 64 {
		t.Fatalf("SecondaryBitmap = %q", msg.SecondaryBitmap)
	}

	wantValues := map[int]string{3: "990000", 11: "000001", 70: "301"}
	if len(msg.Fields) != len(wantValues) {
		t.Fatalf("len(Fields) = %d, want %d", len(msg.Fields), len(wantValues))
	}
	prev := 0
	for _, f := range msg.Fields {
		if f.FieldNumber <= prev {
			t.Errorf("field %d after %d, want ascending order", f.FieldNumber, prev)
		}
		prev = f.FieldNumber
		if f.Value != wantValues[f.FieldNumber] {
			t.Errorf("field %d = %q, want %q", f.FieldNumber, f.Value, wantValues[f.FieldNumber])
		}
	}
}

func TestDecodeUnknownField(t *testing.T) {
	dec := New(testDictionary(t))

	// Field 5 has no definition; it must not consume the STAN that follows.
	msg, err := dec.Decode("0200" + bitmapHex(5, 11) + "123456")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(msg.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(msg.Fields))
	}

	unknown := msg.Fields[0]
	if unknown.FieldNumber != 5 || unknown.Type != iso8583.TypeUnknown || unknown.Value != "Unknown field" || unknown.Length != 0 {
		t.Errorf("Fields[0] = %+v, want UNKNOWN placeholder for field 5", unknown)
	}
	if unknown.Label != "" {
		t.Errorf("placeholder label = %q, want empty", unknown.Label)
	}
	if got := msg.Fields[1].Value; got != "123456" {
		t.Errorf("field 11 = %q, want 123456", got)
	}
	if msg.Degraded() != 1 {
		t.Errorf("Degraded() = %d, want 1", msg.Degraded())
	}
}

func TestDecodeTruncatedField(t *testing.T) {
	dec := New(testDictionary(t))

	msg, err := dec.Decode("0200" + bitmapHex(3, 4) + "000000" + "0000")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if len(msg.Fields) != 2 {
		t.Fatalf("len(Fields) = %d, want 2", len(msg.Fields))
	}

	f := msg.Fields[1]
	if f.FieldNumber != 4 || f.Type != iso8583.TypeError || f.Length != 0 {
		t.Errorf("Fields[1] = %+v, want ERROR placeholder for field 4", f)
	}
	if !strings.HasPrefix(f.Value, "Error: ") || !strings.Contains(f.Value, "field 4") {
		t.Errorf("error value = %q", f.Value)
	}
}

func TestDecodeInvalidPrefixKeepsCursor(t *testing.T) {
	dec := New(testDictionary(t))

	// The bad PAN prefix leaves the cursor in place, so field 3 is read from
	// the PAN's offset.
	msg, err := dec.Decode("0200" + bitmapHex(2, 3) + "1A2345")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}

	if msg.Fields[0].Type != iso8583.TypeError {
		t.Fatalf("Fields[0].Type = %q, want ERROR", msg.Fields[0].Type)
	}
	if !strings.Contains(msg.Fields[0].Value, "invalid length indicator: '1A'") {
		t.Errorf("Fields[0].Value = %q", msg.Fields[0].Value)
	}
	if got := msg.Fields[1].Value; got != "1A2345" {
		t.Errorf("field 3 = %q, want the misaligned %q", got, "1A2345")
	}
}

func TestDecodeStrict(t *testing.T) {
	dec := New(testDictionary(t), WithFailureMode(Strict))

	tests := []struct {
		name      string
		raw       string
		wantField int
		wantErr   error
	}{
		{"truncated", "0200" + bitmapHex(3, 4) + "000000" + "0000", 4, iso8583.ErrBufferUnderrun},
		{"bad prefix", "0200" + bitmapHex(2) + "X5", 2, iso8583.ErrInvalidLengthPrefix},
		{"unknown", "0200" + bitmapHex(3, 5) + "000000", 5, iso8583.ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := dec.Decode(tt.raw)
			if msg != nil {
				t.Errorf("Decode returned message %+v, want nil", msg)
			}
			var fe *iso8583.FieldError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v, want *FieldError", err)
			}
			if fe.Field != tt.wantField {
				t.Errorf("FieldError.Field = %d, want %d", fe.Field, tt.wantField)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if iso8583.IsPreludeError(err) {
				t.Error("IsPreludeError = true for a field error")
			}
		})
	}
}

func TestDecodeHeaderModes(t *testing.T) {
	body := "0200" + bitmapHex(3) + "000000"

	tests := []struct {
		name       string
		opts       []Option
		raw        string
		wantHeader string
		wantMTI    string
	}{
		{"marker present", nil, "ISO016000010" + body, "ISO016000010", "0200"},
		{"marker absent", nil, body, "", "0200"},
		{"custom marker", []Option{WithHeader(HeaderMarker, 6, "HDR")}, "HDR123" + body, "HDR123", "0200"},
		{"fixed", []Option{WithHeader(HeaderFixed, 0, "")}, "ABCDEFGHIJKL" + body, "ABCDEFGHIJKL", "0200"},
		{"none", []Option{WithHeader(HeaderNone, 0, "")}, body, "", "0200"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dec := New(testDictionary(t), tt.opts...)
			msg, err := dec.Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if msg.Header != tt.wantHeader {
				t.Errorf("Header = %q, want %q", msg.Header, tt.wantHeader)
			}
			if msg.MTI != tt.wantMTI {
				t.Errorf("MTI = %q, want %q", msg.MTI, tt.wantMTI)
			}
			if f, ok := msg.Field(3); !ok || f.Value != "000000" {
				t.Errorf("field 3 = %+v, want 000000", f)
			}
		})
	}
}

func TestDecodePreludeErrors(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		raw     string
		wantErr error
	}{
		{"empty", nil, "", iso8583.ErrMissingHeaderOrMTI},
		{"short bitmap", nil, "0200" + "4000", iso8583.ErrMissingHeaderOrMTI},
		{"header only", []Option{WithHeader(HeaderFixed, 12, "")}, "ISO016000010" + "0200", iso8583.ErrMissingHeaderOrMTI},
		{"bad primary", nil, "0200" + "40Z0000000000000", iso8583.ErrInvalidBitmap},
		{"missing secondary", nil, "0200" + "8000000000000000" + "0000", iso8583.ErrMissingHeaderOrMTI},
		{"bad secondary", nil, "0200" + "8000000000000000" + "000000000000000G", iso8583.ErrInvalidBitmap},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := New(testDictionary(t), tt.opts...).Decode(tt.raw)
			if msg != nil {
				t.Errorf("Decode returned message, want nil")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if !iso8583.IsPreludeError(err) {
				t.Errorf("IsPreludeError(%v) = false", err)
			}
		})
	}
}

func TestDecodeFullBitmaps(t *testing.T) {
	all := make(map[int]iso8583.FieldDetail)
	for n := 2; n <= 128; n++ {
		if n != 65 {
			all[n] = iso8583.FixedField(iso8583.ClassAlphaNumeric, 1, "")
		}
	}
	dict := dictionary.MustNew("all", all)

	t.Run("primary only", func(t *testing.T) {
		msg, err := New(dict).Decode("0200" + "7FFFFFFFFFFFFFFF" + strings.Repeat("x", 63))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if len(msg.Fields) != 63 {
			t.Fatalf("len(Fields) = %d, want 63", len(msg.Fields))
		}
		if msg.Fields[0].FieldNumber != 2 || msg.Fields[62].FieldNumber != 64 {
			t.Errorf("field range = %d-%d, want 2-64", msg.Fields[0].FieldNumber, msg.Fields[62].FieldNumber)
		}
	})

	t.Run("with secondary", func(t *testing.T) {
		msg, err := New(dict).Decode("0200" + strings.Repeat("F", 32) + strings.Repeat("y", 126))
		if err != nil {
			t.Fatalf("Decode error: %v", err)
		}
		if len(msg.PrimaryBitmap)+len(msg.SecondaryBitmap) != 128 {
			t.Errorf("combined bitmap length = %d, want 128", len(msg.PrimaryBitmap)+len(msg.SecondaryBitmap))
		}
		if len(msg.Fields) != 127 {
			t.Fatalf("len(Fields) = %d, want 127", len(msg.Fields))
		}
		if msg.Fields[0].FieldNumber != 2 || msg.Fields[126].FieldNumber != 128 {
			t.Errorf("field range = %d-%d, want 2-128", msg.Fields[0].FieldNumber, msg.Fields[126].FieldNumber)
		}
		// Bit 65 is never a dictionary entry.
		if f, _ := msg.Field(65); f.Type != iso8583.TypeUnknown {
			t.Errorf("field 65 type = %q, want UNKNOWN", f.Type)
		}
		if msg.Degraded() != 1 {
			t.Errorf("Degraded() = %d, want 1", msg.Degraded())
		}
	})
}

func TestDecodeCharacterIndexing(t *testing.T) {
	dec := New(testDictionary(t))

	msg, err := dec.Decode("0100" + bitmapHex(48, 49) + "003ÄÖÜ978")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if f := msg.Fields[0]; f.Value != "ÄÖÜ" || f.Length != 3 {
		t.Errorf("field 48 = %+v, want ÄÖÜ/3", f)
	}
	if got := msg.Fields[1].Value; got != "978" {
		t.Errorf("field 49 = %q, want 978", got)
	}
}

func TestDecodeWithTrace(t *testing.T) {
	dec := New(testDictionary(t))

	_, tr, err := dec.DecodeWithTrace("0200" + bitmapHex(3, 5, 11) + "000000" + "123456" + "XY")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if tr.DataStart != 20 {
		t.Errorf("DataStart = %d, want 20", tr.DataStart)
	}
	if len(tr.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(tr.Steps))
	}
	if s := tr.Steps[1]; s.Field != 5 || s.Consumed != 0 || !errors.Is(s.Err, iso8583.ErrUnknownField) {
		t.Errorf("Steps[1] = %+v", s)
	}
	if tr.End != 32 || tr.Trailing != 2 {
		t.Errorf("End/Trailing = %d/%d, want 32/2", tr.End, tr.Trailing)
	}
	if len(tr.Failed()) != 1 {
		t.Errorf("len(Failed()) = %d, want 1", len(tr.Failed()))
	}

	var sb strings.Builder
	tr.Write(&sb)
	if !strings.Contains(sb.String(), "2 trailing characters") {
		t.Errorf("trace output missing trailer:\n%s", sb.String())
	}
}

func TestParseModes(t *testing.T) {
	for _, s := range []string{"marker", "FIXED", "none", ""} {
		if _, err := ParseHeaderMode(s); err != nil {
			t.Errorf("ParseHeaderMode(%q) error: %v", s, err)
		}
	}
	if _, err := ParseHeaderMode("iso"); err == nil {
		t.Error("ParseHeaderMode(iso) succeeded")
	}
	if m, _ := ParseFailureMode("Strict"); m != Strict {
		t.Errorf("ParseFailureMode(Strict) = %v", m)
	}
	if _, err := ParseFailureMode("abort"); err == nil {
		t.Error("ParseFailureMode(abort) succeeded")
	}
}
