package extractor

import (
	"errors"
	"testing"

	"iso8583_parser/internal/iso8583"
)

func TestExtractFixed(t *testing.T) {
	buf := []rune("000000001500USD")

	value, next, err := ExtractFixed(buf, 0, 12)
	if err != nil {
		t.Fatalf("ExtractFixed error: %v", err)
	}
	if value != "000000001500" || next != 12 {
		t.Errorf("ExtractFixed = (%q, %d), want (%q, %d)", value, next, "000000001500", 12)
	}

	// Re-extracting at the returned cursor never re-reads consumed characters.
	value, next, err = ExtractFixed(buf, next, 3)
	if err != nil {
		t.Fatalf("ExtractFixed error: %v", err)
	}
	if value != "USD" || next != 15 {
		t.Errorf("ExtractFixed = (%q, %d), want (%q, %d)", value, next, "USD", 15)
	}
}

func TestExtractFixedUnderrun(t *testing.T) {
	buf := []rune("12345")
	value, next, err := ExtractFixed(buf, 3, 6)
	if !errors.Is(err, iso8583.ErrBufferUnderrun) {
		t.Fatalf("error = %v, want ErrBufferUnderrun", err)
	}
	if value != "" || next != 3 {
		t.Errorf("ExtractFixed = (%q, %d), want (\"\", 3)", value, next)
	}
}

func TestExtractFixedCharacters(t *testing.T) {
	// Multi-byte characters count as one position each.
	buf := []rune("ÄÖÜ123")
	value, next, err := ExtractFixed(buf, 0, 3)
	if err != nil {
		t.Fatalf("ExtractFixed error: %v", err)
	}
	if value != "ÄÖÜ" || next != 3 {
		t.Errorf("ExtractFixed = (%q, %d), want (%q, 3)", value, next, "ÄÖÜ")
	}
}

func TestExtractVariable(t *testing.T) {
	tests := []struct {
		name      string
		buf       string
		cursor    int
		digits    int
		wantValue string
		wantNext  int
	}{
		{"lllvar", "004ABCD", 0, 3, "ABCD", 7},
		{"llvar", "03USDrest", 0, 2, "USD", 5},
		{"offset", "xx02OK", 2, 2, "OK", 6},
		{"zero length", "00next", 0, 2, "", 2},
		{"lllvar zero", "000", 0, 3, "", 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, next, err := ExtractVariable([]rune(tt.buf), tt.cursor, tt.digits)
			if err != nil {
				t.Fatalf("ExtractVariable error: %v", err)
			}
			if value != tt.wantValue {
				t.Errorf("value = %q, want %q", value, tt.wantValue)
			}
			if next != tt.wantNext {
				t.Errorf("next = %d, want %d", next, tt.wantNext)
			}
		})
	}
}

func TestExtractVariableErrors(t *testing.T) {
	tests := []struct {
		name   string
		buf    string
		digits int
		want   error
	}{
		{"non-digit prefix", "1AXXXXXXXXXXX", 2, iso8583.ErrInvalidLengthPrefix},
		{"space in prefix", " 5ABCDE", 2, iso8583.ErrInvalidLengthPrefix},
		{"sign in prefix", "-05ABCDE", 3, iso8583.ErrInvalidLengthPrefix},
		{"short prefix", "0", 2, iso8583.ErrBufferUnderrun},
		{"short body", "010ABC", 3, iso8583.ErrBufferUnderrun},
		{"empty buffer", "", 3, iso8583.ErrBufferUnderrun},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, next, err := ExtractVariable([]rune(tt.buf), 0, tt.digits)
			if !errors.Is(err, tt.want) {
				t.Fatalf("error = %v, want %v", err, tt.want)
			}
			if value != "" || next != 0 {
				t.Errorf("ExtractVariable = (%q, %d), want (\"\", 0)", value, next)
			}
		})
	}
}

func TestExtractDispatch(t *testing.T) {
	buf := []rune("0200" + "16" + "4111111111111111")

	mti, next, err := Extract(buf, 0, iso8583.FieldDefinition{Encoding: iso8583.Fixed, Length: 4})
	if err != nil || mti != "0200" {
		t.Fatalf("Extract fixed = (%q, %v), want (\"0200\", nil)", mti, err)
	}

	pan, next, err := Extract(buf, next, iso8583.FieldDefinition{Encoding: iso8583.LLVar, Class: iso8583.ClassNumeric, Length: 19})
	if err != nil {
		t.Fatalf("Extract llvar error: %v", err)
	}
	if pan != "4111111111111111" || next != len(buf) {
		t.Errorf("Extract llvar = (%q, %d), want (%q, %d)", pan, next, "4111111111111111", len(buf))
	}

	if _, _, err := Extract(buf, 0, iso8583.FieldDefinition{Encoding: iso8583.Encoding(9)}); err == nil {
		t.Error("Extract with unknown encoding succeeded, want error")
	}
}
