package iso8583

import (
	"errors"
	"fmt"
	"testing"
)

func TestParseEncoding(t *testing.T) {
	tests := []struct {
		in      string
		want    Encoding
		wantErr bool
	}{
		{"FIXED", Fixed, false},
		{"llvar", LLVar, false},
		{" LLLVar ", LLLVar, false},
		{"LLLLVAR", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEncoding(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseEncoding(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseEncoding(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrefixDigits(t *testing.T) {
	for e, want := range map[Encoding]int{Fixed: 0, LLVar: 2, LLLVar: 3} {
		if got := e.PrefixDigits(); got != want {
			t.Errorf("%s.PrefixDigits() = %d, want %d", e, got, want)
		}
	}
}

func TestEncodingText(t *testing.T) {
	var e Encoding
	if err := e.UnmarshalText([]byte("lllvar")); err != nil || e != LLLVar {
		t.Fatalf("UnmarshalText = %v, %v", e, err)
	}
	b, err := e.MarshalText()
	if err != nil || string(b) != "LLLVAR" {
		t.Errorf("MarshalText = %q, %v", b, err)
	}
	if _, err := Encoding(7).MarshalText(); err == nil {
		t.Error("MarshalText of invalid encoding succeeded")
	}
	if s := Encoding(7).String(); s != "Encoding(7)" {
		t.Errorf("String() = %q", s)
	}
}

func TestParseContentClass(t *testing.T) {
	if c, err := ParseContentClass("ANS"); err != nil || c != ClassANS {
		t.Errorf("ParseContentClass(ANS) = %q, %v", c, err)
	}
	if c, err := ParseContentClass(""); err != nil || c != ClassUnspecified {
		t.Errorf("ParseContentClass(\"\") = %q, %v", c, err)
	}
	if _, err := ParseContentClass("x"); err == nil {
		t.Error("ParseContentClass(x) succeeded")
	}
}

func TestFieldDefinitionType(t *testing.T) {
	tests := []struct {
		def  FieldDefinition
		want string
	}{
		{FieldDefinition{Encoding: Fixed, Class: ClassNumeric, Length: 6}, "FIXED n"},
		{FieldDefinition{Encoding: LLVar, Class: ClassNumeric, Length: 19}, "LLVAR n"},
		{FieldDefinition{Encoding: LLLVar, Class: ClassANS, Length: 999}, "LLLVAR ans"},
		{FieldDefinition{Encoding: LLVar}, "LLVAR"},
	}
	for _, tt := range tests {
		if got := tt.def.Type(); got != tt.want {
			t.Errorf("Type() = %q, want %q", got, tt.want)
		}
	}
}

func TestFieldDefinitionValidate(t *testing.T) {
	tests := []struct {
		name    string
		def     FieldDefinition
		wantErr bool
	}{
		{"fixed", FieldDefinition{Encoding: Fixed, Length: 12}, false},
		{"fixed zero", FieldDefinition{Encoding: Fixed}, true},
		{"llvar undeclared max", FieldDefinition{Encoding: LLVar}, false},
		{"llvar max 99", FieldDefinition{Encoding: LLVar, Length: 99}, false},
		{"llvar max 100", FieldDefinition{Encoding: LLVar, Length: 100}, true},
		{"lllvar max 999", FieldDefinition{Encoding: LLLVar, Length: 999}, false},
		{"negative", FieldDefinition{Encoding: LLLVar, Length: -1}, true},
		{"bad encoding", FieldDefinition{Encoding: Encoding(9), Length: 1}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestPlaceholders(t *testing.T) {
	u := UnknownField(65)
	if u.Type != TypeUnknown || u.Value != "Unknown field" || u.Length != 0 || !u.IsPlaceholder() {
		t.Errorf("UnknownField(65) = %+v", u)
	}

	e := ErrorField(35, &FieldError{Field: 35, Cursor: 40, Err: ErrBufferUnderrun})
	want := "Error: field 35 at offset 40: ISO string too short to extract value"
	if e.Type != TypeError || e.Value != want || e.Length != 0 {
		t.Errorf("ErrorField = %+v, want value %q", e, want)
	}

	msg := &ParsedIsoMessage{Fields: []ParsedField{
		{FieldNumber: 2, Type: "LLVAR n", Value: "4111", Length: 4},
		u,
		e,
	}}
	if n := msg.Degraded(); n != 2 {
		t.Errorf("Degraded() = %d, want 2", n)
	}
	if f, ok := msg.Field(2); !ok || f.Value != "4111" {
		t.Errorf("Field(2) = %+v, %v", f, ok)
	}
	if _, ok := msg.Field(3); ok {
		t.Error("Field(3) found in message without it")
	}
	if h := msg.DisplayHeader(); h != NoHeader {
		t.Errorf("DisplayHeader() = %q, want %q", h, NoHeader)
	}
	if msg.HasSecondaryBitmap() {
		t.Error("HasSecondaryBitmap() = true for primary-only message")
	}
}

func TestIsPreludeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"short", fmt.Errorf("need 20 characters: %w", ErrMissingHeaderOrMTI), true},
		{"bitmap", fmt.Errorf("primary: %w", ErrInvalidBitmap), true},
		{"field", &FieldError{Field: 2, Err: ErrInvalidLengthPrefix}, false},
		{"field wrapping bitmap", &FieldError{Field: 2, Err: ErrInvalidBitmap}, false},
		{"other", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPreludeError(tt.err); got != tt.want {
				t.Errorf("IsPreludeError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	fe := &FieldError{Field: 4, Cursor: 10, Err: ErrBufferUnderrun}
	if !errors.Is(fe, ErrBufferUnderrun) {
		t.Error("FieldError does not unwrap to its cause")
	}
}
