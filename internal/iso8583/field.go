package iso8583

import (
	"fmt"
	"strings"
)

// Encoding is how a field's length is determined.
type Encoding int

const (
	Fixed  Encoding = iota // Exact character count from the definition.
	LLVar                  // Two-digit decimal length prefix.
	LLLVar                 // Three-digit decimal length prefix.
)

var encodingNames = map[Encoding]string{
	Fixed:  "FIXED",
	LLVar:  "LLVAR",
	LLLVar: "LLLVAR",
}

func (e Encoding) String() string {
	if s, ok := encodingNames[e]; ok {
		return s
	}
	return fmt.Sprintf("Encoding(%d)", int(e))
}

// PrefixDigits returns the number of length-prefix digits (0 for FIXED).
func (e Encoding) PrefixDigits() int {
	switch e {
	case LLVar:
		return 2
	case LLLVar:
		return 3
	default:
		return 0
	}
}

// Valid reports whether e is one of the known encodings.
func (e Encoding) Valid() bool {
	_, ok := encodingNames[e]
	return ok
}

// ParseEncoding converts "FIXED", "LLVAR" or "LLLVAR" (any case) to an Encoding.
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "FIXED":
		return Fixed, nil
	case "LLVAR":
		return LLVar, nil
	case "LLLVAR":
		return LLLVar, nil
	}
	return 0, fmt.Errorf("unknown field encoding %q", s)
}

func (e Encoding) MarshalText() ([]byte, error) {
	if !e.Valid() {
		return nil, fmt.Errorf("invalid encoding %d", int(e))
	}
	return []byte(e.String()), nil
}

func (e *Encoding) UnmarshalText(text []byte) error {
	v, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*e = v
	return nil
}

// ContentClass is the informational character class of a field.
// The decoder never validates content against it.
type ContentClass string

const (
	ClassUnspecified  ContentClass = ""
	ClassNumeric      ContentClass = "n"
	ClassAlpha        ContentClass = "a"
	ClassAlphaNumeric ContentClass = "an"
	ClassANS          ContentClass = "ans"
	ClassBinary       ContentClass = "b"
	ClassTrack        ContentClass = "z"
)

// ParseContentClass normalises a class name such as "N" or "ans".
func ParseContentClass(s string) (ContentClass, error) {
	c := ContentClass(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case ClassUnspecified, ClassNumeric, ClassAlpha, ClassAlphaNumeric, ClassANS, ClassBinary, ClassTrack:
		return c, nil
	}
	return "", fmt.Errorf("unknown content class %q", s)
}

// FieldDefinition describes how a field is laid out in the buffer.
type FieldDefinition struct {
	Encoding Encoding
	Class    ContentClass
	// Length is the exact size for FIXED fields and the declared maximum
	// (0 when undeclared) for LLVAR/LLLVAR fields.
	Length int
}

// Type renders the definition as the ParsedField type string, e.g. "LLVAR n".
// The encoding is always the leading token.
func (d FieldDefinition) Type() string {
	if d.Class == ClassUnspecified {
		return d.Encoding.String()
	}
	return d.Encoding.String() + " " + string(d.Class)
}

// Validate checks the definition is usable by the extractor.
func (d FieldDefinition) Validate() error {
	if !d.Encoding.Valid() {
		return fmt.Errorf("invalid encoding %d", int(d.Encoding))
	}
	if d.Length < 0 {
		return fmt.Errorf("negative length %d", d.Length)
	}
	if d.Encoding == Fixed && d.Length == 0 {
		return fmt.Errorf("fixed field requires a positive length")
	}
	if limit := maxPrefixed(d.Encoding); limit > 0 && d.Length > limit {
		return fmt.Errorf("%s maximum %d exceeds prefix capacity %d", d.Encoding, d.Length, limit)
	}
	return nil
}

func maxPrefixed(e Encoding) int {
	switch e {
	case LLVar:
		return 99
	case LLLVar:
		return 999
	}
	return 0
}

// FieldDetail is a dictionary entry: an optional label and its definition.
type FieldDetail struct {
	Label      string
	Definition FieldDefinition
}

// Convenience constructors used by the built-in catalogs.

func FixedField(class ContentClass, length int, label string) FieldDetail {
	return FieldDetail{Label: label, Definition: FieldDefinition{Encoding: Fixed, Class: class, Length: length}}
}

func LLVarField(class ContentClass, maxLen int, label string) FieldDetail {
	return FieldDetail{Label: label, Definition: FieldDefinition{Encoding: LLVar, Class: class, Length: maxLen}}
}

func LLLVarField(class ContentClass, maxLen int, label string) FieldDetail {
	return FieldDetail{Label: label, Definition: FieldDefinition{Encoding: LLLVar, Class: class, Length: maxLen}}
}
