// Package extractor reads ISO 8583 data elements from a character buffer.
// Every function takes the buffer and a cursor and returns the value and the
// advanced cursor, so no cursor state is shared between calls.
package extractor

import (
	"fmt"

	"iso8583_parser/internal/iso8583"
)

// ExtractFixed returns buf[cursor:cursor+length] and the advanced cursor.
func ExtractFixed(buf []rune, cursor, length int) (string, int, error) {
	if cursor < 0 || length < 0 {
		return "", cursor, fmt.Errorf("%w: invalid cursor %d or length %d", iso8583.ErrBufferUnderrun, cursor, length)
	}
	end := cursor + length
	if end > len(buf) {
		return "", cursor, fmt.Errorf("%w: need %d characters at offset %d, %d remain",
			iso8583.ErrBufferUnderrun, length, cursor, remaining(buf, cursor))
	}
	return string(buf[cursor:end]), end, nil
}

// ExtractVariable reads a prefixDigits-wide decimal length and then that many
// characters. prefixDigits is 2 for LLVAR and 3 for LLLVAR.
func ExtractVariable(buf []rune, cursor, prefixDigits int) (string, int, error) {
	if prefixDigits <= 0 {
		return "", cursor, fmt.Errorf("invalid length prefix width %d", prefixDigits)
	}
	prefix, start, err := ExtractFixed(buf, cursor, prefixDigits)
	if err != nil {
		return "", cursor, fmt.Errorf("%w: length indicator needs %d characters at offset %d, %d remain",
			iso8583.ErrBufferUnderrun, prefixDigits, cursor, remaining(buf, cursor))
	}

	n := 0
	for _, r := range prefix {
		if r < '0' || r > '9' {
			return "", cursor, fmt.Errorf("%w: '%s'", iso8583.ErrInvalidLengthPrefix, prefix)
		}
		n = n*10 + int(r-'0')
	}

	if start+n > len(buf) {
		return "", cursor, fmt.Errorf("%w: length indicator %s at offset %d, %d remain",
			iso8583.ErrBufferUnderrun, prefix, cursor, remaining(buf, start))
	}
	return string(buf[start : start+n]), start + n, nil
}

// Extract reads one field according to its definition.
func Extract(buf []rune, cursor int, def iso8583.FieldDefinition) (string, int, error) {
	switch def.Encoding {
	case iso8583.Fixed:
		return ExtractFixed(buf, cursor, def.Length)
	case iso8583.LLVar, iso8583.LLLVar:
		return ExtractVariable(buf, cursor, def.Encoding.PrefixDigits())
	default:
		return "", cursor, fmt.Errorf("unsupported encoding %s", def.Encoding)
	}
}

func remaining(buf []rune, cursor int) int {
	if cursor >= len(buf) {
		return 0
	}
	return len(buf) - cursor
}
