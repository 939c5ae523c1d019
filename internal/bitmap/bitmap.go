// Package bitmap decodes hexadecimal ISO 8583 presence bitmaps.
package bitmap

import (
	"fmt"
	"strings"

	"iso8583_parser/internal/iso8583"
)

// HexLength is the number of hex characters in one 64-bit bitmap.
const HexLength = 16

// Bits is the number of bits in one bitmap.
const Bits = 64

var nibbles = [16]string{
	"0000", "0001", "0010", "0011", "0100", "0101", "0110", "0111",
	"1000", "1001", "1010", "1011", "1100", "1101", "1110", "1111",
}

// HexToBinary converts each hex digit (either case) to its 4-bit binary
// form and concatenates them in order.
func HexToBinary(hex string) (string, error) {
	var b strings.Builder
	b.Grow(len(hex) * 4)
	for i, r := range hex {
		v, ok := hexValue(r)
		if !ok {
			return "", fmt.Errorf("%w: non-hex character %q at position %d in %q", iso8583.ErrInvalidBitmap, r, i, hex)
		}
		b.WriteString(nibbles[v])
	}
	return b.String(), nil
}

func hexValue(r rune) (int, bool) {
	switch {
	case r >= '0' && r <= '9':
		return int(r - '0'), true
	case r >= 'a' && r <= 'f':
		return int(r-'a') + 10, true
	case r >= 'A' && r <= 'F':
		return int(r-'A') + 10, true
	}
	return 0, false
}

// Bitmap is the decoded primary bitmap and, when bit 1 is set, the
// secondary bitmap.
type Bitmap struct {
	Primary   string // 64-character bit string.
	Secondary string // 64-character bit string, empty when absent.
}

// DecodePrimary decodes a 16-character primary bitmap.
func DecodePrimary(hex string) (Bitmap, error) {
	if len(hex) != HexLength {
		return Bitmap{}, fmt.Errorf("%w: primary bitmap must be %d hex characters, got %d", iso8583.ErrInvalidBitmap, HexLength, len(hex))
	}
	bits, err := HexToBinary(hex)
	if err != nil {
		return Bitmap{}, err
	}
	return Bitmap{Primary: bits}, nil
}

// Decode decodes a primary bitmap and, when secondaryHex is not empty, the
// secondary bitmap. A secondary bitmap is rejected unless bit 1 announces it.
func Decode(primaryHex, secondaryHex string) (Bitmap, error) {
	bm, err := DecodePrimary(primaryHex)
	if err != nil {
		return Bitmap{}, err
	}
	if secondaryHex == "" {
		return bm, nil
	}
	if !bm.HasSecondary() {
		return Bitmap{}, fmt.Errorf("%w: secondary bitmap supplied but bit 1 is not set", iso8583.ErrInvalidBitmap)
	}
	if err := bm.SetSecondary(secondaryHex); err != nil {
		return Bitmap{}, err
	}
	return bm, nil
}

// SetSecondary decodes and attaches the secondary bitmap.
func (b *Bitmap) SetSecondary(hex string) error {
	if len(hex) != HexLength {
		return fmt.Errorf("%w: secondary bitmap must be %d hex characters, got %d", iso8583.ErrInvalidBitmap, HexLength, len(hex))
	}
	bits, err := HexToBinary(hex)
	if err != nil {
		return err
	}
	b.Secondary = bits
	return nil
}

// HasSecondary reports whether bit 1 of the primary bitmap is set.
func (b Bitmap) HasSecondary() bool {
	return len(b.Primary) > 0 && b.Primary[0] == '1'
}

// Combined returns the primary bits followed by the secondary bits, 64 or
// 128 characters long.
func (b Bitmap) Combined() string {
	return b.Primary + b.Secondary
}

// IsSet reports whether the bit for field n (1-based) is set.
func (b Bitmap) IsSet(n int) bool {
	bits := b.Combined()
	if n < 1 || n > len(bits) {
		return false
	}
	return bits[n-1] == '1'
}

// Fields returns the set data field numbers in ascending order. Bit 1 is
// never a data field: offset i of the combined bitmap minus its first bit
// corresponds to field i+2.
func (b Bitmap) Fields() []int {
	bits := b.Combined()
	if len(bits) < 2 {
		return nil
	}
	var fields []int
	for i, c := range bits[1:] {
		if c == '1' {
			fields = append(fields, i+2)
		}
	}
	return fields
}
