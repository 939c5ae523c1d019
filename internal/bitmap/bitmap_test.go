package bitmap

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"iso8583_parser/internal/iso8583"
)

func TestHexToBinary(t *testing.T) {
	tests := []struct {
		name string
		hex  string
		want string
	}{
		{"empty", "", ""},
		{"zero", "0", "0000"},
		{"single f", "F", "1111"},
		{"lowercase", "a5", "10100101"},
		{"uppercase", "A5", "10100101"},
		{"bit 2 only", "4000000000000000", "0100" + strings.Repeat("0", 60)},
		{"bit 1 only", "8000000000000000", "1" + strings.Repeat("0", 63)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HexToBinary(tt.hex)
			if err != nil {
				t.Fatalf("HexToBinary(%q) error: %v", tt.hex, err)
			}
			if got != tt.want {
				t.Errorf("HexToBinary(%q) = %q, want %q", tt.hex, got, tt.want)
			}
		})
	}
}

func TestHexToBinaryRoundTrip(t *testing.T) {
	const digits = "0123456789abcdefABCDEF"
	for _, d := range digits {
		hex := strings.Repeat(string(d), 4)
		bits, err := HexToBinary(hex)
		if err != nil {
			t.Fatalf("HexToBinary(%q) error: %v", hex, err)
		}
		if len(bits) != 16 {
			t.Fatalf("len(HexToBinary(%q)) = %d, want 16", hex, len(bits))
		}
		for i := 0; i < len(bits); i += 4 {
			var v int
			for _, c := range bits[i : i+4] {
				v = v<<1 | int(c-'0')
			}
			want := strings.ToLower(string(d))
			got := strings.ToLower(string("0123456789abcdef"[v]))
			if got != want {
				t.Errorf("window %d of %q = %s, want %s", i/4, hex, got, want)
			}
		}
	}
}

func TestHexToBinaryInvalid(t *testing.T) {
	for _, hex := range []string{"G", "00Z0", "12 4", "é0"} {
		_, err := HexToBinary(hex)
		if !errors.Is(err, iso8583.ErrInvalidBitmap) {
			t.Errorf("HexToBinary(%q) error = %v, want ErrInvalidBitmap", hex, err)
		}
	}
}

func TestDecodePrimaryLength(t *testing.T) {
	if _, err := DecodePrimary("4000"); !errors.Is(err, iso8583.ErrInvalidBitmap) {
		t.Errorf("DecodePrimary short error = %v, want ErrInvalidBitmap", err)
	}
}

func TestFieldsPrimaryOnly(t *testing.T) {
	// Bits 2, 3, 4 and 64 set.
	bm, err := Decode("7000000000000001", "")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if bm.HasSecondary() {
		t.Error("HasSecondary() = true, want false")
	}
	if got := len(bm.Combined()); got != 64 {
		t.Errorf("len(Combined()) = %d, want 64", got)
	}
	want := []int{2, 3, 4, 64}
	if got := bm.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
}

func TestFieldsWithSecondary(t *testing.T) {
	// Primary: bits 1 and 3. Secondary: first bit (65) and last bit (128).
	bm, err := Decode("A000000000000000", "8000000000000001")
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if !bm.HasSecondary() {
		t.Fatal("HasSecondary() = false, want true")
	}
	if got := len(bm.Combined()); got != 128 {
		t.Errorf("len(Combined()) = %d, want 128", got)
	}
	want := []int{3, 65, 128}
	if got := bm.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %v, want %v", got, want)
	}
	if !bm.IsSet(128) || bm.IsSet(2) || bm.IsSet(129) {
		t.Error("IsSet gave unexpected results")
	}
}

func TestDecodeUnannouncedSecondary(t *testing.T) {
	_, err := Decode("4000000000000000", "8000000000000000")
	if !errors.Is(err, iso8583.ErrInvalidBitmap) {
		t.Errorf("Decode error = %v, want ErrInvalidBitmap", err)
	}
}
