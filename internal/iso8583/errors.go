package iso8583

import (
	"errors"
	"fmt"
)

// Decode errors. Callers match them with errors.Is; the decoder wraps them
// with position details.
var (
	ErrInvalidBitmap       = errors.New("invalid bitmap")
	ErrInvalidLengthPrefix = errors.New("invalid length indicator")
	ErrBufferUnderrun      = errors.New("ISO string too short to extract value")
	ErrMissingHeaderOrMTI  = errors.New("message too short for header, MTI and bitmap")
	ErrUnknownField        = errors.New("field not defined in dictionary")
)

// FieldError reports a failure decoding a specific data element.
type FieldError struct {
	Field  int
	Cursor int
	Err    error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %d at offset %d: %v", e.Field, e.Cursor, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// IsPreludeError reports whether err happened before the field scan, which
// is fatal to the whole message regardless of failure mode.
func IsPreludeError(err error) bool {
	var fe *FieldError
	if errors.As(err, &fe) {
		return false
	}
	return errors.Is(err, ErrMissingHeaderOrMTI) || errors.Is(err, ErrInvalidBitmap)
}
