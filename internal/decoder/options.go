package decoder

import (
	"fmt"
	"log/slog"
	"strings"
)

// HeaderMode selects how the transport header in front of the MTI is found.
type HeaderMode int

const (
	// HeaderMarker takes a fixed-length header only when the message starts
	// with the marker; otherwise the MTI starts at offset 0.
	HeaderMarker HeaderMode = iota
	// HeaderFixed always takes the first HeaderLength characters.
	HeaderFixed
	// HeaderNone never expects a header.
	HeaderNone
)

// Header defaults.
const (
	DefaultHeaderLength = 12
	DefaultHeaderMarker = "ISO"
)

func (m HeaderMode) String() string {
	switch m {
	case HeaderMarker:
		return "marker"
	case HeaderFixed:
		return "fixed"
	case HeaderNone:
		return "none"
	}
	return fmt.Sprintf("HeaderMode(%d)", int(m))
}

// ParseHeaderMode converts "marker", "fixed" or "none".
func ParseHeaderMode(s string) (HeaderMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "marker":
		return HeaderMarker, nil
	case "fixed":
		return HeaderFixed, nil
	case "none":
		return HeaderNone, nil
	}
	return 0, fmt.Errorf("unknown header mode %q (want marker, fixed or none)", s)
}

// FailureMode selects what happens when a data field cannot be decoded.
type FailureMode int

const (
	// Lenient records an UNKNOWN or ERROR placeholder and keeps scanning.
	Lenient FailureMode = iota
	// Strict aborts the decode on the first field that cannot be decoded.
	Strict
)

func (m FailureMode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// ParseFailureMode converts "lenient" or "strict".
func ParseFailureMode(s string) (FailureMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "lenient":
		return Lenient, nil
	case "strict":
		return Strict, nil
	}
	return 0, fmt.Errorf("unknown failure mode %q (want lenient or strict)", s)
}

// Option configures a Decoder.
type Option func(*Decoder)

// WithHeader sets the header policy. A non-positive length keeps the
// default of 12 and an empty marker keeps "ISO".
func WithHeader(mode HeaderMode, length int, marker string) Option {
	return func(d *Decoder) {
		d.headerMode = mode
		if length > 0 {
			d.headerLength = length
		}
		if marker != "" {
			d.headerMarker = marker
		}
	}
}

// WithFailureMode sets lenient or strict field handling.
func WithFailureMode(mode FailureMode) Option {
	return func(d *Decoder) {
		d.failureMode = mode
	}
}

// WithLogger sets the logger used for degraded-field diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decoder) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithName labels decode results with the dictionary name in logs.
func WithName(name string) Option {
	return func(d *Decoder) {
		d.name = name
	}
}
