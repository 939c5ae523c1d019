package decoder

import (
	"fmt"
	"io"

	"iso8583_parser/internal/iso8583"
)

// Trace records where each field was read from, for debugging misaligned
// messages.
type Trace struct {
	DataStart int         // Offset of the first data field.
	Steps     []TraceStep // One step per set bit, in scan order.
	End       int         // Cursor after the last field.
	Trailing  int         // Characters left unread after the last field.
}

// TraceStep is the outcome of one field extraction.
type TraceStep struct {
	Field    int    // Data field number.
	Start    int    // Cursor before extraction.
	Next     int    // Cursor after extraction (Start on failure).
	Type     string // Definition type, UNKNOWN or ERROR.
	Consumed int    // Characters consumed, including any length prefix.
	Err      error  // Extraction failure, if any.
}

func (t *Trace) add(field, start, next int, pf iso8583.ParsedField, err error) {
	t.Steps = append(t.Steps, TraceStep{
		Field:    field,
		Start:    start,
		Next:     next,
		Type:     pf.Type,
		Consumed: next - start,
		Err:      err,
	})
}

// Failed returns the steps that produced placeholders.
func (t *Trace) Failed() []TraceStep {
	var out []TraceStep
	for _, s := range t.Steps {
		if s.Err != nil {
			out = append(out, s)
		}
	}
	return out
}

// Write prints the trace as one line per step.
func (t *Trace) Write(w io.Writer) {
	fmt.Fprintf(w, "data starts at offset %d\n", t.DataStart)
	for _, s := range t.Steps {
		status := "ok"
		if s.Err != nil {
			status = s.Err.Error()
		}
		fmt.Fprintf(w, "  field %3d  %-12s  [%d, %d)  consumed=%d  %s\n",
			s.Field, s.Type, s.Start, s.Next, s.Consumed, status)
	}
	fmt.Fprintf(w, "end at offset %d, %d trailing characters\n", t.End, t.Trailing)
}
