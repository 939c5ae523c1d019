// Package input prepares raw ISO 8583 text for the decoder: it sanitises
// pasted messages and splits files holding many messages.
//
// Input files come in two shapes:
//  1. Plain text: messages separated by a delimiter (default "?"), possibly
//     wrapped over several lines.
//  2. JSONL: one JSON object per line carrying the message under a known key
//     ("isoMessage", "iso_message", "message", "raw", or nested variants).
//
// ReadAll autodetects the shape from the first non-blank character.
package input

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// DefaultDelimiter separates messages in plain-text files.
const DefaultDelimiter = "?"

// Message is one raw message and where it came from.
type Message struct {
	Raw    string    `json:"isoMessage"`
	Source string    `json:"source,omitempty"`
	ID     FlexInt64 `json:"id,omitempty"`
	Line   int       `json:"-"` // 1-based line or chunk number in the input.
}

// Sanitize splits s into lines, trims each, drops the empty ones and joins
// the rest with no separator.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			b.WriteString(line)
		}
	}
	return b.String()
}

// Split divides contents on delim, trims each piece, removes CR and LF and
// drops blank pieces.
func Split(contents, delim string) []string {
	if delim == "" {
		delim = DefaultDelimiter
	}
	var out []string
	for _, part := range strings.Split(contents, delim) {
		part = strings.TrimSpace(part)
		part = strings.ReplaceAll(part, "\r", "")
		part = strings.ReplaceAll(part, "\n", "")
		if strings.TrimSpace(part) != "" {
			out = append(out, part)
		}
	}
	return out
}

// Stats counts what ReadAll found.
type Stats struct {
	Lines       int
	PlainChunks int
	JSONLines   int
	Skipped     int
}

// ReadAll reads every message from r, autodetecting plain or JSONL input.
func ReadAll(r io.Reader, delim string) ([]Message, *Stats, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, fmt.Errorf("read input: %w", err)
	}

	st := &Stats{}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		msgs, err := readJSONL(data, st)
		return msgs, st, err
	}

	parts := Split(string(data), delim)
	msgs := make([]Message, 0, len(parts))
	for i, p := range parts {
		msgs = append(msgs, Message{Raw: p, Line: i + 1})
	}
	st.Lines = bytes.Count(data, []byte("\n")) + 1
	st.PlainChunks = len(msgs)
	return msgs, st, nil
}

func readJSONL(data []byte, st *Stats) ([]Message, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	// Lines with large private fields can be long; bump buffer (16MB).
	buf := make([]byte, 0, 1024*1024)
	scanner.Buffer(buf, 16*1024*1024)

	var out []Message
	for scanner.Scan() {
		st.Lines++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		msg, ok := DecodeEnvelope(line)
		if !ok {
			st.Skipped++
			continue
		}
		msg.Line = st.Lines
		st.JSONLines++
		out = append(out, msg)
	}
	if err := scanner.Err(); err != nil {
		return out, fmt.Errorf("input read error: %w", err)
	}
	return out, nil
}
