// Package dictionary provides ISO 8583 field dictionaries: read-only maps
// from field number to label and layout.
package dictionary

import (
	"fmt"
	"sort"

	"iso8583_parser/internal/iso8583"
)

// Field number bounds. Fields 1 and 65 are bitmap indicator bits and are
// never dictionary entries.
const (
	MinField = 2
	MaxField = 128
)

// Dictionary looks up the definition of a data field.
type Dictionary interface {
	Lookup(field int) (iso8583.FieldDetail, bool)
}

// Static is an immutable map-backed Dictionary. It is safe for concurrent
// use once constructed.
type Static struct {
	name    string
	entries map[int]iso8583.FieldDetail
}

// New builds a Static dictionary after validating every entry.
func New(name string, entries map[int]iso8583.FieldDetail) (*Static, error) {
	copied := make(map[int]iso8583.FieldDetail, len(entries))
	for n, d := range entries {
		if err := ValidateField(n); err != nil {
			return nil, err
		}
		if err := d.Definition.Validate(); err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		copied[n] = d
	}
	return &Static{name: name, entries: copied}, nil
}

// MustNew is like New but panics on error. Used by built-in catalogs.
func MustNew(name string, entries map[int]iso8583.FieldDetail) *Static {
	d, err := New(name, entries)
	if err != nil {
		panic("dictionary " + name + ": " + err.Error())
	}
	return d
}

// ValidateField checks that n may carry a dictionary entry.
func ValidateField(n int) error {
	if n < MinField || n > MaxField {
		return fmt.Errorf("field %d out of range %d-%d", n, MinField, MaxField)
	}
	if n == 65 {
		return fmt.Errorf("field 65 is the tertiary bitmap indicator and cannot be defined")
	}
	return nil
}

// Name returns the dictionary's identifier.
func (s *Static) Name() string {
	return s.name
}

// Lookup implements Dictionary.
func (s *Static) Lookup(field int) (iso8583.FieldDetail, bool) {
	d, ok := s.entries[field]
	return d, ok
}

// Len returns the number of defined fields.
func (s *Static) Len() int {
	return len(s.entries)
}

// Fields returns the defined field numbers in ascending order.
func (s *Static) Fields() []int {
	fields := make([]int, 0, len(s.entries))
	for n := range s.entries {
		fields = append(fields, n)
	}
	sort.Ints(fields)
	return fields
}

// Entry pairs a field number with its detail, for listings.
type Entry struct {
	Field  int
	Detail iso8583.FieldDetail
}

// Entries returns every definition in ascending field order.
func (s *Static) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, n := range s.Fields() {
		out = append(out, Entry{Field: n, Detail: s.entries[n]})
	}
	return out
}

// Overlay returns a dictionary that consults override before base.
func Overlay(base, override Dictionary) Dictionary {
	return overlay{base: base, override: override}
}

type overlay struct {
	base, override Dictionary
}

func (o overlay) Lookup(field int) (iso8583.FieldDetail, bool) {
	if d, ok := o.override.Lookup(field); ok {
		return d, true
	}
	return o.base.Lookup(field)
}

// Merge flattens an overlay of two static dictionaries into a new Static.
func Merge(name string, base, override *Static) *Static {
	entries := make(map[int]iso8583.FieldDetail, base.Len()+override.Len())
	for n, d := range base.entries {
		entries[n] = d
	}
	for n, d := range override.entries {
		entries[n] = d
	}
	return &Static{name: name, entries: entries}
}
