// Definition suggestion: infer a field's layout from the values stored for it.
package main

import (
	"database/sql"
	"fmt"
	"sort"
	"strings"

	"iso8583_parser/internal/iso8583"
)

// DefinitionSuggestion is a proposed dictionary entry for one field.
type DefinitionSuggestion struct {
	Field      int          `json:"field"`
	Samples    int          `json:"samples"`
	Failures   int          `json:"failures"`
	MinLength  int          `json:"min_length"`
	MaxLength  int          `json:"max_length"`
	Lengths    []LengthFreq `json:"lengths"`
	Encoding   string       `json:"encoding"`
	Class      string       `json:"class"`
	MaxDeclare int          `json:"max_length_declared"`
	Examples   []string     `json:"examples"`
}

type LengthFreq struct {
	Length int `json:"length"`
	Count  int `json:"count"`
}

// SuggestDefinition samples decoded values of field and proposes an encoding,
// content class and length.
func SuggestDefinition(db *sql.DB, field int, mti string) (*DefinitionSuggestion, error) {
	query := `
		SELECT f.type, f.value
		FROM message_fields f
		JOIN messages m ON m.id = f.message_id
		WHERE f.field_number = ?`
	args := []any{field}
	if mti != "" {
		query += " AND m.mti = ?"
		args = append(args, mti)
	}
	query += " LIMIT 5000"

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var values []string
	failures := 0
	for rows.Next() {
		var typ, value string
		if err := rows.Scan(&typ, &value); err != nil {
			return nil, err
		}
		if typ == iso8583.TypeUnknown || typ == iso8583.TypeError {
			failures++
			continue
		}
		values = append(values, value)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no decoded values for field %d (%d failures)", field, failures)
	}

	s := suggest(field, values)
	s.Failures = failures
	return s, nil
}

// suggest infers a definition from decoded values.
func suggest(field int, values []string) *DefinitionSuggestion {
	freq := make(map[int]int)
	s := &DefinitionSuggestion{Field: field, Samples: len(values), MinLength: -1}
	for _, v := range values {
		n := len([]rune(v))
		freq[n]++
		if s.MinLength < 0 || n < s.MinLength {
			s.MinLength = n
		}
		if n > s.MaxLength {
			s.MaxLength = n
		}
		if len(s.Examples) < 3 {
			s.Examples = append(s.Examples, v)
		}
	}
	for n, c := range freq {
		s.Lengths = append(s.Lengths, LengthFreq{Length: n, Count: c})
	}
	sort.Slice(s.Lengths, func(i, j int) bool {
		if s.Lengths[i].Count != s.Lengths[j].Count {
			return s.Lengths[i].Count > s.Lengths[j].Count
		}
		return s.Lengths[i].Length < s.Lengths[j].Length
	})

	switch {
	case len(freq) == 1:
		s.Encoding = iso8583.Fixed.String()
		s.MaxDeclare = s.MaxLength
	case s.MaxLength <= 99:
		s.Encoding = iso8583.LLVar.String()
		s.MaxDeclare = 99
	default:
		s.Encoding = iso8583.LLLVar.String()
		s.MaxDeclare = 999
	}
	s.Class = string(classOf(values))
	return s
}

// classOf returns the narrowest content class covering every value.
func classOf(values []string) iso8583.ContentClass {
	digits, letters, other := false, false, false
	for _, v := range values {
		for _, r := range v {
			switch {
			case r >= '0' && r <= '9':
				digits = true
			case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z':
				letters = true
			default:
				other = true
			}
		}
	}
	switch {
	case other:
		return iso8583.ClassANS
	case digits && letters:
		return iso8583.ClassAlphaNumeric
	case letters:
		return iso8583.ClassAlpha
	case digits:
		return iso8583.ClassNumeric
	}
	return iso8583.ClassUnspecified
}

// PrintSuggestion prints a suggestion with a ready-to-paste YAML entry.
func PrintSuggestion(s *DefinitionSuggestion) {
	fmt.Printf("Field %d: %d decoded samples, %d failures\n", s.Field, s.Samples, s.Failures)
	fmt.Printf("Length range: %d..%d\n", s.MinLength, s.MaxLength)

	var lens []string
	for i, l := range s.Lengths {
		if i == 5 {
			break
		}
		lens = append(lens, fmt.Sprintf("%d(%d)", l.Length, l.Count))
	}
	fmt.Printf("Common lengths: %s\n", strings.Join(lens, " "))
	fmt.Printf("Examples: %s\n\n", strings.Join(s.Examples, ", "))

	fmt.Println("Suggested entry:")
	fmt.Printf("  - field: %d\n", s.Field)
	fmt.Printf("    encoding: %s\n", s.Encoding)
	if s.Class != "" {
		fmt.Printf("    class: %s\n", s.Class)
	}
	fmt.Printf("    length: %d\n", s.MaxDeclare)
}
