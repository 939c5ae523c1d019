package dictionary

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"iso8583_parser/internal/iso8583"
)

// Format is a dictionary file encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONC Format = "jsonc"
	FormatYAML  Format = "yaml"
)

// FormatFromPath picks a format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonc":
		return FormatJSONC, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return "", fmt.Errorf("unsupported dictionary file extension %q", filepath.Ext(path))
}

// File is the on-disk dictionary layout.
type File struct {
	Name   string      `json:"name" yaml:"name"`
	Fields []FileField `json:"fields" yaml:"fields"`
}

// FileField is one entry of a dictionary file.
type FileField struct {
	Field    FlexInt `json:"field" yaml:"field"`
	Encoding string  `json:"encoding" yaml:"encoding"`
	Class    string  `json:"class,omitempty" yaml:"class,omitempty"`
	Length   FlexInt `json:"length,omitempty" yaml:"length,omitempty"`
	Label    string  `json:"label,omitempty" yaml:"label,omitempty"`
}

// FlexInt accepts a field number or length written either as a number or as
// a quoted string ("002").
type FlexInt int

func (f *FlexInt) UnmarshalJSON(data []byte) error {
	var i int
	if err := json.Unmarshal(data, &i); err == nil {
		*f = FlexInt(i)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("expected number or numeric string, got %s", data)
	}
	return f.parse(s)
}

func (f *FlexInt) UnmarshalYAML(node *yaml.Node) error {
	return f.parse(node.Value)
}

func (f *FlexInt) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*f = 0
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*f = FlexInt(i)
	return nil
}

// Load reads a dictionary file, choosing the format by extension.
func Load(path string) (*Static, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionary: %w", err)
	}
	d, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if d.name == "" {
		d.name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return d, nil
}

// Parse decodes dictionary file contents.
func Parse(data []byte, format Format) (*Static, error) {
	var f File
	switch format {
	case FormatJSON, FormatJSONC:
		// JSONC is a superset of JSON, so both go through the same stripper.
		if err := json.Unmarshal(jsonc.ToJSON(data), &f); err != nil {
			return nil, fmt.Errorf("parse %s: %w", format, err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported dictionary format %q", format)
	}
	return f.Build()
}

// Build converts the file layout into a Static dictionary.
func (f File) Build() (*Static, error) {
	entries := make(map[int]iso8583.FieldDetail, len(f.Fields))
	for i, ff := range f.Fields {
		n := int(ff.Field)
		if _, dup := entries[n]; dup {
			return nil, fmt.Errorf("entry %d: duplicate field %d", i, n)
		}
		enc, err := iso8583.ParseEncoding(ff.Encoding)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		class, err := iso8583.ParseContentClass(ff.Class)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", n, err)
		}
		entries[n] = iso8583.FieldDetail{
			Label: ff.Label,
			Definition: iso8583.FieldDefinition{
				Encoding: enc,
				Class:    class,
				Length:   int(ff.Length),
			},
		}
	}
	return New(f.Name, entries)
}

// ToFile converts a Static dictionary back to its file layout.
func (s *Static) ToFile() File {
	f := File{Name: s.name}
	for _, e := range s.Entries() {
		def := e.Detail.Definition
		f.Fields = append(f.Fields, FileField{
			Field:    FlexInt(e.Field),
			Encoding: def.Encoding.String(),
			Class:    string(def.Class),
			Length:   FlexInt(def.Length),
			Label:    e.Detail.Label,
		})
	}
	return f
}

// Encode writes a dictionary file in the given format. JSONC is written as
// plain JSON.
func (f File) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatJSON, FormatJSONC:
		data, err := json.MarshalIndent(f, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case FormatYAML:
		return yaml.Marshal(f)
	}
	return nil, fmt.Errorf("unsupported dictionary format %q", format)
}
