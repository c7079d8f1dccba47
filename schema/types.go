package schema

import "fmt"

// FieldType is the index-side type of a field.
type FieldType int

const (
	Text FieldType = iota
	Keyword
	Numeric
	Bool
	DateTime
)

// String returns the string representation of FieldType.
func (t FieldType) String() string {
	switch t {
	case Text:
		return "text"
	case Keyword:
		return "keyword"
	case Numeric:
		return "numeric"
	case Bool:
		return "bool"
	case DateTime:
		return "datetime"
	}
	return fmt.Sprintf("FieldType(%d)", int(t))
}

// ParseFieldType is the inverse of FieldType.String.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "text":
		return Text, nil
	case "keyword":
		return Keyword, nil
	case "numeric":
		return Numeric, nil
	case "bool":
		return Bool, nil
	case "datetime":
		return DateTime, nil
	}
	return 0, fmt.Errorf("unknown field type %q", s)
}

// Searchable reports whether bare query terms can target the type.
func (t FieldType) Searchable() bool {
	return t == Text || t == Keyword
}

// Ranged reports whether range operators apply to the type.
func (t FieldType) Ranged() bool {
	return t == Numeric || t == DateTime || t == Keyword
}

// Options overrides the indexing options of a field. The zero value keeps
// the defaults of the field type.
type Options struct {
	// Analyzer names a bleve analyzer for text fields.
	Analyzer string `json:"analyzer,omitempty"`

	// Store keeps the field value in the index.
	Store bool `json:"store,omitempty"`

	// DocValues keeps column data for sorting and faceting.
	DocValues bool `json:"docValues,omitempty"`
}

// Field describes one record field.
type Field struct {
	// Name is the index field name used in queries.
	Name string `json:"name"`

	// Source is the record field the value is read from: the Go struct
	// field name, or the property key of a FieldSource. Defaults to Name.
	Source string `json:"source,omitempty"`

	Type FieldType `json:"type"`

	Options Options `json:"options"`

	// DefaultSearch makes bare query terms match this field.
	DefaultSearch bool `json:"defaultSearch,omitempty"`

	// Skip keeps the field out of the index. It is still stored in the tree.
	Skip bool `json:"skip,omitempty"`

	// PrimaryKey marks the field the record key is derived from.
	PrimaryKey bool `json:"primaryKey,omitempty"`
}

func (f Field) source() string {
	if f.Source != "" {
		return f.Source
	}
	return f.Name
}

// FieldSource is implemented by records that expose their fields by name
// instead of through struct reflection.
type FieldSource interface {
	FieldValue(name string) (any, bool)
}

// TreeNamer is implemented by record types that choose their own tree name.
type TreeNamer interface {
	TreeName() string
}
