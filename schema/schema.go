package schema

import (
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/guyvdb/dsearch/fault"
)

// Schema is the immutable descriptor of one record type: its tree, its
// fields and how each one is indexed. It is built once when a store opens
// and shared read-only afterwards.
type Schema struct {
	tree          string
	fields        []Field
	indexed       []Field
	byName        map[string]int
	defaultSearch []string
	pk            int // index into fields, -1 when none

	mapping     *mapping.IndexMappingImpl
	fingerprint uint64

	// bound record type and struct field index paths keyed by source
	recordType reflect.Type
	paths      map[string][]int
}

// New validates fields and builds the schema for tree.
func New(tree string, fields ...Field) (*Schema, error) {
	s := &Schema{
		tree:   tree,
		fields: append([]Field(nil), fields...),
		byName: make(map[string]int, len(fields)),
		pk:     -1,
	}

	if err := s.validate(); err != nil {
		return nil, fault.E("schema", fault.ErrConfig, err)
	}

	m, err := s.buildMapping()
	if err != nil {
		return nil, fault.E("schema", fault.ErrConfig, err)
	}
	s.mapping = m
	s.fingerprint = s.computeFingerprint()

	return s, nil
}

func (s *Schema) validate() error {
	if s.tree == "" {
		return fault.ErrMissingTreeName
	}

	for i, f := range s.fields {
		if f.PrimaryKey {
			if s.pk >= 0 {
				return fmt.Errorf("field %q: %w (already %q)", f.Name, fault.ErrMultiplePrimaryKey, s.fields[s.pk].Name)
			}
			s.pk = i
		}

		if f.Skip {
			if f.DefaultSearch {
				return fmt.Errorf("field %q: %w", f.Name, fault.ErrContradictoryField)
			}
			continue
		}

		if err := validName(f.Name); err != nil {
			return err
		}

		if _, dup := s.byName[f.Name]; dup {
			return fmt.Errorf("field %q: %w", f.Name, fault.ErrDuplicateField)
		}

		if f.Type < Text || f.Type > DateTime {
			return fmt.Errorf("field %q: %w: %s", f.Name, fault.ErrUnsupportedField, f.Type)
		}

		if f.DefaultSearch {
			if !f.Type.Searchable() {
				return fmt.Errorf("field %q (%s): %w", f.Name, f.Type, fault.ErrDefaultSearchType)
			}
			s.defaultSearch = append(s.defaultSearch, f.Name)
		}

		s.byName[f.Name] = len(s.indexed)
		s.indexed = append(s.indexed, f)
	}

	return nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty", fault.ErrInvalidFieldName)
	}
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("field %q: %w", name, fault.ErrReservedField)
	}
	if strings.ContainsAny(name, " \t\r\n:()\"+-*?.") {
		return fmt.Errorf("field %q: %w", name, fault.ErrInvalidFieldName)
	}
	return nil
}

func (s *Schema) buildMapping() (*mapping.IndexMappingImpl, error) {
	doc := bleve.NewDocumentStaticMapping()

	for _, f := range s.indexed {
		doc.AddFieldMappingsAt(f.Name, fieldMapping(f))
	}

	im := bleve.NewIndexMapping()
	im.DefaultMapping = doc
	im.DefaultAnalyzer = standard.Name
	im.IndexDynamic = false
	im.StoreDynamic = false
	im.DocValuesDynamic = false

	if err := im.Validate(); err != nil {
		return nil, fmt.Errorf("index mapping: %w", err)
	}

	return im, nil
}

func fieldMapping(f Field) *mapping.FieldMapping {
	var fm *mapping.FieldMapping

	switch f.Type {
	case Keyword:
		fm = bleve.NewKeywordFieldMapping()
		fm.Analyzer = keyword.Name
	case Numeric:
		fm = bleve.NewNumericFieldMapping()
	case Bool:
		fm = bleve.NewBooleanFieldMapping()
	case DateTime:
		fm = bleve.NewDateTimeFieldMapping()
	default:
		fm = bleve.NewTextFieldMapping()
		fm.Analyzer = standard.Name
		fm.IncludeTermVectors = true
	}

	if f.Options.Analyzer != "" {
		fm.Analyzer = f.Options.Analyzer
	}
	fm.Store = f.Options.Store
	fm.DocValues = f.Options.DocValues
	fm.IncludeInAll = false

	return fm
}

func (s *Schema) computeFingerprint() uint64 {
	h := fnv.New64a()
	for _, f := range s.indexed {
		fmt.Fprintf(h, "%s|%s|%s|%t|%t;", f.Name, f.Type, f.Options.Analyzer, f.Options.Store, f.Options.DocValues)
	}
	return h.Sum64()
}

// Tree returns the name of the backing tree.
func (s *Schema) Tree() string { return s.tree }

// WithTree returns a copy of the schema bound to another tree name.
func (s *Schema) WithTree(tree string) (*Schema, error) {
	if tree == "" {
		return nil, fault.E("schema", fault.ErrConfig, fault.ErrMissingTreeName)
	}
	c := *s
	c.tree = tree
	return &c, nil
}

// Fields returns every declared field, skipped ones included.
func (s *Schema) Fields() []Field { return append([]Field(nil), s.fields...) }

// Indexed returns the fields present in the index, in declaration order.
func (s *Schema) Indexed() []Field { return append([]Field(nil), s.indexed...) }

// Field looks up an indexed field by its index name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.indexed[i], true
}

// DefaultSearchFields lists the fields bare query terms target.
func (s *Schema) DefaultSearchFields() []string {
	return append([]string(nil), s.defaultSearch...)
}

// PrimaryKey returns the primary key field, if the schema has one.
func (s *Schema) PrimaryKey() (Field, bool) {
	if s.pk < 0 {
		return Field{}, false
	}
	return s.fields[s.pk], true
}

// Mapping is the bleve index mapping built from the fields.
func (s *Schema) Mapping() mapping.IndexMapping { return s.mapping }

// Fingerprint changes whenever the indexed shape of the schema changes.
func (s *Schema) Fingerprint() uint64 { return s.fingerprint }
