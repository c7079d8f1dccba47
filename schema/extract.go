package schema

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/guyvdb/dsearch/fault"
)

var (
	timeType        = reflect.TypeOf(time.Time{})
	fieldSourceType = reflect.TypeOf((*FieldSource)(nil)).Elem()
)

// Bind resolves every field source against the record type t and checks
// that the Go types fit the declared index types. Records implementing
// FieldSource are not resolved; their values are checked per record.
func (s *Schema) Bind(t reflect.Type) (*Schema, error) {
	if t == nil {
		return nil, fault.E("schema", fault.ErrConfig, fault.ErrNotStruct)
	}

	c := *s
	c.recordType = t

	if t.Implements(fieldSourceType) || reflect.PointerTo(t).Implements(fieldSourceType) {
		c.paths = nil
		return &c, nil
	}

	st := t
	for st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st.Kind() != reflect.Struct {
		return nil, fault.E("schema", fault.ErrConfig, fmt.Errorf("%w: %s", fault.ErrNotStruct, t))
	}

	c.paths = make(map[string][]int, len(s.fields))
	for _, f := range s.fields {
		sf, ok := findStructField(st, f.source())
		if !ok {
			return nil, fault.E("schema", fault.ErrConfig, fmt.Errorf("field %q: %w: %s.%s", f.Name, fault.ErrUnknownSource, st.Name(), f.source()))
		}
		if f.PrimaryKey {
			if err := checkKeyType(sf.Type); err != nil {
				return nil, fault.E("schema", fault.ErrConfig, fmt.Errorf("field %q: %w", f.Name, err))
			}
		}
		if !f.Skip {
			if err := checkGoType(f.Type, sf.Type); err != nil {
				return nil, fault.E("schema", fault.ErrConfig, fmt.Errorf("field %q: %w", f.Name, err))
			}
		}
		c.paths[f.source()] = sf.Index
	}

	return &c, nil
}

// findStructField matches the Go field name, then the dsearch or json tag
// name, then the Go name case-insensitively.
func findStructField(st reflect.Type, source string) (reflect.StructField, bool) {
	if sf, ok := st.FieldByName(source); ok && sf.IsExported() {
		return sf, true
	}

	var fold *reflect.StructField
	for _, sf := range reflect.VisibleFields(st) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		if tagName(sf.Tag.Get(tagKey)) == source || tagName(sf.Tag.Get("json")) == source {
			return sf, true
		}
		if fold == nil && strings.EqualFold(sf.Name, source) {
			f := sf
			fold = &f
		}
	}

	if fold != nil {
		return *fold, true
	}
	return reflect.StructField{}, false
}

func tagName(tag string) string {
	name, _, _ := strings.Cut(tag, ",")
	return name
}

func checkGoType(ft FieldType, t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	ok := false
	switch ft {
	case Text, Keyword:
		ok = t.Kind() == reflect.String || (t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String)
	case Numeric:
		ok = isNumericKind(t.Kind())
	case Bool:
		ok = t.Kind() == reflect.Bool
	case DateTime:
		ok = t == timeType || t.Kind() == reflect.String
	}

	if !ok {
		return fmt.Errorf("%w: %s cannot be indexed as %s", fault.ErrUnsupportedField, t, ft)
	}
	return nil
}

func checkKeyType(t reflect.Type) error {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t.Kind() == reflect.String:
	case isIntegerKind(t.Kind()):
	case t.Kind() == reflect.Array && t.Len() == 16 && t.Elem().Kind() == reflect.Uint8:
	default:
		return fmt.Errorf("%w: %s", fault.ErrUnsupportedKeyType, t)
	}
	return nil
}

func isIntegerKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return true
	}
	return false
}

func isNumericKind(k reflect.Kind) bool {
	return isIntegerKind(k) || k == reflect.Float32 || k == reflect.Float64
}

// Extract projects record into an index document keyed by index field
// name. Nil optionals are left out.
func (s *Schema) Extract(record any) (map[string]any, error) {
	doc := make(map[string]any, len(s.indexed))

	for _, f := range s.indexed {
		raw, found, err := s.lookup(record, f)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}

		v, ok, err := normalize(f, raw)
		if err != nil {
			return nil, err
		}
		if ok {
			doc[f.Name] = v
		}
	}

	return doc, nil
}

// KeyValue returns the value of the primary key field of record.
func (s *Schema) KeyValue(record any) (any, error) {
	f, ok := s.PrimaryKey()
	if !ok {
		return nil, fault.ErrNoPrimaryKey
	}

	raw, found, err := s.lookup(record, f)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("field %q: %w", f.Name, fault.ErrEmptyKey)
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, fmt.Errorf("field %q: %w", f.Name, fault.ErrEmptyKey)
		}
		rv = rv.Elem()
	}
	return rv.Interface(), nil
}

func (s *Schema) lookup(record any, f Field) (any, bool, error) {
	if src, ok := record.(FieldSource); ok {
		v, found := src.FieldValue(f.source())
		return v, found, nil
	}

	v := reflect.ValueOf(record)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil, false, fmt.Errorf("%w: nil record", fault.ErrFieldTypeMismatch)
		}
		if src, ok := v.Interface().(FieldSource); ok {
			fv, found := src.FieldValue(f.source())
			return fv, found, nil
		}
		v = v.Elem()
	}

	if v.Kind() != reflect.Struct {
		return nil, false, fmt.Errorf("%w: %T", fault.ErrNotStruct, record)
	}

	var field reflect.Value
	if path, ok := s.paths[f.source()]; ok {
		fv, err := v.FieldByIndexErr(path)
		if err != nil {
			// nil embedded pointer on the path: treat as absent
			return nil, false, nil
		}
		field = fv
	} else {
		sf, ok := findStructField(v.Type(), f.source())
		if !ok {
			return nil, false, fmt.Errorf("field %q: %w", f.Name, fault.ErrUnknownSource)
		}
		field = v.FieldByIndex(sf.Index)
	}

	if !field.CanInterface() {
		return nil, false, fmt.Errorf("field %q: %w: unexported", f.Name, fault.ErrUnknownSource)
	}

	return field.Interface(), true, nil
}

// normalize converts a record value into the value bleve indexes for f.
func normalize(f Field, raw any) (any, bool, error) {
	if raw == nil {
		return nil, false, nil
	}

	if n, ok := raw.(json.Number); ok && f.Type == Numeric {
		x, err := n.Float64()
		if err != nil {
			return nil, false, fmt.Errorf("field %q: %w: %w", f.Name, fault.ErrFieldTypeMismatch, err)
		}
		return x, true, nil
	}

	rv := reflect.ValueOf(raw)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, false, nil
		}
		rv = rv.Elem()
	}

	mismatch := func() (any, bool, error) {
		return nil, false, fmt.Errorf("field %q (%s): %w: got %s", f.Name, f.Type, fault.ErrFieldTypeMismatch, rv.Type())
	}

	switch f.Type {
	case Text, Keyword:
		switch {
		case rv.Kind() == reflect.String:
			return rv.String(), true, nil
		case rv.Kind() == reflect.Slice:
			out := make([]string, 0, rv.Len())
			for i := 0; i < rv.Len(); i++ {
				e := rv.Index(i)
				for e.Kind() == reflect.Interface {
					e = e.Elem()
				}
				if e.Kind() != reflect.String {
					return mismatch()
				}
				out = append(out, e.String())
			}
			return out, true, nil
		}
	case Numeric:
		switch {
		case rv.CanInt():
			return float64(rv.Int()), true, nil
		case rv.CanUint():
			return float64(rv.Uint()), true, nil
		case rv.CanFloat():
			return rv.Float(), true, nil
		case rv.Kind() == reflect.String:
			x, err := strconv.ParseFloat(strings.TrimSpace(rv.String()), 64)
			if err != nil {
				return mismatch()
			}
			return x, true, nil
		}
	case Bool:
		if rv.Kind() == reflect.Bool {
			return rv.Bool(), true, nil
		}
	case DateTime:
		if rv.Type() == timeType {
			return rv.Interface().(time.Time), true, nil
		}
		if rv.Kind() == reflect.String {
			t, err := time.Parse(time.RFC3339Nano, rv.String())
			if err != nil {
				return nil, false, fmt.Errorf("field %q: %w: %w", f.Name, fault.ErrFieldTypeMismatch, err)
			}
			return t, true, nil
		}
	}

	return mismatch()
}
