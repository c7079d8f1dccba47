package schema

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/guyvdb/dsearch/fault"
)

// tagKey is the struct tag read by Derive:
//
//	type Book struct {
//	    ID          uint64  `dsearch:"id,pk,skip"`
//	    Title       string  `dsearch:"title,search"`
//	    Description *string `dsearch:",search"`
//	    Rating      uint8   `dsearch:"rating,type=numeric"`
//	    Notes       string  `dsearch:"-"`
//	}
//
// Options: search, skip (or a name of "-"), pk, store, docvalues,
// type=text|keyword|numeric|bool|datetime, analyzer=<name>.
const tagKey = "dsearch"

// Derive builds the schema of record type T from its struct tags.
func Derive[T any]() (*Schema, error) {
	return FromType(reflect.TypeFor[T]())
}

// FromType is Derive for a reflect.Type.
func FromType(t reflect.Type) (*Schema, error) {
	st := t
	for st != nil && st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	if st == nil || st.Kind() != reflect.Struct {
		return nil, fault.E("schema", fault.ErrConfig, fmt.Errorf("%w: %v", fault.ErrNotStruct, t))
	}

	var fields []Field
	for _, sf := range reflect.VisibleFields(st) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}

		f, ok, err := fieldFromStruct(sf)
		if err != nil {
			return nil, fault.E("schema", fault.ErrConfig, err)
		}
		if ok {
			fields = append(fields, f)
		}
	}

	s, err := New(treeNameOf(t, st), fields...)
	if err != nil {
		return nil, err
	}

	return s.Bind(t)
}

func treeNameOf(t, st reflect.Type) string {
	for _, c := range []reflect.Type{t, reflect.PointerTo(st)} {
		if c.Implements(reflect.TypeOf((*TreeNamer)(nil)).Elem()) {
			var v reflect.Value
			if c.Kind() == reflect.Pointer {
				v = reflect.New(c.Elem())
			} else {
				v = reflect.New(c).Elem()
			}
			if name := v.Interface().(TreeNamer).TreeName(); name != "" {
				return name
			}
		}
	}
	return strings.ToLower(st.Name())
}

// fieldFromStruct reads one struct field. Untagged fields of types the
// index cannot hold are left out; tagged ones are an error.
func fieldFromStruct(sf reflect.StructField) (Field, bool, error) {
	tag, tagged := sf.Tag.Lookup(tagKey)
	name, rest, _ := strings.Cut(tag, ",")

	f := Field{Name: name, Source: sf.Name}

	if name == "-" {
		f.Name = ""
		f.Skip = true
	}
	if f.Name == "" {
		f.Name = defaultName(sf)
	}

	typ, known := defaultType(sf.Type)
	f.Type = typ

	explicitType := false
	if rest != "" {
		for _, opt := range strings.Split(rest, ",") {
			key, val, _ := strings.Cut(strings.TrimSpace(opt), "=")
			switch key {
			case "search":
				f.DefaultSearch = true
			case "skip":
				f.Skip = true
			case "pk":
				f.PrimaryKey = true
			case "store":
				f.Options.Store = true
			case "docvalues":
				f.Options.DocValues = true
			case "analyzer":
				f.Options.Analyzer = val
			case "type":
				ft, err := ParseFieldType(val)
				if err != nil {
					return Field{}, false, fmt.Errorf("field %s: %w: %w", sf.Name, fault.ErrUnsupportedField, err)
				}
				f.Type = ft
				explicitType = true
			case "":
			default:
				return Field{}, false, fmt.Errorf("field %s: unknown %s tag option %q", sf.Name, tagKey, key)
			}
		}
	}

	if !known && !explicitType && !f.Skip {
		if tagged && !f.PrimaryKey {
			return Field{}, false, fmt.Errorf("field %s: %w: %s", sf.Name, fault.ErrUnsupportedField, sf.Type)
		}
		if !f.PrimaryKey {
			return Field{}, false, nil
		}
		// a primary key of a non-indexable type (uuid) lives in the tree only
		f.Skip = true
	}

	return f, true, nil
}

func defaultName(sf reflect.StructField) string {
	if n := tagName(sf.Tag.Get("json")); n != "" && n != "-" {
		return n
	}
	return strings.ToLower(sf.Name)
}

func defaultType(t reflect.Type) (FieldType, bool) {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}

	switch {
	case t == timeType:
		return DateTime, true
	case t.Kind() == reflect.String:
		return Text, true
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.String:
		return Text, true
	case t.Kind() == reflect.Bool:
		return Bool, true
	case isNumericKind(t.Kind()):
		return Numeric, true
	}
	return Text, false
}
