package schema

// Builder declares a schema field by field, for records that are not
// described by struct tags (see dyno.Object). Build validates the result.
//
//	s, err := schema.NewBuilder("books").
//	    Text("title", schema.Search()).
//	    Numeric("rating").
//	    Skip("isbn", schema.PrimaryKey()).
//	    Build()
type Builder struct {
	tree   string
	fields []Field
}

// FieldOption adjusts a field declared on a Builder.
type FieldOption func(*Field)

// NewBuilder starts a schema for the given tree.
func NewBuilder(tree string) *Builder {
	return &Builder{tree: tree}
}

// Text appends an analyzed full-text field.
func (b *Builder) Text(name string, opts ...FieldOption) *Builder {
	return b.add(name, Text, opts)
}

// Keyword appends an exact-match string field.
func (b *Builder) Keyword(name string, opts ...FieldOption) *Builder {
	return b.add(name, Keyword, opts)
}

// Numeric appends a numeric field.
func (b *Builder) Numeric(name string, opts ...FieldOption) *Builder {
	return b.add(name, Numeric, opts)
}

// Bool appends a boolean field.
func (b *Builder) Bool(name string, opts ...FieldOption) *Builder {
	return b.add(name, Bool, opts)
}

// DateTime appends a date/time field.
func (b *Builder) DateTime(name string, opts ...FieldOption) *Builder {
	return b.add(name, DateTime, opts)
}

// Skip declares a field that is stored but not indexed.
func (b *Builder) Skip(name string, opts ...FieldOption) *Builder {
	return b.add(name, Text, append(opts, func(f *Field) { f.Skip = true }))
}

// Field appends a fully specified field.
func (b *Builder) Field(f Field) *Builder {
	b.fields = append(b.fields, f)
	return b
}

// Build validates the declared fields.
func (b *Builder) Build() (*Schema, error) {
	return New(b.tree, b.fields...)
}

func (b *Builder) add(name string, t FieldType, opts []FieldOption) *Builder {
	f := Field{Name: name, Type: t}
	for _, opt := range opts {
		opt(&f)
	}
	b.fields = append(b.fields, f)
	return b
}

// Search makes the field a default search field.
func Search() FieldOption { return func(f *Field) { f.DefaultSearch = true } }

// Source reads the value from a differently named record field.
func Source(name string) FieldOption { return func(f *Field) { f.Source = name } }

// Analyzer sets the bleve analyzer of a text field.
func Analyzer(name string) FieldOption { return func(f *Field) { f.Options.Analyzer = name } }

// Stored keeps the value in the index.
func Stored() FieldOption { return func(f *Field) { f.Options.Store = true } }

// DocValues keeps sortable column data.
func DocValues() FieldOption { return func(f *Field) { f.Options.DocValues = true } }

// PrimaryKey derives record keys from the field.
func PrimaryKey() FieldOption { return func(f *Field) { f.PrimaryKey = true } }
