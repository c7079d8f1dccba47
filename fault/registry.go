package fault

import "errors"

var (
	ErrTypeNotFound       = errors.New("type not found")
	ErrTypeRegistered     = errors.New("type already registered with a different schema")
	ErrIndexDirClaimed    = errors.New("index directory already owned by an open store")
	ErrDuplicateField     = errors.New("duplicate index field name")
	ErrReservedField      = errors.New("reserved index field name")
	ErrContradictoryField = errors.New("field is both a default search field and skipped")
	ErrUnsupportedField   = errors.New("unsupported field type")
	ErrFieldTypeMismatch  = errors.New("record value does not match field type")
	ErrMultiplePrimaryKey = errors.New("more than one primary key field")
	ErrNoPrimaryKey       = errors.New("schema has no primary key field")
	ErrDefaultSearchType  = errors.New("default search field must be text or keyword")
	ErrMissingTreeName    = errors.New("tree name not set")
	ErrMissingDB          = errors.New("db not set")
	ErrMissingIndexDir    = errors.New("index dir not set")
	ErrInvalidFieldName   = errors.New("invalid index field name")
	ErrNotStruct          = errors.New("record type is not a struct")
	ErrUnknownSource      = errors.New("record has no field for schema source")
)
