package fault

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Every error returned by a docstore operation matches exactly
// one of these with errors.Is.
var (
	ErrConfig   = errors.New("config error")
	ErrCodec    = errors.New("codec error")
	ErrNotFound = errors.New("not found")
	ErrQuery    = errors.New("query error")
	ErrStorage  = errors.New("storage error")
	ErrIndex    = errors.New("index error")
	ErrInvalid  = errors.New("invalid argument")
)

// Error carries the failing operation, its kind and the keys it touched.
//
// Use errors.Is against the kind sentinels to classify it and errors.As to
// read the keys:
//
//	var fErr *fault.Error
//	if errors.As(err, &fErr) && fErr.Unsynced {
//	    store.Reindex(ctx, keys...)
//	}
type Error struct {
	// Op is the operation name, e.g. "create" or "search".
	Op string

	// Kind is one of the kind sentinels above.
	Kind error

	// Keys are the document ids (hex keys) affected by the failure.
	Keys []string

	// Unsynced is set on index failures that happened after the tree write
	// committed: the listed keys are in the tree but not (yet) in the index.
	Unsynced bool

	// Err is the underlying cause.
	Err error
}

// Error formats as "<op>: <kind>: <cause> (keys=a,b)".
func (e *Error) Error() string {
	if e == nil {
		return ""
	}

	var b strings.Builder

	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}

	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}

	if e.Err != nil {
		if e.Kind != nil {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}

	if len(e.Keys) > 0 {
		b.WriteString(" (keys=")
		b.WriteString(strings.Join(e.Keys, ","))
		if e.Unsynced {
			b.WriteString(" unsynced")
		}
		b.WriteString(")")
	}

	return b.String()
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	if e == nil {
		return nil
	}

	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// E builds an *Error. If err already is an *Error of any kind it is
// returned unchanged so the innermost classification wins; only missing
// op and keys are filled in.
func E(op string, kind error, err error, keys ...string) error {
	var existing *Error
	if err != nil && errors.As(err, &existing) {
		if existing.Op == "" {
			existing.Op = op
		}
		if len(existing.Keys) == 0 && len(keys) > 0 {
			existing.Keys = keys
		}
		return existing
	}

	return &Error{Op: op, Kind: kind, Keys: keys, Err: err}
}

// Unsynced builds an index error for keys whose tree rows were written
// but whose index documents were not committed.
func Unsynced(op string, err error, keys ...string) error {
	return &Error{Op: op, Kind: ErrIndex, Keys: keys, Unsynced: true, Err: err}
}

// KindOf returns the kind sentinel err matches, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrConfig, ErrCodec, ErrNotFound, ErrQuery, ErrStorage, ErrIndex, ErrInvalid} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// QueryError reports a search string that could not be parsed or does not
// fit the schema. Token is the offending token as written by the caller.
type QueryError struct {
	Query  string
	Token  string
	Pos    int
	Reason string
}

func (e *QueryError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("query error at %d: %s", e.Pos, e.Reason)
	}
	return fmt.Sprintf("query error at %d near %q: %s", e.Pos, e.Token, e.Reason)
}

// Is reports whether target is ErrQuery.
func (e *QueryError) Is(target error) bool {
	return target == ErrQuery
}
