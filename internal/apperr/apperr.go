package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies failures so callers can decide between skipping a record and aborting.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidation
	KindParse
	KindExternal
	KindConsistency
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not found"
	case KindValidation:
		return "validation"
	case KindParse:
		return "parse"
	case KindExternal:
		return "external service"
	case KindConsistency:
		return "consistency violation"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Kind.String() + ": " + e.Err.Error()
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below, so errors.Is(err, apperr.ErrNotFound) works on any wrapped Error.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrNotFound    = &Error{Kind: KindNotFound}
	ErrValidation  = &Error{Kind: KindValidation}
	ErrParse       = &Error{Kind: KindParse}
	ErrExternal    = &Error{Kind: KindExternal}
	ErrConsistency = &Error{Kind: KindConsistency}
)

func NotFound(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}

func Validation(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

func Parse(format string, args ...any) error {
	return &Error{Kind: KindParse, Err: fmt.Errorf(format, args...)}
}

func External(format string, args ...any) error {
	return &Error{Kind: KindExternal, Err: fmt.Errorf(format, args...)}
}

func Consistency(format string, args ...any) error {
	return &Error{Kind: KindConsistency, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
