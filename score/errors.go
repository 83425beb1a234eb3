package score

import (
	"errors"
	"fmt"
)

var (
	// ErrCodec matches every *CodecError via errors.Is.
	ErrCodec = errors.New("codec error")
	// ErrValue matches every *ValueError via errors.Is.
	ErrValue = errors.New("invalid value")
	// ErrNotImplemented marks paths that are intentionally unsupported.
	ErrNotImplemented = errors.New("not implemented")
	// ErrIndex is returned by positional container access out of range.
	ErrIndex = errors.New("index out of range")
)

// CodecError reports malformed, truncated or unsupported input.
// Binary formats fill Offset, text formats fill Line and Column.
type CodecError struct {
	Format string
	Offset int64
	Line   int
	Column int
	Msg    string
	Err    error
}

func (e *CodecError) Error() string {
	var where string
	if e.Line > 0 {
		where = fmt.Sprintf("line %d col %d", e.Line, e.Column)
	} else {
		where = fmt.Sprintf("offset %d", e.Offset)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Format, where, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Format, where, e.Msg)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// ValueError reports an invalid argument.
type ValueError struct {
	Field  string
	Reason string
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValueError) Is(target error) bool { return target == ErrValue }

func newValueError(field, format string, args ...any) error {
	return &ValueError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// NewValueError builds a *ValueError for callers outside this package.
func NewValueError(field, format string, args ...any) error {
	return newValueError(field, format, args...)
}

func indexError(i, n int) error {
	return fmt.Errorf("%w: index %d, length %d", ErrIndex, i, n)
}
