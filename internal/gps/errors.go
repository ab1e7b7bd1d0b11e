package gps

import (
	"errors"
	"fmt"
)

// ErrTooFewFields is wrapped by FieldFormatError when a sentence is shorter
// than the fields the fix reads from it.
var ErrTooFewFields = errors.New("too few fields")

// DecodeError reports a line that could not be decoded into a Sentence.
type DecodeError struct {
	Line string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("nmea decode %q: %v", e.Line, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// FieldFormatError reports a malformed field inside an otherwise recognised
// sentence. The sentence is rejected as a whole.
type FieldFormatError struct {
	Kind  Kind
	Index int
	Value string
	Err   error
}

func (e *FieldFormatError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s sentence: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s field %d %q: %v", e.Kind, e.Index, e.Value, e.Err)
}

func (e *FieldFormatError) Unwrap() error { return e.Err }

// FormatError is returned by the fix time/date accessors when the raw value
// does not have the expected digit groups.
type FormatError struct {
	Field string
	Value string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s %q", e.Field, e.Value)
}
