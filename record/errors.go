package record

import (
	"errors"
	"fmt"
)

// StructuralError reports a line that cannot be taken apart: the wrong
// number of fields, or a class field without a leading digit.
type StructuralError struct {
	Line   string
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("malformed record %q: %s", e.Line, e.Reason)
}

// ValidationError reports a categorical field holding a value outside its
// closed set.
type ValidationError struct {
	Field string
	Value string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("unrecognized %s value %q", e.Field, e.Value)
}

// IsStructural reports whether err (or any error it wraps) is a StructuralError.
func IsStructural(err error) bool {
	var se *StructuralError
	return errors.As(err, &se)
}

// IsValidation reports whether err (or any error it wraps) is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Kind names the kind of a record error: "structural", "validation", or
// "" for nil and unrelated errors.
func Kind(err error) string {
	switch {
	case IsStructural(err):
		return "structural"
	case IsValidation(err):
		return "validation"
	}
	return ""
}

func fieldCountReason(n int) string {
	return fmt.Sprintf("expected %d fields, got %d", NumFields, n)
}
