package filters

import (
	"fmt"

	"github.com/CrowderSoup/workboard/models"
)

// UnsupportedOperatorError is returned when an operator cannot be applied
// to a field's type. The whole filter tree is rejected.
type UnsupportedOperatorError struct {
	Field     string
	FieldType models.FieldType
	Operator  models.Operator
}

func (e *UnsupportedOperatorError) Error() string {
	if e.FieldType == "" {
		return fmt.Sprintf("unsupported operator %q on field %s", e.Operator, e.Field)
	}
	return fmt.Sprintf("operator %q is not supported on %s field %s", e.Operator, e.FieldType, e.Field)
}

// InvalidFilterError is returned for malformed filter nodes or values.
type InvalidFilterError struct {
	Field  string
	Reason string
}

func (e *InvalidFilterError) Error() string {
	if e.Field == "" {
		return "invalid filter: " + e.Reason
	}
	return fmt.Sprintf("invalid filter on field %s: %s", e.Field, e.Reason)
}

// UnknownFieldReferenceError marks a reference to a field that does not
// exist (or was deleted). It is reported as a warning, never returned as a
// compile error.
type UnknownFieldReferenceError struct {
	Field string
}

func (e *UnknownFieldReferenceError) Error() string {
	return fmt.Sprintf("unknown field reference %s", e.Field)
}

// Warning is a non-fatal problem found while compiling.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func warningFor(err error, field string) Warning {
	return Warning{Field: field, Message: err.Error(), Err: err}
}
