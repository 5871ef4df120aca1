package rubric

import "fmt"

// MalformedRubricError is returned when a rubric definition cannot be turned
// into a consistent item tree. Code names the offending table, item or
// subitem when one can be identified.
type MalformedRubricError struct {
	Code    string
	message string
}

// Error returns the text description of the error.
func (e *MalformedRubricError) Error() string {
	if e.Code == "" {
		return "malformed rubric: " + e.message
	}
	return fmt.Sprintf("malformed rubric: %s: %s", e.Code, e.message)
}

// NewMalformedRubricError creates a MalformedRubricError for the given code.
func NewMalformedRubricError(code, format string, args ...any) *MalformedRubricError {
	return &MalformedRubricError{Code: code, message: fmt.Sprintf(format, args...)}
}

// UnknownRubricItemError is returned when a table or item lookup misses.
type UnknownRubricItemError struct {
	Code string
	Kind string
}

// Error returns the text description of the error.
func (e *UnknownRubricItemError) Error() string {
	return fmt.Sprintf("rubric %s not found: %s", e.Kind, e.Code)
}

// NewUnknownTableError creates an UnknownRubricItemError for a table code.
func NewUnknownTableError(code string) *UnknownRubricItemError {
	return &UnknownRubricItemError{Code: code, Kind: "table"}
}

// NewUnknownItemError creates an UnknownRubricItemError for an item code.
func NewUnknownItemError(code string) *UnknownRubricItemError {
	return &UnknownRubricItemError{Code: code, Kind: "item"}
}
