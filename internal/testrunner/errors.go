package testrunner

import "fmt"

// CaseCountError is returned when an item's case list does not match its
// subitems.
type CaseCountError struct {
	Code     string
	Cases    int
	Subitems int
}

// Error returns the text description of the error.
func (e *CaseCountError) Error() string {
	return fmt.Sprintf("test cases for %s: %d cases for %d subitems", e.Code, e.Cases, e.Subitems)
}

// NewCaseCountError creates a CaseCountError.
func NewCaseCountError(code string, cases, subitems int) *CaseCountError {
	return &CaseCountError{Code: code, Cases: cases, Subitems: subitems}
}
