package ledger

import "fmt"

// UnknownSubmitterError is returned for submitters without a ledger entry.
type UnknownSubmitterError struct {
	Submitter string
}

func (e *UnknownSubmitterError) Error() string {
	return "submitter not found in ledger: " + e.Submitter
}

// NewUnknownSubmitterError creates an UnknownSubmitterError.
func NewUnknownSubmitterError(submitter string) *UnknownSubmitterError {
	return &UnknownSubmitterError{Submitter: submitter}
}

// UnknownSubitemError is returned for subitem codes the rubric does not
// define.
type UnknownSubitemError struct {
	Code string
}

func (e *UnknownSubitemError) Error() string {
	return "rubric subitem not found: " + e.Code
}

// NewUnknownSubitemError creates an UnknownSubitemError.
func NewUnknownSubitemError(code string) *UnknownSubitemError {
	return &UnknownSubitemError{Code: code}
}

// InsufficientDataError is returned by Stats when fewer than two complete
// submissions are in scope.
type InsufficientDataError struct {
	Count int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for statistics: %d complete submission(s)", e.Count)
}

// NewInsufficientDataError creates an InsufficientDataError.
func NewInsufficientDataError(count int) *InsufficientDataError {
	return &InsufficientDataError{Count: count}
}
