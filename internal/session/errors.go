package session

import "fmt"

// ConsistencyError reports a handler result that does not fit the rubric
// item it was produced for. Nothing is recorded when it is returned.
type ConsistencyError struct {
	Code    string
	message string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("inconsistent result for %s: %s", e.Code, e.message)
}

// NewConsistencyError creates a ConsistencyError for the item code.
func NewConsistencyError(code, format string, args ...any) *ConsistencyError {
	return &ConsistencyError{Code: code, message: fmt.Sprintf(format, args...)}
}
