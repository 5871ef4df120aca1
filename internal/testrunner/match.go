package testrunner

import "strings"

// Matcher compares expected and received stream contents.
type Matcher interface {
	// Correct decides whether the received output is acceptable.
	Correct(expected, received string) bool
	// Exact decides whether an acceptable output is also formatted right.
	Exact(expected, received string) bool
}

// WhitespaceMatcher accepts output that differs from the expectation only
// in spaces and newlines. Such output is reported as a formatting error.
type WhitespaceMatcher struct{}

func (WhitespaceMatcher) Correct(expected, received string) bool {
	return stripBlanks(expected) == stripBlanks(received)
}

func (WhitespaceMatcher) Exact(expected, received string) bool {
	return expected == received
}

// ExactMatcher only accepts identical output.
type ExactMatcher struct{}

func (ExactMatcher) Correct(expected, received string) bool { return expected == received }
func (ExactMatcher) Exact(expected, received string) bool   { return expected == received }

var blanks = strings.NewReplacer(" ", "", "\n", "")

func stripBlanks(s string) string {
	return blanks.Replace(s)
}
