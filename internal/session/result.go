package session

import (
	"context"
	"sync"
)

// Flag is a verdict flag as produced by test handlers.
type Flag string

const (
	FlagAward   Flag = "y"
	FlagNoAward Flag = "n"
)

// Verdict is a handler's decision for one subitem.
type Verdict struct {
	Flag    Flag
	Comment string
}

// Award builds an awarding verdict.
func Award(comment string) Verdict {
	return Verdict{Flag: FlagAward, Comment: comment}
}

// NoAward builds a non-awarding verdict.
func NoAward(comment string) Verdict {
	return Verdict{Flag: FlagNoAward, Comment: comment}
}

// ResultKind tells how a handler's outcome is recorded.
type ResultKind int

const (
	// KindNeedsManual asks the grader to decide every subitem.
	KindNeedsManual ResultKind = iota
	// KindAllPass awards every subitem without comment.
	KindAllPass
	// KindDefinite carries one verdict per subitem, in order.
	KindDefinite
)

func (k ResultKind) String() string {
	switch k {
	case KindAllPass:
		return "all-pass"
	case KindDefinite:
		return "definite"
	default:
		return "needs-manual"
	}
}

// Result is the outcome of a test handler.
type Result struct {
	Kind     ResultKind
	Verdicts []Verdict
}

// AllPass awards every subitem.
func AllPass() Result {
	return Result{Kind: KindAllPass}
}

// Definite records the verdicts as given.
func Definite(verdicts ...Verdict) Result {
	return Result{Kind: KindDefinite, Verdicts: verdicts}
}

// NeedsManual defers the decision to the grader.
func NeedsManual() Result {
	return Result{Kind: KindNeedsManual}
}

// Handler runs the automated test of one rubric item.
type Handler func(ctx context.Context) (Result, error)

// Registry maps item codes to their test handlers. Items without a
// handler are graded manually.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds h to the item code, replacing any previous handler.
func (r *Registry) Register(code string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[code] = h
}

// Lookup returns the handler bound to code.
func (r *Registry) Lookup(code string) (Handler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, found := r.handlers[code]
	return h, found
}
