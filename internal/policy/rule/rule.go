package rule

import (
	"errors"
	"fmt"

	"github.com/google/cel-go/cel"
)

// Rule is a conditional score adjustment. When is a CEL expression over the
// variables `points` (double, the running total) and `facts` (map of the
// submitter's recorded facts); when it holds, Points is added to the total
// and Comment is attached to the grade.
type Rule struct {
	// When — CEL expression defining the trigger condition.
	// Must return a boolean value.
	When string `yaml:"when" mapstructure:"when"`
	// Points — adjustment added to the total when the condition is true.
	Points float64 `yaml:"points" mapstructure:"points"`
	// Comment — text attached to the grade when the condition is true.
	Comment string `yaml:"comment" mapstructure:"comment"`
	// program — compiled CEL program used to execute the condition.
	program cel.Program
}

// ErrNotCompiled is returned by Eval on a rule that was never initialized.
var ErrNotCompiled = errors.New("rule is not compiled")

// NewEnv returns the CEL environment rules are checked against.
func NewEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("points", cel.DoubleType),
		cel.Variable("facts", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
}

// Init compiles the When expression into an executable CEL program using the
// provided env. Expressions that do not evaluate to bool are rejected.
func (r *Rule) Init(env *cel.Env) error {
	ast, iss := env.Parse(r.When)
	if iss.Err() != nil {
		return fmt.Errorf("rule %q: %w", r.When, iss.Err())
	}

	checked, iss := env.Check(ast)
	if iss.Err() != nil {
		return fmt.Errorf("rule %q: %w", r.When, iss.Err())
	}
	if !checked.OutputType().IsExactType(cel.BoolType) {
		return fmt.Errorf("rule %q: must evaluate to bool, got %s", r.When, checked.OutputType())
	}

	var err error
	r.program, err = env.Program(checked)
	if err != nil {
		return fmt.Errorf("rule %q: %w", r.When, err)
	}

	return nil
}

// Compiled reports whether Init succeeded on the rule.
func (r *Rule) Compiled() bool {
	return r.program != nil
}

// Eval runs the compiled condition. Missing facts are an evaluation error,
// not a silent false, so callers can report misconfigured rules.
func (r *Rule) Eval(points float64, facts map[string]any) (bool, error) {
	if r.program == nil {
		return false, ErrNotCompiled
	}
	if facts == nil {
		facts = map[string]any{}
	}

	result, _, err := r.program.Eval(map[string]any{
		"points": points,
		"facts":  facts,
	})
	if err != nil {
		return false, fmt.Errorf("rule %q: %w", r.When, err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule %q: non-boolean result %v", r.When, result.Value())
	}
	return matched, nil
}
