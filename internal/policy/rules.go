package policy

import (
	"encoding/json"
	"log/slog"

	"gradeflow/internal/policy/rule"
)

// Rules applies conditional adjustments expressed in CEL. Its data is the
// submitter's facts map. Each rule sees the running total left by the rules
// before it.
type Rules struct {
	rules []rule.Rule
}

// Apply adds the points and appends the comment of every matching rule.
// A rule that fails to evaluate is logged and skipped.
func (rs *Rules) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var facts map[string]any
	if err := decode(data, &facts); err != nil {
		return 0, nil, err
	}

	out := comments
	for i := range rs.rules {
		r := &rs.rules[i]
		matched, err := r.Eval(points, facts)
		if err != nil {
			slog.Error("rule eval", "error", err, "rule", r.When)
			continue
		}
		if !matched {
			continue
		}

		points += r.Points
		if r.Comment != "" {
			out = appendCopy(out, r.Comment)
		}
	}
	return points, out, nil
}

// NewRules wraps compiled rules. Rules that were never compiled are compiled
// here.
func NewRules(rules []rule.Rule) (*Rules, error) {
	for i := range rules {
		if rules[i].Compiled() {
			continue
		}
		if err := rule.Compile(rules[i : i+1]); err != nil {
			return nil, err
		}
	}
	return &Rules{rules: rules}, nil
}
