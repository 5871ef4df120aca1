package policy

import (
	"fmt"

	"gradeflow/internal/configuration"
	"gradeflow/internal/policy/rule"
)

// NewChain builds the configured chain of an assignment. latePenalty is the
// rubric's reserved late_penalty, used by late_percentage when the
// configuration sets no penalty of its own. An empty configuration yields
// Null.
func NewChain(configs []configuration.PolicyConfig, latePenalty float64) (Chain, error) {
	if len(configs) == 0 {
		return Null{}, nil
	}

	policies := make([]Named, 0, len(configs))
	for _, c := range configs {
		p, err := newPolicy(c, latePenalty)
		if err != nil {
			return nil, fmt.Errorf("policy %s: %w", c.Type, err)
		}
		policies = append(policies, Named{Name: c.Type, Policy: p})
	}
	return NewComposite(policies...), nil
}

func newPolicy(c configuration.PolicyConfig, latePenalty float64) (Policy, error) {
	switch c.Type {
	case configuration.PolicyTypeLatePercentage:
		penalty := c.Penalty
		if penalty == 0 {
			penalty = latePenalty
		}
		return LatePercentage{Penalty: penalty}, nil
	case configuration.PolicyTypeLateDays:
		return LateDays{}, nil
	case configuration.PolicyTypeEarlyLate:
		return EarlyLate{}, nil
	case configuration.PolicyTypePlagiarism:
		return Plagiarism{}, nil
	case configuration.PolicyTypeCustomDeductions:
		return CustomDeductions{}, nil
	case configuration.PolicyTypePraise:
		return NewPraise(c.Condition)
	case configuration.PolicyTypeRules:
		rules, err := rule.LoadFromFile(c.Rules)
		if err != nil {
			return nil, err
		}
		return NewRules(rules)
	default:
		return nil, fmt.Errorf("unsupported policy type %q", c.Type)
	}
}
