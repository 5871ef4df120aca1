package policy

import (
	"encoding/json"
	"fmt"
)

// Stable policy names. They key both the chain and the captured policy data.
const (
	NameLatePercentage   = "late_percentage"
	NameLateDays         = "late_days"
	NameEarlyLate        = "early_late"
	NamePlagiarism       = "plagiarism"
	NameCustomDeductions = "custom_deductions"
	NamePraise           = "praise"
	NameRules            = "rules"
)

// Data maps a policy name to that policy's opaque input, captured once per
// submitter when grading starts.
type Data map[string]json.RawMessage

// NewData marshals every value of raw into a Data map.
func NewData(raw map[string]any) (Data, error) {
	data := make(Data, len(raw))
	for name, value := range raw {
		blob, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("policy data %s: %w", name, err)
		}
		data[name] = blob
	}
	return data, nil
}

// Policy adjusts a raw total and its comments using its own data blob.
// Implementations must not mutate the comments they receive.
type Policy interface {
	Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error)
}

// Chain finalizes a raw total into a submittable score.
type Chain interface {
	Apply(points float64, comments []string, data Data) (float64, []string, error)
}

// Null is the identity chain, used when no adjustment is configured.
type Null struct{}

// Apply returns its inputs unchanged.
func (Null) Apply(points float64, comments []string, _ Data) (float64, []string, error) {
	return points, comments, nil
}

// Named binds a policy to its stable name.
type Named struct {
	Name   string
	Policy Policy
}

// Composite applies its policies in declaration order. Policies without an
// entry in the data map are skipped, so ordering never depends on map
// iteration.
type Composite struct {
	policies []Named
}

// Apply runs every represented policy in order.
func (c *Composite) Apply(points float64, comments []string, data Data) (float64, []string, error) {
	out := append([]string(nil), comments...)
	for _, p := range c.policies {
		blob, found := data[p.Name]
		if !found {
			continue
		}

		var err error
		points, out, err = p.Policy.Apply(points, out, blob)
		if err != nil {
			return 0, nil, fmt.Errorf("policy %s: %w", p.Name, err)
		}
	}
	return points, out, nil
}

// Names returns the policy names in application order.
func (c *Composite) Names() []string {
	names := make([]string, len(c.policies))
	for i, p := range c.policies {
		names[i] = p.Name
	}
	return names
}

// NewComposite creates a Composite applying policies in the given order.
func NewComposite(policies ...Named) *Composite {
	return &Composite{policies: policies}
}

func decode(data json.RawMessage, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed policy data: %w", err)
	}
	return nil
}

func prepend(comments []string, first ...string) []string {
	out := make([]string, 0, len(first)+len(comments))
	out = append(out, first...)
	return append(out, comments...)
}

func appendCopy(comments []string, last ...string) []string {
	out := make([]string, 0, len(comments)+len(last))
	out = append(out, comments...)
	return append(out, last...)
}
