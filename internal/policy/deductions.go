package policy

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Deduction is one manual adjustment recorded for a submitter.
type Deduction struct {
	Deduction float64 `json:"deduction" yaml:"deduction"`
	Comment   string  `json:"comment" yaml:"comment"`
}

// CustomDeductions applies an ordered list of Deduction entries.
type CustomDeductions struct{}

// Apply adds every deduction, prepends "(deduction) comment" entries and
// floors the result at zero.
func (CustomDeductions) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var deductions []Deduction
	if err := decode(data, &deductions); err != nil {
		return 0, nil, err
	}

	added := make([]string, 0, len(deductions))
	for _, d := range deductions {
		points += d.Deduction
		added = append(added, fmt.Sprintf("(%s) %s", FormatPoints(d.Deduction), d.Comment))
	}
	return max(0, points), prepend(comments, added...), nil
}

// FormatPoints renders a point value without trailing zeros.
func FormatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}
