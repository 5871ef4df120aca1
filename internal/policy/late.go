package policy

import (
	"encoding/json"
	"fmt"
	"math"
)

// LatePercentage multiplies a late submission's total by 1 - Penalty.
// Its data is a bool: whether the submission was late.
type LatePercentage struct {
	Penalty float64
}

// Apply rounds the penalized total to two decimals and prepends "(LATE)".
func (p LatePercentage) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var late bool
	if err := decode(data, &late); err != nil {
		return 0, nil, err
	}
	if !late || p.Penalty == 0 {
		return points, comments, nil
	}
	return math.Round(points*(1-p.Penalty)*100) / 100, prepend(comments, "(LATE)"), nil
}

// LateStatus is the outcome of checking a submission against the late-days
// allowance.
type LateStatus string

const (
	LateStatusOK         LateStatus = "ok"
	LateStatusTooLate    LateStatus = "too_late"
	LateStatusNoLateDays LateStatus = "no_late_days"
)

// LateDays zeroes submissions that were past the hard deadline or whose
// submitters ran out of late days. Its data is a LateStatus.
type LateDays struct{}

// Apply replaces the comments with the reason when the status is not ok.
func (LateDays) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var status LateStatus
	if err := decode(data, &status); err != nil {
		return 0, nil, err
	}

	switch status {
	case LateStatusOK:
		return points, comments, nil
	case LateStatusTooLate:
		return 0, []string{"Submitted past hard deadline"}, nil
	case LateStatusNoLateDays:
		return 0, []string{"Not enough late days"}, nil
	default:
		return 0, nil, fmt.Errorf("unknown late status %q", status)
	}
}

// EarlyLate rewards early and penalizes late submissions by whole points.
// Its data is the signed day offset (positive for early), or null when the
// submission missed the hard deadline.
type EarlyLate struct{}

// Apply adds the offset to the total and prepends the deadline comment.
func (EarlyLate) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var offset *int
	if err := decode(data, &offset); err != nil {
		return 0, nil, err
	}

	switch {
	case offset == nil:
		return 0, []string{"Submitted past hard deadline"}, nil
	case *offset == 0:
		return points, comments, nil
	default:
		return points + float64(*offset), prepend(comments, deadlineComment(*offset)), nil
	}
}

func deadlineComment(offset int) string {
	switch offset {
	case 2:
		return "(+2) Early deadline"
	case -1:
		return "(-1) Late deadline"
	case -2:
		return "(-2) Hard deadline"
	default:
		return fmt.Sprintf("(%+d) Custom deadline", offset)
	}
}
