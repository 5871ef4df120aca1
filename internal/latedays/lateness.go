package latedays

import (
	"math"
	"time"

	"gradeflow/internal/policy"
)

const day = 24 * time.Hour

// DaysLate returns the whole days, rounded up, by which submitted missed
// due plus grace. On-time submissions are 0 days late.
func DaysLate(due, submitted time.Time, grace time.Duration) int {
	late := submitted.Sub(due.Add(grace))
	if late <= 0 {
		return 0
	}
	return int(math.Ceil(float64(late) / float64(day)))
}

// EarlyLateOffset returns the early/late bonus of a submission: +2 when it
// came at least a day before the deadline, 0 within the last day, minus the
// days late while within allowed, and nil past that.
func EarlyLateOffset(due, submitted time.Time, grace time.Duration, allowed int) *int {
	before := due.Add(grace).Sub(submitted)

	var offset int
	switch {
	case before >= day:
		offset = 2
	case before >= 0:
		offset = 0
	default:
		days := DaysLate(due, submitted, grace)
		if days > allowed {
			return nil
		}
		offset = -days
	}
	return &offset
}

// Status decides the late_days policy outcome for a submission that is
// daysLate days late and charges the late days when they are granted.
func (s *Store) Status(assignment string, students []string, daysLate, allowed int) (policy.LateStatus, error) {
	switch {
	case daysLate <= 0:
		return policy.LateStatusOK, nil
	case daysLate > allowed:
		return policy.LateStatusTooLate, nil
	}

	charged, err := s.Charge(assignment, students, daysLate)
	if err != nil {
		return "", err
	}
	if !charged {
		return policy.LateStatusNoLateDays, nil
	}
	return policy.LateStatusOK, nil
}
