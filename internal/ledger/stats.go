package ledger

import (
	"math"
	"sort"
	"strconv"
)

// Stats summarizes the complete scores of an assignment.
type Stats struct {
	NonZero bool    `json:"is_non_zero"`
	Count   int     `json:"count"`
	Avg     float64 `json:"avg"`
	Median  float64 `json:"median"`
	StdDev  float64 `json:"std_dev"`
}

// Stats computes the mean, median and sample standard deviation of the
// complete scores for filter. With nonZero, zero scores are left out.
func (l *Ledger) Stats(filter string, nonZero bool) (Stats, error) {
	var points []float64
	for _, name := range l.Submitters() {
		score, err := l.ComputeScore(name, filter)
		if err != nil {
			return Stats{}, err
		}
		if !score.Complete || (nonZero && score.Points <= 0) {
			continue
		}
		points = append(points, score.Points)
	}

	if len(points) < 2 {
		return Stats{}, NewInsufficientDataError(len(points))
	}

	sort.Float64s(points)
	n := float64(len(points))

	sum := 0.0
	for _, p := range points {
		sum += p
	}
	avg := sum / n

	var median float64
	if mid := len(points) / 2; len(points)%2 == 0 {
		median = (points[mid-1] + points[mid]) / 2
	} else {
		median = points[mid]
	}

	sq := 0.0
	for _, p := range points {
		sq += (p - avg) * (p - avg)
	}

	return Stats{
		NonZero: nonZero,
		Count:   len(points),
		Avg:     avg,
		Median:  median,
		StdDev:  math.Sqrt(sq / (n - 1)),
	}, nil
}

func formatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}
