package ledger

import (
	"fmt"
	"html"
	"log/slog"
	"math"
	"strings"

	"gradeflow/internal/rubric"
)

// Score is the computed grade of one submitter for a rubric filter.
type Score struct {
	Submitter string
	// Complete is false when an in-scope subitem is still ungraded. Points and
	// Comments are then meaningless.
	Complete bool
	Points   float64
	Comments []string
}

// Line renders the score as "name\tpoints\tcomments", or
// "name\tn/a\tn/a" when incomplete.
func (s Score) Line() string {
	if !s.Complete {
		return s.Submitter + "\tn/a\tn/a"
	}
	return fmt.Sprintf("%s\t%s\t%s", s.Submitter, formatPoints(s.Points), strings.Join(s.Comments, "; "))
}

// ComputeScore totals the grades of submitter over the items whose code
// starts with filter, or over every item when filter is rubric.AllCode.
// Deductive items start at their ceiling and are clamped so they can neither
// take back points earned before them nor exceed the ceiling. The policy
// chain runs only for rubric.AllCode, on complete submissions.
func (l *Ledger) ComputeScore(submitter, filter string) (Score, error) {
	e, found := l.entries[submitter]
	if !found {
		return Score{}, NewUnknownSubmitterError(submitter)
	}

	score := Score{Submitter: submitter}
	var comments []string
	total := 0.0

	for _, item := range l.rubric.Items() {
		if filter != rubric.AllCode && !strings.HasPrefix(item.Code, filter) {
			continue
		}

		for _, code := range item.SubitemCodes() {
			if g := e.Scores[code]; g == nil || !g.Graded() {
				return score, nil
			}
		}

		floor := total
		if item.Deductive() {
			total += item.DeductFrom
		}

		for i, sub := range item.Subitems {
			code := item.SubitemCode(i + 1)
			g := e.Scores[code]
			if g.Awarded() {
				total += sub.Points
			}
			if c := annotate(item, code, sub.Points, *g); c != "" {
				comments = append(comments, c)
			}
		}

		if item.Deductive() {
			total = max(floor, min(floor+item.DeductFrom, total))
		}
	}

	if filter == rubric.AllCode {
		var err error
		total, comments, err = l.chain.Apply(total, comments, e.PolicyData)
		if err != nil {
			return Score{}, fmt.Errorf("score %s: %w", submitter, err)
		}
	}

	score.Complete = true
	score.Points = max(total, 0)
	score.Comments = comments
	return score, nil
}

// annotate explains a subitem in the comment line. A subitem shows up when
// it cost the submitter points (an applied deduction or a missed addition)
// or when the grader left a comment on it.
func annotate(item *rubric.Item, code string, points float64, g Grade) string {
	applied := g.Awarded()
	comment := g.Comment()
	lost := (applied && points < 0) || (!applied && points > 0)
	if !lost && comment == "" {
		return ""
	}

	name := code
	if len(item.Subitems) == 1 {
		name = item.Code
	}

	var b strings.Builder
	if (points >= 0) == applied && comment != "" {
		fmt.Fprintf(&b, "(%s)", name)
	} else {
		fmt.Fprintf(&b, "(%s: -%s)", name, formatPoints(math.Abs(points)))
	}
	if comment != "" {
		b.WriteString(" " + comment)
	}
	return b.String()
}

// Status reports whether every listed submitter is completely graded for
// filter, and how many are. An empty list means every submitter.
func (l *Ledger) Status(filter string, submitters []string) (bool, int, error) {
	if len(submitters) == 0 {
		submitters = l.Submitters()
	}

	allGraded := true
	graded := 0
	for _, name := range submitters {
		complete, err := l.completeness(name, filter)
		if err != nil {
			return false, 0, err
		}
		if complete {
			graded++
		} else {
			allGraded = false
		}
	}
	return allGraded, graded, nil
}

func (l *Ledger) completeness(submitter, filter string) (bool, error) {
	e, found := l.entries[submitter]
	if !found {
		return false, NewUnknownSubmitterError(submitter)
	}
	for _, item := range l.rubric.Items() {
		if filter != rubric.AllCode && !strings.HasPrefix(item.Code, filter) {
			continue
		}
		for _, code := range item.SubitemCodes() {
			if g := e.Scores[code]; g == nil || !g.Graded() {
				return false, nil
			}
		}
	}
	return true, nil
}

// FinalGrade is the upload payload of one submitter.
type FinalGrade struct {
	Submitter   string  `json:"submitter"`
	PostedGrade float64 `json:"posted_grade"`
	TextComment string  `json:"text_comment"`
}

// FinalGrades computes the finalized grade of every listed submitter (all of
// them when the list is empty). Incomplete submitters are skipped.
func (l *Ledger) FinalGrades(submitters []string) ([]FinalGrade, error) {
	if len(submitters) == 0 {
		submitters = l.Submitters()
	}

	grades := make([]FinalGrade, 0, len(submitters))
	for _, name := range submitters {
		score, err := l.ComputeScore(name, rubric.AllCode)
		if err != nil {
			return nil, err
		}
		if !score.Complete {
			slog.Warn("Skipping incomplete submission", "submitter", name)
			continue
		}

		escaped := make([]string, len(score.Comments))
		for i, c := range score.Comments {
			escaped[i] = html.EscapeString(c)
		}
		grades = append(grades, FinalGrade{
			Submitter:   name,
			PostedGrade: score.Points,
			TextComment: strings.Join(escaped, "<br />"),
		})
	}
	return grades, nil
}
