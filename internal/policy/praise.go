package policy

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"strings"

	"gradeflow/internal/policy/rule"
)

// DefaultPraiseCondition is used when no condition is configured.
const DefaultPraiseCondition = "points >= 93.0"

var praisePhrases = []string{"Good job", "Great work", "Nice job", "Well done", "Awesome"}

// PraiseData is the per-submitter input of the praise policy.
type PraiseData struct {
	TAName       string   `json:"ta_name,omitempty"`
	StudentNames []string `json:"student_names,omitempty"`
}

// Praise appends a congratulatory comment to high scores and signs the grade
// with the grader's name.
type Praise struct {
	condition rule.Rule
}

// Apply never changes the points. The phrase is picked from a hash of the
// data so repeated applications agree.
func (p *Praise) Apply(points float64, comments []string, data json.RawMessage) (float64, []string, error) {
	var pd PraiseData
	if err := decode(data, &pd); err != nil {
		return 0, nil, err
	}

	matched, err := p.condition.Eval(points, nil)
	if err != nil {
		return 0, nil, err
	}

	var added []string
	if matched {
		phrase := praisePhrases[phraseIndex(data)]
		if len(pd.StudentNames) > 0 {
			added = append(added, fmt.Sprintf("%s, %s!", phrase, joinNames(pd.StudentNames)))
		} else {
			added = append(added, phrase+"!")
		}
	}
	if pd.TAName != "" {
		added = append(added, "Graded by "+pd.TAName)
	}
	if len(added) == 0 {
		return points, comments, nil
	}
	return points, appendCopy(comments, added...), nil
}

// NewPraise compiles the condition, falling back to DefaultPraiseCondition.
func NewPraise(condition string) (*Praise, error) {
	if condition == "" {
		condition = DefaultPraiseCondition
	}

	env, err := rule.NewEnv()
	if err != nil {
		return nil, err
	}
	p := &Praise{condition: rule.Rule{When: condition}}
	if err := p.condition.Init(env); err != nil {
		return nil, fmt.Errorf("praise condition: %w", err)
	}
	return p, nil
}

func phraseIndex(data []byte) int {
	h := fnv.New32a()
	h.Write(data)
	return int(h.Sum32() % uint32(len(praisePhrases)))
}

// joinNames renders "A", "A and B" or "A, B, and C".
func joinNames(names []string) string {
	switch len(names) {
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + ", and " + names[len(names)-1]
	}
}
