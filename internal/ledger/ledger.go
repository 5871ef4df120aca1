package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"gradeflow/internal/policy"
	"gradeflow/internal/rubric"
	"gradeflow/internal/utils"
)

// Grade is the recorded state of one subitem for one submitter. A nil Award
// means the subitem is not graded yet.
type Grade struct {
	Award    *bool   `json:"award"`
	Comments *string `json:"comments"`
}

// Graded reports whether an award was recorded.
func (g Grade) Graded() bool {
	return g.Award != nil
}

// Awarded reports whether the subitem was recorded as applied.
func (g Grade) Awarded() bool {
	return g.Award != nil && *g.Award
}

// Comment returns the grader's comment or "".
func (g Grade) Comment() string {
	if g.Comments == nil {
		return ""
	}
	return *g.Comments
}

type entry struct {
	PolicyData policy.Data       `json:"policy_data"`
	Scores     map[string]*Grade `json:"scores"`
}

// Ledger is the persisted map of submitter -> subitem grades of one
// assignment. It is owned by a single session and is not safe for
// concurrent use.
type Ledger struct {
	path    string
	rubric  *rubric.Rubric
	chain   policy.Chain
	entries map[string]*entry
}

// Load reads the ledger at path and reconciles it with r: codes the rubric
// no longer defines are dropped and new codes are added ungraded. A missing
// file yields an empty ledger. A nil chain behaves like policy.Null.
func Load(path string, r *rubric.Rubric, chain policy.Chain) (*Ledger, error) {
	if chain == nil {
		chain = policy.Null{}
	}
	l := &Ledger{
		path:    path,
		rubric:  r,
		chain:   chain,
		entries: make(map[string]*entry),
	}

	content, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}

	if err := json.Unmarshal(content, &l.entries); err != nil {
		return nil, fmt.Errorf("parse ledger %s: %w", path, err)
	}

	l.reconcile()
	return l, nil
}

func (l *Ledger) reconcile() {
	defined := l.rubric.SubitemCodes()
	known := make(map[string]struct{}, len(defined))
	for _, code := range defined {
		known[code] = struct{}{}
	}

	for name, e := range l.entries {
		if e == nil {
			e = &entry{}
			l.entries[name] = e
		}
		if e.Scores == nil {
			e.Scores = make(map[string]*Grade, len(defined))
		}
		for code, g := range e.Scores {
			if _, found := known[code]; !found {
				slog.Debug("Dropping subitem removed from rubric", "submitter", name, "code", code)
				delete(e.Scores, code)
				continue
			}
			if g == nil {
				e.Scores[code] = &Grade{}
			}
		}
		for _, code := range defined {
			if _, found := e.Scores[code]; !found {
				e.Scores[code] = &Grade{}
			}
		}
	}
}

// Path returns the ledger file location.
func (l *Ledger) Path() string {
	return l.path
}

// Rubric returns the rubric the ledger is reconciled against.
func (l *Ledger) Rubric() *rubric.Rubric {
	return l.rubric
}

// EnsureSubmitter creates an ungraded entry for name if it has none. It
// reports whether an entry was created.
func (l *Ledger) EnsureSubmitter(name string) bool {
	if _, found := l.entries[name]; found {
		return false
	}

	codes := l.rubric.SubitemCodes()
	scores := make(map[string]*Grade, len(codes))
	for _, code := range codes {
		scores[code] = &Grade{}
	}
	l.entries[name] = &entry{Scores: scores}
	return true
}

// HasSubmitter reports whether name has an entry.
func (l *Ledger) HasSubmitter(name string) bool {
	_, found := l.entries[name]
	return found
}

// Submitters returns every submitter in lexical order.
func (l *Ledger) Submitters() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (l *Ledger) grade(code, submitter string) (*Grade, error) {
	e, found := l.entries[submitter]
	if !found {
		return nil, NewUnknownSubmitterError(submitter)
	}
	g, found := e.Scores[code]
	if !found {
		return nil, NewUnknownSubitemError(code)
	}
	return g, nil
}

// SetAward records the award and comment of a subitem. Nothing is written to
// disk until Persist.
func (l *Ledger) SetAward(code, submitter string, awarded bool, comment string) error {
	g, err := l.grade(code, submitter)
	if err != nil {
		return err
	}
	g.Award = &awarded
	g.Comments = &comment
	return nil
}

// Grade returns a copy of the recorded grade of a subitem.
func (l *Ledger) Grade(code, submitter string) (Grade, error) {
	g, err := l.grade(code, submitter)
	if err != nil {
		return Grade{}, err
	}
	return *g, nil
}

// IsGraded reports whether the subitem has a recorded award. Unknown codes
// and submitters are reported as ungraded.
func (l *Ledger) IsGraded(code, submitter string) bool {
	g, err := l.grade(code, submitter)
	return err == nil && g.Graded()
}

// IsItemGraded reports whether every subitem of item is graded.
func (l *Ledger) IsItemGraded(item *rubric.Item, submitter string) bool {
	for _, code := range item.SubitemCodes() {
		if !l.IsGraded(code, submitter) {
			return false
		}
	}
	return true
}

// HasPolicyData reports whether policy data was captured for submitter.
func (l *Ledger) HasPolicyData(submitter string) bool {
	e, found := l.entries[submitter]
	return found && e.PolicyData != nil
}

// PolicyData returns the captured policy data of submitter, or nil.
func (l *Ledger) PolicyData(submitter string) policy.Data {
	e, found := l.entries[submitter]
	if !found {
		return nil
	}
	return e.PolicyData
}

// CapturePolicyData stores data for submitter unless something was captured
// before. It reports whether data was stored.
func (l *Ledger) CapturePolicyData(submitter string, data map[string]any) (bool, error) {
	e, found := l.entries[submitter]
	if !found {
		return false, NewUnknownSubmitterError(submitter)
	}
	if e.PolicyData != nil {
		return false, nil
	}

	captured, err := policy.NewData(data)
	if err != nil {
		return false, err
	}
	e.PolicyData = captured
	return true, nil
}

// Persist rewrites the whole ledger file atomically as indented JSON.
func (l *Ledger) Persist() error {
	err := utils.WriteFileAtomic(l.path, 0o644, func(w io.Writer) error {
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "    ")
		encoder.SetEscapeHTML(false)
		return encoder.Encode(l.entries)
	})
	if err != nil {
		return fmt.Errorf("persist ledger %s: %w", filepath.Base(l.path), err)
	}
	return nil
}
