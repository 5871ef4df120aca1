package assignment

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gradeflow/internal/policy"

	"gopkg.in/yaml.v3"
)

// Submission is what the roster knows about one submitter.
type Submission struct {
	// Dir holds the submitted files. Relative paths are resolved against
	// the roster file.
	Dir         string    `yaml:"dir"`
	SubmittedAt time.Time `yaml:"submitted_at"`
	// Members are the students charged for late days. Defaults to the
	// submitter alone.
	Members []string `yaml:"members,omitempty"`
	// Names are the display names used by the praise policy.
	Names      []string           `yaml:"names,omitempty"`
	Plagiarism map[string]string  `yaml:"plagiarism,omitempty"`
	Deductions []policy.Deduction `yaml:"deductions,omitempty"`
	Facts      map[string]any     `yaml:"facts,omitempty"`
}

// Roster maps submitters to their submissions.
type Roster map[string]Submission

// ParseRoster decodes a roster document. base resolves relative
// submission directories.
func ParseRoster(content []byte, base string) (Roster, error) {
	roster := Roster{}
	if err := yaml.Unmarshal(content, &roster); err != nil {
		return nil, fmt.Errorf("malformed submissions: %w", err)
	}

	for name, s := range roster {
		if s.Dir != "" && !filepath.IsAbs(s.Dir) {
			s.Dir = filepath.Join(base, s.Dir)
		}
		if len(s.Members) == 0 {
			s.Members = []string{name}
		}
		roster[name] = s
	}
	return roster, nil
}

// LoadRoster reads the submissions file at path.
func LoadRoster(path string) (Roster, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseRoster(content, filepath.Dir(path))
}

// Submitters returns the roster's submitters in sorted order.
func (r Roster) Submitters() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
