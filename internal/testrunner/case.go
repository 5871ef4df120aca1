package testrunner

import (
	"fmt"
	"os"
	"time"

	"gradeflow/internal/rubric"

	"gopkg.in/yaml.v3"
)

// Case is one subprocess test. Expectations left nil are not checked; a case
// with no expectation at all always needs a manual check.
type Case struct {
	Cmd                string        `yaml:"cmd"`
	Stdin              *string       `yaml:"stdin,omitempty"`
	ExpectedStdout     *string       `yaml:"expected_stdout,omitempty"`
	ExpectedStderr     *string       `yaml:"expected_stderr,omitempty"`
	ExpectedReturnCode *int          `yaml:"expected_return_code,omitempty"`
	Timeout            time.Duration `yaml:"timeout,omitempty"`
}

func (c *Case) autocheck() bool {
	return c.ExpectedStdout != nil || c.ExpectedStderr != nil || c.ExpectedReturnCode != nil
}

// Cases maps item codes to their ordered cases, one per subitem.
type Cases map[string][]Case

// ParseCases decodes a YAML (or JSON) cases document.
func ParseCases(content []byte) (Cases, error) {
	cases := Cases{}
	if err := yaml.Unmarshal(content, &cases); err != nil {
		return nil, fmt.Errorf("malformed test cases: %w", err)
	}

	for code, list := range cases {
		for i, c := range list {
			if c.Cmd == "" {
				return nil, fmt.Errorf("malformed test cases: %s.%d: cmd must be specified", code, i+1)
			}
		}
	}
	return cases, nil
}

// LoadCases reads the cases file at path.
func LoadCases(path string) (Cases, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseCases(content)
}

// Validate checks every code against the rubric: the item must exist and
// have exactly one subitem per case.
func (c Cases) Validate(r *rubric.Rubric) error {
	for code, list := range c {
		item, err := r.Item(code)
		if err != nil {
			return err
		}
		if len(list) != len(item.Subitems) {
			return NewCaseCountError(code, len(list), len(item.Subitems))
		}
	}
	return nil
}
