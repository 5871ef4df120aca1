package rule

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Compile initializes every rule against a fresh environment from NewEnv.
func Compile(rules []Rule) error {
	for i := range rules {
		env, err := NewEnv()
		if err != nil {
			return err
		}

		if err := rules[i].Init(env); err != nil {
			return err
		}
	}
	return nil
}

// Parse decodes a YAML list of rules and compiles them.
func Parse(content []byte) ([]Rule, error) {
	rules := []Rule{}
	if err := yaml.Unmarshal(content, &rules); err != nil {
		return nil, err
	}

	if err := Compile(rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// LoadFromFile reads and compiles the rules stored at file.
func LoadFromFile(file string) ([]Rule, error) {
	content, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}
	return Parse(content)
}
