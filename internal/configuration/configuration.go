package configuration

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Policy types. They match the policy names used in the chain and in the
// ledger's captured policy data.
const (
	PolicyTypeLatePercentage   = "late_percentage"
	PolicyTypeLateDays         = "late_days"
	PolicyTypeEarlyLate        = "early_late"
	PolicyTypePlagiarism       = "plagiarism"
	PolicyTypeCustomDeductions = "custom_deductions"
	PolicyTypePraise           = "praise"
	PolicyTypeRules            = "rules"
)

const (
	defaultLateDaysTotal       = 5
	defaultLateDaysLockTimeout = 3 * time.Second
	defaultTestTimeout         = 10 * time.Second
	defaultGrace               = 5 * time.Minute
	defaultLateDaysAllowed     = 2
)

// AppConfig represents the complete application configuration.
type AppConfig struct {
	// Logger — logger component configuration
	Logger LoggerConfig `mapstructure:"logger"`
	// Grader — the person running grading sessions
	Grader GraderConfig `mapstructure:"grader"`
	// LateDays — shared late-days balance
	LateDays LateDaysConfig `mapstructure:"late_days"`
	// Audit — rotating log of every recorded award
	Audit AuditConfig `mapstructure:"audit"`
	// Server — gradebook export HTTP server
	Server ServerConfig `mapstructure:"server"`
	// Assignments — gradable assignments, addressed by name on the command line
	Assignments []AssignmentConfig `mapstructure:"assignments"`
}

// LoggerConfig defines logging settings.
type LoggerConfig struct {
	// Level — log level: debug, info, warn, warning, error.
	// Value is case-insensitive but checked in lowercase.
	Level string `mapstructure:"level"`
}

// GraderConfig describes the grader.
type GraderConfig struct {
	// Name — signature appended by the praise policy. Optional.
	Name string `mapstructure:"name"`
	// Shell — program started by the "shell" decision. Defaults to $SHELL.
	Shell string `mapstructure:"shell"`
	// TestTimeout — default time limit of a single test case.
	TestTimeout time.Duration `mapstructure:"test_timeout"`
}

// LateDaysConfig defines the shared late-days store.
type LateDaysConfig struct {
	// File — JSON store path. The lock lives next to it as <file>.lock.
	File string `mapstructure:"file"`
	// Total — late days every student may spend over the term (default 5).
	Total int `mapstructure:"total"`
	// LockTimeout — how long to wait for the advisory lock (default 3s).
	LockTimeout time.Duration `mapstructure:"lock_timeout"`
}

// AuditConfig defines the audit log parameters.
type AuditConfig struct {
	// Audit file path (optional)
	File string `mapstructure:"file"`
	// Maximal audit file size in megabytes (default 100)
	Size int `mapstructure:"size"`
	// Number of rotated audit files (default 20)
	Amount int `mapstructure:"amount"`
}

// ServerConfig contains HTTP server parameters.
type ServerConfig struct {
	// Address — address and port where the server will listen (e.g., ":8080").
	Address string `mapstructure:"address"`
	// Token — bearer token required by every export request.
	Token string `mapstructure:"token"`
	// AllowedOrigins — CORS origins allowed to read the export.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DeadlineConfig describes when an assignment is due.
type DeadlineConfig struct {
	// Due — RFC 3339 timestamp of the standard deadline
	Due string `mapstructure:"due"`
	// Grace — slack added to Due before a submission counts as late (default 5m)
	Grace time.Duration `mapstructure:"grace"`
	// LateDaysAllowed — days past Due after which a submission is refused (default 2)
	LateDaysAllowed int `mapstructure:"late_days_allowed"`
}

// PolicyConfig selects one policy of an assignment's chain.
type PolicyConfig struct {
	// Type — one of the PolicyType constants
	Type string `mapstructure:"type"`
	// Penalty — late_percentage fraction in [0, 1]. Falls back to the
	// rubric's late_penalty when zero.
	Penalty float64 `mapstructure:"penalty"`
	// Condition — praise CEL condition over `points`
	Condition string `mapstructure:"condition"`
	// Rules — path to the YAML rules file of the rules policy
	Rules string `mapstructure:"rules"`
}

// AssignmentConfig describes one gradable assignment.
type AssignmentConfig struct {
	// Name — assignment name, e.g. "hw3"
	Name string `mapstructure:"name"`
	// Rubric — path to the rubric YAML/JSON file
	Rubric string `mapstructure:"rubric"`
	// Ledger — path to the grade ledger JSON file
	Ledger string `mapstructure:"ledger"`
	// Tests — path to the test cases YAML file (optional)
	Tests string `mapstructure:"tests"`
	// Submissions — path to the submissions YAML file
	Submissions string `mapstructure:"submissions"`
	// Deadline — due date used by the lateness policies
	Deadline DeadlineConfig `mapstructure:"deadline"`
	// Runner — how the test cases are run
	Runner RunnerConfig `mapstructure:"runner"`
	// Policies — the policy chain, applied in order
	Policies []PolicyConfig `mapstructure:"policies"`
}

// RunnerConfig tunes the test runner of an assignment.
type RunnerConfig struct {
	// Setup — shell command run once per submission before its tests, e.g. "make"
	Setup string `mapstructure:"setup"`
	// CheckManuallyOnFail — failing cases are left to the grader
	CheckManuallyOnFail bool `mapstructure:"check_manually_on_fail"`
	// DisableComments — verdicts carry no failure comments
	DisableComments bool `mapstructure:"disable_comments"`
	// MergeStderr — stderr is compared as part of stdout
	MergeStderr bool `mapstructure:"merge_stderr"`
	// FormattingItem — single-subitem item graded from the formatting errors
	// seen by the other tests (optional)
	FormattingItem string `mapstructure:"formatting_item"`
	// AllowedFormattingErrors — formatting errors tolerated by FormattingItem
	AllowedFormattingErrors int `mapstructure:"allowed_formatting_errors"`
}

// Validate checks the correctness of the entire application configuration.
// Calls validation for each nested structure and returns the first detected error.
// Returns nil if the configuration is valid.
func (c *AppConfig) Validate() error {
	if err := c.Logger.Validate(); err != nil {
		return err
	}

	if err := c.Grader.Validate(); err != nil {
		return err
	}

	if err := c.LateDays.Validate(); err != nil {
		return err
	}

	if err := c.Audit.Validate(); err != nil {
		return err
	}

	if len(c.Assignments) == 0 {
		return errors.New("assignments: must be specified")
	}

	names := make(map[string]struct{}, len(c.Assignments))
	for i := range c.Assignments {
		a := &c.Assignments[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if _, dup := names[a.Name]; dup {
			return fmt.Errorf("assignments: duplicate name '%s'", a.Name)
		}
		names[a.Name] = struct{}{}

		if a.HasPolicy(PolicyTypeLateDays) && c.LateDays.File == "" {
			return fmt.Errorf("assignments.%s: late_days policy requires late_days.file", a.Name)
		}
	}

	return nil
}

// Assignment returns the assignment with the given name.
func (c *AppConfig) Assignment(name string) (*AssignmentConfig, error) {
	for i := range c.Assignments {
		if c.Assignments[i].Name == name {
			return &c.Assignments[i], nil
		}
	}
	return nil, fmt.Errorf("assignment '%s' is not configured", name)
}

// Validate checks the correctness of the logger configuration.
// Verifies that the log level is set and is one of the supported values.
// Supported values: debug, info, warn, warning, error (case-insensitive).
func (l *LoggerConfig) Validate() error {
	if l.Level == "" {
		return errors.New("logger.level: must be specified")
	}

	valid := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !valid[strings.ToLower(l.Level)] {
		return fmt.Errorf("logger.level: unsupported level '%s'", l.Level)
	}

	return nil
}

// Validate fills grader defaults.
func (g *GraderConfig) Validate() error {
	if g.TestTimeout < 0 {
		return errors.New("grader.test_timeout: must not be negative")
	}
	if g.TestTimeout == 0 {
		g.TestTimeout = defaultTestTimeout
	}
	return nil
}

// Validate fills late-days defaults.
func (l *LateDaysConfig) Validate() error {
	if l.Total < 0 {
		return errors.New("late_days.total: must not be negative")
	}
	if l.Total == 0 {
		l.Total = defaultLateDaysTotal
	}
	if l.LockTimeout == 0 {
		l.LockTimeout = defaultLateDaysLockTimeout
	}
	return nil
}

// Validate audit parameters
func (a *AuditConfig) Validate() error {
	if a.Amount == 0 {
		a.Amount = 20
	}

	if a.Size == 0 {
		a.Size = 100
	}

	return nil
}

// Validate checks the correctness of the server configuration.
// Only the serve command needs it.
func (s *ServerConfig) Validate() error {
	if s.Address == "" {
		return errors.New("server.address: must be specified")
	}

	if s.Token == "" {
		return errors.New("server.token: must be specified")
	}

	return nil
}

// Validate checks the correctness of an assignment and its policy chain.
func (a *AssignmentConfig) Validate() error {
	if a.Name == "" {
		return errors.New("assignments.name: must be specified")
	}
	if a.Rubric == "" {
		return fmt.Errorf("assignments.%s.rubric: must be specified", a.Name)
	}
	if a.Ledger == "" {
		return fmt.Errorf("assignments.%s.ledger: must be specified", a.Name)
	}

	if err := a.Deadline.Validate(); err != nil {
		return fmt.Errorf("assignments.%s.%w", a.Name, err)
	}

	if a.Runner.AllowedFormattingErrors < 0 {
		return fmt.Errorf("assignments.%s.runner.allowed_formatting_errors: must not be negative", a.Name)
	}
	if a.Runner.FormattingItem != "" && a.Tests == "" {
		return fmt.Errorf("assignments.%s.runner.formatting_item: requires tests", a.Name)
	}

	seen := make(map[string]struct{}, len(a.Policies))
	for i := range a.Policies {
		p := &a.Policies[i]
		if err := p.Validate(); err != nil {
			return fmt.Errorf("assignments.%s.policies: %w", a.Name, err)
		}
		if _, dup := seen[p.Type]; dup {
			return fmt.Errorf("assignments.%s.policies: duplicate policy '%s'", a.Name, p.Type)
		}
		seen[p.Type] = struct{}{}

		switch p.Type {
		case PolicyTypeLatePercentage, PolicyTypeLateDays, PolicyTypeEarlyLate:
			if a.Deadline.Due == "" {
				return fmt.Errorf("assignments.%s.deadline.due: required by %s", a.Name, p.Type)
			}
		}
	}

	return nil
}

// HasPolicy reports whether the chain contains the given policy type.
func (a *AssignmentConfig) HasPolicy(policyType string) bool {
	for _, p := range a.Policies {
		if p.Type == policyType {
			return true
		}
	}
	return false
}

// Validate checks the correctness of a policy entry.
func (p *PolicyConfig) Validate() error {
	switch p.Type {
	case PolicyTypeLatePercentage:
		if p.Penalty < 0 || p.Penalty > 1 {
			return errors.New("late_percentage: penalty must be within [0, 1]")
		}
	case PolicyTypeRules:
		if len(p.Rules) == 0 {
			return errors.New("rules: path must be specified")
		}
	case PolicyTypeLateDays, PolicyTypeEarlyLate, PolicyTypePlagiarism,
		PolicyTypeCustomDeductions, PolicyTypePraise:
	case "":
		return errors.New("policy type must be specified")
	default:
		return fmt.Errorf("unsupported policy type '%s'", p.Type)
	}

	return nil
}

// Validate checks the due date and fills deadline defaults.
func (d *DeadlineConfig) Validate() error {
	if _, err := d.DueTime(); err != nil {
		return fmt.Errorf("deadline.due: %w", err)
	}
	if d.Grace < 0 {
		return errors.New("deadline.grace: must not be negative")
	}
	if d.Grace == 0 {
		d.Grace = defaultGrace
	}
	if d.LateDaysAllowed < 0 {
		return errors.New("deadline.late_days_allowed: must not be negative")
	}
	if d.LateDaysAllowed == 0 {
		d.LateDaysAllowed = defaultLateDaysAllowed
	}
	return nil
}

// DueTime parses Due. An empty Due yields the zero time.
func (d *DeadlineConfig) DueTime() (time.Time, error) {
	if d.Due == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, d.Due)
}

// LoadConfig loads configuration from the specified file using Viper.
// Supports YAML format. Also includes environment variable loading (AutomaticEnv),
// which can override values from the file.
//
// Returns a pointer to AppConfig or an error if:
// - the file is not found or inaccessible
// - the configuration has invalid format
// - one of the sections fails validation
func LoadConfig(configPath string) (*AppConfig, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config AppConfig
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}
