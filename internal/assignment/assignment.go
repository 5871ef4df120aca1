package assignment

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"gradeflow/internal/configuration"
	"gradeflow/internal/latedays"
	"gradeflow/internal/ledger"
	"gradeflow/internal/policy"
	"gradeflow/internal/rubric"
	"gradeflow/internal/session"
	"gradeflow/internal/testrunner"
)

// Context is everything a grading command needs about one assignment. It
// is built once by Open and passed explicitly.
type Context struct {
	Config *configuration.AssignmentConfig
	Grader configuration.GraderConfig
	Rubric *rubric.Rubric
	Ledger *ledger.Ledger
	Roster Roster
	Cases  testrunner.Cases
	// LateDays is nil unless the chain contains the late_days policy.
	LateDays *latedays.Store
}

// Open loads the named assignment: rubric, policy chain, ledger, roster,
// test cases and, when needed, the late-days store. Every configuration
// problem is reported here.
func Open(app *configuration.AppConfig, name string) (*Context, error) {
	cfg, err := app.Assignment(name)
	if err != nil {
		return nil, err
	}

	l, err := LoadLedger(cfg)
	if err != nil {
		return nil, err
	}
	r := l.Rubric()

	c := &Context{
		Config: cfg,
		Grader: app.Grader,
		Rubric: r,
		Ledger: l,
		Roster: Roster{},
	}

	if cfg.Submissions != "" {
		if c.Roster, err = LoadRoster(cfg.Submissions); err != nil {
			return nil, fmt.Errorf("assignment %s: %w", name, err)
		}
	}

	if cfg.Tests != "" {
		if c.Cases, err = testrunner.LoadCases(cfg.Tests); err != nil {
			return nil, fmt.Errorf("assignment %s: %w", name, err)
		}
		if err := c.Cases.Validate(r); err != nil {
			return nil, fmt.Errorf("assignment %s: %w", name, err)
		}
	}

	if code := cfg.Runner.FormattingItem; code != "" {
		item, err := r.Item(code)
		if err != nil {
			return nil, fmt.Errorf("assignment %s: formatting item: %w", name, err)
		}
		if len(item.Subitems) != 1 {
			return nil, fmt.Errorf("assignment %s: formatting item %s must have exactly one subitem", name, code)
		}
		if _, found := c.Cases[code]; found {
			return nil, fmt.Errorf("assignment %s: formatting item %s must not have test cases", name, code)
		}
	}

	if cfg.HasPolicy(configuration.PolicyTypeLateDays) {
		c.LateDays, err = latedays.Open(app.LateDays.File, app.LateDays.Total, app.LateDays.LockTimeout)
		if err != nil {
			return nil, fmt.Errorf("assignment %s: %w", name, err)
		}
	}

	slog.Debug("Assignment loaded", "assignment", name, "items", len(r.Items()), "submitters", len(c.Submitters()))
	return c, nil
}

// LoadLedger loads the rubric, policy chain and ledger of an assignment,
// without anything needed only for grading.
func LoadLedger(cfg *configuration.AssignmentConfig) (*ledger.Ledger, error) {
	r, err := rubric.LoadFile(cfg.Rubric)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", cfg.Name, err)
	}

	latePenalty, _ := r.LatePenalty()
	chain, err := policy.NewChain(cfg.Policies, latePenalty)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", cfg.Name, err)
	}

	l, err := ledger.Load(cfg.Ledger, r, chain)
	if err != nil {
		return nil, fmt.Errorf("assignment %s: %w", cfg.Name, err)
	}
	return l, nil
}

// Name returns the assignment name.
func (c *Context) Name() string {
	return c.Config.Name
}

// Submitters returns the roster's submitters, or the ledger's when there is
// no roster.
func (c *Context) Submitters() []string {
	if len(c.Roster) > 0 {
		return c.Roster.Submitters()
	}
	return c.Ledger.Submitters()
}

// HasSubmitter reports whether name can be graded.
func (c *Context) HasSubmitter(name string) bool {
	if len(c.Roster) > 0 {
		_, found := c.Roster[name]
		return found
	}
	return c.Ledger.HasSubmitter(name)
}

// Handlers builds the test handlers of one submitter. Items without test
// cases get no handler and are graded by hand.
func (c *Context) Handlers(submitter string, reporter session.Reporter) (*session.Registry, error) {
	registry := session.NewRegistry()
	if len(c.Cases) == 0 {
		return registry, nil
	}

	sub, found := c.Roster[submitter]
	if !found || sub.Dir == "" {
		return nil, fmt.Errorf("submitter %s has no submission directory", submitter)
	}

	rc := c.Config.Runner
	opts := testrunner.Options{
		Dir:                     sub.Dir,
		Shell:                   "sh",
		Timeout:                 c.Grader.TestTimeout,
		CheckManuallyOnFail:     rc.CheckManuallyOnFail,
		DisableComments:         rc.DisableComments,
		MergeStderr:             rc.MergeStderr,
		AllowedFormattingErrors: rc.AllowedFormattingErrors,
	}
	if rc.Setup != "" {
		opts.Setup = func(ctx context.Context) error {
			return setup(ctx, sub.Dir, rc.Setup)
		}
	}

	runner := testrunner.New(c.Cases, opts, reporter)
	runner.Register(registry)

	if rc.FormattingItem != "" {
		item, err := c.Rubric.Item(rc.FormattingItem)
		if err != nil {
			return nil, err
		}
		registry.Register(item.Code, runner.FormattingHandler(item.Deductive()))
	}
	return registry, nil
}

func setup(ctx context.Context, dir, command string) error {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		tail := testrunner.Tail(out.String(), 5)
		return fmt.Errorf("setup %q: %w: %s", command, err, strings.Join(tail, " | "))
	}
	return nil
}

// PolicyData computes the data captured for submitter the first time they
// are graded: one entry per configured policy that has something to say.
func (c *Context) PolicyData(_ context.Context, submitter string) (map[string]any, error) {
	data := make(map[string]any, len(c.Config.Policies))
	sub, found := c.Roster[submitter]
	if !found {
		slog.Warn("Submitter is not in the roster, lateness is not checked", "assignment", c.Name(), "submitter", submitter)
	}

	deadline := c.Config.Deadline
	due, err := deadline.DueTime()
	if err != nil {
		return nil, err
	}

	for _, p := range c.Config.Policies {
		switch p.Type {
		case configuration.PolicyTypeLatePercentage:
			if found {
				data[p.Type] = sub.SubmittedAt.After(due.Add(deadline.Grace))
			}

		case configuration.PolicyTypeLateDays:
			if !found {
				continue
			}
			days := latedays.DaysLate(due, sub.SubmittedAt, deadline.Grace)
			status, err := c.LateDays.Status(c.Name(), sub.Members, days, deadline.LateDaysAllowed)
			if err != nil {
				return nil, err
			}
			if status != policy.LateStatusOK {
				slog.Info("Late submission refused", "submitter", submitter, "days", days, "status", status)
			}
			data[p.Type] = status

		case configuration.PolicyTypeEarlyLate:
			if found {
				data[p.Type] = latedays.EarlyLateOffset(due, sub.SubmittedAt, deadline.Grace, deadline.LateDaysAllowed)
			}

		case configuration.PolicyTypePlagiarism:
			if len(sub.Plagiarism) > 0 {
				data[p.Type] = sub.Plagiarism
			}

		case configuration.PolicyTypeCustomDeductions:
			if len(sub.Deductions) > 0 {
				data[p.Type] = sub.Deductions
			}

		case configuration.PolicyTypePraise:
			data[p.Type] = policy.PraiseData{TAName: c.Grader.Name, StudentNames: firstNames(sub.Names)}

		case configuration.PolicyTypeRules:
			facts := sub.Facts
			if facts == nil {
				facts = map[string]any{}
			}
			data[p.Type] = facts
		}
	}
	return data, nil
}

// firstNames keeps the first word of each display name. Students are praised
// by first name.
func firstNames(names []string) []string {
	var out []string
	for _, name := range names {
		if fields := strings.Fields(name); len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// Close persists the ledger. It is safe to call when grading was
// interrupted.
func (c *Context) Close() error {
	return c.Ledger.Persist()
}
