package session

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"gradeflow/internal/ledger"
	"gradeflow/internal/rubric"
)

// State is a step of the item-grading state machine.
type State int

const (
	StateIdle State = iota
	StateSelectItem
	StateResolveDependencies
	StateRunTest
	StateAwaitDecision
	StateRecord
	StateDone
)

var stateNames = [...]string{"idle", "select-item", "resolve-dependencies", "run-test", "await-decision", "record", "done"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Decision is the grader's answer after a test did not settle an item.
type Decision int

const (
	// DecisionContinue goes on to manual grading.
	DecisionContinue Decision = iota
	// DecisionRerun runs the test again.
	DecisionRerun
	// DecisionShell opens a shell, then runs the test again.
	DecisionShell
	// DecisionNextItem leaves the item ungraded.
	DecisionNextItem
	// DecisionNextSubmitter leaves the submitter. Batch sessions only.
	DecisionNextSubmitter
)

// Outcome tells the caller how a Run ended.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeNextSubmitter
)

// Prompter is the interactive side of a session.
type Prompter interface {
	// Decide asks what to do after a test did not settle item.
	Decide(ctx context.Context, item *rubric.Item, batch bool) (Decision, error)
	// Grade asks for the award and comment of the subitem at the 1-based
	// index. previous is the currently recorded grade.
	Grade(ctx context.Context, item *rubric.Item, index int, previous ledger.Grade) (bool, string, error)
	// Shell opens an interactive shell and returns when it exits.
	Shell(ctx context.Context) error
}

// Reporter receives progress messages.
type Reporter interface {
	Info(msg string)
	Success(msg string)
	Warn(msg string)
	Error(msg string)
}

// Recorder is notified of every award written to the ledger.
type Recorder interface {
	Record(ctx context.Context, award RecordedAward)
}

// RecordedAward describes one ledger write.
type RecordedAward struct {
	Submitter string
	Code      string
	Awarded   bool
	Comment   string
	// Source is "auto" for handler verdicts and "manual" for prompted grades.
	Source string
}

// PolicySource supplies the policy data captured the first time a submitter
// is graded.
type PolicySource interface {
	PolicyData(ctx context.Context, submitter string) (map[string]any, error)
}

// Options select the session mode.
type Options struct {
	// GradeOnly skips tests and dependency resolution.
	GradeOnly bool
	// TestOnly runs tests without recording anything. Graded items are not
	// skipped.
	TestOnly bool
	// Regrade does not skip graded items.
	Regrade bool
	// AutogradeOnly never prompts: unsettled items stay ungraded.
	AutogradeOnly bool
	// Batch enables DecisionNextSubmitter.
	Batch bool
}

// Config holds a session's collaborators.
type Config struct {
	Submitter string
	Rubric    *rubric.Rubric
	Ledger    *ledger.Ledger
	Handlers  *Registry
	Prompter  Prompter
	Reporter  Reporter
	// Recorder and Policies are optional.
	Recorder Recorder
	Policies PolicySource
	Options  Options
}

// Session grades one submitter against a rubric. It owns the ledger for
// its lifetime and is not safe for concurrent use.
type Session struct {
	cfg   Config
	state State

	// ran holds the items whose test ran during this session.
	ran map[*rubric.Item]bool

	nextItem      bool
	nextSubmitter bool
}

// New creates an idle Session.
func New(cfg Config) *Session {
	return &Session{
		cfg: cfg,
		ran: make(map[*rubric.Item]bool),
	}
}

// State returns the current state.
func (s *Session) State() State {
	return s.state
}

// HasRun reports whether the item's test ran during this session.
func (s *Session) HasRun(item *rubric.Item) bool {
	return s.ran[item]
}

func (s *Session) setState(state State) {
	if s.state != state {
		slog.Debug("Session state", "submitter", s.cfg.Submitter, "from", s.state, "to", state)
	}
	s.state = state
}

// Run grades the items selected by code ("ALL", a table or an item) in
// declaration order. An unknown code fails before anything is touched.
func (s *Session) Run(ctx context.Context, code string) (Outcome, error) {
	items, err := s.cfg.Rubric.Select(code)
	if err != nil {
		return OutcomeCompleted, err
	}

	s.setState(StateSelectItem)
	s.cfg.Ledger.EnsureSubmitter(s.cfg.Submitter)
	if err := s.capturePolicyData(ctx); err != nil {
		return OutcomeCompleted, err
	}

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return OutcomeCompleted, err
		}

		s.setState(StateSelectItem)
		if err := s.gradeItem(ctx, item, true); err != nil {
			return OutcomeCompleted, err
		}
		if s.nextSubmitter {
			s.setState(StateDone)
			return OutcomeNextSubmitter, nil
		}
	}

	s.setState(StateDone)
	return OutcomeCompleted, nil
}

func (s *Session) capturePolicyData(ctx context.Context) error {
	if s.cfg.Policies == nil || s.cfg.Ledger.HasPolicyData(s.cfg.Submitter) {
		return nil
	}

	data, err := s.cfg.Policies.PolicyData(ctx, s.cfg.Submitter)
	if err != nil {
		return fmt.Errorf("policy data for %s: %w", s.cfg.Submitter, err)
	}
	if _, err := s.cfg.Ledger.CapturePolicyData(s.cfg.Submitter, data); err != nil {
		return err
	}
	return s.cfg.Ledger.Persist()
}

func (s *Session) gradeItem(ctx context.Context, item *rubric.Item, skipIfGraded bool) error {
	opts := s.cfg.Options
	if !opts.TestOnly && !opts.Regrade && skipIfGraded && s.cfg.Ledger.IsItemGraded(item, s.cfg.Submitter) {
		s.cfg.Reporter.Warn(fmt.Sprintf("[ %s has been graded, skipping... ]", item.Code))
		return nil
	}

	result := NeedsManual()
	if !opts.GradeOnly {
		s.setState(StateResolveDependencies)
		if err := s.resolveDependencies(ctx, item); err != nil {
			return err
		}
		if s.nextSubmitter {
			return nil
		}

		var err error
		result, err = s.runAndDecide(ctx, item)
		if err != nil {
			return err
		}
	} else {
		s.cfg.Reporter.Success(headerLine(item))
	}

	if !opts.TestOnly && !s.nextItem && !s.nextSubmitter {
		if err := s.record(ctx, item, result); err != nil {
			return err
		}
	} else {
		s.reportGrades(item, true)
	}

	s.nextItem = false
	return nil
}

// resolveDependencies grades every has_ran dependency whose test has not
// run yet, bypassing the skip check, and warns about ungraded is_graded
// dependencies.
func (s *Session) resolveDependencies(ctx context.Context, item *rubric.Item) error {
	var pending []*rubric.Item
	for _, dep := range item.DependsOn.HasRan {
		if !s.ran[dep] {
			pending = append(pending, dep)
		}
	}

	if len(pending) > 0 {
		s.cfg.Reporter.Warn(fmt.Sprintf("[ Running %s's dependencies ]", item.Code))
		for _, dep := range pending {
			if s.ran[dep] {
				continue
			}
			if err := s.gradeItem(ctx, dep, false); err != nil {
				return err
			}
			if s.nextSubmitter {
				return nil
			}
		}
		s.setState(StateResolveDependencies)
	}

	for _, dep := range item.DependsOn.IsGraded {
		if !s.cfg.Ledger.IsItemGraded(dep, s.cfg.Submitter) {
			s.cfg.Reporter.Warn(fmt.Sprintf("[ %s depends on %s, which hasn't been graded yet ]", item.Code, dep.Code))
		}
	}
	return nil
}

// runAndDecide runs the item's handler until it settles the item or the
// grader moves on.
func (s *Session) runAndDecide(ctx context.Context, item *rubric.Item) (Result, error) {
	s.ran[item] = true

	handler, found := s.cfg.Handlers.Lookup(item.Code)
	if !found {
		s.cfg.Reporter.Success(headerLine(item))
		return NeedsManual(), nil
	}

	for {
		s.setState(StateRunTest)
		s.cfg.Reporter.Success(headerLine(item))
		for i, sub := range item.Subitems {
			s.cfg.Reporter.Info(fmt.Sprintf("%s (%sp): %s", item.SubitemCode(i+1), formatPoints(sub.Points), sub.Description))
		}

		result, err := invoke(ctx, handler)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return NeedsManual(), ctxErr
		}
		if err != nil {
			s.cfg.Reporter.Error(fmt.Sprintf("[ Exception: %v ]", err))
			slog.Warn("Test handler failed", "submitter", s.cfg.Submitter, "item", item.Code, "error", err)
			result = NeedsManual()
		}

		if result.Kind != KindNeedsManual || s.cfg.Options.AutogradeOnly {
			return result, nil
		}

		s.setState(StateAwaitDecision)
		decision, err := s.cfg.Prompter.Decide(ctx, item, s.cfg.Options.Batch)
		if err != nil {
			return result, err
		}

		switch decision {
		case DecisionRerun:
			continue
		case DecisionShell:
			if err := s.cfg.Prompter.Shell(ctx); err != nil {
				s.cfg.Reporter.Error(fmt.Sprintf("[ Shell: %v ]", err))
			}
			continue
		case DecisionNextItem:
			s.nextItem = true
		case DecisionNextSubmitter:
			if s.cfg.Options.Batch {
				s.nextSubmitter = true
			}
		}
		return result, nil
	}
}

// invoke calls h, turning a panic into an error.
func invoke(ctx context.Context, h Handler) (result Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx)
}

// record writes result to the ledger and persists it. Definite results are
// validated in full before the first write.
func (s *Session) record(ctx context.Context, item *rubric.Item, result Result) error {
	s.setState(StateRecord)
	submitter := s.cfg.Submitter

	switch result.Kind {
	case KindAllPass:
		for _, code := range item.SubitemCodes() {
			if err := s.write(ctx, code, true, "", "auto"); err != nil {
				return err
			}
		}

	case KindDefinite:
		if len(result.Verdicts) != len(item.Subitems) {
			return NewConsistencyError(item.Code, "%d verdicts for %d subitems", len(result.Verdicts), len(item.Subitems))
		}
		for i, v := range result.Verdicts {
			if v.Flag != FlagAward && v.Flag != FlagNoAward {
				return NewConsistencyError(item.Code, "verdict %d has flag %q, want %q or %q", i+1, v.Flag, FlagAward, FlagNoAward)
			}
		}
		for i, v := range result.Verdicts {
			if err := s.write(ctx, item.SubitemCode(i+1), v.Flag == FlagAward, v.Comment, "auto"); err != nil {
				return err
			}
		}

	default:
		if s.cfg.Options.AutogradeOnly {
			break
		}
		for i, sub := range item.Subitems {
			code := item.SubitemCode(i + 1)
			s.cfg.Reporter.Info(fmt.Sprintf("%s (%sp): %s", code, formatPoints(sub.Points), sub.Description))
			if sub.Points < 0 {
				s.cfg.Reporter.Error("[ DEDUCTIVE ITEM: enter 'n' if test case passed ]")
			}

			previous, err := s.cfg.Ledger.Grade(code, submitter)
			if err != nil {
				return err
			}
			s.reportGrade(code, previous, false)

			awarded, comment, err := s.cfg.Prompter.Grade(ctx, item, i+1, previous)
			if err != nil {
				return err
			}
			if err := s.write(ctx, code, awarded, comment, "manual"); err != nil {
				return err
			}
		}
	}

	if err := s.cfg.Ledger.Persist(); err != nil {
		return err
	}
	return nil
}

func (s *Session) write(ctx context.Context, code string, awarded bool, comment, source string) error {
	if err := s.cfg.Ledger.SetAward(code, s.cfg.Submitter, awarded, comment); err != nil {
		return err
	}
	if s.cfg.Recorder != nil {
		s.cfg.Recorder.Record(ctx, RecordedAward{
			Submitter: s.cfg.Submitter,
			Code:      code,
			Awarded:   awarded,
			Comment:   comment,
			Source:    source,
		})
	}
	return nil
}

func (s *Session) reportGrades(item *rubric.Item, warn bool) {
	for _, code := range item.SubitemCodes() {
		g, err := s.cfg.Ledger.Grade(code, s.cfg.Submitter)
		if err != nil {
			continue
		}
		s.reportGrade(code, g, warn)
	}
}

func (s *Session) reportGrade(code string, g ledger.Grade, warn bool) {
	switch {
	case g.Graded():
		s.cfg.Reporter.Success(fmt.Sprintf("[ (%s) Previous Grade: awarded=%t comments='%s' ]", code, g.Awarded(), g.Comment()))
	case warn:
		s.cfg.Reporter.Warn(fmt.Sprintf("[ %s hasn't been graded yet ]", code))
	}
}

func headerLine(item *rubric.Item) string {
	header := "Grading " + item.Code
	if item.Deductive() {
		header += fmt.Sprintf(" (%sp, deductive)", formatPoints(item.DeductFrom))
	}
	return header
}

func formatPoints(points float64) string {
	return strconv.FormatFloat(points, 'f', -1, 64)
}
