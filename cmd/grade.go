package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"gradeflow/internal/assignment"
	"gradeflow/internal/audit"
	"gradeflow/internal/console"
	"gradeflow/internal/session"

	"github.com/spf13/cobra"
)

var gradeFlags struct {
	code          string
	gradeOnly     bool
	testOnly      bool
	regrade       bool
	autogradeOnly bool
}

var gradeCmd = &cobra.Command{
	Use:   "grade HW [SUBMITTER]",
	Short: "Grade one submission, or every submission in turn",
	Long: `Grade walks the rubric for a submitter: tests run first, and anything
the tests could not settle is asked of the grader. Without SUBMITTER every
submission of the assignment is graded in turn.

Example:
  gradeflow grade hw1 abc123 -c A2
  gradeflow grade hw1 -a`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runGrade,
}

func init() {
	f := gradeCmd.Flags()
	f.StringVarP(&gradeFlags.code, "code", "c", "ALL", "rubric code to grade: ALL, a table (A) or an item (A1)")
	f.BoolVarP(&gradeFlags.gradeOnly, "grade-only", "g", false, "skip tests and grade by hand")
	f.BoolVarP(&gradeFlags.testOnly, "test-only", "t", false, "run tests without recording grades")
	f.BoolVarP(&gradeFlags.regrade, "regrade", "r", false, "grade items that already have a grade")
	f.BoolVarP(&gradeFlags.autogradeOnly, "autograde-only", "a", false, "record test verdicts only, never prompt")
	gradeCmd.MarkFlagsMutuallyExclusive("grade-only", "test-only")
	rootCmd.AddCommand(gradeCmd)
}

func runGrade(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	code, err := normalizeCode(gradeFlags.code)
	if err != nil {
		return err
	}
	if !gradeFlags.autogradeOnly && !console.IsTerminal(os.Stdin) {
		return errors.New("interactive grading needs a terminal, use --autograde-only")
	}

	actx, err := assignment.Open(config, args[0])
	if err != nil {
		return err
	}
	defer func() {
		if err := actx.Close(); err != nil {
			slog.Error("Unable to persist ledger", "assignment", actx.Name(), "error", err)
		}
	}()

	auditLog := audit.Discard()
	if config.Audit.File != "" {
		auditLog = audit.Open(config.Audit.File, config.Audit.Size, config.Audit.Amount, actx.Name(), config.Grader.Name)
	}
	defer auditLog.Close()
	recorder := auditLog.Session()
	slog.Info("Grading session started", "assignment", actx.Name(), "session", recorder.ID(), "code", code)

	term := console.New(os.Stdin, os.Stdout, config.Grader.Shell)

	options := session.Options{
		GradeOnly:     gradeFlags.gradeOnly,
		TestOnly:      gradeFlags.testOnly,
		Regrade:       gradeFlags.regrade,
		AutogradeOnly: gradeFlags.autogradeOnly,
	}

	if len(args) == 2 {
		submitter := args[1]
		if !actx.HasSubmitter(submitter) {
			return fmt.Errorf("unknown submitter '%s' for %s", submitter, actx.Name())
		}
		return gradeSubmitter(ctx, actx, term, recorder, submitter, code, options)
	}

	options.Batch = true
	submitters := actx.Submitters()
	for i, submitter := range submitters {
		term.Line()
		term.Success(fmt.Sprintf("Grading %s", submitter))
		if err := gradeSubmitter(ctx, actx, term, recorder, submitter, code, options); err != nil {
			return err
		}
		term.Info(fmt.Sprintf("Graded %d/%d", i+1, len(submitters)))
	}
	return nil
}

// gradeSubmitter runs one session. Leaving a submitter with "ns" is not an
// error: the batch goes on with the next one.
func gradeSubmitter(ctx context.Context, actx *assignment.Context, term *console.Console, recorder session.Recorder,
	submitter, code string, options session.Options) error {
	handlers, err := actx.Handlers(submitter, term)
	if err != nil {
		return err
	}
	if sub, found := actx.Roster[submitter]; found {
		term.SetDir(sub.Dir)
	}

	s := session.New(session.Config{
		Submitter: submitter,
		Rubric:    actx.Rubric,
		Ledger:    actx.Ledger,
		Handlers:  handlers,
		Prompter:  term,
		Reporter:  term,
		Recorder:  recorder,
		Policies:  actx,
		Options:   options,
	})

	outcome, err := s.Run(ctx, code)
	if err != nil {
		return fmt.Errorf("grade %s: %w", submitter, err)
	}
	if outcome == session.OutcomeNextSubmitter {
		slog.Info("Submitter left ungraded", "submitter", submitter)
	}
	return nil
}
