package testrunner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"gradeflow/internal/session"
	"gradeflow/internal/utils"
)

const (
	defaultTimeout = time.Second
	defaultShell   = "sh"
	// tailLines is how much of a mismatching output is shown to the grader.
	tailLines = 20
)

// Options configure a Runner.
type Options struct {
	// Setup prepares the submission, usually by compiling it. It runs once,
	// before the first case. A failure fails every case.
	Setup func(ctx context.Context) error
	// Dir is the working directory of every case.
	Dir string
	// Shell runs each case as `Shell -c cmd`. Defaults to "sh".
	Shell string
	// Timeout applies to cases without their own. Defaults to one second.
	Timeout time.Duration
	// CheckManuallyOnFail defers failing cases to the grader.
	CheckManuallyOnFail bool
	// DisableComments records verdicts without failure comments.
	DisableComments bool
	// MergeStderr sends stderr into stdout.
	MergeStderr bool
	// AllowedFormattingErrors is how many formatting errors the formatting
	// item tolerates.
	AllowedFormattingErrors int
	// Matcher compares streams. Defaults to WhitespaceMatcher.
	Matcher Matcher
}

// Runner runs the test cases of one submission and turns them into
// session results.
type Runner struct {
	cases    Cases
	opts     Options
	reporter session.Reporter

	setupOnce sync.Once
	setupErr  error

	neededManual bool
	formatting   []string
}

// New creates a Runner. reporter receives per-case progress.
func New(cases Cases, opts Options, reporter session.Reporter) *Runner {
	if opts.Shell == "" {
		opts.Shell = defaultShell
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Matcher == nil {
		opts.Matcher = WhitespaceMatcher{}
	}
	return &Runner{cases: cases, opts: opts, reporter: reporter}
}

// Register binds a handler to every item that has cases.
func (r *Runner) Register(registry *session.Registry) {
	for code := range r.cases {
		registry.Register(code, r.Handler(code))
	}
}

// Handler returns the session handler running the cases of code.
func (r *Runner) Handler(code string) session.Handler {
	return func(ctx context.Context) (session.Result, error) {
		return r.Run(ctx, code)
	}
}

// Run runs every case of code. The result is definite unless a case needs
// a manual check.
func (r *Runner) Run(ctx context.Context, code string) (session.Result, error) {
	cases, found := r.cases[code]
	if !found {
		return session.NeedsManual(), fmt.Errorf("no test cases for %s", code)
	}

	r.setupOnce.Do(func() {
		if r.opts.Setup != nil {
			r.setupErr = r.opts.Setup(ctx)
		}
		if r.setupErr != nil {
			slog.Warn("Setup failed", "dir", r.opts.Dir, "error", r.setupErr)
		}
	})

	verdicts := make([]session.Verdict, 0, len(cases))
	manual := false
	for i := range cases {
		subitem := fmt.Sprintf("%s.%d", code, i+1)
		if len(cases) > 1 {
			r.reporter.Info(fmt.Sprintf("[ Running %s ]", subitem))
		}

		v, ok, err := r.runCase(ctx, subitem, &cases[i])
		if err != nil {
			return session.NeedsManual(), err
		}
		if !ok {
			manual = true
			continue
		}
		verdicts = append(verdicts, v)
	}

	if manual {
		r.reporter.Warn("[ Manual Check Required ]")
		return session.NeedsManual(), nil
	}
	return session.Definite(verdicts...), nil
}

// runCase returns the verdict of one case, or ok=false when the grader has
// to decide.
func (r *Runner) runCase(ctx context.Context, subitem string, c *Case) (session.Verdict, bool, error) {
	if r.setupErr != nil {
		r.reporter.Error("[ Compilation Failed ]")
		return session.NoAward(r.comment([]string{"Compilation Failed"})), true, nil
	}

	out, err := r.execute(ctx, c)
	if err != nil {
		return session.Verdict{}, false, err
	}
	if out.timedOut {
		r.reporter.Error("[ Time Limit Exceeded ]")
		return session.NoAward(r.comment([]string{"Time Limit Exceeded"})), true, nil
	}

	var comments []string
	awarded := r.checkReturnCode(c.ExpectedReturnCode, out.code, &comments) &&
		r.checkStream(subitem, "stdout", c.ExpectedStdout, out.stdout, &comments) &&
		r.checkStream(subitem, "stderr", c.ExpectedStderr, out.stderr, &comments)

	if !c.autocheck() || (r.opts.CheckManuallyOnFail && !awarded) {
		r.neededManual = true
		return session.Verdict{}, false, nil
	}

	if awarded {
		return session.Award(r.comment(comments)), true, nil
	}
	return session.NoAward(r.comment(comments)), true, nil
}

func (r *Runner) comment(comments []string) string {
	if r.opts.DisableComments {
		return ""
	}
	return strings.Join(comments, ", ")
}

type output struct {
	stdout   string
	stderr   string
	code     int
	timedOut bool
}

func (r *Runner) execute(ctx context.Context, c *Case) (output, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.opts.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.opts.Shell, "-c", c.Cmd)
	cmd.Dir = r.opts.Dir
	cmd.WaitDelay = 500 * time.Millisecond
	if c.Stdin != nil {
		cmd.Stdin = strings.NewReader(*c.Stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if r.opts.MergeStderr {
		cmd.Stderr = &stdout
	}

	err := cmd.Run()
	out := output{stdout: stdout.String(), stderr: stderr.String()}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		out.timedOut = true
		return out, nil
	}
	if err := context.Cause(ctx); err != nil {
		return out, err
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		out.code = exitErr.ExitCode()
	default:
		return out, fmt.Errorf("run %q: %w", c.Cmd, err)
	}
	return out, nil
}

func (r *Runner) checkReturnCode(expected *int, received int, comments *[]string) bool {
	if expected == nil {
		return true
	}
	if *expected != received {
		message := fmt.Sprintf("Incorrect Return Code: Expected %d but got %d", *expected, received)
		*comments = append(*comments, message)
		r.reporter.Error("[ " + message + " ]")
		return false
	}
	r.reporter.Success("[ Return code is correct ]")
	return true
}

func (r *Runner) checkStream(subitem, stream string, expected *string, received string, comments *[]string) bool {
	if expected == nil {
		return true
	}

	if !r.opts.Matcher.Correct(*expected, received) {
		message := stream + " is incorrect"
		*comments = append(*comments, message)
		r.reporter.Error("[ " + message + " ]")
		r.showTail(stream, received)
		return false
	}

	if !r.opts.Matcher.Exact(*expected, received) {
		r.formatting = append(r.formatting, subitem)
		r.reporter.Warn(stream + " is correct but formatting is incorrect")
		r.showTail(stream, received)
	} else {
		r.reporter.Success("[ " + stream + " is correct ]")
	}
	return true
}

// showTail prints the last lines of a received stream.
func (r *Runner) showTail(stream, received string) {
	for _, line := range Tail(received, tailLines) {
		r.reporter.Info(stream + "| " + line)
	}
}

// Tail returns the last n lines of s.
func Tail(s string, n int) []string {
	s = strings.TrimSuffix(s, "\n")
	if s == "" {
		return nil
	}
	rb := utils.NewRingBuffer[string](n)
	for line := range strings.SplitSeq(s, "\n") {
		rb.Push(line)
	}
	return rb.ToSlice()
}

// FormattingErrors lists the subitems whose output was correct but badly
// formatted, in run order.
func (r *Runner) FormattingErrors() []string {
	return append([]string(nil), r.formatting...)
}

// FormattingStatus grades a single-subitem formatting item from the cases
// run so far. A deductive item is awarded (the deduction applies) when
// there were too many formatting errors.
func (r *Runner) FormattingStatus(deductive bool) session.Result {
	if r.neededManual {
		r.reporter.Warn("[ Do manual check for spacing and formatting errors ]")
		return session.NeedsManual()
	}

	if len(r.formatting) <= r.opts.AllowedFormattingErrors {
		r.reporter.Success("[ Spacing and formatting was correct ]")
		if deductive {
			return session.Definite(session.NoAward(""))
		}
		return session.Definite(session.Award(""))
	}

	r.reporter.Error("[ There were errors in spacing and formatting ]")
	comment := "Errors in spacing and formatting in: " + strings.Join(r.formatting, ", ")
	if deductive {
		return session.Definite(session.Award(comment))
	}
	return session.Definite(session.NoAward(comment))
}

// FormattingHandler wraps FormattingStatus as a session handler.
func (r *Runner) FormattingHandler(deductive bool) session.Handler {
	return func(context.Context) (session.Result, error) {
		return r.FormattingStatus(deductive), nil
	}
}
