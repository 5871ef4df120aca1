package testrunner

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gradeflow/internal/rubric"
	"gradeflow/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReporter struct {
	messages []string
}

func (r *recordingReporter) Info(msg string)    { r.messages = append(r.messages, msg) }
func (r *recordingReporter) Success(msg string) { r.messages = append(r.messages, msg) }
func (r *recordingReporter) Warn(msg string)    { r.messages = append(r.messages, msg) }
func (r *recordingReporter) Error(msg string)   { r.messages = append(r.messages, msg) }

func (r *recordingReporter) joined() string {
	return strings.Join(r.messages, "\n")
}

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh is not available")
	}
}

func ptr[T any](v T) *T {
	return &v
}

func TestRunner_Run_Definite(t *testing.T) {
	requireShell(t)
	cases := Cases{"A1": {
		{Cmd: "echo hello", ExpectedStdout: ptr("hello\n")},
		{Cmd: "echo nope", ExpectedStdout: ptr("hello\n")},
		{Cmd: "exit 3", ExpectedReturnCode: ptr(0)},
		{Cmd: "cat", Stdin: ptr("in put"), ExpectedStdout: ptr("in put"), ExpectedReturnCode: ptr(0)},
	}}
	reporter := &recordingReporter{}
	r := New(cases, Options{}, reporter)

	result, err := r.Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(
		session.Award(""),
		session.NoAward("stdout is incorrect"),
		session.NoAward("Incorrect Return Code: Expected 0 but got 3"),
		session.Award(""),
	), result)
	assert.Contains(t, reporter.joined(), "[ Running A1.2 ]")
	assert.Contains(t, reporter.joined(), "stdout| nope")
}

func TestRunner_Run_Stderr(t *testing.T) {
	requireShell(t)
	cases := Cases{"A1": {
		{Cmd: "echo oops >&2", ExpectedStderr: ptr("oops\n")},
		{Cmd: "echo oops >&2", ExpectedStdout: ptr("oops\n")},
	}}

	result, err := New(cases, Options{}, &recordingReporter{}).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.Award(""), session.NoAward("stdout is incorrect")), result)

	merged, err := New(cases, Options{MergeStderr: true}, &recordingReporter{}).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.NoAward("stderr is incorrect"), session.Award("")), merged)
}

func TestRunner_Run_Timeout(t *testing.T) {
	requireShell(t)
	cases := Cases{"A1": {{Cmd: "sleep 5", ExpectedReturnCode: ptr(0), Timeout: 100 * time.Millisecond}}}
	reporter := &recordingReporter{}

	start := time.Now()
	result, err := New(cases, Options{}, reporter).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, session.Definite(session.NoAward("Time Limit Exceeded")), result)
	assert.Contains(t, reporter.joined(), "[ Time Limit Exceeded ]")
}

func TestRunner_Run_NeedsManual(t *testing.T) {
	requireShell(t)
	reporter := &recordingReporter{}
	cases := Cases{
		"A1": {{Cmd: "echo free form"}},
		"A2": {{Cmd: "echo wrong", ExpectedStdout: ptr("right\n")}},
	}

	result, err := New(cases, Options{}, reporter).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.KindNeedsManual, result.Kind, "cases without expectations are checked by hand")
	assert.Contains(t, reporter.joined(), "[ Manual Check Required ]")

	result, err = New(cases, Options{CheckManuallyOnFail: true}, reporter).Run(context.Background(), "A2")
	require.NoError(t, err)
	assert.Equal(t, session.KindNeedsManual, result.Kind)
}

func TestRunner_Run_SetupFailure(t *testing.T) {
	requireShell(t)
	calls := 0
	opts := Options{Setup: func(context.Context) error {
		calls++
		return errors.New("make: *** [all] Error 2")
	}}
	cases := Cases{
		"A1": {{Cmd: "true", ExpectedReturnCode: ptr(0)}, {Cmd: "true", ExpectedReturnCode: ptr(0)}},
		"A2": {{Cmd: "true", ExpectedReturnCode: ptr(0)}},
	}
	r := New(cases, opts, &recordingReporter{})

	result, err := r.Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.NoAward("Compilation Failed"), session.NoAward("Compilation Failed")), result)

	_, err = r.Run(context.Background(), "A2")
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "setup runs once per submission")
}

func TestRunner_Run_DisableComments(t *testing.T) {
	requireShell(t)
	cases := Cases{"A1": {{Cmd: "exit 1", ExpectedReturnCode: ptr(0)}}}

	result, err := New(cases, Options{DisableComments: true}, &recordingReporter{}).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.NoAward("")), result)
}

func TestRunner_Run_WorkingDirectory(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "answer.txt"), []byte("42\n"), 0o600))
	cases := Cases{"A1": {{Cmd: "cat answer.txt", ExpectedStdout: ptr("42\n")}}}

	result, err := New(cases, Options{Dir: dir}, &recordingReporter{}).Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.Award("")), result)
}

func TestRunner_Run_UnknownCode(t *testing.T) {
	_, err := New(Cases{}, Options{}, &recordingReporter{}).Run(context.Background(), "A9")
	assert.Error(t, err)
}

func TestRunner_FormattingStatus(t *testing.T) {
	requireShell(t)
	cases := Cases{"A1": {
		{Cmd: "printf 'a  b'", ExpectedStdout: ptr("a b")},
		{Cmd: "printf 'a b'", ExpectedStdout: ptr("a b")},
		{Cmd: "printf 'a\\nb'", ExpectedStdout: ptr("a b")},
	}}

	r := New(cases, Options{}, &recordingReporter{})
	result, err := r.Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.Award(""), session.Award(""), session.Award("")), result,
		"blank differences do not fail a case")
	assert.Equal(t, []string{"A1.1", "A1.3"}, r.FormattingErrors())

	assert.Equal(t,
		session.Definite(session.Award("Errors in spacing and formatting in: A1.1, A1.3")),
		r.FormattingStatus(true))
	assert.Equal(t,
		session.Definite(session.NoAward("Errors in spacing and formatting in: A1.1, A1.3")),
		r.FormattingStatus(false))

	tolerant := New(cases, Options{AllowedFormattingErrors: 2}, &recordingReporter{})
	_, err = tolerant.Run(context.Background(), "A1")
	require.NoError(t, err)
	assert.Equal(t, session.Definite(session.NoAward("")), tolerant.FormattingStatus(true))
	assert.Equal(t, session.Definite(session.Award("")), tolerant.FormattingStatus(false))
}

func TestRunner_FormattingStatus_AfterManualCheck(t *testing.T) {
	requireShell(t)
	r := New(Cases{"A1": {{Cmd: "true"}}}, Options{}, &recordingReporter{})
	_, err := r.Run(context.Background(), "A1")
	require.NoError(t, err)

	result, err := r.FormattingHandler(true)(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.KindNeedsManual, result.Kind)
}

func TestRunner_Register(t *testing.T) {
	requireShell(t)
	registry := session.NewRegistry()
	r := New(Cases{"A1": {{Cmd: "true", ExpectedReturnCode: ptr(0)}}}, Options{}, &recordingReporter{})
	r.Register(registry)

	handler, found := registry.Lookup("A1")
	require.True(t, found)
	result, err := handler(context.Background())
	require.NoError(t, err)
	assert.Equal(t, session.KindDefinite, result.Kind)

	_, found = registry.Lookup("A2")
	assert.False(t, found)
}

func TestParseCases(t *testing.T) {
	content := `
A1:
  - cmd: ./hello
    expected_stdout: "hello\n"
    expected_return_code: 0
  - cmd: ./hello --loud
    stdin: "x"
    timeout: 2s
`
	cases, err := ParseCases([]byte(content))
	require.NoError(t, err)
	require.Len(t, cases["A1"], 2)

	first := cases["A1"][0]
	assert.Equal(t, "./hello", first.Cmd)
	assert.Equal(t, "hello\n", *first.ExpectedStdout)
	assert.Equal(t, 0, *first.ExpectedReturnCode)
	assert.Nil(t, first.ExpectedStderr)
	assert.True(t, first.autocheck())

	second := cases["A1"][1]
	assert.Equal(t, 2*time.Second, second.Timeout)
	assert.Equal(t, "x", *second.Stdin)
	assert.False(t, second.autocheck())

	_, err = ParseCases([]byte("A1:\n  - stdin: x\n"))
	assert.ErrorContains(t, err, "A1.1: cmd must be specified")
}

func TestLoadCases(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tests.yaml")
	require.NoError(t, os.WriteFile(path, []byte("A1:\n  - cmd: \"true\"\n"), 0o600))

	cases, err := LoadCases(path)
	require.NoError(t, err)
	assert.Len(t, cases["A1"], 1)

	_, err = LoadCases(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCases_Validate(t *testing.T) {
	r, err := rubric.Load([]byte(`
A:
  A1:
    points_per_subitem: [1, 1]
    desc_per_subitem: ["x", "y"]
`))
	require.NoError(t, err)

	ok := Cases{"A1": {{Cmd: "a"}, {Cmd: "b"}}}
	assert.NoError(t, ok.Validate(r))

	short := Cases{"A1": {{Cmd: "a"}}}
	var count *CaseCountError
	require.ErrorAs(t, short.Validate(r), &count)
	assert.Equal(t, "A1", count.Code)
	assert.Equal(t, 1, count.Cases)
	assert.Equal(t, 2, count.Subitems)

	unknown := Cases{"A7": {{Cmd: "a"}}}
	var missing *rubric.UnknownRubricItemError
	assert.ErrorAs(t, unknown.Validate(r), &missing)
}

func TestTail(t *testing.T) {
	assert.Nil(t, Tail("", 3))
	assert.Equal(t, []string{"a"}, Tail("a\n", 3))
	assert.Equal(t, []string{"c", "d", "e"}, Tail("a\nb\nc\nd\ne\n", 3))
}

func TestWhitespaceMatcher(t *testing.T) {
	m := WhitespaceMatcher{}
	assert.True(t, m.Correct("a b\n", "ab"))
	assert.False(t, m.Exact("a b\n", "ab"))
	assert.False(t, m.Correct("a\tb", "ab"), "only spaces and newlines are ignored")
	assert.False(t, ExactMatcher{}.Correct("a b", "ab"))
}
