// Package console is the terminal side of a grading session: coloured
// progress output and the interactive prompts.
package console

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"gradeflow/internal/ledger"
	"gradeflow/internal/rubric"
	"gradeflow/internal/session"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

var (
	colorSuccess = lipgloss.Color("#2CD7C7")
	colorWarning = lipgloss.Color("#F4D03F")
	colorError   = lipgloss.Color("#E74C3C")
	colorPrompt  = lipgloss.Color("#5DADE2")
	colorMuted   = lipgloss.Color("#7F8C8D")
)

type styles struct {
	success lipgloss.Style
	warning lipgloss.Style
	error   lipgloss.Style
	prompt  lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		success: r.NewStyle().Foreground(colorSuccess),
		warning: r.NewStyle().Foreground(colorWarning),
		error:   r.NewStyle().Foreground(colorError),
		prompt:  r.NewStyle().Foreground(colorPrompt).Bold(true),
		muted:   r.NewStyle().Foreground(colorMuted),
	}
}

// Console implements session.Reporter and session.Prompter on a pair of
// streams. Colours are only emitted when out is a terminal.
type Console struct {
	src    io.Reader
	in     *bufio.Reader
	out    io.Writer
	styles styles

	// shell is started by the shell decision, in dir.
	shell string
	dir   string

	// answers receives lines read in the background so a prompt can give
	// up when the context is cancelled. pending is set while a read is in
	// flight.
	answers chan answer
	pending bool
}

type answer struct {
	line string
	err  error
}

// New creates a Console. An empty shell falls back to $SHELL, then "sh".
func New(in io.Reader, out io.Writer, shell string) *Console {
	if shell == "" {
		shell = os.Getenv("SHELL")
	}
	if shell == "" {
		shell = "sh"
	}
	return &Console{
		src:     in,
		in:      bufio.NewReader(in),
		out:     out,
		styles:  newStyles(lipgloss.NewRenderer(out)),
		shell:   shell,
		answers: make(chan answer, 1),
	}
}

// IsTerminal reports whether f is an interactive terminal.
func IsTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// SetDir sets where the shell decision opens the shell.
func (c *Console) SetDir(dir string) {
	c.dir = dir
}

func (c *Console) println(style lipgloss.Style, msg string) {
	fmt.Fprintln(c.out, style.Render(msg))
}

func (c *Console) Info(msg string)    { fmt.Fprintln(c.out, msg) }
func (c *Console) Success(msg string) { c.println(c.styles.success, msg) }
func (c *Console) Warn(msg string)    { c.println(c.styles.warning, msg) }
func (c *Console) Error(msg string)   { c.println(c.styles.error, msg) }

// Line prints a separator.
func (c *Console) Line() {
	c.println(c.styles.muted, strings.Repeat("-", 60))
}

// ask prints prompt and reads one line. End of input is an error: there is
// nobody left to answer.
func (c *Console) ask(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprint(c.out, c.styles.prompt.Render(prompt))

	if !c.pending {
		c.pending = true
		go c.readLine()
	}

	select {
	case <-ctx.Done():
		fmt.Fprintln(c.out)
		return "", ctx.Err()
	case a := <-c.answers:
		c.pending = false
		if a.err != nil && (a.err != io.EOF || a.line == "") {
			fmt.Fprintln(c.out)
			return "", fmt.Errorf("read answer: %w", a.err)
		}
		return strings.TrimRight(a.line, "\r\n"), nil
	}
}

func (c *Console) readLine() {
	line, err := c.in.ReadString('\n')
	c.answers <- answer{line: line, err: err}
}

// Decide implements session.Prompter.
func (c *Console) Decide(ctx context.Context, _ *rubric.Item, batch bool) (session.Decision, error) {
	options := []string{"a", "s", "ni"}
	if batch {
		options = append(options, "ns")
	}

	c.Line()
	c.Warn("Run test again (a)")
	c.Warn("Open shell & run again (s)")
	c.Warn("Move to next rubric item (ni)")
	if batch {
		c.Warn("Move to next submission (ns)")
	}
	c.Warn("Continue (enter)")

	prompt := fmt.Sprintf("Enter an action [%s]: ", strings.Join(options, "|"))
	for {
		choice, err := c.ask(ctx, prompt)
		if err != nil {
			return session.DecisionContinue, err
		}

		switch strings.TrimSpace(choice) {
		case "":
			return session.DecisionContinue, nil
		case "a":
			return session.DecisionRerun, nil
		case "s":
			return session.DecisionShell, nil
		case "ni":
			return session.DecisionNextItem, nil
		case "ns":
			if batch {
				return session.DecisionNextSubmitter, nil
			}
		}
	}
}

// Grade implements session.Prompter. The subitem and its previous grade
// have already been shown by the session.
func (c *Console) Grade(ctx context.Context, _ *rubric.Item, _ int, _ ledger.Grade) (bool, string, error) {
	var award string
	for {
		input, err := c.ask(ctx, "Apply? [y/n]: ")
		if err != nil {
			return false, "", err
		}
		award = strings.ToLower(strings.TrimSpace(input))
		if award == "y" || award == "n" {
			break
		}
	}

	comment, err := c.ask(ctx, "Comments: ")
	if err != nil {
		return false, "", err
	}
	return award == "y", strings.TrimSpace(comment), nil
}

// Shell implements session.Prompter. The shell reads the console's input
// directly when it is a file, os.Stdin otherwise. No prompt read is in
// flight here; input buffered ahead of the shell is dropped and the reader
// starts afresh once the shell exits.
func (c *Console) Shell(ctx context.Context) error {
	if c.pending {
		return errors.New("shell: a prompt is still reading input")
	}
	c.in.Reset(c.src)

	stdin, ok := c.src.(*os.File)
	if !ok {
		stdin = os.Stdin
	}

	c.Warn(fmt.Sprintf("[ Opening %s, exit to run the test again ]", c.shell))
	cmd := exec.CommandContext(ctx, c.shell)
	cmd.Dir = c.dir
	cmd.Stdin = stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	err := cmd.Run()

	c.in.Reset(c.src)
	return err
}
