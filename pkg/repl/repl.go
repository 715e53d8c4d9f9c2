// Package repl implements the line oriented interactive loop: one query per
// line, "quit" to leave.
package repl

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/nstogner/triangulum/pkg/controller"
	"github.com/nstogner/triangulum/pkg/domain"
)

const (
	Banner  = "Welcome to Triangulum_Vi_01 - Your AI Research Assistant!"
	Intro   = "Ask me anything about research papers, current events, or general knowledge.\nType 'quit' to exit."
	Prompt  = "Enter your query for process (or 'quit' to exit): "
	Goodbye = "Goodbye! Thanks for using Triangulum_Vi_01."
	Exiting = "Exiting..."
)

// Answerer runs one query. *controller.Controller implements it.
type Answerer interface {
	Run(ctx context.Context, query string) (controller.Result, error)
}

// Options configures a REPL.
type Options struct {
	In  io.Reader
	Out io.Writer
	// Styled enables lipgloss styling of the output.
	Styled bool
	// ShowSteps prints the thought/action/observation turns before the
	// response.
	ShowSteps bool
}

var (
	bannerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("#25A065")).Padding(0, 1)
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("5")).Bold(true)
	stepStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true)
)

// REPL reads queries and prints answers until quit, end of input or
// cancellation.
type REPL struct {
	answerer Answerer
	in       io.Reader
	out      io.Writer
	styled   bool
	steps    bool
}

// New creates a REPL. In and Out default to stdin and stdout.
func New(a Answerer, opts Options) *REPL {
	if opts.In == nil {
		opts.In = os.Stdin
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}
	return &REPL{
		answerer: a,
		in:       opts.In,
		out:      opts.Out,
		styled:   opts.Styled,
		steps:    opts.ShowSteps,
	}
}

// IsTerminal reports whether w is a terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type line struct {
	text string
	err  error
}

// Run drives the loop. It returns nil on quit, end of input and
// cancellation, and only fails when the input cannot be read.
func (r *REPL) Run(ctx context.Context) error {
	r.printBanner()

	// Reads block, so they happen on their own goroutine and cancellation
	// is noticed between lines.
	lines := make(chan line)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(r.in)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			select {
			case lines <- line{text: sc.Text()}:
			case <-stop:
				return
			}
		}
		if err := sc.Err(); err != nil {
			select {
			case lines <- line{err: err}:
			case <-stop:
			}
		}
	}()

	for {
		fmt.Fprint(r.out, "\n"+Prompt)

		var l line
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(r.out, "\n"+Exiting)
			return nil
		case l, ok = <-lines:
		}
		if !ok {
			fmt.Fprintln(r.out, "\n"+Goodbye)
			return nil
		}
		if l.err != nil {
			return fmt.Errorf("reading input: %w", l.err)
		}

		query := strings.TrimSpace(l.text)
		if query == "" {
			continue
		}
		if strings.EqualFold(query, "quit") {
			fmt.Fprintln(r.out, "\n"+Goodbye)
			return nil
		}

		if aborted := r.answer(ctx, query); aborted {
			fmt.Fprintln(r.out, "\n"+Exiting)
			return nil
		}
	}
}

// answer runs a single query and prints the outcome. It reports whether
// the query was aborted.
func (r *REPL) answer(ctx context.Context, query string) (aborted bool) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("Query panicked", "query", query, "panic", p)
			r.printError(fmt.Errorf("%v", p))
		}
	}()

	res, err := r.answerer.Run(ctx, query)
	switch {
	case errors.Is(err, controller.ErrEmptyQuery):
		return false
	case err != nil:
		r.printError(err)
		return false
	case res.State == domain.StateAborted || ctx.Err() != nil:
		return true
	}

	if r.steps {
		r.printSteps(res.Turns)
	}
	fmt.Fprintf(r.out, "\n%s %s\n", r.style(labelStyle, "Response:"), r.renderAnswer(res.Answer))
	return false
}

func (r *REPL) printBanner() {
	fmt.Fprintf(r.out, "\n%s\n%s\n", r.style(bannerStyle, Banner), Intro)
}

func (r *REPL) printError(err error) {
	fmt.Fprintf(r.out, "\n%s\n", r.style(errorStyle, "An error occurred: "+err.Error()))
}

func (r *REPL) printSteps(turns []domain.AgentTurn) {
	for i, t := range turns {
		var sb strings.Builder
		fmt.Fprintf(&sb, "Step %d", i+1)
		if t.Thought != "" {
			fmt.Fprintf(&sb, "\nThought: %s", t.Thought)
		}
		if t.Tool != "" {
			fmt.Fprintf(&sb, "\nAction: %s\nAction Input: %s", t.Tool, t.Argument)
		}
		fmt.Fprintf(&sb, "\nObservation: %s", t.Observation)
		fmt.Fprintf(r.out, "\n%s\n", r.style(stepStyle, sb.String()))
	}
}

// renderAnswer bolds section headings when styling is on.
func (r *REPL) renderAnswer(answer string) string {
	if !r.styled {
		return answer
	}
	lines := strings.Split(answer, "\n")
	for i, l := range lines {
		if strings.HasSuffix(l, ":") && !strings.HasPrefix(l, " ") {
			lines[i] = sectionStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}

func (r *REPL) style(s lipgloss.Style, text string) string {
	if !r.styled {
		return text
	}
	return s.Render(text)
}
