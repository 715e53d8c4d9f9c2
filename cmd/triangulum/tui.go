package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/triangulum/pkg/controller"
	"github.com/nstogner/triangulum/pkg/domain"
	"github.com/nstogner/triangulum/pkg/repl"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	stepStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

func newTUICmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Full screen terminal UI",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, f)
			if err != nil {
				return err
			}
			defer a.Close()

			p := tea.NewProgram(newTUIModel(cmd.Context(), a.controller), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			if err != nil && cmd.Context().Err() == nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), repl.Goodbye)
			return nil
		},
	}
}

type exchange struct {
	query  string
	result *controller.Result
	err    error
}

type resultMsg struct {
	result controller.Result
	err    error
}

type tuiModel struct {
	ctx      context.Context
	answerer repl.Answerer

	// cancel stops the running query, nil when idle.
	cancel context.CancelFunc

	width  int
	height int

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer

	history []exchange
}

func newTUIModel(ctx context.Context, a repl.Answerer) tuiModel {
	ta := textarea.New()
	ta.Placeholder = "Ask a research question..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 500
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent(repl.Intro)

	// A standard style avoids terminal queries that leak into the input.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return tuiModel{
		ctx:      ctx,
		answerer: a,
		viewport: vp,
		textarea: ta,
		renderer: r,
	}
}

func (m tuiModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var tiCmd, vpCmd tea.Cmd

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, tiCmd, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = max(msg.Height-m.textarea.Height()-4, 0)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			// Esc aborts the running query, or quits when idle.
			if m.cancel != nil {
				m.cancel()
				return m, nil
			}
			return m, tea.Quit
		case tea.KeyEnter:
			return m.submit()
		}

	case resultMsg:
		m.cancel = nil
		last := &m.history[len(m.history)-1]
		if msg.err != nil {
			last.err = msg.err
		} else {
			res := msg.result
			last.result = &res
		}
		m.refresh()
	}

	return m, tea.Batch(cmds...)
}

func (m tuiModel) submit() (tea.Model, tea.Cmd) {
	q := strings.TrimSpace(m.textarea.Value())
	m.textarea.Reset()
	if q == "" || m.cancel != nil {
		return m, nil
	}
	if strings.EqualFold(q, "quit") {
		return m, tea.Quit
	}

	ctx, cancel := context.WithCancel(m.ctx)
	m.cancel = cancel
	m.history = append(m.history, exchange{query: q})
	m.refresh()

	a := m.answerer
	return m, func() tea.Msg {
		defer cancel()
		res, err := a.Run(ctx, q)
		return resultMsg{result: res, err: err}
	}
}

// refresh re-renders the conversation into the viewport.
func (m *tuiModel) refresh() {
	if len(m.history) == 0 {
		m.viewport.SetContent(repl.Intro)
		return
	}
	var sb strings.Builder
	for _, ex := range m.history {
		sb.WriteString(userStyle.Render("You: "))
		sb.WriteString(ex.query)
		sb.WriteString("\n\n")

		switch {
		case ex.err != nil:
			sb.WriteString(errorStyle.Render("An error occurred: " + ex.err.Error()))
		case ex.result == nil:
			sb.WriteString(statusStyle.Render("Researching... (esc to abort)"))
		default:
			for _, t := range ex.result.Turns {
				sb.WriteString(stepStyle.Render(stepLine(t)))
				sb.WriteString("\n")
			}
			sb.WriteString(senderStyle.Render("Triangulum: "))
			sb.WriteString("\n")
			sb.WriteString(m.render(answerMarkdown(ex.result.Answer)))
		}
		sb.WriteString("\n\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *tuiModel) render(md string) string {
	if m.renderer == nil {
		return md
	}
	out, err := m.renderer.Render(md)
	if err != nil {
		slog.Debug("Markdown render failed", "error", err)
		return md
	}
	return out
}

func (m tuiModel) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render(repl.Banner),
		"",
		m.viewport.View(),
		"",
		m.textarea.View(),
	)
}

func stepLine(t domain.AgentTurn) string {
	if t.Tool == "" {
		return "• retrying after: " + firstLine(t.Observation)
	}
	return fmt.Sprintf("• %s(%q): %s", t.Tool, t.Argument, firstLine(t.Observation))
}

func firstLine(s string) string {
	s, _, _ = strings.Cut(strings.TrimSpace(s), "\n")
	return s
}

// answerMarkdown turns the "Label:" headings and indented lines of a
// formatted answer into markdown, so indentation is not read as code.
func answerMarkdown(answer string) string {
	lines := strings.Split(answer, "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "    "):
			lines[i] = strings.TrimSpace(l) + "  "
		case strings.HasSuffix(l, ":") && l != "":
			lines[i] = "**" + l + "**  "
		}
	}
	return strings.Join(lines, "\n")
}
