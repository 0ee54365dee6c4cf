// Package tui holds everything that talks to the operator: prompts, the
// subtitle pager and the batch report.
package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Digital-Shane/episode-matcher/internal/match"
	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// Prompter asks the operator a question and returns the raw answer. A
// dismissed prompt returns match.ErrDeclined.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// NewPrompter returns an interactive prompt when in is a terminal and a
// plain line reader otherwise, so piped answers keep working.
func NewPrompter(in *os.File, out io.Writer, th theme.Theme) Prompter {
	fd := in.Fd()
	if isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd) {
		return &TeaPrompter{In: in, Out: out, Theme: th}
	}
	return NewLinePrompter(in, out)
}

// promptModel is a single-line bubbletea input.
type promptModel struct {
	question  string
	input     textinput.Model
	theme     theme.Theme
	answer    string
	done      bool
	cancelled bool
}

func newPromptModel(question string, th theme.Theme) promptModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.CharLimit = 64
	ti.Focus()
	return promptModel{question: question, input: ti, theme: th}
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			m.answer = m.input.Value()
			m.done = true
			return m, tea.Quit
		case tea.KeyEsc, tea.KeyCtrlC:
			m.cancelled = true
			return m, tea.Quit
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	question := m.theme.QuestionStyle().Render(m.question)
	switch {
	case m.done:
		return question + m.answer + "\n"
	case m.cancelled:
		return question + m.theme.MutedStyle().Render("(skipped)") + "\n"
	}
	hint := m.theme.MutedStyle().Render("enter to submit, esc to skip")
	return question + "\n" + m.input.View() + "\n" + hint + "\n"
}

// TeaPrompter runs a short-lived bubbletea program per question.
type TeaPrompter struct {
	In    io.Reader
	Out   io.Writer
	Theme theme.Theme
}

func (p *TeaPrompter) Ask(ctx context.Context, question string) (string, error) {
	prog := tea.NewProgram(newPromptModel(question, p.Theme),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
		tea.WithContext(ctx))

	final, err := prog.Run()
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to run prompt: %w", err)
	}
	m, ok := final.(promptModel)
	if !ok || m.cancelled {
		return "", match.ErrDeclined
	}
	return m.answer, nil
}

// LinePrompter reads answers line by line, for pipes and dumb terminals.
type LinePrompter struct {
	in  *bufio.Reader
	out io.Writer
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: bufio.NewReader(in), out: out}
}

func (p *LinePrompter) Ask(ctx context.Context, question string) (string, error) {
	if _, err := io.WriteString(p.out, question); err != nil {
		return "", fmt.Errorf("failed to write prompt: %w", err)
	}

	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := p.in.ReadString('\n')
		ch <- result{line, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		line := strings.TrimRight(r.line, "\r\n")
		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				if line == "" {
					return "", match.ErrDeclined
				}
				return line, nil
			}
			return "", fmt.Errorf("failed to read answer: %w", r.err)
		}
		return line, nil
	}
}
