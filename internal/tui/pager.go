package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
)

// DefaultPager is used when neither the config nor $PAGER name one.
const DefaultPager = "less -R"

type pagerRunFunc func(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error

// Pager shows subtitle text through an external pager program.
type Pager struct {
	Command string
	Out     io.Writer
	Theme   theme.Theme

	run pagerRunFunc
}

// NewPager resolves the pager command: the configured one, then $PAGER,
// then DefaultPager.
func NewPager(command string, out io.Writer, th theme.Theme) *Pager {
	if strings.TrimSpace(command) == "" {
		command = os.Getenv("PAGER")
	}
	if strings.TrimSpace(command) == "" {
		command = DefaultPager
	}
	return &Pager{Command: command, Out: out, Theme: th, run: runPager}
}

// Show pipes title and text into the pager and waits for it to exit. When the
// pager binary is missing the text is written to Out instead.
func (p *Pager) Show(ctx context.Context, title, text string) error {
	body := p.Theme.HeaderStyle().Render(title) + "\n\n" + text

	fields := strings.Fields(p.Command)
	if len(fields) == 0 || p.run == nil {
		_, err := io.WriteString(p.Out, body)
		return err
	}

	err := p.run(ctx, fields[0], fields[1:], strings.NewReader(body), p.Out)
	if errors.Is(err, exec.ErrNotFound) {
		_, werr := io.WriteString(p.Out, body)
		return werr
	}
	if err != nil {
		return fmt.Errorf("failed to run pager %s: %w", fields[0], err)
	}
	return nil
}

func runPager(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	cmd.Stdout = stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
