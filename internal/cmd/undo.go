package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/Digital-Shane/episode-matcher/internal/config"
	"github.com/Digital-Shane/episode-matcher/internal/log"
	"github.com/Digital-Shane/episode-matcher/internal/tui"
	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
	"github.com/spf13/cobra"
)

var undoCmd = &cobra.Command{
	Use:   "undo",
	Short: "Undo the most recent rename session",
	Long: `Reverse the renames made by the most recent episode-matcher run.

Each rename is restored only if the renamed file still exists and nothing has
taken its original name since. Once a session is fully undone it is removed, so
running undo again reaches the session before it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, err := journalDir()
		if err != nil {
			return err
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		return runUndo(cmd.OutOrStdout(), dir, themeFor(cfg))
	},
}

func runUndo(out io.Writer, dir string, th theme.Theme) error {
	session, results, err := log.UndoLatest(dir)
	if errors.Is(err, log.ErrNoSessions) {
		fmt.Fprintln(out, "No rename sessions found to undo.")
		return nil
	}
	if session == nil {
		return fmt.Errorf("failed to read rename journal: %w", err)
	}

	tui.RenderUndo(out, th, session, results)
	if err != nil {
		return err
	}
	for _, r := range results {
		if !r.Success {
			return fmt.Errorf("some renames could not be undone; the session was kept")
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(undoCmd)
}
