package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "episode-matcher [flags] <inputs...>",
	Short: "Identify TV episodes and rename the files",
	Long: `episode-matcher works out which episode of a series each video file holds and
renames it to "Series - S01E02 - Title.mkv".

By default it reads the production code shown in the closing credits (OCR of the
last seconds of video) and looks it up on TheTVDB or TMDB. With --match-mode
subtitles it shows the English subtitles in a pager and asks which episode it is.
Inputs may be .mkv files or directories.`,
	Args:          cobra.MinimumNArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMatch(cmd, args, defaultDeps())
	},
}

// usageError marks invalid flag combinations; they exit with status 2.
type usageError struct{ error }

func usagef(format string, args ...any) error {
	return usageError{fmt.Errorf(format, args...)}
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var ue usageError
	if errors.As(err, &ue) {
		return 2
	}
	return 1
}

// matchFlags holds the root command flags.
type matchFlags struct {
	show       string
	showID     int64
	noConfirm  bool
	recursive  bool
	promptSize int64
	matchMode  string
	provider   string
	preload    bool
	verbose    bool
}

var flags matchFlags

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.show, "show", "", "Search the series by name")
	f.Int64Var(&flags.showID, "show-id", 0, "Series id in the metadata service")
	f.BoolVar(&flags.noConfirm, "no-confirm", false, "Rename without asking for confirmation")
	f.BoolVarP(&flags.recursive, "recursive", "r", false, "Recurse into directories")
	f.Int64Var(&flags.promptSize, "prompt-size", 0, "Ask for a code manually for files larger than this many bytes (0 disables; default from config)")
	f.StringVar(&flags.matchMode, "match-mode", "production-code", "How to identify episodes: production-code or subtitles")
	f.StringVar(&flags.provider, "provider", "", "Metadata service: tvdb or tmdb (default from config)")
	f.BoolVar(&flags.preload, "preload", false, "Cache the full episode list before matching")
	f.BoolVar(&flags.verbose, "verbose", false, "Enable debug logging")
}
