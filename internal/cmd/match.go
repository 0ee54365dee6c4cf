package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Digital-Shane/episode-matcher/internal/cache"
	"github.com/Digital-Shane/episode-matcher/internal/config"
	"github.com/Digital-Shane/episode-matcher/internal/log"
	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/match"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/Digital-Shane/episode-matcher/internal/ocr"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	providerinit "github.com/Digital-Shane/episode-matcher/internal/provider/init"
	"github.com/Digital-Shane/episode-matcher/internal/rename"
	"github.com/Digital-Shane/episode-matcher/internal/subtitle"
	"github.com/Digital-Shane/episode-matcher/internal/tui"
	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

// mediaTool is the ffmpeg adapter as seen by the commands.
type mediaTool interface {
	Frames(ctx context.Context, path string) ([]media.Frame, error)
	SubtitleTrack(ctx context.Context, path string) (media.Track, error)
	ExtractSubtitle(ctx context.Context, path string, track media.Track, dir string) (string, error)
}

type recognizer interface {
	match.Recognizer
	Close() error
}

// deps are the collaborators a run is built from. Tests replace them.
type deps struct {
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	loadConfig    func() (*config.Config, error)
	logDir        func() (string, error)
	newService    func(name string, opts provider.Options) (provider.Service, error)
	newMedia      func(opts media.Options) mediaTool
	newRecognizer func(lang string, logger *slog.Logger) (recognizer, error)
	newPrompter   func(th theme.Theme) tui.Prompter
	newPager      func(command string, th theme.Theme) match.Pager
}

func defaultDeps() deps {
	d := deps{
		stdin:      os.Stdin,
		stdout:     os.Stdout,
		stderr:     os.Stderr,
		loadConfig: config.Load,
		logDir:     journalDir,
		newService: func(name string, opts provider.Options) (provider.Service, error) {
			registry := provider.NewRegistry()
			if err := providerinit.LoadBuiltinProviders(registry); err != nil {
				return nil, err
			}
			return registry.New(name, opts)
		},
		newMedia: func(opts media.Options) mediaTool { return media.New(opts) },
		newRecognizer: func(lang string, logger *slog.Logger) (recognizer, error) {
			return ocr.New(lang, logger)
		},
		newPager: func(command string, th theme.Theme) match.Pager {
			return tui.NewPager(command, os.Stdout, th)
		},
	}
	d.newPrompter = func(th theme.Theme) tui.Prompter {
		return tui.NewPrompter(d.stdin, d.stdout, th)
	}
	return d
}

// journalDir is ~/.episode-matcher/logs.
func journalDir() (string, error) {
	dir, err := config.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

func runMatch(cmd *cobra.Command, args []string, d deps) error {
	f := flags
	if !cmd.Flags().Changed("prompt-size") {
		f.promptSize = -1
	}
	return run(cmd.Context(), f, args, d)
}

// run is the match command. A negative promptSize means "use the config".
func run(ctx context.Context, f matchFlags, args []string, d deps) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if (f.show == "") == (f.showID == 0) {
		return usagef("exactly one of --show or --show-id is required")
	}
	if f.showID < 0 {
		return usagef("--show-id must be positive")
	}
	mode, err := match.ParseMode(f.matchMode)
	if err != nil {
		return usageError{err}
	}

	cfg, err := d.loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if f.provider != "" {
		cfg.Provider = f.provider
	}
	if f.promptSize >= 0 {
		cfg.PromptSize = f.promptSize
	}
	if err := cfg.Validate(); err != nil {
		return usageError{err}
	}

	level := "warn"
	if f.verbose {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Writer: d.stderr})
	if err != nil {
		return err
	}

	inputs, err := media.Collect(ctx, args, f.recursive)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no %s files found in %v", media.VideoExt, args)
	}

	apiKey, err := cfg.APIKey(cfg.Provider)
	if err != nil {
		return err
	}
	svc, err := d.newService(cfg.Provider, provider.Options{APIKey: apiKey, Language: cfg.Language, Logger: logger})
	if err != nil {
		return fmt.Errorf("failed to start %s client: %w", cfg.Provider, err)
	}

	store := cache.Load(cfg.CachePath, logger)
	resolver := provider.NewResolver(svc, store, logger)

	th := themeFor(cfg)
	prompter := d.newPrompter(th)

	seriesID := f.showID
	if f.show != "" {
		matches, err := svc.SearchSeries(ctx, f.show)
		if err != nil {
			return fmt.Errorf("failed to search for %q: %w", f.show, err)
		}
		picked, err := tui.PickSeries(ctx, prompter, d.stdout, f.show, matches)
		if err != nil {
			return err
		}
		seriesID = picked.ID
	}

	seriesName, err := resolver.ResolveSeriesName(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to look up series %d: %w", seriesID, err)
	}
	fmt.Fprintf(d.stdout, "%s %s (%s %d), %d file(s)\n", th.Icon("tv"), seriesName, svc.Name(), seriesID, len(inputs))

	if f.preload {
		if _, err := resolver.Preload(ctx, seriesID); err != nil {
			if provider.IsUnauthorized(err) {
				return err
			}
			logger.Warn("preload failed, continuing with on-demand lookups", slog.Any("error", err))
		}
	}

	ff := d.newMedia(media.Options{
		TailSeconds: cfg.TailSeconds,
		FPS:         cfg.SampleFPS,
		Language:    cfg.SubtitleLanguage,
		Logger:      logger,
	})

	opts := match.Options{
		Mode:       mode,
		SeriesID:   seriesID,
		PromptSize: cfg.PromptSize,
		Frames:     ff,
		Prompter:   prompter,
		Resolver:   resolver,
		Logger:     logger,
	}
	rec, err := d.newRecognizer(cfg.SubtitleLanguage, logger)
	switch {
	case err == nil:
		defer rec.Close()
		opts.Recognizer = rec
	case mode == match.ModeProductionCode:
		return fmt.Errorf("failed to start OCR: %w", err)
	default:
		logger.Warn("OCR unavailable, image subtitles cannot be read", slog.Any("error", err))
	}
	if mode == match.ModeSubtitles {
		opts.Subtitles = subtitle.NewSource(ff, logger)
		opts.Pager = d.newPager(cfg.Pager, th)
	}

	engine, err := match.New(opts)
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg, d)
	if err != nil {
		logger.Warn("rename journal unavailable", slog.Any("error", err))
	}
	if journal != nil {
		if err := journal.StartSession(os.Args, seriesID); err != nil {
			logger.Warn("failed to start journal session", slog.Any("error", err))
		}
		defer func() {
			if _, err := journal.EndSession(); err != nil {
				logger.Warn("failed to write journal", slog.Any("error", err))
			}
		}()
	}

	var recorder rename.Recorder
	if journal != nil {
		recorder = journal
	}
	decider := rename.NewDecider(f.noConfirm, prompter, recorder, logger)
	namer := rename.Namer{Placeholder: cfg.Placeholder, Logger: logging.NewComponentLogger(logger, "rename")}
	report := tui.NewReport(d.stdout, th)

	sum := engine.Run(ctx, inputs, func(out match.Outcome) error {
		return applyOutcome(ctx, out, seriesName, namer, decider, report)
	})
	report.Render(sum)

	if sum.Fatal != nil {
		return fmt.Errorf("stopped after %d file(s): %w", sum.Total, sum.Fatal)
	}
	return nil
}

// themeFor applies the configured icon set and colors to the default theme.
func themeFor(cfg *config.Config) theme.Theme {
	var opts []theme.Option
	switch cfg.Icons {
	case config.IconsASCII:
		opts = append(opts, theme.WithIconSet(theme.ASCIIIcons()))
	case config.IconsEmoji:
		opts = append(opts, theme.WithIconSet(theme.EmojiIcons()))
	}
	if cfg.PrimaryColor != "" || cfg.AccentColor != "" {
		colors := theme.Default().Colors()
		if cfg.PrimaryColor != "" {
			colors.Primary = lipgloss.Color(cfg.PrimaryColor)
		}
		if cfg.AccentColor != "" {
			colors.Accent = lipgloss.Color(cfg.AccentColor)
		}
		opts = append(opts, theme.WithColors(colors))
	}
	return theme.New(opts...)
}

func openJournal(cfg *config.Config, d deps) (*log.Journal, error) {
	dir, err := d.logDir()
	if err != nil {
		return nil, err
	}
	return log.Open(dir, cfg.EnableLogging, cfg.LogRetentionDays)
}

// applyOutcome turns a resolved outcome into a rename and reports the file.
func applyOutcome(ctx context.Context, out match.Outcome, series string, namer rename.Namer, decider *rename.Decider, report *tui.Report) error {
	if out.State != match.Resolved {
		report.Add(out, out.Reason.String(), out.Describe())
		return nil
	}

	name, _ := namer.Filename(series, out.Record)
	dec, err := decider.Apply(ctx, out.Path, name)
	if err != nil {
		var rerr *rename.RenameIOError
		if errors.As(err, &rerr) {
			report.Add(out, "rename failed", rerr.Err.Error())
		} else {
			report.Add(out, "rename failed", err.Error())
		}
		return err
	}

	switch dec.Result {
	case rename.AlreadyNamed:
		report.Add(out, dec.Result.String(), name)
		return match.ErrSkipped
	case rename.Skipped:
		report.Add(out, dec.Result.String(), filepath.Base(dec.To))
		return match.ErrSkipped
	}
	report.Add(out, dec.Result.String(), filepath.Base(dec.To))
	return nil
}
