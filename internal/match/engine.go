// Package match decides which episode a video file holds. Each file runs
// through a small state machine; a batch runs files one after another and
// hands every outcome to a caller supplied handler.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/Digital-Shane/episode-matcher/internal/subtitle"
)

// FrameSource samples still frames from a video.
type FrameSource interface {
	Frames(ctx context.Context, path string) ([]media.Frame, error)
}

// Recognizer reads text lines off a frame.
type Recognizer interface {
	Recognize(ctx context.Context, frame media.Frame) ([]string, error)
}

// SubtitleSource decodes a file's subtitle track.
type SubtitleSource interface {
	Subtitle(ctx context.Context, path string) (subtitle.Document, error)
}

// Prompter asks the operator a free-form question.
type Prompter interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Pager displays a long text to the operator.
type Pager interface {
	Show(ctx context.Context, title, text string) error
}

// Resolver turns keys into episode records.
type Resolver interface {
	ResolveEpisode(ctx context.Context, seriesID int64, code prodcode.Code) (provider.EpisodeRecord, error)
	ResolveSeasonEpisode(ctx context.Context, seriesID int64, season, episode int) (provider.EpisodeRecord, error)
}

// Options wires an Engine.
type Options struct {
	Mode       Mode
	SeriesID   int64
	PromptSize int64

	Frames     FrameSource
	Recognizer Recognizer
	Subtitles  SubtitleSource
	Prompter   Prompter
	Pager      Pager
	Resolver   Resolver
	Logger     *slog.Logger
}

// Engine matches files against one series.
type Engine struct {
	opts   Options
	logger *slog.Logger
	stat   func(string) (os.FileInfo, error)
}

// New validates the wiring for the chosen mode.
func New(opts Options) (*Engine, error) {
	if opts.Mode == "" {
		opts.Mode = ModeProductionCode
	}
	if opts.Resolver == nil {
		return nil, errors.New("match engine requires a resolver")
	}
	switch opts.Mode {
	case ModeProductionCode:
		if opts.Frames == nil || opts.Recognizer == nil {
			return nil, errors.New("production-code mode requires a frame source and a recognizer")
		}
	case ModeSubtitles:
		if opts.Subtitles == nil || opts.Prompter == nil {
			return nil, errors.New("subtitle mode requires a subtitle source and a prompter")
		}
	default:
		return nil, fmt.Errorf("unknown match mode %q", opts.Mode)
	}
	return &Engine{
		opts:   opts,
		logger: logging.NewComponentLogger(opts.Logger, "match"),
		stat:   os.Stat,
	}, nil
}

// file holds the working data of one state machine run.
type file struct {
	path    string
	out     Outcome
	frames  []media.Frame
	cues    []subtitle.Cue
	lines   []string
	code    prodcode.Code
	season  int
	episode int
	byIndex bool
}

// Match runs the state machine for one file until it reaches a terminal state.
func (e *Engine) Match(ctx context.Context, path string) Outcome {
	f := &file{path: path, out: Outcome{Path: path}}

	state := Extracting
	for !state.Terminal() {
		f.out.Trace = append(f.out.Trace, state)
		if err := ctx.Err(); err != nil {
			state = f.fail(LookupError, err)
			continue
		}
		state = e.step(ctx, f, state)
	}
	f.out.Trace = append(f.out.Trace, state)
	f.out.State = state

	e.logger.Debug("matched file",
		slog.String("file", filepath.Base(path)),
		slog.String("state", state.String()),
		slog.String("reason", f.out.Reason.String()))
	return f.out
}

func (f *file) fail(reason FailureReason, err error) State {
	f.out.Reason = reason
	f.out.Err = err
	return Failed
}

func (e *Engine) step(ctx context.Context, f *file, state State) State {
	subtitles := e.opts.Mode == ModeSubtitles
	switch state {
	case Extracting:
		if subtitles {
			return e.extractSubtitles(ctx, f)
		}
		return e.extractFrames(ctx, f)
	case Recognizing:
		if subtitles {
			return e.recognizeCues(ctx, f)
		}
		return e.recognizeFrames(ctx, f)
	case CodeExtracted:
		f.out.Code = f.code
		return Resolving
	case CodeMissing:
		if e.promptEligible(f.path) {
			return ManualPrompt
		}
		return f.fail(NoCodeFound, nil)
	case ManualPrompt:
		if subtitles {
			return e.askSeasonEpisode(ctx, f)
		}
		return e.askCode(ctx, f)
	case Resolving:
		return e.resolve(ctx, f)
	}
	return f.fail(NoCodeFound, fmt.Errorf("unexpected state %s", state))
}

func (e *Engine) extractFrames(ctx context.Context, f *file) State {
	frames, err := e.opts.Frames.Frames(ctx, f.path)
	if err != nil {
		if errors.Is(err, media.ErrNoVideoStream) {
			return f.fail(NoVideoStream, nil)
		}
		return f.fail(NoVideoStream, err)
	}
	if len(frames) == 0 {
		return f.fail(NoVideoStream, nil)
	}
	f.frames = frames
	return Recognizing
}

func (e *Engine) recognizeFrames(ctx context.Context, f *file) State {
	for _, frame := range f.frames {
		lines, err := e.opts.Recognizer.Recognize(ctx, frame)
		if err != nil {
			e.logger.Warn("frame recognition failed", slog.String("file", filepath.Base(f.path)), slog.String("frame", frame.Name), slog.Any("error", err))
			continue
		}
		f.lines = append(f.lines, lines...)
	}
	f.frames = nil

	code, ok := prodcode.Extract(f.lines)
	if !ok {
		return CodeMissing
	}
	f.code = code
	return CodeExtracted
}

// promptEligible reports whether the file is large enough to be worth asking
// about. A zero threshold disables prompting.
func (e *Engine) promptEligible(path string) bool {
	if e.opts.PromptSize <= 0 || e.opts.Prompter == nil {
		return false
	}
	info, err := e.stat(path)
	if err != nil {
		e.logger.Debug("cannot size file", slog.String("file", filepath.Base(path)), slog.Any("error", err))
		return false
	}
	return info.Size() > e.opts.PromptSize
}

func (e *Engine) askCode(ctx context.Context, f *file) State {
	question := fmt.Sprintf("No production code found in %s. Enter a code or SxxExx (blank to skip): ", filepath.Base(f.path))
	answer, err := e.opts.Prompter.Ask(ctx, question)
	answer = strings.TrimSpace(answer)
	if err != nil || answer == "" {
		return f.fail(NoCodeFound, declined(err))
	}

	if season, episode, ok := prodcode.ParseSeasonEpisode(answer); ok {
		f.season, f.episode, f.byIndex = season, episode, true
		return Resolving
	}
	code, ok := prodcode.Canonicalize(answer)
	if !ok {
		return f.fail(NoCodeFound, nil)
	}
	f.code = code
	f.out.Code = code
	return Resolving
}

func (e *Engine) extractSubtitles(ctx context.Context, f *file) State {
	doc, err := e.opts.Subtitles.Subtitle(ctx, f.path)
	switch {
	case errors.Is(err, media.ErrNoSubtitles):
		return f.fail(NoSubtitles, nil)
	case errors.Is(err, media.ErrNoVideoStream):
		return f.fail(NoVideoStream, nil)
	case err != nil:
		return f.fail(NoSubtitles, err)
	case len(doc.Cues) == 0:
		return f.fail(NoSubtitles, nil)
	}
	f.cues = doc.Cues

	for _, c := range doc.Cues {
		if c.Image != nil {
			return Recognizing
		}
	}
	e.page(ctx, f)
	return ManualPrompt
}

func (e *Engine) recognizeCues(ctx context.Context, f *file) State {
	if e.opts.Recognizer == nil {
		return f.fail(NoSubtitles, errors.New("image subtitles need a recognizer"))
	}
	for i, c := range f.cues {
		if c.Image == nil {
			continue
		}
		lines, err := e.opts.Recognizer.Recognize(ctx, *c.Image)
		if err != nil {
			e.logger.Warn("subtitle recognition failed", slog.String("file", filepath.Base(f.path)), slog.String("frame", c.Image.Name), slog.Any("error", err))
			continue
		}
		f.cues[i].Text = subtitle.CleanOCRText(strings.Join(lines, "\n"))
	}
	e.page(ctx, f)
	return ManualPrompt
}

func (e *Engine) page(ctx context.Context, f *file) {
	var b strings.Builder
	for _, c := range f.cues {
		if c.Text == "" {
			continue
		}
		b.WriteString(c.Text)
		b.WriteString("\n\n")
	}
	f.cues = nil

	if e.opts.Pager == nil {
		return
	}
	if err := e.opts.Pager.Show(ctx, filepath.Base(f.path), b.String()); err != nil {
		e.logger.Warn("pager failed", slog.String("file", filepath.Base(f.path)), slog.Any("error", err))
	}
}

func (e *Engine) askSeasonEpisode(ctx context.Context, f *file) State {
	question := fmt.Sprintf("Which episode is %s? Enter SxxExx (blank to skip): ", filepath.Base(f.path))
	answer, err := e.opts.Prompter.Ask(ctx, question)
	if err != nil {
		return f.fail(NoCodeFound, declined(err))
	}
	season, episode, ok := prodcode.ParseSeasonEpisode(strings.TrimSpace(answer))
	if !ok {
		return f.fail(NoCodeFound, nil)
	}
	f.season, f.episode, f.byIndex = season, episode, true
	return Resolving
}

func declined(err error) error {
	if err == nil || errors.Is(err, ErrDeclined) {
		return nil
	}
	return err
}

func (e *Engine) resolve(ctx context.Context, f *file) State {
	var (
		rec provider.EpisodeRecord
		err error
	)
	if f.byIndex {
		rec, err = e.opts.Resolver.ResolveSeasonEpisode(ctx, e.opts.SeriesID, f.season, f.episode)
	} else {
		rec, err = e.opts.Resolver.ResolveEpisode(ctx, e.opts.SeriesID, f.code)
	}
	if err != nil {
		if provider.IsNotFound(err) {
			return f.fail(UnknownCode, err)
		}
		return f.fail(LookupError, err)
	}
	f.out.Record = rec
	return Resolved
}
