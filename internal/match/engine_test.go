package match

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Digital-Shane/episode-matcher/internal/cache"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/Digital-Shane/episode-matcher/internal/rename"
	"github.com/Digital-Shane/episode-matcher/internal/subtitle"
	"github.com/google/go-cmp/cmp"
)

type stubFrames struct {
	frames []media.Frame
	err    error
	calls  int
}

func (s *stubFrames) Frames(context.Context, string) ([]media.Frame, error) {
	s.calls++
	return s.frames, s.err
}

// stubRecognizer returns the text keyed by frame name.
type stubRecognizer struct {
	text  map[string][]string
	fail  map[string]bool
	calls int
}

func (s *stubRecognizer) Recognize(_ context.Context, f media.Frame) ([]string, error) {
	s.calls++
	if s.fail[f.Name] {
		return nil, errors.New("tesseract failed")
	}
	return s.text[f.Name], nil
}

type stubPrompter struct {
	answers   []string
	err       error
	questions []string
}

func (s *stubPrompter) Ask(_ context.Context, q string) (string, error) {
	s.questions = append(s.questions, q)
	if s.err != nil {
		return "", s.err
	}
	if len(s.answers) == 0 {
		return "", nil
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

type stubResolver struct {
	byCode  func(prodcode.Code) (provider.EpisodeRecord, error)
	byIndex func(season, episode int) (provider.EpisodeRecord, error)
	codes   []prodcode.Code
	indexes [][2]int
}

func (s *stubResolver) ResolveEpisode(_ context.Context, _ int64, code prodcode.Code) (provider.EpisodeRecord, error) {
	s.codes = append(s.codes, code)
	return s.byCode(code)
}

func (s *stubResolver) ResolveSeasonEpisode(_ context.Context, _ int64, season, episode int) (provider.EpisodeRecord, error) {
	s.indexes = append(s.indexes, [2]int{season, episode})
	return s.byIndex(season, episode)
}

func (s *stubResolver) calls() int { return len(s.codes) + len(s.indexes) }

var twoFathers = provider.EpisodeRecord{Season: 6, Episode: 8, Title: "Two Fathers"}

func knownResolver() *stubResolver {
	return &stubResolver{
		byCode: func(c prodcode.Code) (provider.EpisodeRecord, error) {
			if c == "6ABX08" {
				return twoFathers, nil
			}
			return provider.EpisodeRecord{}, provider.NewNotFound("stub", "no code %s", c)
		},
		byIndex: func(season, episode int) (provider.EpisodeRecord, error) {
			if season == 6 && episode == 8 {
				return twoFathers, nil
			}
			return provider.EpisodeRecord{}, provider.NewNotFound("stub", "no S%02dE%02d", season, episode)
		},
	}
}

func frames(names ...string) []media.Frame {
	out := make([]media.Frame, len(names))
	for i, n := range names {
		out[i] = media.Frame{Name: n}
	}
	return out
}

func newEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	e, err := New(opts)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

// sizedFile creates a file of n bytes.
func sizedFile(t *testing.T, n int) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "episode.mkv")
	if err := os.WriteFile(p, make([]byte, n), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEndToEndProductionCode(t *testing.T) {
	t.Parallel()
	svc := &countingService{
		name:    "Show Name",
		records: map[prodcode.Code]provider.EpisodeRecord{"6ABX08": twoFathers},
	}
	store := cache.New(filepath.Join(t.TempDir(), "cache.json"), nil)
	resolver := provider.NewResolver(svc, store, nil)

	rec := &stubRecognizer{text: map[string][]string{
		"f1": {"random"},
		"f2": {"#6ABX08 noise"},
		"f3": {"#6ABX08"},
	}}
	e := newEngine(t, Options{
		SeriesID:   77398,
		Frames:     &stubFrames{frames: frames("f1", "f2", "f3")},
		Recognizer: rec,
		Resolver:   resolver,
	})

	out := e.Match(context.Background(), "/videos/file.mkv")
	if out.State != Resolved {
		t.Fatalf("Match() = %+v", out)
	}
	if diff := cmp.Diff([]prodcode.Code{"6ABX08"}, svc.codeCalls); diff != "" {
		t.Errorf("service calls mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]State{Extracting, Recognizing, CodeExtracted, Resolving, Resolved}, out.Trace); diff != "" {
		t.Errorf("Trace mismatch (-want +got):\n%s", diff)
	}

	series, err := resolver.ResolveSeriesName(context.Background(), 77398)
	if err != nil {
		t.Fatalf("ResolveSeriesName() error = %v", err)
	}
	name, _ := rename.Filename(series, out.Record)
	if name != "Show Name - S06E08 - Two Fathers.mkv" {
		t.Errorf("proposed name = %q", name)
	}
}

type countingService struct {
	name      string
	records   map[prodcode.Code]provider.EpisodeRecord
	codeCalls []prodcode.Code
}

func (s *countingService) Name() string { return "counting" }

func (s *countingService) SeriesName(context.Context, int64) (string, error) { return s.name, nil }

func (s *countingService) EpisodeByCode(_ context.Context, _ int64, code prodcode.Code) (provider.EpisodeRecord, error) {
	s.codeCalls = append(s.codeCalls, code)
	if rec, ok := s.records[code]; ok {
		return rec, nil
	}
	return provider.EpisodeRecord{}, provider.NewNotFound("counting", "no %s", code)
}

func (s *countingService) EpisodeBySeasonEpisode(context.Context, int64, int, int) (provider.EpisodeRecord, error) {
	return provider.EpisodeRecord{}, provider.NewNotFound("counting", "unused")
}

func (s *countingService) SearchSeries(context.Context, string) ([]provider.SeriesMatch, error) {
	return nil, nil
}

func TestNoVideoStream(t *testing.T) {
	t.Parallel()
	tests := map[string]*stubFrames{
		"zero frames": {},
		"sentinel":    {err: media.ErrNoVideoStream},
		"wrapped":     {err: errors.Join(errors.New("probe"), media.ErrNoVideoStream)},
	}
	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rec := &stubRecognizer{}
			res := knownResolver()
			prompt := &stubPrompter{answers: []string{"6ABX08"}}
			e := newEngine(t, Options{Frames: src, Recognizer: rec, Resolver: res, Prompter: prompt, PromptSize: 1})

			out := e.Match(context.Background(), sizedFile(t, 100))
			if out.State != Failed || out.Reason != NoVideoStream {
				t.Errorf("Match() = %v/%v, want failed/no video stream", out.State, out.Reason)
			}
			if rec.calls != 0 || res.calls() != 0 || len(prompt.questions) != 0 {
				t.Errorf("recognizer %d, resolver %d, prompts %d calls; want none", rec.calls, res.calls(), len(prompt.questions))
			}
		})
	}
}

func TestRecognitionErrorsAreSkipped(t *testing.T) {
	t.Parallel()
	rec := &stubRecognizer{
		text: map[string][]string{"f2": {"#6ABX08"}},
		fail: map[string]bool{"f1": true},
	}
	e := newEngine(t, Options{Frames: &stubFrames{frames: frames("f1", "f2")}, Recognizer: rec, Resolver: knownResolver()})

	out := e.Match(context.Background(), "x.mkv")
	if out.State != Resolved || out.Code != "6ABX08" {
		t.Errorf("Match() = %+v", out)
	}
	if rec.calls != 2 {
		t.Errorf("recognizer calls = %d, want 2", rec.calls)
	}
}

func TestPromptSizeThreshold(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		size       int
		promptSize int64
		wantPrompt bool
		wantState  State
		wantReason FailureReason
	}{
		{name: "larger than threshold prompts", size: 11, promptSize: 10, wantPrompt: true, wantState: Resolved},
		{name: "equal to threshold fails", size: 10, promptSize: 10, wantState: Failed, wantReason: NoCodeFound},
		{name: "zero disables", size: 1000, promptSize: 0, wantState: Failed, wantReason: NoCodeFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			prompt := &stubPrompter{answers: []string{"#6abx08"}}
			e := newEngine(t, Options{
				Frames:     &stubFrames{frames: frames("f1")},
				Recognizer: &stubRecognizer{text: map[string][]string{"f1": {"THE END"}}},
				Resolver:   knownResolver(),
				Prompter:   prompt,
				PromptSize: tt.promptSize,
			})

			out := e.Match(context.Background(), sizedFile(t, tt.size))
			if out.State != tt.wantState || out.Reason != tt.wantReason {
				t.Errorf("Match() = %v/%v, want %v/%v", out.State, out.Reason, tt.wantState, tt.wantReason)
			}
			if got := len(prompt.questions) > 0; got != tt.wantPrompt {
				t.Errorf("prompted = %v, want %v", got, tt.wantPrompt)
			}
		})
	}
}

func TestManualPrompt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name        string
		prompt      *stubPrompter
		wantState   State
		wantReason  FailureReason
		wantCodes   []prodcode.Code
		wantIndexes [][2]int
	}{
		{
			name:      "production code",
			prompt:    &stubPrompter{answers: []string{" #6abx08 "}},
			wantState: Resolved,
			wantCodes: []prodcode.Code{"6ABX08"},
		},
		{
			name:        "season and episode",
			prompt:      &stubPrompter{answers: []string{"s06e08"}},
			wantState:   Resolved,
			wantIndexes: [][2]int{{6, 8}},
		},
		{
			name:       "blank answer",
			prompt:     &stubPrompter{answers: []string{"   "}},
			wantState:  Failed,
			wantReason: NoCodeFound,
		},
		{
			name:       "declined",
			prompt:     &stubPrompter{err: ErrDeclined},
			wantState:  Failed,
			wantReason: NoCodeFound,
		},
		{
			name:       "unknown code",
			prompt:     &stubPrompter{answers: []string{"9ZZX99"}},
			wantState:  Failed,
			wantReason: UnknownCode,
			wantCodes:  []prodcode.Code{"9ZZX99"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := knownResolver()
			e := newEngine(t, Options{
				Frames:     &stubFrames{frames: frames("f1")},
				Recognizer: &stubRecognizer{},
				Resolver:   res,
				Prompter:   tt.prompt,
				PromptSize: 1,
			})

			out := e.Match(context.Background(), sizedFile(t, 2))
			if out.State != tt.wantState || out.Reason != tt.wantReason {
				t.Errorf("Match() = %v/%v (%v), want %v/%v", out.State, out.Reason, out.Err, tt.wantState, tt.wantReason)
			}
			if diff := cmp.Diff(tt.wantCodes, res.codes); diff != "" {
				t.Errorf("code lookups mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.wantIndexes, res.indexes); diff != "" {
				t.Errorf("index lookups mismatch (-want +got):\n%s", diff)
			}
			if tt.wantReason == NoCodeFound && out.Err != nil {
				t.Errorf("declined prompt should not carry an error, got %v", out.Err)
			}
		})
	}
}

func TestResolveFailures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		err        error
		wantReason FailureReason
		wantKind   provider.Kind
		wantFatal  bool
	}{
		{name: "not found", err: provider.NewNotFound("svc", "missing"), wantReason: UnknownCode, wantKind: provider.NotFound},
		{name: "transient", err: &provider.LookupError{Kind: provider.Transient, Service: "svc"}, wantReason: LookupError, wantKind: provider.Transient},
		{name: "unauthorized", err: &provider.LookupError{Kind: provider.Unauthorized, Service: "svc"}, wantReason: LookupError, wantKind: provider.Unauthorized, wantFatal: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res := &stubResolver{byCode: func(prodcode.Code) (provider.EpisodeRecord, error) { return provider.EpisodeRecord{}, tt.err }}
			e := newEngine(t, Options{
				Frames:     &stubFrames{frames: frames("f1")},
				Recognizer: &stubRecognizer{text: map[string][]string{"f1": {"#3X22"}}},
				Resolver:   res,
			})

			out := e.Match(context.Background(), "x.mkv")
			if out.State != Failed || out.Reason != tt.wantReason {
				t.Errorf("Match() = %v/%v, want failed/%v", out.State, out.Reason, tt.wantReason)
			}
			if out.LookupKind() != tt.wantKind || out.Fatal() != tt.wantFatal {
				t.Errorf("kind %v fatal %v, want %v %v", out.LookupKind(), out.Fatal(), tt.wantKind, tt.wantFatal)
			}
			if out.Code != "3X22" {
				t.Errorf("Code = %q, want 3X22", out.Code)
			}
		})
	}
}

type stubSubtitles struct {
	doc subtitle.Document
	err error
}

func (s *stubSubtitles) Subtitle(context.Context, string) (subtitle.Document, error) {
	return s.doc, s.err
}

type stubPager struct {
	title, text string
	calls       int
}

func (s *stubPager) Show(_ context.Context, title, text string) error {
	s.calls++
	s.title, s.text = title, text
	return nil
}

func TestSubtitleMode(t *testing.T) {
	t.Parallel()

	t.Run("text cues", func(t *testing.T) {
		t.Parallel()
		pager := &stubPager{}
		res := knownResolver()
		e := newEngine(t, Options{
			Mode: ModeSubtitles,
			Subtitles: &stubSubtitles{doc: subtitle.Document{Codec: media.CodecSRT, Cues: []subtitle.Cue{
				{Text: "Previously..."}, {Text: "Who's there?"},
			}}},
			Prompter: &stubPrompter{answers: []string{"S06E08"}},
			Pager:    pager,
			Resolver: res,
		})

		out := e.Match(context.Background(), "/v/ep.mkv")
		if out.State != Resolved || out.Record != twoFathers {
			t.Fatalf("Match() = %+v", out)
		}
		if pager.title != "ep.mkv" || pager.text != "Previously...\n\nWho's there?\n\n" {
			t.Errorf("pager got %q / %q", pager.title, pager.text)
		}
		if diff := cmp.Diff([]State{Extracting, ManualPrompt, Resolving, Resolved}, out.Trace); diff != "" {
			t.Errorf("Trace mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("image cues are recognized and cleaned", func(t *testing.T) {
		t.Parallel()
		pager := &stubPager{}
		rec := &stubRecognizer{text: map[string][]string{"pgs_0001.png": {"| think so.", "♪"}}}
		e := newEngine(t, Options{
			Mode: ModeSubtitles,
			Subtitles: &stubSubtitles{doc: subtitle.Document{Codec: media.CodecPGS, Cues: []subtitle.Cue{
				{Image: &media.Frame{Name: "pgs_0001.png"}},
			}}},
			Recognizer: rec,
			Prompter:   &stubPrompter{answers: []string{"s6e8"}},
			Pager:      pager,
			Resolver:   knownResolver(),
		})

		out := e.Match(context.Background(), "ep.mkv")
		if out.State != Resolved {
			t.Fatalf("Match() = %+v", out)
		}
		if pager.text != "I think so.\n\n" {
			t.Errorf("pager text = %q", pager.text)
		}
	})

	t.Run("no subtitles", func(t *testing.T) {
		t.Parallel()
		prompt := &stubPrompter{}
		e := newEngine(t, Options{
			Mode:      ModeSubtitles,
			Subtitles: &stubSubtitles{err: media.ErrNoSubtitles},
			Prompter:  prompt,
			Resolver:  knownResolver(),
		})
		out := e.Match(context.Background(), "ep.mkv")
		if out.Reason != NoSubtitles || len(prompt.questions) != 0 {
			t.Errorf("Match() = %+v, prompts %d", out, len(prompt.questions))
		}
	})

	t.Run("unparseable answer", func(t *testing.T) {
		t.Parallel()
		res := knownResolver()
		e := newEngine(t, Options{
			Mode:      ModeSubtitles,
			Subtitles: &stubSubtitles{doc: subtitle.Document{Cues: []subtitle.Cue{{Text: "hi"}}}},
			Prompter:  &stubPrompter{answers: []string{"6ABX08"}},
			Resolver:  res,
		})
		out := e.Match(context.Background(), "ep.mkv")
		if out.Reason != NoCodeFound || res.calls() != 0 {
			t.Errorf("Match() = %+v, resolver calls %d", out, res.calls())
		}
	})
}

func TestNewValidatesWiring(t *testing.T) {
	t.Parallel()
	if _, err := New(Options{Frames: &stubFrames{}, Recognizer: &stubRecognizer{}}); err == nil {
		t.Error("missing resolver should fail")
	}
	if _, err := New(Options{Resolver: knownResolver()}); err == nil {
		t.Error("production-code mode without frames should fail")
	}
	if _, err := New(Options{Mode: ModeSubtitles, Resolver: knownResolver()}); err == nil {
		t.Error("subtitle mode without a source should fail")
	}
	if _, err := ParseMode("bogus"); err == nil {
		t.Error("unknown mode should fail")
	}
	if m, err := ParseMode(""); err != nil || m != ModeProductionCode {
		t.Errorf("ParseMode(\"\") = %v, %v", m, err)
	}
}
