package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Digital-Shane/episode-matcher/internal/config"
	"github.com/Digital-Shane/episode-matcher/internal/match"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/Digital-Shane/episode-matcher/internal/tui"
	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/go-cmp/cmp"
)

type stubService struct {
	episodeByCode func(code prodcode.Code) (provider.EpisodeRecord, error)
	search        []provider.SeriesMatch
	seriesIDs     []int64
}

func (s *stubService) Name() string { return "stub" }

func (s *stubService) SeriesName(_ context.Context, id int64) (string, error) {
	s.seriesIDs = append(s.seriesIDs, id)
	return "Show Name", nil
}

func (s *stubService) EpisodeByCode(_ context.Context, _ int64, code prodcode.Code) (provider.EpisodeRecord, error) {
	return s.episodeByCode(code)
}

func (s *stubService) EpisodeBySeasonEpisode(context.Context, int64, int, int) (provider.EpisodeRecord, error) {
	return provider.EpisodeRecord{}, provider.NewNotFound("stub", "unused")
}

func (s *stubService) SearchSeries(context.Context, string) ([]provider.SeriesMatch, error) {
	return s.search, nil
}

// stubMedia returns one frame per file, named after the file.
type stubMedia struct{}

func (stubMedia) Frames(_ context.Context, path string) ([]media.Frame, error) {
	return []media.Frame{{Name: filepath.Base(path)}}, nil
}

func (stubMedia) SubtitleTrack(context.Context, string) (media.Track, error) {
	return media.Track{}, media.ErrNoSubtitles
}

func (stubMedia) ExtractSubtitle(context.Context, string, media.Track, string) (string, error) {
	return "", errors.New("unused")
}

type stubRecognizer struct {
	lines  map[string][]string
	closed bool
}

func (s *stubRecognizer) Recognize(_ context.Context, f media.Frame) ([]string, error) {
	return s.lines[f.Name], nil
}

func (s *stubRecognizer) Close() error {
	s.closed = true
	return nil
}

type stubPrompter struct{ answers []string }

func (s *stubPrompter) Ask(context.Context, string) (string, error) {
	if len(s.answers) == 0 {
		return "", match.ErrDeclined
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return a, nil
}

type fixture struct {
	dir     string
	logs    string
	cfg     *config.Config
	svc     *stubService
	ocr     *stubRecognizer
	prompt  *stubPrompter
	stdout  bytes.Buffer
	deps    deps
	created []string
}

func newFixture(t *testing.T, files ...string) *fixture {
	t.Helper()
	fx := &fixture{
		dir:    t.TempDir(),
		logs:   filepath.Join(t.TempDir(), "logs"),
		cfg:    config.DefaultConfig(),
		prompt: &stubPrompter{},
		ocr:    &stubRecognizer{lines: map[string][]string{}},
		svc: &stubService{episodeByCode: func(code prodcode.Code) (provider.EpisodeRecord, error) {
			if code == "6ABX08" {
				return provider.EpisodeRecord{Season: 6, Episode: 8, Title: "Two Fathers"}, nil
			}
			return provider.EpisodeRecord{}, provider.NewNotFound("stub", "no %s", code)
		}},
	}
	fx.cfg.TVDBAPIKey = "key"
	fx.cfg.CachePath = filepath.Join(t.TempDir(), "cache.json")

	for _, name := range files {
		p := filepath.Join(fx.dir, name)
		if err := os.WriteFile(p, []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
		fx.created = append(fx.created, p)
	}

	fx.deps = deps{
		stdout:     &fx.stdout,
		stderr:     io.Discard,
		loadConfig: func() (*config.Config, error) { return fx.cfg, nil },
		logDir:     func() (string, error) { return fx.logs, nil },
		newService: func(string, provider.Options) (provider.Service, error) { return fx.svc, nil },
		newMedia:   func(media.Options) mediaTool { return stubMedia{} },
		newRecognizer: func(string, *slog.Logger) (recognizer, error) {
			return fx.ocr, nil
		},
		newPrompter: func(theme.Theme) tui.Prompter { return fx.prompt },
		newPager:    func(string, theme.Theme) match.Pager { return nil },
	}
	return fx
}

func (fx *fixture) names(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(fx.dir)
	if err != nil {
		t.Fatal(err)
	}
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestRunRenamesAndUndo(t *testing.T) {
	fx := newFixture(t, "a.mkv", "b.mkv")
	fx.ocr.lines["a.mkv"] = []string{"random", "#6ABX08 noise", "#6ABX08"}
	fx.ocr.lines["b.mkv"] = []string{"THE END"}

	f := matchFlags{showID: 77398, noConfirm: true, matchMode: "production-code", promptSize: -1}
	if err := run(context.Background(), f, fx.created, fx.deps); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	want := []string{"Show Name - S06E08 - Two Fathers.mkv", "b.mkv"}
	if diff := cmp.Diff(want, fx.names(t)); diff != "" {
		t.Errorf("directory mismatch (-want +got):\n%s", diff)
	}
	if !fx.ocr.closed {
		t.Error("recognizer should be closed")
	}
	out := fx.stdout.String()
	for _, s := range []string{"Show Name", "renamed", match.NoCodeFound.String()} {
		if !strings.Contains(out, s) {
			t.Errorf("output missing %q:\n%s", s, out)
		}
	}
	if _, err := os.Stat(fx.cfg.CachePath); err != nil {
		t.Errorf("cache should be written: %v", err)
	}

	var undoOut bytes.Buffer
	if err := runUndo(&undoOut, fx.logs, theme.Default()); err != nil {
		t.Fatalf("runUndo() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a.mkv", "b.mkv"}, fx.names(t)); diff != "" {
		t.Errorf("after undo (-want +got):\n%s", diff)
	}

	undoOut.Reset()
	if err := runUndo(&undoOut, fx.logs, theme.Default()); err != nil {
		t.Fatalf("second runUndo() error = %v", err)
	}
	if !strings.Contains(undoOut.String(), "No rename sessions") {
		t.Errorf("second undo output = %q", undoOut.String())
	}
}

func TestRunConfirmationDeclined(t *testing.T) {
	fx := newFixture(t, "a.mkv")
	fx.ocr.lines["a.mkv"] = []string{"#6ABX08"}
	fx.prompt.answers = []string{"n"}

	f := matchFlags{showID: 77398, matchMode: "production-code", promptSize: -1}
	if err := run(context.Background(), f, fx.created, fx.deps); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if diff := cmp.Diff([]string{"a.mkv"}, fx.names(t)); diff != "" {
		t.Errorf("declined rename touched files (-want +got):\n%s", diff)
	}
}

func TestRunShowSearch(t *testing.T) {
	fx := newFixture(t, "a.mkv")
	fx.svc.search = []provider.SeriesMatch{{ID: 1, Name: "Other"}, {ID: 77398, Name: "Show Name"}}
	fx.prompt.answers = []string{"2"}

	f := matchFlags{show: "show name", noConfirm: true, matchMode: "production-code", promptSize: -1}
	if err := run(context.Background(), f, fx.created, fx.deps); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if diff := cmp.Diff([]int64{77398}, fx.svc.seriesIDs); diff != "" {
		t.Errorf("series lookups mismatch (-want +got):\n%s", diff)
	}
}

func TestRunStopsOnUnauthorized(t *testing.T) {
	fx := newFixture(t, "a.mkv", "b.mkv")
	fx.ocr.lines["a.mkv"] = []string{"#3X22"}
	fx.ocr.lines["b.mkv"] = []string{"#3X23"}
	calls := 0
	fx.svc.episodeByCode = func(prodcode.Code) (provider.EpisodeRecord, error) {
		calls++
		return provider.EpisodeRecord{}, &provider.LookupError{Kind: provider.Unauthorized, Service: "stub"}
	}

	f := matchFlags{showID: 77398, noConfirm: true, matchMode: "production-code", promptSize: -1}
	err := run(context.Background(), f, fx.created, fx.deps)
	if !provider.IsUnauthorized(err) {
		t.Fatalf("run() error = %v, want unauthorized", err)
	}
	if calls != 1 {
		t.Errorf("service called %d times, want 1", calls)
	}
	if exitCode(err) != 1 {
		t.Errorf("exitCode() = %d, want 1", exitCode(err))
	}
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name     string
		flags    matchFlags
		noFiles  bool
		setup    func(fx *fixture)
		wantIs   error
		wantCode int
	}{
		{
			name:     "no series",
			flags:    matchFlags{matchMode: "production-code"},
			wantCode: 2,
		},
		{
			name:     "both series flags",
			flags:    matchFlags{show: "x", showID: 1, matchMode: "production-code"},
			wantCode: 2,
		},
		{
			name:     "bad mode",
			flags:    matchFlags{showID: 1, matchMode: "guess"},
			wantCode: 2,
		},
		{
			name:     "bad provider",
			flags:    matchFlags{showID: 1, matchMode: "production-code", provider: "omdb", promptSize: -1},
			wantCode: 2,
		},
		{
			name:     "missing credential",
			flags:    matchFlags{showID: 1, matchMode: "production-code", promptSize: -1},
			setup:    func(fx *fixture) { fx.cfg.TVDBAPIKey = "" },
			wantIs:   config.ErrMissingCredential,
			wantCode: 1,
		},
		{
			name:     "no inputs",
			flags:    matchFlags{showID: 1, matchMode: "production-code", promptSize: -1},
			noFiles:  true,
			wantCode: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t, "a.mkv")
			if tt.setup != nil {
				tt.setup(fx)
			}
			inputs := fx.created
			if tt.noFiles {
				inputs = []string{t.TempDir()}
			}

			err := run(context.Background(), tt.flags, inputs, fx.deps)
			if err == nil {
				t.Fatal("run() succeeded, want error")
			}
			if tt.wantIs != nil && !errors.Is(err, tt.wantIs) {
				t.Errorf("run() error = %v, want %v", err, tt.wantIs)
			}
			if got := exitCode(err); got != tt.wantCode {
				t.Errorf("exitCode(%v) = %d, want %d", err, got, tt.wantCode)
			}
		})
	}
}

func TestConfigHelpers(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.toml")

	var out bytes.Buffer
	if err := initConfig(&out, path, false); err != nil {
		t.Fatalf("initConfig() error = %v", err)
	}
	if err := initConfig(&out, path, false); err == nil {
		t.Error("second initConfig() without force should fail")
	}
	if err := initConfig(&out, path, true); err != nil {
		t.Errorf("initConfig(force) error = %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.TVDBAPIKey = "abcdef123456"
	out.Reset()
	if err := showConfig(&out, cfg); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out.String(), "abcdef123456") || !strings.Contains(out.String(), "****3456") {
		t.Errorf("showConfig() leaked or lost the key:\n%s", out.String())
	}
	if cfg.TVDBAPIKey != "abcdef123456" {
		t.Error("showConfig() must not modify the config")
	}

	for in, want := range map[string]string{"": "", "abc": "****", "abcde": "****bcde"} {
		if got := maskKey(in); got != want {
			t.Errorf("maskKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestThemeFor(t *testing.T) {
	t.Parallel()
	cfg := config.DefaultConfig()
	cfg.Icons = config.IconsASCII
	cfg.AccentColor = "#ff00ff"

	th := themeFor(cfg)
	if got := th.Icon("success"); got != "[v]" {
		t.Errorf("Icon(success) = %q, want ascii icon", got)
	}
	if got := th.Colors().Accent; got != lipgloss.Color("#ff00ff") {
		t.Errorf("Colors().Accent = %v, want #ff00ff", got)
	}
	if got, want := th.Colors().Primary, theme.Default().Colors().Primary; got != want {
		t.Errorf("Colors().Primary = %v, want default %v", got, want)
	}

	cfg.Icons = config.IconsEmoji
	if got := themeFor(cfg).Icon("success"); got != "✅" {
		t.Errorf("Icon(success) = %q, want emoji icon", got)
	}
}
