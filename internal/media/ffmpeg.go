package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"gopkg.in/vansante/go-ffprobe.v2"
)

var (
	// ErrNoVideoStream is returned when a file carries no decodable video stream.
	ErrNoVideoStream = errors.New("no video stream")
	// ErrNoSubtitles is returned when no English SRT or PGS track exists.
	ErrNoSubtitles = errors.New("no suitable English subtitle track found (SRT or PGS)")
)

// Frame is one still image taken from a video, PNG encoded.
type Frame struct {
	Name string
	PNG  []byte
}

// probeFunc defines the function signature used to execute ffprobe.
type probeFunc func(ctx context.Context, path string, extraOpts ...string) (*ffprobe.ProbeData, error)

// runFunc runs an external command and returns its stderr on failure.
type runFunc func(ctx context.Context, name string, args ...string) error

// Options configures the ffmpeg adapter.
type Options struct {
	Binary      string
	TailSeconds int
	FPS         int
	Language    string
	Logger      *slog.Logger
}

// FFmpeg samples frames and subtitle tracks with the ffmpeg tool suite.
type FFmpeg struct {
	binary      string
	tailSeconds int
	fps         int
	language    string
	logger      *slog.Logger

	probe probeFunc
	run   runFunc
}

// New builds an adapter, filling unset options with 15s tail sampling at 1 fps.
func New(opts Options) *FFmpeg {
	f := &FFmpeg{
		binary:      opts.Binary,
		tailSeconds: opts.TailSeconds,
		fps:         opts.FPS,
		language:    opts.Language,
		logger:      logging.NewComponentLogger(opts.Logger, "media"),
		probe:       ffprobe.ProbeURL,
		run:         runCommand,
	}
	if f.binary == "" {
		f.binary = "ffmpeg"
	}
	if f.tailSeconds <= 0 {
		f.tailSeconds = 15
	}
	if f.fps <= 0 {
		f.fps = 1
	}
	if f.language == "" {
		f.language = "eng"
	}
	return f
}

// Frames returns the frames sampled from the last seconds of the video.
// A file without a video stream yields ErrNoVideoStream and ffmpeg is not run.
func (f *FFmpeg) Frames(ctx context.Context, path string) ([]Frame, error) {
	data, err := f.probe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to probe %s: %w", filepath.Base(path), err)
	}
	if data == nil || data.FirstVideoStream() == nil {
		return nil, ErrNoVideoStream
	}

	dir, err := os.MkdirTemp("", "episode-matcher-frames-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame directory: %w", err)
	}
	defer os.RemoveAll(dir)

	err = f.run(ctx, f.binary,
		"-sseof", "-"+strconv.Itoa(f.tailSeconds),
		"-i", path,
		"-vf", "fps="+strconv.Itoa(f.fps),
		"-y", filepath.Join(dir, "frame_%04d.png"),
	)
	if err != nil {
		return nil, err
	}

	frames, err := readFrames(dir)
	if err != nil {
		return nil, err
	}
	f.logger.Debug("sampled frames", slog.String("file", filepath.Base(path)), slog.Int("frames", len(frames)))
	return frames, nil
}

func readFrames(dir string) ([]Frame, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), "frame_") && strings.HasSuffix(e.Name(), ".png") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	frames := make([]Frame, 0, len(names))
	for _, name := range names {
		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("failed to read frame %s: %w", name, err)
		}
		frames = append(frames, Frame{Name: name, PNG: b})
	}
	return frames, nil
}

func runCommand(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return fmt.Errorf("%s not found, install ffmpeg and ensure it is in your PATH: %w", name, err)
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s failed: %w", name, err)
		}
		return fmt.Errorf("%s failed: %s: %w", name, msg, err)
	}
	return nil
}
