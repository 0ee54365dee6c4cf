// Package subtitle reads subtitle tracks pulled from a container and turns
// them into cues an operator can page through.
package subtitle

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/asticode/go-astisub"
)

// Cue is one subtitle event. Text cues carry Text; image cues carry Image
// and need OCR before display.
type Cue struct {
	Start time.Duration
	Text  string
	Image *media.Frame
}

// Document is a decoded subtitle track.
type Document struct {
	Codec media.Codec
	Cues  []Cue
}

// ReadSRT decodes SubRip text into cues, one per subtitle item.
func ReadSRT(r io.Reader) ([]Cue, error) {
	subs, err := astisub.ReadFromSRT(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SRT: %w", err)
	}

	cues := make([]Cue, 0, len(subs.Items))
	for _, item := range subs.Items {
		var lines []string
		for _, line := range item.Lines {
			var parts []string
			for _, li := range line.Items {
				if t := strings.TrimSpace(li.Text); t != "" {
					parts = append(parts, t)
				}
			}
			if len(parts) > 0 {
				lines = append(lines, strings.Join(parts, " "))
			}
		}
		if len(lines) == 0 {
			continue
		}
		cues = append(cues, Cue{Start: item.StartAt, Text: strings.Join(lines, "\n")})
	}
	return cues, nil
}

// ReadPGS decodes a .sup stream into image cues.
func ReadPGS(r io.Reader) ([]Cue, error) {
	sets, err := DecodePGS(r)
	if err != nil && len(sets) == 0 {
		return nil, fmt.Errorf("failed to parse PGS: %w", err)
	}

	cues := make([]Cue, 0, len(sets))
	for i, ds := range sets {
		var buf bytes.Buffer
		if err := png.Encode(&buf, ds.Image); err != nil {
			return nil, fmt.Errorf("failed to encode display set %d: %w", i, err)
		}
		cues = append(cues, Cue{
			Start: ds.Start,
			Image: &media.Frame{Name: fmt.Sprintf("pgs_%04d.png", i+1), PNG: buf.Bytes()},
		})
	}
	return cues, nil
}

const asciiPunct = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// CleanOCRText repairs the usual tesseract confusions on subtitle bitmaps:
// a pipe becomes a capital I, and only letters, digits, whitespace and ASCII
// punctuation survive.
func CleanOCRText(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r == '|' {
			r = 'I'
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) || strings.ContainsRune(asciiPunct, r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

type trackSource interface {
	SubtitleTrack(ctx context.Context, path string) (media.Track, error)
	ExtractSubtitle(ctx context.Context, path string, track media.Track, dir string) (string, error)
}

// Source extracts and decodes the preferred subtitle track of a file.
type Source struct {
	media  trackSource
	logger *slog.Logger
}

// NewSource wraps the ffmpeg adapter.
func NewSource(m trackSource, logger *slog.Logger) *Source {
	return &Source{media: m, logger: logging.NewComponentLogger(logger, "subtitle")}
}

// Subtitle returns the decoded cues of the file's best subtitle track.
// media.ErrNoSubtitles is passed through when no track qualifies.
func (s *Source) Subtitle(ctx context.Context, path string) (Document, error) {
	track, err := s.media.SubtitleTrack(ctx, path)
	if err != nil {
		return Document{}, err
	}

	dir, err := os.MkdirTemp("", "episode-matcher-subs-*")
	if err != nil {
		return Document{}, fmt.Errorf("failed to create subtitle directory: %w", err)
	}
	defer os.RemoveAll(dir)

	out, err := s.media.ExtractSubtitle(ctx, path, track, dir)
	if err != nil {
		return Document{}, err
	}
	f, err := os.Open(out)
	if err != nil {
		return Document{}, fmt.Errorf("failed to open extracted subtitles: %w", err)
	}
	defer f.Close()

	var cues []Cue
	switch track.Codec {
	case media.CodecPGS:
		cues, err = ReadPGS(f)
	default:
		cues, err = ReadSRT(f)
	}
	if err != nil {
		return Document{}, err
	}

	s.logger.Debug("decoded subtitles",
		slog.String("file", filepath.Base(path)),
		slog.String("codec", string(track.Codec)),
		slog.Int("cues", len(cues)))
	return Document{Codec: track.Codec, Cues: cues}, nil
}
