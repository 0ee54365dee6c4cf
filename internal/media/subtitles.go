package media

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/vansante/go-ffprobe.v2"
)

// Codec identifies the subtitle formats the matcher can read.
type Codec string

const (
	CodecSRT Codec = "subrip"
	CodecPGS Codec = "hdmv_pgs_subtitle"
)

// Ext returns the file extension ffmpeg should write the track with.
func (c Codec) Ext() string {
	if c == CodecPGS {
		return "sup"
	}
	return "srt"
}

// Track is a subtitle stream inside a container.
type Track struct {
	Index    int
	Codec    Codec
	Language string
}

// SubtitleTrack picks the best subtitle track: text before image, in the
// configured language only. Other codecs are skipped.
func (f *FFmpeg) SubtitleTrack(ctx context.Context, path string) (Track, error) {
	data, err := f.probe(ctx, path)
	if err != nil {
		return Track{}, fmt.Errorf("failed to probe %s: %w", filepath.Base(path), err)
	}
	if data == nil {
		return Track{}, ErrNoSubtitles
	}
	return selectTrack(data.Streams, f.language)
}

func selectTrack(streams []*ffprobe.Stream, want string) (Track, error) {
	wantBase := baseLanguage(want)

	var best *Track
	for _, s := range streams {
		if s == nil || s.CodecType != string(ffprobe.StreamSubtitle) {
			continue
		}
		lang := streamLanguage(s)
		if lang == "" || baseLanguage(lang) != wantBase {
			continue
		}

		switch Codec(s.CodecName) {
		case CodecSRT:
			return Track{Index: s.Index, Codec: CodecSRT, Language: lang}, nil
		case CodecPGS:
			if best == nil {
				best = &Track{Index: s.Index, Codec: CodecPGS, Language: lang}
			}
		}
	}
	if best == nil {
		return Track{}, ErrNoSubtitles
	}
	return *best, nil
}

func streamLanguage(s *ffprobe.Stream) string {
	if lang, err := s.TagList.GetString("language"); err == nil && lang != "" {
		return lang
	}
	return s.Tags.Language
}

func baseLanguage(tag string) language.Base {
	base, _ := language.All.Make(strings.TrimSpace(tag)).Base()
	return base
}

// ExtractSubtitle copies the track out of the container into dir and returns
// the written file.
func (f *FFmpeg) ExtractSubtitle(ctx context.Context, path string, track Track, dir string) (string, error) {
	out := filepath.Join(dir, "extracted."+track.Codec.Ext())
	err := f.run(ctx, f.binary,
		"-y",
		"-i", path,
		"-map", "0:"+strconv.Itoa(track.Index),
		"-c:s", "copy",
		out,
	)
	if err != nil {
		return "", fmt.Errorf("failed to extract subtitle track %d: %w", track.Index, err)
	}
	f.logger.Debug("extracted subtitles", slog.String("file", filepath.Base(path)), slog.Int("track", track.Index), slog.String("codec", string(track.Codec)))
	return out, nil
}
