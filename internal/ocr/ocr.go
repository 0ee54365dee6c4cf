// Package ocr turns still frames into text lines with tesseract.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/otiai10/gosseract/v2"
)

// engine is the subset of *gosseract.Client used here.
type engine interface {
	SetImageFromBytes(data []byte) error
	Text() (string, error)
	Close() error
}

// Recognizer runs OCR over PNG frames. A single tesseract handle is reused,
// so calls are serialized.
type Recognizer struct {
	mu     sync.Mutex
	client engine
	logger *slog.Logger
}

// New opens a tesseract handle for the given language ("eng" when empty).
func New(lang string, logger *slog.Logger) (*Recognizer, error) {
	if lang == "" {
		lang = "eng"
	}
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to configure tesseract language %q: %w", lang, err)
	}
	return newRecognizer(client, logger), nil
}

func newRecognizer(client engine, logger *slog.Logger) *Recognizer {
	return &Recognizer{client: client, logger: logging.NewComponentLogger(logger, "ocr")}
}

// Recognize returns the non-empty text lines found in the frame.
func (r *Recognizer) Recognize(ctx context.Context, frame media.Frame) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(frame.PNG); err != nil {
		return nil, fmt.Errorf("failed to load frame %s: %w", frame.Name, err)
	}
	text, err := r.client.Text()
	if err != nil {
		return nil, fmt.Errorf("failed to recognize frame %s: %w", frame.Name, err)
	}

	lines := Lines(text)
	r.logger.Debug("recognized frame", slog.String("frame", frame.Name), slog.Int("lines", len(lines)))
	return lines, nil
}

// Close releases the tesseract handle.
func (r *Recognizer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.client.Close()
}

// Lines splits OCR output into trimmed, non-empty lines.
func Lines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
