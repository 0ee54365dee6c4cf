package ocr

import (
	"context"
	"errors"
	"testing"

	"github.com/Digital-Shane/episode-matcher/internal/media"
	"github.com/google/go-cmp/cmp"
)

type fakeEngine struct {
	texts  map[string]string
	image  string
	closed bool
	err    error
}

func (f *fakeEngine) SetImageFromBytes(data []byte) error {
	f.image = string(data)
	return nil
}

func (f *fakeEngine) Text() (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.texts[f.image], nil
}

func (f *fakeEngine) Close() error {
	f.closed = true
	return nil
}

func TestRecognize(t *testing.T) {
	t.Parallel()
	eng := &fakeEngine{texts: map[string]string{
		"credits": "Executive Producer\r\n\n   #6ABX08  \nFOX\n",
	}}
	r := newRecognizer(eng, nil)

	got, err := r.Recognize(context.Background(), media.Frame{Name: "frame_0001.png", PNG: []byte("credits")})
	if err != nil {
		t.Fatalf("Recognize() error = %v", err)
	}
	if diff := cmp.Diff([]string{"Executive Producer", "#6ABX08", "FOX"}, got); diff != "" {
		t.Errorf("Recognize() mismatch (-want +got):\n%s", diff)
	}

	if err := r.Close(); err != nil || !eng.closed {
		t.Errorf("Close() = %v, closed %v", err, eng.closed)
	}
}

func TestRecognizeErrors(t *testing.T) {
	t.Parallel()
	r := newRecognizer(&fakeEngine{err: errors.New("tesseract exploded")}, nil)
	if _, err := r.Recognize(context.Background(), media.Frame{Name: "f"}); err == nil {
		t.Error("engine failure should surface")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Recognize(ctx, media.Frame{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Recognize(cancelled) error = %v", err)
	}
}

func TestLines(t *testing.T) {
	t.Parallel()
	if got := Lines("  \n\t\n"); got != nil {
		t.Errorf("Lines(blank) = %q, want nil", got)
	}
}
