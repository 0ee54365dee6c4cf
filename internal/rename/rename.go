// Package rename turns a resolved episode into a filename and applies it to
// disk once the operator agrees.
package rename

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/Digital-Shane/episode-matcher/internal/logging"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
)

// DefaultPlaceholder replaces characters that cannot appear in a filename.
const DefaultPlaceholder = "-"

const illegalChars = `/\:*?"<>|`

// Substitution records one kind of character replaced while building a name.
type Substitution struct {
	From  rune
	To    string
	Count int
}

// Namer builds episode filenames.
type Namer struct {
	Placeholder string
	Logger      *slog.Logger
}

// Filename builds a name with the default placeholder and no logging.
func Filename(series string, rec provider.EpisodeRecord) (string, []Substitution) {
	return Namer{}.Filename(series, rec)
}

// Filename returns "{series} - SxxExx - {title}.mkv". Illegal characters in
// the series and title are replaced by the placeholder; each distinct
// replacement is logged once.
func (n Namer) Filename(series string, rec provider.EpisodeRecord) (string, []Substitution) {
	placeholder := n.Placeholder
	if placeholder == "" {
		placeholder = DefaultPlaceholder
	}

	var subs []Substitution
	sanitize := func(s string) string {
		var b strings.Builder
		for _, r := range s {
			if !strings.ContainsRune(illegalChars, r) && !unicode.IsControl(r) {
				b.WriteRune(r)
				continue
			}
			b.WriteString(placeholder)
			found := false
			for i := range subs {
				if subs[i].From == r {
					subs[i].Count++
					found = true
					break
				}
			}
			if !found {
				subs = append(subs, Substitution{From: r, To: placeholder, Count: 1})
			}
		}
		return strings.TrimSpace(b.String())
	}

	name := fmt.Sprintf("%s - S%02dE%02d - %s.mkv", sanitize(series), rec.Season, rec.Episode, sanitize(rec.Title))

	if n.Logger != nil {
		for _, s := range subs {
			n.Logger.Info("replaced illegal filename character",
				slog.String("char", fmt.Sprintf("%q", s.From)),
				slog.String("with", s.To),
				slog.Int("count", s.Count))
		}
	}
	return name, subs
}

// Result is what Apply did with a file.
type Result int

const (
	Renamed Result = iota
	AlreadyNamed
	Skipped
)

func (r Result) String() string {
	switch r {
	case Renamed:
		return "renamed"
	case AlreadyNamed:
		return "already named"
	case Skipped:
		return "skipped"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// RenameIOError reports a failed rename. It is soft: the batch continues.
type RenameIOError struct {
	From string
	To   string
	Err  error
}

func (e *RenameIOError) Error() string {
	return fmt.Sprintf("failed to rename %s to %s: %v", e.From, e.To, e.Err)
}

func (e *RenameIOError) Unwrap() error { return e.Err }

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Ask(ctx context.Context, question string) (string, error)
}

// Recorder journals completed renames.
type Recorder interface {
	Record(sourcePath, destPath string, err error)
}

// Decision is the outcome of Apply.
type Decision struct {
	Result Result
	From   string
	To     string
}

// Decider applies renames one file at a time.
type Decider struct {
	NoConfirm bool
	Confirm   Confirmer
	Journal   Recorder
	Logger    *slog.Logger

	rename func(oldpath, newpath string) error
}

// NewDecider wires a decider.
func NewDecider(noConfirm bool, confirm Confirmer, journal Recorder, logger *slog.Logger) *Decider {
	return &Decider{
		NoConfirm: noConfirm,
		Confirm:   confirm,
		Journal:   journal,
		Logger:    logging.NewComponentLogger(logger, "rename"),
		rename:    os.Rename,
	}
}

// Apply renames path to target (a bare filename in the same directory).
func (d *Decider) Apply(ctx context.Context, path, target string) (Decision, error) {
	dir := filepath.Dir(path)
	if filepath.Base(path) == target {
		return Decision{Result: AlreadyNamed, From: path, To: path}, nil
	}

	dest := UniquePath(dir, target)
	dec := Decision{Result: Skipped, From: path, To: dest}

	if !d.NoConfirm {
		if d.Confirm == nil {
			return dec, errors.New("confirmation required but no prompt is available")
		}
		question := fmt.Sprintf("Rename '%s' -> '%s'? [y/N] ", filepath.Base(path), filepath.Base(dest))
		answer, err := d.Confirm.Ask(ctx, question)
		if err != nil && ctx.Err() != nil {
			return dec, ctx.Err()
		}
		if !Confirmed(answer) {
			d.logger().Debug("rename declined", slog.String("file", filepath.Base(path)))
			return dec, nil
		}
	}

	renameFn := d.rename
	if renameFn == nil {
		renameFn = os.Rename
	}
	err := renameFn(path, dest)
	if d.Journal != nil {
		d.Journal.Record(path, dest, err)
	}
	if err != nil {
		return dec, &RenameIOError{From: path, To: dest, Err: err}
	}

	dec.Result = Renamed
	d.logger().Info("renamed", slog.String("from", filepath.Base(path)), slog.String("to", filepath.Base(dest)))
	return dec, nil
}

func (d *Decider) logger() *slog.Logger {
	if d.Logger == nil {
		return logging.NewNop()
	}
	return d.Logger
}

// Confirmed reports whether an answer is an explicit yes.
func Confirmed(answer string) bool {
	a := strings.ToLower(strings.TrimSpace(answer))
	return a == "y" || a == "yes"
}

// UniquePath returns dir/name, or the first free "stem [copy N].ext" variant.
func UniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	if _, err := os.Lstat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s [copy %d]%s", stem, n, ext))
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			return path
		}
	}
}
