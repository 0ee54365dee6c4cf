package match

import (
	"errors"
	"fmt"

	"github.com/Digital-Shane/episode-matcher/internal/prodcode"
	"github.com/Digital-Shane/episode-matcher/internal/provider"
)

// Mode selects how a batch identifies episodes.
type Mode string

const (
	ModeProductionCode Mode = "production-code"
	ModeSubtitles      Mode = "subtitles"
)

// ParseMode validates a --match-mode value.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeProductionCode, ModeSubtitles:
		return Mode(s), nil
	case "":
		return ModeProductionCode, nil
	}
	return "", fmt.Errorf("unknown match mode %q (want %s or %s)", s, ModeProductionCode, ModeSubtitles)
}

// State is a step of the per-file state machine.
type State int

const (
	Extracting State = iota
	Recognizing
	CodeExtracted
	CodeMissing
	ManualPrompt
	Resolving
	Resolved
	Failed
)

var stateNames = [...]string{
	Extracting:    "extracting",
	Recognizing:   "recognizing",
	CodeExtracted: "code-extracted",
	CodeMissing:   "code-missing",
	ManualPrompt:  "manual-prompt",
	Resolving:     "resolving",
	Resolved:      "resolved",
	Failed:        "failed",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transition exists.
func (s State) Terminal() bool {
	return s == Resolved || s == Failed
}

// FailureReason explains a Failed outcome.
type FailureReason int

const (
	ReasonNone FailureReason = iota
	NoVideoStream
	NoCodeFound
	UnknownCode
	LookupError
	NoSubtitles
)

var reasonNames = [...]string{
	ReasonNone:    "none",
	NoVideoStream: "no video stream",
	NoCodeFound:   "no code found",
	UnknownCode:   "unknown code",
	LookupError:   "lookup error",
	NoSubtitles:   "no subtitles",
}

func (r FailureReason) String() string {
	if r >= 0 && int(r) < len(reasonNames) {
		return reasonNames[r]
	}
	return fmt.Sprintf("reason(%d)", int(r))
}

// ErrDeclined is returned by a Prompter when the operator dismisses the prompt.
var ErrDeclined = errors.New("prompt declined")

// ErrSkipped is returned by an outcome handler that deliberately left the
// file alone.
var ErrSkipped = errors.New("skipped")

// Outcome is the result of matching one file.
type Outcome struct {
	Path   string
	State  State
	Reason FailureReason
	Record provider.EpisodeRecord
	Code   prodcode.Code
	Err    error
	Trace  []State
}

// LookupKind returns the metadata service error class of a LookupError failure.
func (o Outcome) LookupKind() provider.Kind {
	return provider.KindOf(o.Err)
}

// Fatal reports whether the batch must stop: the service rejected the credentials.
func (o Outcome) Fatal() bool {
	return o.State == Failed && o.Reason == LookupError && provider.IsUnauthorized(o.Err)
}

// Describe renders the outcome for the per-file report line.
func (o Outcome) Describe() string {
	if o.State == Resolved {
		return fmt.Sprintf("S%02dE%02d %s", o.Record.Season, o.Record.Episode, o.Record.Title)
	}
	if o.Err != nil {
		return fmt.Sprintf("%s: %v", o.Reason, o.Err)
	}
	return o.Reason.String()
}
