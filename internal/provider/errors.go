package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

// Kind classifies a failed lookup.
type Kind int

const (
	// Transient covers network and service failures; a later run may succeed.
	Transient Kind = iota
	// NotFound means the service answered and has no such series or episode.
	NotFound
	// Unauthorized means the credential is missing or rejected. No further
	// lookup in this run can succeed.
	Unauthorized
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not found"
	case Unauthorized:
		return "unauthorized"
	default:
		return "transient"
	}
}

// LookupError is returned by services and the resolver.
type LookupError struct {
	Kind    Kind
	Service string
	Message string
	Err     error
}

func (e *LookupError) Error() string {
	var b strings.Builder
	if e.Service != "" {
		b.WriteString(e.Service)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.String())
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *LookupError) Unwrap() error { return e.Err }

// NewNotFound builds a NotFound error.
func NewNotFound(service, format string, args ...any) *LookupError {
	return &LookupError{Kind: NotFound, Service: service, Message: fmt.Sprintf(format, args...)}
}

// KindOf reports the kind of err. Errors that are not LookupErrors count as
// Transient.
func KindOf(err error) Kind {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Kind
	}
	return Transient
}

// IsNotFound reports whether err is a NotFound lookup error.
func IsNotFound(err error) bool {
	var le *LookupError
	return errors.As(err, &le) && le.Kind == NotFound
}

// IsUnauthorized reports whether err is an Unauthorized lookup error.
func IsUnauthorized(err error) bool {
	var le *LookupError
	return errors.As(err, &le) && le.Kind == Unauthorized
}

// KindForStatus maps an HTTP status code onto a lookup kind.
func KindForStatus(code int) Kind {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return Unauthorized
	case http.StatusNotFound:
		return NotFound
	default:
		return Transient
	}
}

var (
	// a status code only counts when the text labels it as one, or when it
	// opens the message as in "401 Unauthorized"
	statusPattern = regexp.MustCompile(`(?i)(?:^|\bstatus(?:\s+code)?:?\s*|\bresponse:?\s*|\bhttp:?\s*|\bcode:?\s*\(?)([1-5]\d\d)\b`)
	urlPattern    = regexp.MustCompile(`https?://\S+`)
)

// Classify maps an error from an HTTP client library onto a lookup kind.
// Transport and context failures are always Transient. Otherwise the error
// text is inspected with any URLs removed, since ids and keys in a URL can
// look like status codes.
func Classify(service string, err error) *LookupError {
	if err == nil {
		return nil
	}
	var le *LookupError
	if errors.As(err, &le) {
		return le
	}

	var urlErr *url.Error
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &LookupError{Kind: Transient, Service: service, Err: err}
	}

	text := strings.ToLower(urlPattern.ReplaceAllString(err.Error(), ""))
	kind := Transient
	if m := statusPattern.FindStringSubmatch(text); m != nil {
		code, _ := strconv.Atoi(m[1])
		kind = KindForStatus(code)
	}
	if kind == Transient {
		switch {
		case strings.Contains(text, "unauthorized"), strings.Contains(text, "apikey"),
			strings.Contains(text, "api key"), strings.Contains(text, "invalid token"):
			kind = Unauthorized
		case strings.Contains(text, "not found"), strings.Contains(text, "could not be found"):
			kind = NotFound
		}
	}
	return &LookupError{Kind: kind, Service: service, Err: err}
}
