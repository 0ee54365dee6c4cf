// Package prodcode recognizes on-screen production codes and folds their
// historical surface formats into one canonical key.
package prodcode

import (
	"regexp"
	"strings"
	"unicode"
)

// Code is a canonical production code: uppercase, no whitespace, no leading
// '#', and 'O' read as zero in the numeric slots.
type Code string

func (c Code) String() string { return string(c) }

// Rule pairs a surface format with the function that canonicalizes its matches.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
	// Canonical receives the submatches of Pattern.
	Canonical func(sub []string) Code
}

// Rules lists the supported formats in priority order. Whitespace is
// tolerated between the parts of a code, never inside its number, so
// "# 3 X 22" and "#3x22" read alike. A code must not be glued to a preceding
// letter or digit.
var Rules = []Rule{
	{
		// seasons 6-9: #6ABX08
		Name:      "lettered-x",
		Pattern:   regexp.MustCompile(`(?i)(?:^|[^0-9A-Z])(\d)\s*([A-Z]{2})\s*X\s*([\dO]{2})`),
		Canonical: func(sub []string) Code { return join(sub[1], sub[2], "X", digits(sub[3])) },
	},
	{
		// seasons 10-11: #1AYW01
		Name:      "lettered",
		Pattern:   regexp.MustCompile(`(?i)(?:^|[^0-9A-Z])(\d)\s*([A-Z]{3})\s*([\dO]{2})`),
		Canonical: func(sub []string) Code { return join(sub[1], sub[2], digits(sub[3])) },
	},
	{
		// seasons 1-5: #3X22, #1X79
		Name:      "season-x",
		Pattern:   regexp.MustCompile(`(?i)(?:^|[^0-9A-Z])(\d)\s*X\s*([\dO]{2,3})`),
		Canonical: func(sub []string) Code { return join(sub[1], "X", digits(sub[2])) },
	},
}

func join(parts ...string) Code {
	return Code(strings.ToUpper(strings.Join(parts, "")))
}

func digits(s string) string {
	return strings.NewReplacer("O", "0", "o", "0").Replace(s)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

type span struct{ start, end int }

func (s span) overlaps(o span) bool { return s.start < o.end && o.start < s.end }

// scanLine returns the distinct codes found on one line, in order of
// appearance. Lower-priority rules cannot claim text already matched by a
// higher-priority one.
func scanLine(line string) []Code {
	text := line
	if strings.TrimSpace(text) == "" {
		return nil
	}

	type hit struct {
		at   span
		code Code
	}
	var hits []hit

	for _, rule := range Rules {
		for _, idx := range rule.Pattern.FindAllStringSubmatchIndex(text, -1) {
			// the span starts at the first digit, not the boundary character
			at := span{idx[2], idx[1]}
			if gluedToDigit(text, at.end) {
				continue
			}
			claimed := false
			for _, h := range hits {
				if h.at.overlaps(at) {
					claimed = true
					break
				}
			}
			if claimed {
				continue
			}
			sub := make([]string, len(idx)/2)
			for i := range sub {
				if idx[2*i] >= 0 {
					sub[i] = text[idx[2*i]:idx[2*i+1]]
				}
			}
			hits = append(hits, hit{at: at, code: rule.Canonical(sub)})
		}
	}

	// order by position so "first match in input order" holds within a line
	for i := 1; i < len(hits); i++ {
		for j := i; j > 0 && hits[j].at.start < hits[j-1].at.start; j-- {
			hits[j], hits[j-1] = hits[j-1], hits[j]
		}
	}

	var out []Code
	for _, h := range hits {
		if !containsCode(out, h.code) {
			out = append(out, h.code)
		}
	}
	return out
}

// gluedToDigit reports whether a digit follows position end, as in the
// "1" of "3X221". Such a match is part of a longer number.
func gluedToDigit(text string, end int) bool {
	return end < len(text) && text[end] >= '0' && text[end] <= '9'
}

func containsCode(codes []Code, c Code) bool {
	for _, x := range codes {
		if x == c {
			return true
		}
	}
	return false
}
