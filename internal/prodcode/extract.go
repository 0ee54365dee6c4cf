package prodcode

import (
	"regexp"
	"strconv"
	"strings"
)

// Extract picks a single production code out of a pool of OCR lines.
//
// Each line is scanned on its own. A line carrying two different codes is
// ambiguous and ignored; it does not void the batch, so other lines can
// still decide the result. When only one distinct code was seen it wins. When
// several were seen, the code present on the most lines wins if it was seen
// at least twice and strictly more often than any other; otherwise there is
// no answer.
func Extract(lines []string) (Code, bool) {
	var order []Code
	seen := make(map[Code]int)

	for _, line := range lines {
		codes := scanLine(line)
		if len(codes) != 1 {
			continue
		}
		c := codes[0]
		if seen[c] == 0 {
			order = append(order, c)
		}
		seen[c]++
	}

	switch len(order) {
	case 0:
		return "", false
	case 1:
		return order[0], true
	}

	var best Code
	bestCount, runnerUp := 0, 0
	for _, c := range order {
		n := seen[c]
		switch {
		case n > bestCount:
			runnerUp = bestCount
			best, bestCount = c, n
		case n > runnerUp:
			runnerUp = n
		}
	}
	if bestCount >= 2 && bestCount > runnerUp {
		return best, true
	}
	return "", false
}

// Canonicalize turns operator input into a code. Input matching a known
// format is folded exactly as Extract would fold it; anything else is
// uppercased with whitespace and a leading '#' removed.
func Canonicalize(input string) (Code, bool) {
	text := strings.TrimPrefix(stripSpace(input), "#")
	if text == "" {
		return "", false
	}
	for _, rule := range Rules {
		loc := rule.Pattern.FindStringSubmatchIndex(text)
		if loc == nil || loc[0] != 0 || loc[1] != len(text) {
			continue
		}
		sub := make([]string, len(loc)/2)
		for i := range sub {
			if loc[2*i] >= 0 {
				sub[i] = text[loc[2*i]:loc[2*i+1]]
			}
		}
		return rule.Canonical(sub), true
	}
	return Code(strings.ToUpper(text)), true
}

var seasonEpisodePattern = regexp.MustCompile(`(?i)^s(\d{1,2})\s*e(\d{1,2})$`)

// ParseSeasonEpisode parses "S06E08" style input.
func ParseSeasonEpisode(input string) (season, episode int, ok bool) {
	m := seasonEpisodePattern.FindStringSubmatch(strings.TrimSpace(input))
	if m == nil {
		return 0, 0, false
	}
	season, _ = strconv.Atoi(m[1])
	episode, _ = strconv.Atoi(m[2])
	return season, episode, true
}
