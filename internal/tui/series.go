package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Digital-Shane/episode-matcher/internal/provider"
	"github.com/mattn/go-runewidth"
)

const (
	seriesNameWidth = 48
	maxPickAttempts = 3
)

// ErrNoSeries is returned when a series search came back empty.
var ErrNoSeries = errors.New("no series matched")

// PickSeries chooses one search hit. A single hit is taken as is; several are
// listed and the operator picks by number.
func PickSeries(ctx context.Context, p Prompter, out io.Writer, query string, matches []provider.SeriesMatch) (provider.SeriesMatch, error) {
	switch len(matches) {
	case 0:
		return provider.SeriesMatch{}, fmt.Errorf("%w %q", ErrNoSeries, query)
	case 1:
		return matches[0], nil
	}

	fmt.Fprintf(out, "Several series match %q:\n", query)
	for i, m := range matches {
		fmt.Fprintf(out, "%3d) %s\n", i+1, seriesLine(m))
	}

	question := fmt.Sprintf("Pick a series [1-%d]: ", len(matches))
	for attempt := 0; attempt < maxPickAttempts; attempt++ {
		answer, err := p.Ask(ctx, question)
		if err != nil {
			return provider.SeriesMatch{}, err
		}
		n, err := strconv.Atoi(strings.TrimSpace(answer))
		if err == nil && n >= 1 && n <= len(matches) {
			return matches[n-1], nil
		}
		fmt.Fprintf(out, "%q is not a number between 1 and %d\n", strings.TrimSpace(answer), len(matches))
	}
	return provider.SeriesMatch{}, fmt.Errorf("no series picked after %d attempts", maxPickAttempts)
}

func seriesLine(m provider.SeriesMatch) string {
	name := runewidth.Truncate(m.Name, seriesNameWidth, "…")
	name = runewidth.FillRight(name, seriesNameWidth)
	year := m.Year
	if year == "" {
		year = "----"
	}
	return fmt.Sprintf("%s  %s  id %d", name, year, m.ID)
}
