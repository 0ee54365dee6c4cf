package match

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
)

// Summary tallies a batch.
type Summary struct {
	Total    int
	Resolved int
	Renamed  int
	Skipped  int
	Errors   int
	Failed   map[FailureReason]int
	// Fatal is set when the batch stopped early.
	Fatal error
}

// FailedTotal sums failures over all reasons.
func (s Summary) FailedTotal() int {
	n := 0
	for _, c := range s.Failed {
		n += c
	}
	return n
}

// Run matches the files in order. A failing file never stops the batch; an
// outcome whose Fatal reports true, or a cancelled ctx, does. handle sees
// every outcome and may return ErrSkipped to mark a resolved file as left
// alone; other handler errors are counted and logged.
func (e *Engine) Run(ctx context.Context, paths []string, handle func(Outcome) error) Summary {
	sum := Summary{Failed: make(map[FailureReason]int)}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			sum.Fatal = err
			break
		}

		out := e.Match(ctx, path)
		sum.Total++
		if out.State == Resolved {
			sum.Resolved++
		} else {
			sum.Failed[out.Reason]++
		}

		var herr error
		if handle != nil {
			herr = handle(out)
		}
		if out.State == Resolved && handle != nil {
			switch {
			case herr == nil:
				sum.Renamed++
			case errors.Is(herr, ErrSkipped):
				sum.Skipped++
			}
		}
		if herr != nil && !errors.Is(herr, ErrSkipped) {
			sum.Errors++
			e.logger.Error("outcome handler failed", slog.String("file", filepath.Base(path)), slog.Any("error", herr))
		}

		if out.Fatal() {
			sum.Fatal = out.Err
			break
		}
	}
	return sum
}
