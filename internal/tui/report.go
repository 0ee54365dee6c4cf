package tui

import (
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/Digital-Shane/episode-matcher/internal/log"
	"github.com/Digital-Shane/episode-matcher/internal/match"
	"github.com/Digital-Shane/episode-matcher/internal/tui/theme"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-runewidth"
)

const reportColumnWidth = 56

// Row is one file in the batch report.
type Row struct {
	File   string
	Status string
	Detail string
}

// Report prints one line per file as the batch runs and a table at the end.
type Report struct {
	Out   io.Writer
	Theme theme.Theme

	rows []Row
}

func NewReport(out io.Writer, th theme.Theme) *Report {
	return &Report{Out: out, Theme: th}
}

// Add records a file. status is what happened to it ("renamed", "skipped",
// a failure reason) and detail the new name or the error.
func (r *Report) Add(out match.Outcome, status, detail string) {
	row := Row{File: filepath.Base(out.Path), Status: status, Detail: detail}
	r.rows = append(r.rows, row)

	kind, icon := theme.BadgeSuccess, "success"
	switch {
	case out.State != match.Resolved:
		kind, icon = theme.BadgeError, "error"
	case status == "skipped":
		kind, icon = theme.BadgeMuted, "skip"
	case status == "already named":
		kind, icon = theme.BadgeInfo, "unchanged"
	case status == "rename failed":
		kind, icon = theme.BadgeWarning, "error"
	}
	badge := r.Theme.BadgeStyle(kind).Render(status)
	fmt.Fprintf(r.Out, "%s %s %s %s\n", r.Theme.Icon(icon), badge, row.File, r.Theme.MutedStyle().Render(detail))
}

// Rows returns the recorded rows.
func (r *Report) Rows() []Row {
	return r.rows
}

// Render writes the per-file table followed by the batch totals.
func (r *Report) Render(sum match.Summary) {
	if len(r.rows) > 0 {
		rows := make([][]string, 0, len(r.rows))
		for _, row := range r.rows {
			rows = append(rows, []string{truncate(row.File), row.Status, truncate(row.Detail)})
		}
		fmt.Fprintln(r.Out, renderTable([]string{"File", "Result", "Detail"}, rows, nil))
	}

	totals := [][]string{
		{"Files", fmt.Sprint(sum.Total)},
		{"Resolved", fmt.Sprint(sum.Resolved)},
		{"Renamed", fmt.Sprint(sum.Renamed)},
		{"Skipped", fmt.Sprint(sum.Skipped)},
	}
	if sum.Errors > 0 {
		totals = append(totals, []string{"Rename errors", fmt.Sprint(sum.Errors)})
	}
	reasons := make([]match.FailureReason, 0, len(sum.Failed))
	for reason := range sum.Failed {
		reasons = append(reasons, reason)
	}
	sort.Slice(reasons, func(i, j int) bool { return reasons[i] < reasons[j] })
	for _, reason := range reasons {
		totals = append(totals, []string{"Failed: " + reason.String(), fmt.Sprint(sum.Failed[reason])})
	}
	fmt.Fprintf(r.Out, "%s Summary\n", r.Theme.Icon("stats"))
	fmt.Fprintln(r.Out, renderTable([]string{"", "Count"}, totals, []text.Align{text.AlignLeft, text.AlignRight}))
}

// RenderUndo lists what an undo pass did.
func RenderUndo(w io.Writer, th theme.Theme, session *log.LogSession, results []log.UndoResult) {
	fmt.Fprintf(w, "%s Undoing session from %s (%d operations)\n",
		th.Icon("undo"), session.Metadata.Timestamp.Format("2006-01-02 15:04:05"), len(results))

	rows := make([][]string, 0, len(results))
	for _, res := range results {
		status := "restored"
		detail := filepath.Base(res.Operation.SourcePath)
		if !res.Success {
			status = "failed"
			if res.Error != nil {
				detail = res.Error.Error()
			}
		}
		rows = append(rows, []string{truncate(filepath.Base(res.Operation.DestPath)), status, truncate(detail)})
	}
	fmt.Fprintln(w, renderTable([]string{"Renamed file", "Result", "Detail"}, rows, nil))
}

func truncate(s string) string {
	return runewidth.Truncate(s, reportColumnWidth, "…")
}

func renderTable(headers []string, rows [][]string, aligns []text.Align) string {
	columns := len(headers)
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := range headers {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) {
			align = aligns[i]
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
