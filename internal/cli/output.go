package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"marketcore/internal/store"
	"marketcore/pkg/contracts/domain"
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	warnStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

func statusLabel(status domain.LoadStatus) string {
	switch status {
	case domain.LoadStatusLoaded:
		return okStyle.Render("LOADED")
	case domain.LoadStatusSkipped:
		return warnStyle.Render("SKIPPED")
	default:
		return errStyle.Render("FAILED")
	}
}

func verdictLabel(valid bool) string {
	if valid {
		return okStyle.Render("VALID")
	}
	return errStyle.Render("INVALID")
}

func severityLabel(sev domain.Severity) string {
	if sev == domain.SeverityError {
		return errStyle.Render(string(sev))
	}
	return warnStyle.Render(string(sev))
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func printOutcomes(w io.Writer, batch domain.BatchResult) {
	tw := newTable(w)
	fmt.Fprintln(tw, "STATUS\tFORMAT\tROWS\tSOURCE\tDETAIL")
	for _, o := range batch.Outcomes {
		rows, format := "-", string(o.Format)
		if o.IsLoaded() {
			rows = humanize.Comma(int64(o.Table.NumRows()))
		}
		if format == "" {
			format = string(o.Detected)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", statusLabel(o.Status), format, rows, o.Source.Path, o.Reason)
	}
	tw.Flush()

	for _, warn := range batch.Warnings {
		fmt.Fprintf(w, "%s %s: %s\n", warnStyle.Render("WARNING"), warn.Path, warn.Message)
	}

	loaded, skipped, failed := batch.Counts()
	fmt.Fprintf(w, "\n%d loaded, %d skipped, %d failed; aggregate %s rows x %d columns",
		loaded, skipped, failed,
		humanize.Comma(int64(batch.Aggregate.NumRows())), batch.Aggregate.NumColumns())
	if batch.Cancelled {
		fmt.Fprint(w, " (cancelled)")
	}
	fmt.Fprintln(w)
}

func printReport(w io.Writer, report *domain.ValidationReport) {
	if report == nil {
		fmt.Fprintln(w, dimStyle.Render("validation skipped: nothing was loaded"))
		return
	}
	issues := report.Issues()
	if len(issues) > 0 {
		fmt.Fprintln(w)
		tw := newTable(w)
		fmt.Fprintln(tw, "SEVERITY\tCATEGORY\tCOLUMN\tMESSAGE")
		for _, is := range issues {
			msg := is.Message
			if is.Count > 1 {
				msg = fmt.Sprintf("%s (x%d)", msg, is.Count)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", severityLabel(is.Severity), is.Category, is.Column, msg)
		}
		tw.Flush()
	}
	fmt.Fprintf(w, "\n%s (%s): %d errors, %d warnings; checked %v\n",
		verdictLabel(report.IsValid()), report.Mode(),
		len(report.Errors()), len(report.Warnings()), report.Executed())
}

func printRuns(w io.Writer, runs []store.Run, now time.Time) {
	tw := newTable(w)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTRIGGER\tSOURCES\tROWS\tRESULT\tTARGET")
	for _, r := range runs {
		result := verdictLabel(r.Valid)
		if r.Cancelled {
			result = warnStyle.Render("CANCELLED")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d/%d\t%s\t%s\t%s\n",
			r.ID, humanize.RelTime(r.StartedAt, now, "ago", "from now"), r.Trigger,
			r.Loaded, r.Sources, humanize.Comma(int64(r.Rows)), result, r.Target)
	}
	tw.Flush()
}

func printRun(w io.Writer, r store.Run) {
	fmt.Fprintf(w, "Run %s (%s) %s\n", r.ID, r.Trigger, verdictLabel(r.Valid))
	fmt.Fprintf(w, "Target:   %s\n", r.Target)
	fmt.Fprintf(w, "Started:  %s (took %s)\n", r.StartedAt.Format(time.RFC3339), r.Duration().Round(time.Millisecond))
	fmt.Fprintf(w, "Rows:     %s\n", humanize.Comma(int64(r.Rows)))
	fmt.Fprintf(w, "Issues:   %d errors, %d warnings\n\n", r.Errors, r.Warnings)

	tw := newTable(w)
	fmt.Fprintln(tw, "STATUS\tFORMAT\tSOURCE\tDETAIL")
	for _, o := range r.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", statusLabel(domain.LoadStatus(o.Status)), o.Format, o.Path, o.Reason)
	}
	tw.Flush()

	if len(r.Issues) > 0 {
		fmt.Fprintln(w)
		for _, is := range r.Issues {
			fmt.Fprintln(w, is.String())
		}
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
