// Package report renders run reports and run history for people and tools.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/weathertaxi/tlcfetch/internal/domain/download"
)

// Format selects a renderer
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat validates a -report value
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", fmt.Errorf("unknown report format %q (want text, json or yaml)", s)
	}
}

// Render writes the report in the requested format
func Render(w io.Writer, format Format, r *download.RunReport) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	default:
		return renderText(w, r)
	}
}

// RenderHistory writes persisted run summaries, newest first
func RenderHistory(w io.Writer, format Format, runs []download.RunSummary) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	case FormatYAML:
		return yaml.NewEncoder(w).Encode(runs)
	}

	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tMODE\tSTARTED\tDURATION\tRESOLVED\tTRANSFERRED\tSKIPPED\tFAILED\t")
	for _, r := range runs {
		status := ""
		if r.Aborted {
			status = "aborted"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%d\t%s\n",
			r.RunID, r.Mode,
			r.StartedAt.Local().Format(time.DateTime),
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Resolved, r.Transferred, r.Skipped, r.Failed, status,
		)
	}
	return tw.Flush()
}

func renderText(w io.Writer, r *download.RunReport) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "run %s (%s) finished in %s\n", r.RunID, r.Mode, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	fmt.Fprintf(tw, "resolved %d entries\n", r.Summary.Resolved)
	for _, na := range r.NotApplicable {
		fmt.Fprintf(tw, "  not applicable: %s\n", na)
	}

	switch r.Mode {
	case download.ModeList:
		fmt.Fprintln(tw)
		for _, e := range r.Entries {
			fmt.Fprintf(tw, "%s\t%s\t\n", e.RelPath, e.URL)
		}
	case download.ModeEstimate:
		writeEstimate(tw, r.Estimate)
	case download.ModeVerify:
		fmt.Fprintln(tw)
		for _, o := range r.Outcomes {
			result, detail := "unknown", o.Reason
			if v := o.Verification; v != nil {
				result = string(v.Outcome)
				if v.Detail != "" {
					detail = v.Detail
				}
				if v.Removed {
					detail += " (removed)"
				}
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", result, o.Entry.RelPath, detail)
		}
		fmt.Fprintf(tw, "\n%d ok, %d invalid, %d missing\n",
			r.Summary.Verified, r.Summary.Invalid, r.Summary.Missing)
	default:
		if r.Estimate != nil {
			writeEstimate(tw, r.Estimate)
		}
		fmt.Fprintln(tw)
		for _, o := range r.Outcomes {
			writeOutcome(tw, o)
		}
		fmt.Fprintf(tw, "\n%d transferred, %d skipped, %d failed (%d not published)\n",
			r.Summary.Transferred, r.Summary.Skipped, r.Summary.Failed, r.Summary.NotAvailable)
	}

	if r.Aborted {
		fmt.Fprintf(tw, "run aborted: %s\n", r.AbortReason)
	}
	return tw.Flush()
}

func writeEstimate(w io.Writer, est *download.Estimate) {
	if est == nil {
		return
	}
	fmt.Fprintln(w)
	for _, e := range est.Entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", e.Path, humanize.IBytes(uint64(e.Bytes)), e.Source)
	}
	fmt.Fprintf(w, "total about %s\n", humanize.IBytes(uint64(est.TotalBytes)))
}

func writeOutcome(w io.Writer, o download.TaskOutcome) {
	switch o.Status {
	case download.StatusComplete:
		if !o.Transferred {
			fmt.Fprintf(w, "complete\t%s\t%s\n", o.Entry.RelPath, strings.Join(o.Extracted, ", "))
			break
		}
		detail := fmt.Sprintf("%s in %s", humanize.IBytes(uint64(o.BytesTransferred)), o.Duration.Round(time.Millisecond))
		if o.ResumedFrom > 0 {
			detail += fmt.Sprintf(", resumed at %s", humanize.IBytes(uint64(o.ResumedFrom)))
		}
		if o.Attempts > 1 {
			detail += fmt.Sprintf(", %d attempts", o.Attempts)
		}
		fmt.Fprintf(w, "transferred\t%s\t%s\n", o.Entry.RelPath, detail)
	case download.StatusSkipped:
		fmt.Fprintf(w, "skipped\t%s\t%s\n", o.Entry.RelPath, o.Reason)
	case download.StatusFailed:
		reason := o.Reason
		if o.ErrorType != "" {
			reason = o.ErrorType + ": " + reason
		}
		fmt.Fprintf(w, "failed\t%s\t%s\n", o.Entry.RelPath, reason)
	default:
		fmt.Fprintf(w, "%s\t%s\t%s\n", o.Status, o.Entry.RelPath, o.Reason)
	}
	if o.MirrorWarning != "" {
		fmt.Fprintf(w, "\t\tmirror: %s\n", o.MirrorWarning)
	}
}
