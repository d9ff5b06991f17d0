// SPDX-License-Identifier: AGPL-3.0-or-later

package reporter

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/projection"
)

// Format selects a renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates a user supplied format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatText, FormatJSON, FormatMarkdown:
		return f, nil
	case "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown output format %q (want text, json or markdown)", s)
}

// Render writes s to w in format f.
func Render(w io.Writer, f Format, s *Summary) error {
	switch f {
	case FormatJSON:
		return RenderJSON(w, s)
	case FormatMarkdown:
		_, err := io.WriteString(w, RenderMarkdown(s))
		return err
	default:
		return RenderText(w, s)
	}
}

// RenderJSON writes the machine-readable report.
func RenderJSON(w io.Writer, s *Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// Marshal returns the JSON report, as persisted by --report-file.
func Marshal(s *Summary) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

var markers = map[Outcome]string{
	OutcomeClassified:   "·",
	OutcomeCompliant:    "✓",
	OutcomeWarnings:     "!",
	OutcomeNonCompliant: "✗",
	OutcomeFailed:       "✗",
	OutcomeSkipped:      "-",
}

var colors = map[Outcome]lipgloss.Color{
	OutcomeClassified:   lipgloss.Color("#5B8DEF"),
	OutcomeCompliant:    lipgloss.Color("#3FB950"),
	OutcomeWarnings:     lipgloss.Color("#D29922"),
	OutcomeNonCompliant: lipgloss.Color("#F85149"),
	OutcomeFailed:       lipgloss.Color("#F85149"),
	OutcomeSkipped:      lipgloss.Color("#888888"),
}

// RenderText writes an aligned table. Colours are only emitted when w is a terminal.
func RenderText(w io.Writer, s *Summary) error {
	r := lipgloss.NewRenderer(w)
	bold := r.NewStyle().Bold(true)
	dim := r.NewStyle().Foreground(lipgloss.Color("#888888"))

	var b strings.Builder
	b.WriteString(bold.Render(fmt.Sprintf("cfgsync %s", s.Mode)))
	b.WriteString(dim.Render(fmt.Sprintf("  run %s", s.RunID)))
	if s.DryRun {
		b.WriteString(dim.Render("  (dry run)"))
	}
	if s.Interrupted {
		b.WriteString(dim.Render("  (interrupted)"))
	}
	b.WriteString("\n\n")

	headers := []string{"REPOSITORY", "TYPE", "STATUS", "E", "W", "I", "DETAIL"}
	rows := make([][]string, 0, len(s.Results))
	for _, res := range s.Results {
		rows = append(rows, textRow(res))
	}
	widths := columnWidths(headers, rows)

	writeRow(&b, headers, widths, func(i int, cell string) string { return bold.Render(cell) })
	for i, row := range rows {
		outcome := s.Results[i].Outcome
		style := r.NewStyle().Foreground(colors[outcome])
		writeRow(&b, row, widths, func(col int, cell string) string {
			if col == 2 {
				return style.Render(cell)
			}
			return cell
		})
	}

	for _, res := range s.Results {
		if res.Report == nil || len(res.Report.Findings) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\n%s\n", bold.Render(res.Repo))
		for _, f := range res.Report.Findings {
			sev := r.NewStyle().Foreground(severityColor(f.Severity)).Render(fmt.Sprintf("%-7s", f.Severity))
			fmt.Fprintf(&b, "  %s %s %s\n", sev, dim.Render(f.Check), f.Message)
		}
	}

	c := s.Counters
	fmt.Fprintf(&b, "\nprocessed %d  compliant %d  warnings %d  non-compliant %d  synced %d  skipped %d  failed %d\n",
		c.Processed, c.Compliant, c.Warnings, c.NonCompliant, c.Synced, c.Skipped, c.Failed)

	_, err := io.WriteString(w, b.String())
	return err
}

func textRow(res Result) []string {
	e, wn, in := "", "", ""
	if res.Report != nil {
		e, wn, in = strconv.Itoa(res.Report.Errors), strconv.Itoa(res.Report.Warnings), strconv.Itoa(res.Report.Info)
	}
	return []string{res.Repo, string(res.Type), markers[res.Outcome] + " " + string(res.Outcome), e, wn, in, detail(res)}
}

// detail is the one-line summary of the sync job, error or note of a result.
func detail(res Result) string {
	switch {
	case res.Error != "":
		return res.Error
	case res.Sync != nil:
		d := string(res.Sync.Status)
		if res.Sync.PR != nil {
			d += " " + res.Sync.PR.URL
			if res.Sync.Reused {
				d += " (existing)"
			}
		}
		if res.Sync.Error != "" {
			d += ": " + res.Sync.Error
		} else if res.Sync.Note != "" {
			d += ": " + res.Sync.Note
		}
		return d
	case res.Rule != "":
		return res.Rule
	}
	return res.Note
}

func columnWidths(headers []string, rows [][]string) []int {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}
	return widths
}

// writeRow pads before styling so escape sequences do not break alignment.
func writeRow(b *strings.Builder, cells []string, widths []int, style func(int, string) string) {
	for i, cell := range cells {
		last := i == len(cells)-1
		if !last {
			cell += strings.Repeat(" ", widths[i]-lipgloss.Width(cell))
		}
		b.WriteString(style(i, cell))
		if !last {
			b.WriteString("  ")
		}
	}
	b.WriteString("\n")
}

func severityColor(s finding.Severity) lipgloss.Color {
	switch s {
	case finding.Error:
		return colors[OutcomeNonCompliant]
	case finding.Warning:
		return colors[OutcomeWarnings]
	}
	return colors[OutcomeClassified]
}

// RenderMarkdown returns the prose report.
func RenderMarkdown(s *Summary) string {
	var b strings.Builder
	b.WriteString(projection.RenderHeader(1, "cfgsync "+s.Mode+" report"))
	fmt.Fprintf(&b, "Run `%s`, started %s, finished %s.", s.RunID,
		s.Started.UTC().Format("2006-01-02 15:04:05 MST"), s.Finished.UTC().Format("2006-01-02 15:04:05 MST"))
	if s.DryRun {
		b.WriteString(" Dry run: nothing was pushed.")
	}
	if s.Interrupted {
		b.WriteString(" The run was interrupted; unstarted repositories are listed as skipped.")
	}
	b.WriteString("\n\n")

	c := s.Counters
	b.WriteString(projection.RenderHeader(2, "Summary"))
	b.WriteString(projection.RenderTable(
		[]string{"Processed", "Compliant", "Warnings", "Non-compliant", "Synced", "Skipped", "Failed"},
		[][]string{{
			strconv.Itoa(c.Processed), strconv.Itoa(c.Compliant), strconv.Itoa(c.Warnings),
			strconv.Itoa(c.NonCompliant), strconv.Itoa(c.Synced), strconv.Itoa(c.Skipped), strconv.Itoa(c.Failed),
		}},
	))
	b.WriteString("\n")

	b.WriteString(projection.RenderHeader(2, "Repositories"))
	rows := make([][]string, 0, len(s.Results))
	for _, res := range s.Results {
		row := textRow(res)
		row[2] = string(res.Outcome)
		for i := range row {
			row[i] = projection.EscapeCell(row[i])
		}
		rows = append(rows, row)
	}
	b.WriteString(projection.RenderTable([]string{"Repository", "Type", "Status", "Errors", "Warnings", "Info", "Detail"}, rows))

	var withFindings []Result
	for _, res := range s.Results {
		if res.Report != nil && len(res.Report.Findings) > 0 {
			withFindings = append(withFindings, res)
		}
	}
	if len(withFindings) > 0 {
		b.WriteString("\n")
		b.WriteString(projection.RenderHeader(2, "Findings"))
		for _, res := range withFindings {
			b.WriteString(projection.RenderHeader(3, res.Repo))
			items := make([]string, 0, len(res.Report.Findings))
			for _, f := range res.Report.Findings {
				items = append(items, fmt.Sprintf("**%s** `%s`: %s", f.Severity, f.Check, f.Message))
			}
			b.WriteString(projection.RenderList(items))
			b.WriteString("\n")
		}
	}

	b.WriteString(fmt.Sprintf("Exit code: %d\n", s.ExitCode))
	return b.String()
}

// WriteTable writes an aligned plain-text table with a bold header row.
func WriteTable(w io.Writer, headers []string, rows [][]string) error {
	bold := lipgloss.NewRenderer(w).NewStyle().Bold(true)
	widths := columnWidths(headers, rows)

	var b strings.Builder
	writeRow(&b, headers, widths, func(_ int, cell string) string { return bold.Render(cell) })
	for _, row := range rows {
		writeRow(&b, row, widths, func(_ int, cell string) string { return cell })
	}
	_, err := io.WriteString(w, b.String())
	return err
}
