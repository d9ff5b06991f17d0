// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/cmd/cfgsync/internal/clierr"
	"github.com/raibid-labs/cfgsync/internal/history"
	"github.com/raibid-labs/cfgsync/internal/projection"
	"github.com/raibid-labs/cfgsync/internal/repofilter"
	"github.com/raibid-labs/cfgsync/internal/reporter"
	"github.com/raibid-labs/cfgsync/internal/runner"
)

// NewReportCommand returns the `cfgsync report` command group.
func NewReportCommand(g *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Re-render persisted runs",
	}
	cmd.AddCommand(newReportLastCommand(g))
	cmd.AddCommand(newReportHistoryCommand(g))
	return cmd
}

func newReportLastCommand(g *globalOptions) *cobra.Command {
	var (
		output           string
		strict, dryRun   bool
		include, exclude []string
	)
	cmd := &cobra.Command{
		Use:   "last",
		Short: "Render the last run recorded in the state directory",
		Long: `last re-renders the run recorded in the state directory. --include and
--exclude narrow the repositories shown; the summary and exit code are
recomputed from what remains, escalating warnings to exit 1 with --strict.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := g.load(cmd)
			if err != nil {
				return err
			}
			format, err := reporter.ParseFormat(output)
			if err != nil {
				return clierr.CannotStart(err)
			}
			filter, err := repofilter.New(include, exclude)
			if err != nil {
				return clierr.CannotStart(err)
			}
			last, err := runner.NewStateStore(cfg.StateDir).ReadLastRun()
			if err != nil {
				return clierr.CannotStart(err)
			}
			if last == nil {
				return clierr.Newf(clierr.ExitCannotStart, "no run recorded in %s", cfg.StateDir)
			}

			results := repofilter.Select(filter, last.Results, func(r reporter.Result) string { return r.Repo })
			summary := reporter.Aggregate(reporter.Meta{
				RunID:       last.RunID,
				Mode:        last.Mode,
				Strict:      strict,
				DryRun:      last.DryRun,
				Interrupted: last.Interrupted,
				Started:     last.Started,
				Finished:    last.Finished,
			}, results)
			if err := reporter.Render(cmd.OutOrStdout(), format, summary); err != nil {
				return err
			}
			return exitFor(summary)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", string(reporter.FormatText), "report format: text, json or markdown")
	f.BoolVar(&strict, "strict", false, "exit 1 when warnings are found")
	f.BoolVar(&dryRun, "dry-run", false, "no effect: report never modifies repositories")
	f.StringSliceVar(&include, "include", nil, "only repositories matching these globs")
	f.StringSliceVar(&exclude, "exclude", nil, "skip repositories matching these globs")
	return cmd
}

func newReportHistoryCommand(g *globalOptions) *cobra.Command {
	var (
		output string
		repo   string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent runs, or one repository's results with --repo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, ctx, err := g.load(cmd)
			if err != nil {
				return err
			}
			format, err := reporter.ParseFormat(output)
			if err != nil {
				return clierr.CannotStart(err)
			}
			if !cfg.History.Enabled {
				return clierr.New(clierr.ExitCannotStart, "run history is disabled (history.enabled)")
			}
			db, err := history.Open(ctx, cfg.History.Path)
			if err != nil {
				return clierr.CannotStart(err)
			}
			defer func() { _ = db.Close() }()

			if repo != "" {
				entries, err := db.RepositoryHistory(ctx, repo, limit)
				if err != nil {
					return err
				}
				return renderEntries(cmd.OutOrStdout(), format, entries)
			}
			runs, err := db.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			return renderRuns(cmd.OutOrStdout(), format, runs)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", string(reporter.FormatText), "output format: text, json or markdown")
	cmd.Flags().StringVar(&repo, "repo", "", "show the results of one repository")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of rows")
	return cmd
}

func renderRuns(w io.Writer, format reporter.Format, runs []history.Run) error {
	if format == reporter.FormatJSON {
		return writeJSON(w, runs)
	}
	headers := []string{"RUN", "MODE", "STARTED", "DURATION", "PROCESSED", "NON-COMPLIANT", "SYNCED", "FAILED", "EXIT"}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		mode := r.Mode
		if r.DryRun {
			mode += " (dry run)"
		}
		c := r.Counters
		rows = append(rows, []string{
			r.ID, mode, r.Started.Format(time.RFC3339), r.Finished.Sub(r.Started).Round(time.Second).String(),
			strconv.Itoa(c.Processed), strconv.Itoa(c.NonCompliant), strconv.Itoa(c.Synced), strconv.Itoa(c.Failed),
			strconv.Itoa(r.ExitCode),
		})
	}
	return writeRows(w, format, "Runs", headers, rows)
}

func renderEntries(w io.Writer, format reporter.Format, entries []history.Entry) error {
	if format == reporter.FormatJSON {
		return writeJSON(w, entries)
	}
	headers := []string{"RUN", "STARTED", "TYPE", "STATUS", "E", "W", "I", "SYNC", "PR"}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.RunID, e.Started.Format(time.RFC3339), e.Type, e.Status,
			strconv.Itoa(e.Errors), strconv.Itoa(e.Warnings), strconv.Itoa(e.Info), e.SyncStatus, e.PRURL,
		})
	}
	return writeRows(w, format, "Repository history", headers, rows)
}

func writeRows(w io.Writer, format reporter.Format, title string, headers []string, rows [][]string) error {
	if format == reporter.FormatMarkdown {
		_, err := io.WriteString(w, projection.RenderHeader(1, title)+projection.RenderTable(headers, rows))
		return err
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "No runs recorded.")
		return err
	}
	return reporter.WriteTable(w, headers, rows)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
