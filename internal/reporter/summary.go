// SPDX-License-Identifier: AGPL-3.0-or-later

// Package reporter aggregates per-repository results into a run summary and renders it.
package reporter

import (
	"time"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/syncer"
)

// Outcome is the per-repository result of a run.
type Outcome string

const (
	OutcomeClassified   Outcome = "classified"
	OutcomeCompliant    Outcome = "compliant"
	OutcomeWarnings     Outcome = "compliant-with-warnings"
	OutcomeNonCompliant Outcome = "non-compliant"
	OutcomeFailed       Outcome = "failed"
	OutcomeSkipped      Outcome = "skipped"
)

// OutcomeOf maps a compliance status to an outcome.
func OutcomeOf(s finding.Status) Outcome {
	switch s {
	case finding.StatusNonCompliant:
		return OutcomeNonCompliant
	case finding.StatusWarnings:
		return OutcomeWarnings
	default:
		return OutcomeCompliant
	}
}

// NeedsRetry reports whether a repository with this outcome is picked up by --resume.
func (o Outcome) NeedsRetry() bool {
	return o == OutcomeFailed || o == OutcomeNonCompliant || o == OutcomeSkipped
}

// Result is what processing one repository produced.
type Result struct {
	Repo     string          `json:"repo"`
	Type     classifier.Type `json:"type,omitempty"`
	Rule     string          `json:"rule,omitempty"`
	Outcome  Outcome         `json:"status"`
	Report   *finding.Report `json:"report,omitempty"`
	Sync     *syncer.Job     `json:"sync,omitempty"`
	Error    string          `json:"error,omitempty"`
	Note     string          `json:"note,omitempty"`
	Duration time.Duration   `json:"duration_ns"`
}

// Counters are the run-level tallies.
type Counters struct {
	Processed    int `json:"processed"`
	Compliant    int `json:"compliant"`
	Warnings     int `json:"warnings"`
	NonCompliant int `json:"non_compliant"`
	Synced       int `json:"synced"`
	Skipped      int `json:"skipped"`
	Failed       int `json:"failed"`
}

// Summary is the outcome of a whole run. Its JSON form is the persisted report.
type Summary struct {
	RunID       string    `json:"run_id"`
	Mode        string    `json:"mode"`
	Strict      bool      `json:"strict"`
	DryRun      bool      `json:"dry_run"`
	// Interrupted is set when a timeout or signal stopped the run before every repository was started.
	Interrupted bool      `json:"interrupted,omitempty"`
	Started     time.Time `json:"started"`
	Finished    time.Time `json:"finished"`
	Counters    Counters  `json:"summary"`
	Results     []Result  `json:"results"`
	ExitCode    int       `json:"exit_code"`
}

// Meta describes the run a summary is built for.
type Meta struct {
	RunID       string
	Mode        string
	Strict      bool
	DryRun      bool
	Interrupted bool
	Started     time.Time
	Finished    time.Time
}

// Aggregate builds the summary. It is the only place counters are computed.
func Aggregate(meta Meta, results []Result) *Summary {
	s := &Summary{
		RunID:       meta.RunID,
		Mode:        meta.Mode,
		Strict:      meta.Strict,
		DryRun:      meta.DryRun,
		Interrupted: meta.Interrupted,
		Started:     meta.Started,
		Finished:    meta.Finished,
		Results:     results,
	}
	if s.Results == nil {
		s.Results = []Result{}
	}
	for _, r := range results {
		if r.Outcome != OutcomeSkipped {
			s.Counters.Processed++
		}
		switch r.Outcome {
		case OutcomeCompliant:
			s.Counters.Compliant++
		case OutcomeWarnings:
			s.Counters.Warnings++
		case OutcomeNonCompliant:
			s.Counters.NonCompliant++
		case OutcomeSkipped:
			s.Counters.Skipped++
		case OutcomeFailed:
			s.Counters.Failed++
		}
		if r.Sync != nil && r.Sync.Status == syncer.StatePRCreated {
			s.Counters.Synced++
		}
		s.ExitCode = max(s.ExitCode, exitCodeOf(r, meta.Strict))
	}
	// An interrupted run never reports success.
	if meta.Interrupted {
		s.ExitCode = max(s.ExitCode, finding.ExitErrors)
	}
	return s
}

func exitCodeOf(r Result, strict bool) int {
	switch r.Outcome {
	case OutcomeFailed, OutcomeNonCompliant:
		return finding.ExitErrors
	case OutcomeWarnings:
		if strict {
			return finding.ExitWarnings
		}
	}
	return finding.ExitOK
}

// Retry returns the repositories a resumed run should process again.
func (s *Summary) Retry() []string {
	var out []string
	for _, r := range s.Results {
		if r.Outcome.NeedsRetry() {
			out = append(out, r.Repo)
		}
	}
	return out
}
