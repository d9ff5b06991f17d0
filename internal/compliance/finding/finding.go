// SPDX-License-Identifier: AGPL-3.0-or-later

// Package finding defines compliance findings and the per-repository report built from them.
package finding

import "fmt"

// Severity of a finding.
type Severity string

const (
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Finding is one reported discrepancy.
type Finding struct {
	Severity Severity `json:"severity"`
	Check    string   `json:"check"`
	Message  string   `json:"message"`
}

// New builds a finding.
func New(sev Severity, check, msg string) Finding {
	return Finding{Severity: sev, Check: check, Message: msg}
}

// Errorf builds an error finding.
func Errorf(check, format string, args ...any) Finding {
	return New(Error, check, fmt.Sprintf(format, args...))
}

// Warnf builds a warning finding.
func Warnf(check, format string, args ...any) Finding {
	return New(Warning, check, fmt.Sprintf(format, args...))
}

// Infof builds an info finding.
func Infof(check, format string, args ...any) Finding {
	return New(Info, check, fmt.Sprintf(format, args...))
}

// Status is the three-tier compliance outcome.
type Status string

const (
	StatusCompliant    Status = "compliant"
	StatusWarnings     Status = "compliant-with-warnings"
	StatusNonCompliant Status = "non-compliant"
)

// Exit codes shared by reports and run summaries.
const (
	ExitOK       = 0
	ExitWarnings = 1
	ExitErrors   = 2
)

// Report is the ordered set of findings for one repository.
type Report struct {
	Findings []Finding `json:"findings"`
	Errors   int       `json:"errors"`
	Warnings int       `json:"warnings"`
	Info     int       `json:"info"`
}

// NewReport builds a report from findings, counting them once.
func NewReport(findings ...[]Finding) *Report {
	r := &Report{Findings: []Finding{}}
	for _, group := range findings {
		for _, f := range group {
			r.Findings = append(r.Findings, f)
			switch f.Severity {
			case Error:
				r.Errors++
			case Warning:
				r.Warnings++
			case Info:
				r.Info++
			}
		}
	}
	return r
}

// Status derives the compliance tier. Info findings never change it.
func (r *Report) Status() Status {
	switch {
	case r.Errors > 0:
		return StatusNonCompliant
	case r.Warnings > 0:
		return StatusWarnings
	default:
		return StatusCompliant
	}
}

// ExitCode maps the report to a process exit code.
func (r *Report) ExitCode(strict bool) int {
	switch r.Status() {
	case StatusNonCompliant:
		return ExitErrors
	case StatusWarnings:
		if strict {
			return ExitWarnings
		}
	}
	return ExitOK
}

// Has reports whether any finding of severity sev came from check.
func (r *Report) Has(sev Severity, check string) bool {
	for _, f := range r.Findings {
		if f.Severity == sev && f.Check == check {
			return true
		}
	}
	return false
}

// ByCheck returns the findings produced by check.
func (r *Report) ByCheck(check string) []Finding {
	var out []Finding
	for _, f := range r.Findings {
		if f.Check == check {
			out = append(out, f)
		}
	}
	return out
}
