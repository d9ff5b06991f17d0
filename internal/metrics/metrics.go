// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes run metrics as a node_exporter textfile.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/raibid-labs/cfgsync/internal/reporter"
)

// Namespace prefixes every metric name.
const Namespace = "cfgsync"

// Metrics collects per-run metrics in a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	runs         *prometheus.CounterVec
	repositories *prometheus.CounterVec
	findings     *prometheus.CounterVec
	syncJobs     *prometheus.CounterVec
	repoDuration *prometheus.HistogramVec
	runDuration  prometheus.Gauge
	lastRun      prometheus.Gauge
}

// New registers the collectors in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "runs_total",
				Help:      "Runs completed, by mode and exit code.",
			},
			[]string{"mode", "exit_code"},
		),
		repositories: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "repositories_total",
				Help:      "Repositories processed, by mode and outcome.",
			},
			[]string{"mode", "status"},
		),
		findings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "findings_total",
				Help:      "Compliance findings, by severity and check.",
			},
			[]string{"severity", "check"},
		),
		syncJobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "sync_jobs_total",
				Help:      "Sync jobs, by terminal state.",
			},
			[]string{"status"},
		),
		repoDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "repository_duration_seconds",
				Help:      "Time spent processing one repository.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"mode"},
		),
		runDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
	m.registry.MustRegister(m.runs, m.repositories, m.findings, m.syncJobs, m.repoDuration, m.runDuration, m.lastRun)
	return m
}

// Registry returns the registry the collectors live in.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRepository records one repository result as it completes.
func (m *Metrics) RecordRepository(mode string, r reporter.Result) {
	if m == nil {
		return
	}
	m.repositories.WithLabelValues(mode, string(r.Outcome)).Inc()
	if r.Outcome != reporter.OutcomeSkipped {
		m.repoDuration.WithLabelValues(mode).Observe(r.Duration.Seconds())
	}
	if r.Report != nil {
		for _, f := range r.Report.Findings {
			m.findings.WithLabelValues(string(f.Severity), f.Check).Inc()
		}
	}
	if r.Sync != nil {
		m.syncJobs.WithLabelValues(string(r.Sync.Status)).Inc()
	}
}

// RecordRun records the completed run.
func (m *Metrics) RecordRun(s *reporter.Summary) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(s.Mode, strconv.Itoa(s.ExitCode)).Inc()
	m.runDuration.Set(s.Finished.Sub(s.Started).Seconds())
	m.lastRun.Set(float64(s.Finished.Unix()))
}

// WriteTextfile writes the registry in the text exposition format, atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
