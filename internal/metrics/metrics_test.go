// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/reporter"
	"github.com/raibid-labs/cfgsync/internal/syncer"
)

func TestRecordRepository(t *testing.T) {
	m := New()
	m.RecordRepository("sync", reporter.Result{
		Repo:     "alpha",
		Outcome:  reporter.OutcomeNonCompliant,
		Duration: 300 * time.Millisecond,
		Report: finding.NewReport([]finding.Finding{
			finding.Errorf("config-presence", "missing"),
			finding.Warnf("vcs-hygiene", "README is missing"),
		}),
		Sync: &syncer.Job{Status: syncer.StatePRCreated},
	})
	m.RecordRepository("sync", reporter.Result{Repo: "beta", Outcome: reporter.OutcomeSkipped})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.repositories.WithLabelValues("sync", "non-compliant")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.repositories.WithLabelValues("sync", "skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findings.WithLabelValues("error", "config-presence")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.syncJobs.WithLabelValues("pr-created")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.repoDuration))
}

func TestRecordRunAndWriteTextfile(t *testing.T) {
	m := New()
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	m.RecordRun(&reporter.Summary{Mode: "validate", ExitCode: 2, Started: start, Finished: start.Add(90 * time.Second)})

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("validate", "2")))
	assert.Equal(t, 90.0, testutil.ToFloat64(m.runDuration))

	path := filepath.Join(t.TempDir(), "textfile", "cfgsync.prom")
	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `cfgsync_runs_total{exit_code="2",mode="validate"} 1`)
	assert.Contains(t, string(data), "cfgsync_last_run_timestamp_seconds")
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.RecordRepository("validate", reporter.Result{Outcome: reporter.OutcomeCompliant})
	m.RecordRun(&reporter.Summary{})
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
	assert.Nil(t, m.Registry())
}
