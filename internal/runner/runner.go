// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runner processes the repository worklist with a bounded worker pool.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/raibid-labs/cfgsync/internal/metrics"
	"github.com/raibid-labs/cfgsync/internal/reporter"
)

// NoteInterrupted marks repositories that were never started.
const NoteInterrupted = "interrupted"

// Options configures a Runner.
type Options struct {
	Mode    Mode
	Workers int
	Strict  bool
	DryRun  bool
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// Runner manages the processing of repositories.
type Runner struct {
	proc  Processor
	store *StateStore
	opts  Options
}

// NewRunner creates a runner. store may be nil to skip persisting state.
func NewRunner(proc Processor, store *StateStore, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{proc: proc, store: store, opts: opts}
}

// Run processes every target. One repository's failure never stops the
// others. When ctx is cancelled no new repository is started, unstarted ones
// are recorded as skipped, and in-flight ones run to completion.
func (r *Runner) Run(ctx context.Context, targets []Target) (*reporter.Summary, error) {
	return r.execute(ctx, targets)
}

// Resume processes only the targets the last persisted run left failed,
// non-compliant or skipped. Without a previous run nothing is processed.
func (r *Runner) Resume(ctx context.Context, targets []Target) (*reporter.Summary, error) {
	if r.store == nil {
		return nil, fmt.Errorf("resume needs a state directory")
	}
	retry, err := r.store.LoadRetry()
	if err != nil {
		return nil, fmt.Errorf("loading last run: %w", err)
	}

	want := make(map[string]bool, len(retry))
	for _, name := range retry {
		want[name] = true
	}
	var toRun []Target
	for _, t := range targets {
		if want[t.Name()] {
			toRun = append(toRun, t)
		}
	}

	if len(toRun) == 0 {
		zerolog.Ctx(ctx).Info().Msg("nothing to resume")
		now := r.opts.Now()
		return reporter.Aggregate(r.meta(uuid.NewString(), now, now, false), nil), nil
	}
	return r.execute(ctx, toRun)
}

type indexed struct {
	i   int
	res reporter.Result
}

func (r *Runner) execute(ctx context.Context, targets []Target) (*reporter.Summary, error) {
	runID := uuid.NewString()
	log := zerolog.Ctx(ctx).With().Str("run_id", runID).Str("mode", string(r.opts.Mode)).Logger()
	ctx = log.WithContext(ctx)

	started := r.opts.Now()
	log.Info().Int("repositories", len(targets)).Int("workers", r.opts.Workers).Msg("run started")

	results := make(chan indexed)
	collected := make([]reporter.Result, len(targets))
	var stateErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ir := range results {
			collected[ir.i] = ir.res
			r.opts.Metrics.RecordRepository(string(r.opts.Mode), ir.res)
			if r.store != nil {
				if err := r.store.WriteResult(ir.res); err != nil && stateErr == nil {
					stateErr = err
				}
			}
		}
	}()

	var g errgroup.Group
	g.SetLimit(r.opts.Workers)
	for i, t := range targets {
		if ctx.Err() != nil {
			results <- indexed{i, skipped(t)}
			continue
		}
		g.Go(func() error {
			// The slot may have opened after cancellation.
			if ctx.Err() != nil {
				results <- indexed{i, skipped(t)}
				return nil
			}
			results <- indexed{i, r.process(context.WithoutCancel(ctx), t)}
			return nil
		})
	}
	_ = g.Wait()
	close(results)
	<-done

	interrupted := false
	for _, res := range collected {
		if res.Outcome == reporter.OutcomeSkipped {
			interrupted = true
			break
		}
	}
	summary := reporter.Aggregate(r.meta(runID, started, r.opts.Now(), interrupted), collected)
	r.opts.Metrics.RecordRun(summary)

	ev := log.Info()
	if interrupted {
		ev = log.Warn().Int("skipped", summary.Counters.Skipped)
	}
	ev.Int("exit_code", summary.ExitCode).Msg("run finished")

	if r.store != nil {
		if err := r.store.WriteLastRun(summary); err != nil {
			return summary, fmt.Errorf("writing last run: %w", err)
		}
	}
	if stateErr != nil {
		return summary, fmt.Errorf("writing repository state: %w", stateErr)
	}
	return summary, nil
}

func (r *Runner) meta(runID string, started, finished time.Time, interrupted bool) reporter.Meta {
	return reporter.Meta{
		RunID:       runID,
		Mode:        string(r.opts.Mode),
		Strict:      r.opts.Strict,
		DryRun:      r.opts.DryRun,
		Interrupted: interrupted,
		Started:     started,
		Finished:    finished,
	}
}

// process runs the processor, turning a panic into a failed result.
func (r *Runner) process(ctx context.Context, t Target) (res reporter.Result) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			zerolog.Ctx(ctx).Error().Str("repo", t.Name()).Interface("panic", p).Msg("repository processing panicked")
			res = reporter.Result{Repo: t.Name(), Outcome: reporter.OutcomeFailed, Error: fmt.Sprintf("panic: %v", p)}
		}
		if res.Repo == "" {
			res.Repo = t.Name()
		}
		res.Duration = time.Since(start)
	}()
	return r.proc.Process(ctx, t)
}

func skipped(t Target) reporter.Result {
	return reporter.Result{Repo: t.Name(), Outcome: reporter.OutcomeSkipped, Note: NoteInterrupted}
}
