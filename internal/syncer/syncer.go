// SPDX-License-Identifier: AGPL-3.0-or-later

// Package syncer turns addressable compliance errors into a branch, a commit and a pull request.
package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/raibid-labs/cfgsync/internal/compliance"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/gitops"
	"github.com/raibid-labs/cfgsync/internal/hosting"
	"github.com/raibid-labs/cfgsync/internal/logging"
)

// WorkingCopy is the git surface a sync needs.
type WorkingCopy interface {
	ResetToDefault(ctx context.Context) error
	CreateBranch(ctx context.Context, branch string) error
	CheckoutRemoteBranch(ctx context.Context, branch string) error
	ReadFile(rel string) ([]byte, error)
	CommitFile(ctx context.Context, rel string, content []byte, message string, author gitops.Author) (string, error)
	Push(ctx context.Context, branch string) error
}

var _ WorkingCopy = (*gitops.Repo)(nil)

// Options configures a Syncer.
type Options struct {
	ConfigPath string
	Sync       config.Sync
	DryRun     bool
	// Now defaults to time.Now.
	Now func() time.Time
}

// Syncer applies plans to working copies and opens pull requests.
type Syncer struct {
	opts Options
	host hosting.Client
}

// New returns a syncer. host may be nil for dry runs.
func New(opts Options, host hosting.Client) *Syncer {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Syncer{opts: opts, host: host}
}

// Input is one repository to sync.
type Input struct {
	Repo hosting.Repository
	// WorkingCopy may be nil for dry runs.
	WorkingCopy WorkingCopy
	Plan        PlanInput
}

// Sync runs the job for one repository. It never returns an error: failures
// are recorded on the job.
func (s *Syncer) Sync(ctx context.Context, in Input) *Job {
	log := logging.Component(ctx, "syncer")
	job := newJob(in.Repo.Name, s.opts.Now())

	if in.Plan.Report != nil && !compliance.Addressable(in.Plan.Report) {
		job.Note = "nothing addressable to fix"
		if in.Plan.Report.Has(finding.Error, compliance.IDJSONValidity) {
			job.Note = "configuration is not valid JSON; left untouched"
		}
		_ = job.advance(StateNoChange)
		return job
	}

	plan, err := BuildPlan(in.Plan)
	if err != nil {
		return job.fail(err)
	}
	if plan.Empty() {
		_ = job.advance(StateNoChange)
		return job
	}
	job.Changes = plan.Changes
	_ = job.advance(StatePatched)
	job.Branch = s.branchName()

	if s.opts.DryRun {
		job.Note = fmt.Sprintf("would write %s and open a pull request from %s", s.opts.ConfigPath, job.Branch)
		_ = job.advance(StateDryRun)
		return job
	}
	if in.WorkingCopy == nil || s.host == nil {
		return job.fail(errors.New("sync needs a working copy and a hosting client"))
	}

	owner := in.Repo.Owner
	existing, err := s.host.FindOpenPR(ctx, owner, in.Repo.Name, s.opts.Sync.BranchPrefix)
	if err != nil {
		return job.fail(err)
	}
	if existing != nil {
		return s.refresh(ctx, job, in.WorkingCopy, existing, plan)
	}

	if err := in.WorkingCopy.ResetToDefault(ctx); err != nil {
		return job.fail(fmt.Errorf("resetting working copy: %w", err))
	}
	if err := in.WorkingCopy.CreateBranch(ctx, job.Branch); err != nil {
		return job.fail(fmt.Errorf("creating branch: %w", err))
	}
	author := gitops.Author{Name: s.opts.Sync.AuthorName, Email: s.opts.Sync.AuthorEmail}
	if _, err := in.WorkingCopy.CommitFile(ctx, s.opts.ConfigPath, plan.Content, s.opts.Sync.CommitMessage, author); err != nil {
		return job.fail(fmt.Errorf("committing: %w", err))
	}
	_ = job.advance(StateCommitted)

	if err := in.WorkingCopy.Push(ctx, job.Branch); err != nil {
		return job.fail(fmt.Errorf("pushing: %w", err))
	}
	_ = job.advance(StatePushed)

	pr, err := s.host.CreatePR(ctx, owner, in.Repo.Name, hosting.NewPullRequest{
		Title: s.opts.Sync.PRTitle,
		Head:  job.Branch,
		Base:  in.Repo.DefaultBranch,
		Body:  renderBody(s.opts.Sync.PRBody, plan.Changes),
	})
	if errors.Is(err, hosting.ErrPRExists) {
		existing, ferr := s.host.FindOpenPR(ctx, owner, in.Repo.Name, s.opts.Sync.BranchPrefix)
		if ferr == nil && existing != nil {
			return s.reuse(job, existing)
		}
	}
	if err != nil {
		return job.fail(err)
	}
	job.PR = pr
	_ = job.advance(StatePRCreated)
	log.Info().Int("pr", pr.Number).Str("branch", job.Branch).Msg("pull request opened")
	return job
}

// refresh reuses an open pull request. When its branch does not carry the
// planned document, for instance because it predates newer drift, the plan is
// committed on top of that branch and pushed.
func (s *Syncer) refresh(ctx context.Context, job *Job, wc WorkingCopy, pr *hosting.PullRequest, plan *Plan) *Job {
	log := logging.Component(ctx, "syncer").With().Int("pr", pr.Number).Str("branch", pr.Head).Logger()
	if err := wc.CheckoutRemoteBranch(ctx, pr.Head); err != nil {
		return job.fail(fmt.Errorf("checking out %s: %w", pr.Head, err))
	}
	current, err := wc.ReadFile(s.opts.ConfigPath)
	if err != nil {
		return job.fail(err)
	}
	if bytes.Equal(current, plan.Content) {
		log.Info().Msg("reusing open pull request")
		return s.reuse(job, pr)
	}

	author := gitops.Author{Name: s.opts.Sync.AuthorName, Email: s.opts.Sync.AuthorEmail}
	if _, err := wc.CommitFile(ctx, s.opts.ConfigPath, plan.Content, s.opts.Sync.CommitMessage, author); err != nil {
		return job.fail(fmt.Errorf("committing: %w", err))
	}
	_ = job.advance(StateCommitted)
	if err := wc.Push(ctx, pr.Head); err != nil {
		return job.fail(fmt.Errorf("pushing: %w", err))
	}
	_ = job.advance(StatePushed)
	job.Note = fmt.Sprintf("updated open pull request #%d with the current changes", pr.Number)
	log.Info().Msg("updated open pull request")
	return s.reuse(job, pr)
}

func (s *Syncer) reuse(job *Job, pr *hosting.PullRequest) *Job {
	job.PR = pr
	job.Reused = true
	job.Branch = pr.Head
	_ = job.advance(StatePRCreated)
	return job
}

// branchName returns <prefix>-<UTC timestamp>.
func (s *Syncer) branchName() string {
	return s.opts.Sync.BranchPrefix + "-" + s.opts.Now().UTC().Format("20060102T150405Z")
}

func renderBody(tmpl string, changes []Change) string {
	var b strings.Builder
	for i, c := range changes {
		if i > 0 {
			b.WriteString("\n")
		}
		if c.Old != "" {
			fmt.Fprintf(&b, "- `%s`: `%s` -> `%s`", c.Field, c.Old, c.New)
		} else {
			fmt.Fprintf(&b, "- `%s`: `%s`", c.Field, c.New)
		}
	}
	if !strings.Contains(tmpl, "{{changes}}") {
		return tmpl + "\n\n" + b.String()
	}
	return strings.ReplaceAll(tmpl, "{{changes}}", b.String())
}
