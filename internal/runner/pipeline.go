// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"context"
	"fmt"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/gitops"
	"github.com/raibid-labs/cfgsync/internal/logging"
	"github.com/raibid-labs/cfgsync/internal/reporter"
	"github.com/raibid-labs/cfgsync/internal/resolver"
	"github.com/raibid-labs/cfgsync/internal/syncer"
	"github.com/raibid-labs/cfgsync/internal/templates"
)

// Pipeline is the Processor that classifies, resolves, validates and
// optionally syncs one repository.
type Pipeline struct {
	Mode       Mode
	ConfigPath string
	Classifier *classifier.Classifier
	Templates  *templates.Store
	Validator  *compliance.Validator
	Required   config.RequiredServer
	// Workspace provides working copies for remote targets.
	Workspace *gitops.Workspace
	// Syncer is only used in sync mode.
	Syncer *syncer.Syncer
}

var _ Processor = (*Pipeline)(nil)

// Process implements Processor.
func (p *Pipeline) Process(ctx context.Context, t Target) reporter.Result {
	ctx = logging.WithRepo(ctx, t.Name())
	log := logging.Component(ctx, "pipeline")
	res := reporter.Result{Repo: t.Name()}

	dir := t.Dir
	var wc syncer.WorkingCopy
	if dir == "" {
		if p.Workspace == nil {
			return failed(res, fmt.Errorf("no workspace configured for remote repository"))
		}
		repo, release, err := p.Workspace.Acquire(ctx, t.Repo.Name, t.Repo.CloneURL, t.Repo.DefaultBranch)
		if err != nil {
			return failed(res, fmt.Errorf("acquiring working copy: %w", err))
		}
		defer release()
		dir, wc = repo.Dir, repo
		if t.Repo.DefaultBranch == "" {
			t.Repo.DefaultBranch = repo.DefaultBranch
		}
	}

	cls := p.Classifier.Classify(dir)
	res.Type, res.Rule = cls.Type, cls.Rule
	log.Debug().Str("type", string(cls.Type)).Str("rule", cls.Rule).Msg("classified")
	if p.Mode == ModeClassify {
		res.Outcome = reporter.OutcomeClassified
		return res
	}

	tgt, err := compliance.LoadTarget(t.Name(), dir, cls.Type, p.ConfigPath)
	if err != nil {
		return failed(res, err)
	}
	resolution := resolver.New(p.Templates).Resolve(ctx, cls.Type, tgt.Raw)
	tgt.Effective = resolution.Effective
	tgt.Templates = p.Templates

	report := p.Validator.Validate(ctx, tgt, resolution.Findings)
	res.Report = report
	res.Outcome = reporter.OutcomeOf(report.Status())
	log.Debug().Str("status", string(report.Status())).Int("errors", report.Errors).Int("warnings", report.Warnings).Msg("validated")

	if p.Mode != ModeSync {
		return res
	}
	if p.Syncer == nil {
		return failed(res, fmt.Errorf("sync mode without a syncer"))
	}

	// A broken type chain is a store problem; point new references at the
	// base template instead of the one that failed to resolve.
	typeRef := p.Templates.TypeRef(cls.Type)
	if resolution.Degraded {
		typeRef = p.Templates.BaseRef()
		log.Warn().Str("type", string(cls.Type)).Msg("type template unusable; syncing against the base template")
	}
	in := syncer.Input{
		Repo:        t.Repo,
		WorkingCopy: wc,
		Plan: syncer.PlanInput{
			Name:      t.Name(),
			Type:      cls.Type,
			Raw:       tgt.Raw,
			Report:    report,
			Effective: resolution.Effective,
			TypeRef:   typeRef,
			Required:  p.Required,
		},
	}
	if tpl, err := p.Templates.Fetch(ctx, typeRef); err == nil {
		in.Plan.TypeTemplate = tpl.Body
	}

	job := p.Syncer.Sync(ctx, in)
	res.Sync = job
	if job.Status == syncer.StateFailed {
		res.Outcome = reporter.OutcomeFailed
		res.Error = "sync failed: " + job.Error
	}
	return res
}

func failed(res reporter.Result, err error) reporter.Result {
	res.Outcome = reporter.OutcomeFailed
	res.Error = err.Error()
	return res
}
