// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/raibid-labs/cfgsync/cmd/cfgsync/internal/clierr"
	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/gitops"
	"github.com/raibid-labs/cfgsync/internal/history"
	"github.com/raibid-labs/cfgsync/internal/hosting"
	"github.com/raibid-labs/cfgsync/internal/metrics"
	"github.com/raibid-labs/cfgsync/internal/projection"
	"github.com/raibid-labs/cfgsync/internal/repofilter"
	"github.com/raibid-labs/cfgsync/internal/reporter"
	"github.com/raibid-labs/cfgsync/internal/runner"
	"github.com/raibid-labs/cfgsync/internal/syncer"
	"github.com/raibid-labs/cfgsync/internal/templates"
)

// pipelineOptions are the flags shared by classify, validate and sync.
type pipelineOptions struct {
	org         string
	templates   string
	paths       []string
	include     []string
	exclude     []string
	output      string
	strict      bool
	dryRun      bool
	workers     int
	timeout     time.Duration
	resume      bool
	reportFile  string
	metricsFile string
}

func addPipelineFlags(cmd *cobra.Command, o *pipelineOptions, mode runner.Mode) {
	f := cmd.Flags()
	f.StringVar(&o.org, "org", "", "organization to enumerate (overrides org)")
	f.StringVar(&o.templates, "templates", "", "template store location (overrides templates.store)")
	f.StringSliceVar(&o.paths, "path", nil, "process local working copies instead of the organization (repeatable)")
	f.StringSliceVar(&o.include, "include", nil, "only repositories matching these globs (overrides include)")
	f.StringSliceVar(&o.exclude, "exclude", nil, "skip repositories matching these globs (overrides exclude)")
	f.StringVarP(&o.output, "output", "o", string(reporter.FormatText), "report format: text, json or markdown")
	f.IntVar(&o.workers, "workers", 0, "concurrent repositories (overrides workers)")
	f.DurationVar(&o.timeout, "timeout", 0, "stop starting repositories after this long (0 = no limit)")
	f.BoolVar(&o.resume, "resume", false, "only process repositories that failed or were non-compliant in the last run")
	f.StringVar(&o.reportFile, "report-file", "", "also write the JSON report to this file")
	f.StringVar(&o.metricsFile, "metrics-file", "", "write a node_exporter textfile with run metrics")
	f.BoolVar(&o.strict, "strict", false, "exit 1 when warnings are found")
	if mode == runner.ModeSync {
		f.BoolVar(&o.dryRun, "dry-run", false, "report intended changes without pushing or opening pull requests")
	} else {
		f.BoolVar(&o.dryRun, "dry-run", false, "no effect: "+string(mode)+" never modifies repositories")
	}
}

// apply overrides cfg with the flags the user set.
func (o *pipelineOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if o.org != "" {
		cfg.Org = o.org
	}
	if o.templates != "" {
		cfg.Templates.Store = o.templates
	}
	if f.Changed("include") {
		cfg.Include = o.include
	}
	if f.Changed("exclude") {
		cfg.Exclude = o.exclude
	}
	if o.workers > 0 {
		cfg.Workers = o.workers
	}
}

func runPipeline(cmd *cobra.Command, g *globalOptions, o *pipelineOptions, mode runner.Mode) error {
	cfg, ctx, err := g.load(cmd)
	if err != nil {
		return err
	}
	o.apply(cmd, cfg)
	if err := validate(cfg); err != nil {
		return err
	}
	format, err := reporter.ParseFormat(o.output)
	if err != nil {
		return clierr.CannotStart(err)
	}
	log := zerolog.Ctx(ctx)

	local := len(o.paths) > 0
	if mode == runner.ModeSync && local && !o.dryRun {
		return clierr.New(clierr.ExitCannotStart, "sync with --path needs --dry-run: local working copies have no hosting remote")
	}

	filter, err := repofilter.New(cfg.Include, cfg.Exclude)
	if err != nil {
		return clierr.CannotStart(err)
	}

	var (
		host    hosting.Client
		targets []runner.Target
	)
	if local {
		for _, p := range o.paths {
			t, err := runner.LocalTarget(p)
			if err != nil {
				return clierr.CannotStart(err)
			}
			targets = append(targets, t)
		}
	} else {
		host, targets, err = discover(ctx, cfg, mode, o.dryRun)
		if err != nil {
			return err
		}
	}
	targets = repofilter.Select(filter, targets, runner.Target.Name)

	p := &runner.Pipeline{
		Mode:       mode,
		ConfigPath: cfg.ConfigPath,
		Classifier: classifier.NewDefault(cfg.Templates.MLPrefixes),
		Required:   cfg.Compliance.RequiredServer,
	}
	if !local {
		p.Workspace = gitops.NewWorkspace(cfg.WorkspaceDir, nil)
	}
	if mode != runner.ModeClassify {
		store, err := openTemplates(ctx, cfg)
		if err != nil {
			return err
		}
		p.Templates = store
		p.Validator = compliance.NewValidator(compliance.Registry(cfg.Compliance))
	}
	if mode == runner.ModeSync {
		p.Syncer = syncer.New(syncer.Options{ConfigPath: cfg.ConfigPath, Sync: cfg.Sync, DryRun: o.dryRun}, host)
	}

	var m *metrics.Metrics
	if o.metricsFile != "" {
		m = metrics.New()
	}
	r := runner.NewRunner(p, runner.NewStateStore(cfg.StateDir), runner.Options{
		Mode:    mode,
		Workers: cfg.Workers,
		Strict:  o.strict,
		DryRun:  o.dryRun,
		Metrics: m,
	})

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	var summary *reporter.Summary
	if o.resume {
		summary, err = r.Resume(ctx, targets)
	} else {
		summary, err = r.Run(ctx, targets)
	}
	if summary == nil {
		return clierr.CannotStart(err)
	}
	if err != nil {
		log.Warn().Err(err).Msg("run state not fully persisted")
	}

	if err := reporter.Render(cmd.OutOrStdout(), format, summary); err != nil {
		return fmt.Errorf("rendering report: %w", err)
	}
	persist(context.WithoutCancel(ctx), cfg, o, summary, m)
	return exitFor(summary)
}

// discover lists the organization's repositories through the hosting API.
func discover(ctx context.Context, cfg *config.Config, mode runner.Mode, dryRun bool) (hosting.Client, []runner.Target, error) {
	if cfg.Org == "" {
		return nil, nil, clierr.New(clierr.ExitCannotStart, "no organization configured: set org or pass --org or --path")
	}
	token := cfg.Token()
	if token == "" && mode == runner.ModeSync && !dryRun {
		return nil, nil, clierr.New(clierr.ExitCannotStart, "sync needs a GitHub token in GITHUB_TOKEN or GH_TOKEN")
	}
	gh, err := hosting.NewGitHub(ctx, hosting.Options{Token: token, BaseURL: cfg.GitHub.BaseURL})
	if err != nil {
		return nil, nil, clierr.CannotStart(err)
	}
	repos, err := gh.ListRepositories(ctx, cfg.Org)
	if err != nil {
		return nil, nil, clierr.Wrap(clierr.ExitCannotStart, "hosting API unreachable", err)
	}
	targets := make([]runner.Target, 0, len(repos))
	for _, repo := range repos {
		targets = append(targets, runner.Target{Repo: repo})
	}
	zerolog.Ctx(ctx).Debug().Int("repositories", len(targets)).Str("org", cfg.Org).Msg("discovered repositories")
	return gh, targets, nil
}

// openTemplates builds the template store and checks the base template is reachable.
func openTemplates(ctx context.Context, cfg *config.Config) (*templates.Store, error) {
	store, err := templates.New(templates.Options{
		Root:  cfg.Templates.Store,
		Base:  cfg.Templates.Base,
		Types: cfg.Templates.Types,
	})
	if err != nil {
		return nil, clierr.CannotStart(err)
	}
	if _, err := store.Fetch(ctx, store.BaseRef()); err != nil {
		return nil, clierr.Wrap(clierr.ExitCannotStart, "base template unreachable", err)
	}
	return store, nil
}

// persist writes the optional report file, metrics textfile and history
// record. Failures are logged; they never change the exit code.
func persist(ctx context.Context, cfg *config.Config, o *pipelineOptions, summary *reporter.Summary, m *metrics.Metrics) {
	log := zerolog.Ctx(ctx)
	if o.reportFile != "" {
		data, err := reporter.Marshal(summary)
		if err == nil {
			err = projection.AtomicWrite(o.reportFile, data)
		}
		if err != nil {
			log.Error().Err(err).Str("path", o.reportFile).Msg("writing report file")
		}
	}
	if o.metricsFile != "" {
		if err := m.WriteTextfile(o.metricsFile); err != nil {
			log.Error().Err(err).Str("path", o.metricsFile).Msg("writing metrics textfile")
		}
	}
	if cfg.History.Enabled {
		if err := recordHistory(ctx, cfg.History.Path, summary); err != nil {
			log.Error().Err(err).Msg("recording run history")
		}
	}
}

func recordHistory(ctx context.Context, path string, summary *reporter.Summary) error {
	db, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	return errors.Join(db.RecordRun(ctx, summary), db.Close())
}

// exitFor maps the summary to the command's error.
func exitFor(s *reporter.Summary) error {
	if s.ExitCode == 0 {
		return nil
	}
	c := s.Counters
	if s.ExitCode == clierr.ExitWarnings {
		return clierr.Newf(s.ExitCode, "%d repositories have warnings (strict mode)", c.Warnings)
	}
	return clierr.Newf(s.ExitCode, "%d non-compliant, %d failed, %d skipped", c.NonCompliant, c.Failed, c.Skipped)
}
