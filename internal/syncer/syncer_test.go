// SPDX-License-Identifier: AGPL-3.0-or-later

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/cfgsync/internal/classifier"
	"github.com/raibid-labs/cfgsync/internal/compliance"
	"github.com/raibid-labs/cfgsync/internal/compliance/finding"
	"github.com/raibid-labs/cfgsync/internal/config"
	"github.com/raibid-labs/cfgsync/internal/gitops"
	"github.com/raibid-labs/cfgsync/internal/hosting"
	"github.com/raibid-labs/cfgsync/internal/resolver"
	"github.com/raibid-labs/cfgsync/pkg/projectconfig"
)

const typeRef = "https://templates.example.com/templates/rust-service.json"

var fixedNow = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

type fakeHost struct {
	open      []*hosting.PullRequest // returned by successive FindOpenPR calls
	findCalls int
	createErr error
	created   []hosting.NewPullRequest
}

func (f *fakeHost) ListRepositories(context.Context, string) ([]hosting.Repository, error) {
	return nil, nil
}

func (f *fakeHost) FindOpenPR(context.Context, string, string, string) (*hosting.PullRequest, error) {
	defer func() { f.findCalls++ }()
	if f.findCalls < len(f.open) {
		return f.open[f.findCalls], nil
	}
	return nil, nil
}

func (f *fakeHost) CreatePR(_ context.Context, _ string, _ string, pr hosting.NewPullRequest) (*hosting.PullRequest, error) {
	f.created = append(f.created, pr)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &hosting.PullRequest{Number: 1, URL: "https://example.com/pr/1", Head: pr.Head}, nil
}

type fakeCopy struct {
	pushErr    error
	resets     int
	branches   []string
	checkedOut []string
	prContent  []byte // document on any checked out remote branch
	written    map[string][]byte
	pushed     []string
}

func (f *fakeCopy) ResetToDefault(context.Context) error { f.resets++; return nil }

func (f *fakeCopy) CreateBranch(_ context.Context, b string) error {
	f.branches = append(f.branches, b)
	return nil
}

func (f *fakeCopy) CheckoutRemoteBranch(_ context.Context, b string) error {
	f.checkedOut = append(f.checkedOut, b)
	return nil
}

func (f *fakeCopy) ReadFile(string) ([]byte, error) { return f.prContent, nil }

func (f *fakeCopy) CommitFile(_ context.Context, rel string, content []byte, _ string, _ gitops.Author) (string, error) {
	if f.written == nil {
		f.written = map[string][]byte{}
	}
	f.written[rel] = content
	return "deadbeef", nil
}

func (f *fakeCopy) Push(_ context.Context, b string) error {
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushed = append(f.pushed, b)
	return nil
}

func newSyncer(host hosting.Client, dryRun bool) *Syncer {
	cfg := config.Default()
	return New(Options{
		ConfigPath: projectconfig.DefaultPath,
		Sync:       cfg.Sync,
		DryRun:     dryRun,
		Now:        fixedNow,
	}, host)
}

func effectiveWith(servers map[string]any) *resolver.Effective {
	return &resolver.Effective{Values: map[string]any{"mcpServers": servers}}
}

func repo(name string) hosting.Repository {
	return hosting.Repository{Name: name, Owner: "acme", DefaultBranch: "main"}
}

func decode(t *testing.T, data []byte) map[string]any {
	t.Helper()
	var v map[string]any
	require.NoError(t, json.Unmarshal(data, &v))
	return v
}

func TestSync_ScenarioAlphaMaterializesConfig(t *testing.T) {
	host := &fakeHost{}
	wc := &fakeCopy{}
	tpl, err := projectconfig.Parse([]byte(`{"$schema": "https://schemas.example.com/p.json", "version": "1.0.0", "extends": "../base.json"}`))
	require.NoError(t, err)

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("alpha"),
		WorkingCopy: wc,
		Plan: PlanInput{
			Name:         "alpha",
			Type:         classifier.RustService,
			Report:       finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDConfigPresence, "missing")}),
			Effective:    effectiveWith(map[string]any{"github": map[string]any{}}),
			TypeRef:      typeRef,
			TypeTemplate: tpl,
			Required:     config.RequiredServer{Name: "github"},
		},
	})

	require.Empty(t, job.Error)
	assert.Equal(t, StatePRCreated, job.Status)
	assert.Equal(t, []State{StatePending, StatePatched, StateCommitted, StatePushed, StatePRCreated}, job.History)
	assert.Equal(t, "cfgsync/project-config-20260304T050607Z", job.Branch)
	assert.Equal(t, []string{job.Branch}, wc.branches)
	assert.Equal(t, []string{job.Branch}, wc.pushed)
	assert.Equal(t, 1, wc.resets)

	content := wc.written[projectconfig.DefaultPath]
	doc, err := projectconfig.Parse(content)
	require.NoError(t, err)
	assert.Equal(t, []string{"$schema", "version", "extends", "name", "description", "type", "language"}, doc.Keys())
	v := decode(t, content)
	assert.Equal(t, typeRef, v["extends"])
	assert.Equal(t, "alpha", v["name"])
	assert.Equal(t, "rust-service", v["type"])
	assert.Equal(t, map[string]any{"primary": "rust"}, v["language"])
	assert.Equal(t, "1.0.0", v["version"])

	require.Len(t, host.created, 1)
	assert.Equal(t, "main", host.created[0].Base)
	assert.Equal(t, job.Branch, host.created[0].Head)
	assert.Contains(t, host.created[0].Body, "- `extends`: `"+typeRef+"`")
	assert.Equal(t, 1, job.PR.Number)
}

func TestSync_ScenarioBetaPatchesOnlyExtends(t *testing.T) {
	host := &fakeHost{}
	wc := &fakeCopy{}
	raw := []byte(`{
  "name": "beta",
  "extends": "old-config",
  "custom": {"keep": [1, 2, 3]},
  "description": "Beta service"
}
`)

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("beta"),
		WorkingCopy: wc,
		Plan: PlanInput{
			Name:      "beta",
			Type:      classifier.Library,
			Raw:       raw,
			Report:    finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDExtends, "outside")}),
			Effective: effectiveWith(map[string]any{"github": map[string]any{}}),
			TypeRef:   typeRef,
		},
	})

	require.Equal(t, StatePRCreated, job.Status, job.Error)
	assert.Equal(t, []Change{{Field: "extends", Old: "old-config", New: typeRef}}, job.Changes)

	want := fmt.Sprintf(`{
  "name": "beta",
  "extends": %q,
  "custom": {
    "keep": [
      1,
      2,
      3
    ]
  },
  "description": "Beta service"
}
`, typeRef)
	assert.Equal(t, want, string(wc.written[projectconfig.DefaultPath]))
}

func TestSync_AddsRequiredServerKeepingOthers(t *testing.T) {
	wc := &fakeCopy{}
	raw := []byte(`{"extends": "` + typeRef + `", "mcpServers": {"slack": {"command": "slack-mcp"}}}`)

	job := newSyncer(&fakeHost{}, false).Sync(context.Background(), Input{
		Repo:        repo("gamma"),
		WorkingCopy: wc,
		Plan: PlanInput{
			Name:     "gamma",
			Type:     classifier.Library,
			Raw:      raw,
			Report:   finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDRequiredIntegration, "missing")}),
			TypeRef:  typeRef,
			Required: config.RequiredServer{Name: "github", Definition: map[string]any{"command": "github-mcp"}},
		},
	})

	require.Equal(t, StatePRCreated, job.Status, job.Error)
	doc, err := projectconfig.Parse(wc.written[projectconfig.DefaultPath])
	require.NoError(t, err)
	servers, ok := doc.Raw("mcpServers")
	require.True(t, ok)
	inner, err := projectconfig.Parse(servers)
	require.NoError(t, err)
	assert.Equal(t, []string{"slack", "github"}, inner.Keys())
	assert.Equal(t, typeRef, doc.Extends())
}

func TestSync_NothingAddressable(t *testing.T) {
	host := &fakeHost{}
	wc := &fakeCopy{}

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("delta"),
		WorkingCopy: wc,
		Plan: PlanInput{
			Name:   "delta",
			Raw:    []byte(`{"extends": "` + typeRef + `"}`),
			Report: finding.NewReport([]finding.Finding{finding.Warnf(compliance.IDRequiredFields, "name is missing")}),
		},
	})

	assert.Equal(t, StateNoChange, job.Status)
	assert.Equal(t, []State{StatePending, StateNoChange}, job.History)
	assert.Zero(t, host.findCalls)
	assert.Zero(t, wc.resets)
}

func TestSync_InvalidJSONIsLeftAlone(t *testing.T) {
	job := newSyncer(&fakeHost{}, false).Sync(context.Background(), Input{
		Repo:        repo("broken"),
		WorkingCopy: &fakeCopy{},
		Plan: PlanInput{
			Raw: []byte(`{"extends": `),
			Report: finding.NewReport([]finding.Finding{
				finding.Errorf(compliance.IDJSONValidity, "bad"),
				finding.Errorf(compliance.IDRequiredIntegration, "missing"),
			}),
		},
	})
	assert.Equal(t, StateNoChange, job.Status)
	assert.Contains(t, job.Note, "not valid JSON")
}

func TestSync_PushFailure(t *testing.T) {
	host := &fakeHost{}
	wc := &fakeCopy{pushErr: errors.New("remote rejected")}

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("alpha"),
		WorkingCopy: wc,
		Plan: PlanInput{
			Name:    "alpha",
			Type:    classifier.Library,
			Report:  finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDConfigPresence, "missing")}),
			TypeRef: typeRef,
		},
	})

	assert.Equal(t, StateFailed, job.Status)
	assert.Equal(t, []State{StatePending, StatePatched, StateCommitted, StateFailed}, job.History)
	assert.Contains(t, job.Error, "remote rejected")
	assert.Empty(t, host.created)
}

func missingConfigPlan() PlanInput {
	return PlanInput{
		Name:    "alpha",
		Type:    classifier.Library,
		Report:  finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDConfigPresence, "missing")}),
		TypeRef: typeRef,
	}
}

func TestSync_ReusesOpenPullRequest(t *testing.T) {
	existing := &hosting.PullRequest{Number: 9, URL: "https://example.com/pr/9", Head: "cfgsync/project-config-20250101T000000Z"}
	host := &fakeHost{open: []*hosting.PullRequest{existing}}
	plan, err := BuildPlan(missingConfigPlan())
	require.NoError(t, err)
	wc := &fakeCopy{prContent: plan.Content}

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("alpha"),
		WorkingCopy: wc,
		Plan:        missingConfigPlan(),
	})

	assert.Equal(t, StatePRCreated, job.Status)
	assert.True(t, job.Reused)
	assert.Equal(t, existing, job.PR)
	assert.Equal(t, existing.Head, job.Branch)
	assert.Equal(t, []string{existing.Head}, wc.checkedOut)
	assert.Empty(t, wc.written)
	assert.Empty(t, wc.pushed)
	assert.Empty(t, host.created)
}

func TestSync_UpdatesStaleOpenPullRequest(t *testing.T) {
	existing := &hosting.PullRequest{Number: 9, URL: "https://example.com/pr/9", Head: "cfgsync/project-config-20250101T000000Z"}
	host := &fakeHost{open: []*hosting.PullRequest{existing}}
	wc := &fakeCopy{prContent: []byte(`{"extends": "` + typeRef + `"}` + "\n")}

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("alpha"),
		WorkingCopy: wc,
		Plan:        missingConfigPlan(),
	})

	plan, err := BuildPlan(missingConfigPlan())
	require.NoError(t, err)
	assert.Equal(t, StatePRCreated, job.Status, job.Error)
	assert.True(t, job.Reused)
	assert.Equal(t, existing.Head, job.Branch)
	assert.Equal(t, plan.Content, wc.written[projectconfig.DefaultPath])
	assert.Equal(t, []string{existing.Head}, wc.pushed)
	assert.Empty(t, wc.branches, "no new branch")
	assert.Empty(t, host.created, "no new pull request")
	assert.Equal(t, []State{StatePending, StatePatched, StateCommitted, StatePushed, StatePRCreated}, job.History)
	assert.Contains(t, job.Note, "#9")
}

func TestSync_CreateRaceReusesExisting(t *testing.T) {
	existing := &hosting.PullRequest{Number: 4, Head: "cfgsync/project-config-x"}
	host := &fakeHost{
		open:      []*hosting.PullRequest{nil, existing},
		createErr: fmt.Errorf("wrapped: %w", hosting.ErrPRExists),
	}

	job := newSyncer(host, false).Sync(context.Background(), Input{
		Repo:        repo("alpha"),
		WorkingCopy: &fakeCopy{},
		Plan: PlanInput{
			Name:    "alpha",
			Type:    classifier.Library,
			Report:  finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDConfigPresence, "missing")}),
			TypeRef: typeRef,
		},
	})

	assert.Equal(t, StatePRCreated, job.Status, job.Error)
	assert.True(t, job.Reused)
	assert.Equal(t, 4, job.PR.Number)
	assert.Equal(t, StatePushed, job.History[len(job.History)-2])
}

func TestSync_DryRunWritesNothing(t *testing.T) {
	job := newSyncer(nil, true).Sync(context.Background(), Input{
		Repo: repo("alpha"),
		Plan: PlanInput{
			Name:    "alpha",
			Type:    classifier.Docs,
			Report:  finding.NewReport([]finding.Finding{finding.Errorf(compliance.IDConfigPresence, "missing")}),
			TypeRef: typeRef,
		},
	})

	assert.Equal(t, StateDryRun, job.Status)
	assert.Equal(t, []State{StatePending, StatePatched, StateDryRun}, job.History)
	assert.NotEmpty(t, job.Changes)
	assert.Nil(t, job.PR)
	assert.Contains(t, job.Note, "cfgsync/project-config-20260304T050607Z")
}

func TestJob_Transitions(t *testing.T) {
	j := newJob("x", fixedNow())
	assert.Error(t, j.advance(StateCommitted))
	require.NoError(t, j.advance(StatePatched))
	require.NoError(t, j.advance(StateDryRun))
	assert.Error(t, j.advance(StateFailed))
	assert.True(t, j.Status.Terminal())
}

func TestRenderBody(t *testing.T) {
	body := renderBody("Fixes:\n{{changes}}\nbye", []Change{
		{Field: "extends", Old: "a", New: "b"},
		{Field: "mcpServers.github", New: "added"},
	})
	assert.Equal(t, "Fixes:\n- `extends`: `a` -> `b`\n- `mcpServers.github`: `added`\nbye", body)
}
