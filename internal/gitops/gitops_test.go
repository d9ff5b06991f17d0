// SPDX-License-Identifier: AGPL-3.0-or-later

package gitops

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raibid-labs/cfgsync/internal/testutil/fixture"
)

// remote creates a bare repository seeded from a hygienic working copy.
func remote(t *testing.T, name string) string {
	t.Helper()
	return fixture.Remote(t, name, nil)
}

func TestWorkspace_AcquireClonesAndLeases(t *testing.T) {
	ctx := context.Background()
	bare := remote(t, "alpha")
	ws := NewWorkspace(filepath.Join(t.TempDir(), "ws"), nil)

	repo, release, err := ws.Acquire(ctx, "alpha", bare, "main")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(repo.Dir, "README.md"))
	assert.Equal(t, ws.Path("alpha"), repo.Dir)

	_, _, err = ws.Acquire(ctx, "alpha", bare, "main")
	assert.True(t, errors.Is(err, ErrLeased))

	release()
	_, release2, err := ws.Acquire(ctx, "alpha", bare, "main")
	require.NoError(t, err)
	release2()
}

func TestWorkspace_RefreshDiscardsLocalChanges(t *testing.T) {
	ctx := context.Background()
	bare := remote(t, "beta")
	ws := NewWorkspace(filepath.Join(t.TempDir(), "ws"), nil)

	repo, release, err := ws.Acquire(ctx, "beta", bare, "")
	require.NoError(t, err)
	assert.Equal(t, "main", repo.DefaultBranch)

	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir, "README.md"), []byte("dirty"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(repo.Dir, "stray.txt"), []byte("x"), 0o644))
	require.NoError(t, repo.CreateBranch(ctx, "feature"))
	release()

	repo, release, err = ws.Acquire(ctx, "beta", bare, "main")
	require.NoError(t, err)
	defer release()

	data, err := os.ReadFile(filepath.Join(repo.Dir, "README.md"))
	require.NoError(t, err)
	assert.Equal(t, "# beta\n", string(data))
	assert.NoFileExists(t, filepath.Join(repo.Dir, "stray.txt"))
	branch, err := repo.CurrentBranch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "main", branch)
}

func TestRepo_CommitAndPushBranch(t *testing.T) {
	ctx := context.Background()
	bare := remote(t, "gamma")
	ws := NewWorkspace(filepath.Join(t.TempDir(), "ws"), nil)

	repo, release, err := ws.Acquire(ctx, "gamma", bare, "main")
	require.NoError(t, err)
	defer release()

	require.NoError(t, repo.CreateBranch(ctx, "cfgsync/project-config-20260101T000000Z"))
	sha, err := repo.CommitFile(ctx, ".claude/project.json", []byte("{}\n"), "chore: sync", Author{Name: "Bot", Email: "bot@example.com"})
	require.NoError(t, err)
	assert.Len(t, sha, 40)

	author, err := repo.Git(ctx, "log", "-1", "--format=%an <%ae>")
	require.NoError(t, err)
	assert.Equal(t, "Bot <bot@example.com>", author)

	require.NoError(t, repo.Push(ctx, "cfgsync/project-config-20260101T000000Z"))
	remoteSHA := fixture.Git(t, bare, "rev-parse", "refs/heads/cfgsync/project-config-20260101T000000Z")
	assert.Equal(t, sha+"\n", remoteSHA)
}

func TestRepo_CheckoutRemoteBranch(t *testing.T) {
	ctx := context.Background()
	bare := remote(t, "delta")
	branch := "cfgsync/project-config-20260101T000000Z"
	author := Author{Name: "Bot", Email: "bot@example.com"}

	first, release, err := NewWorkspace(filepath.Join(t.TempDir(), "ws"), nil).Acquire(ctx, "delta", bare, "main")
	require.NoError(t, err)
	require.NoError(t, first.CreateBranch(ctx, branch))
	_, err = first.CommitFile(ctx, ".claude/project.json", []byte("{\"a\": 1}\n"), "chore: sync", author)
	require.NoError(t, err)
	require.NoError(t, first.Push(ctx, branch))
	release()

	second, release, err := NewWorkspace(filepath.Join(t.TempDir(), "ws"), nil).Acquire(ctx, "delta", bare, "main")
	require.NoError(t, err)
	defer release()

	missing, err := second.ReadFile(".claude/project.json")
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, second.CheckoutRemoteBranch(ctx, branch))
	data, err := second.ReadFile(".claude/project.json")
	require.NoError(t, err)
	assert.Equal(t, "{\"a\": 1}\n", string(data))

	sha, err := second.CommitFile(ctx, ".claude/project.json", []byte("{\"a\": 2}\n"), "chore: sync", author)
	require.NoError(t, err)
	require.NoError(t, second.Push(ctx, branch))
	assert.Equal(t, sha+"\n", fixture.Git(t, bare, "rev-parse", "refs/heads/"+branch))

	assert.Error(t, second.CheckoutRemoteBranch(ctx, "main"))
}

func TestRepo_RefusesDefaultBranch(t *testing.T) {
	repo := Open(t.TempDir(), "main", nil)
	assert.Error(t, repo.Push(context.Background(), "main"))
	assert.Error(t, repo.CreateBranch(context.Background(), "main"))
}

type failingRunner struct{}

func (failingRunner) Run(context.Context, string, []string, RunOpts) (CmdResult, error) {
	return CmdResult{Stderr: "fatal: unable to access remote", ExitCode: 128}, nil
}

func TestWorkspace_CloneFailureReleasesLease(t *testing.T) {
	ws := NewWorkspace(t.TempDir(), failingRunner{})

	_, _, err := ws.Acquire(context.Background(), "delta", "https://example.invalid/delta.git", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unable to access remote")

	_, _, err = ws.Acquire(context.Background(), "delta", "https://example.invalid/delta.git", "main")
	assert.False(t, errors.Is(err, ErrLeased))
}
