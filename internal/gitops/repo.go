// SPDX-License-Identifier: AGPL-3.0-or-later

// Package gitops manages repository working copies and the git operations a sync performs.
package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Author identifies the committer of sync commits.
type Author struct {
	Name  string
	Email string
}

// Repo is a git working copy.
type Repo struct {
	Dir           string
	DefaultBranch string

	runner CommandRunner
}

// Open wraps an existing working copy.
func Open(dir, defaultBranch string, runner CommandRunner) *Repo {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Repo{Dir: dir, DefaultBranch: defaultBranch, runner: runner}
}

// Git runs git in the working copy and returns trimmed stdout.
func (r *Repo) Git(ctx context.Context, args ...string) (string, error) {
	return git(ctx, r.runner, r.Dir, args...)
}

func git(ctx context.Context, runner CommandRunner, dir string, args ...string) (string, error) {
	res, err := runner.Run(ctx, "git", args, RunOpts{Dir: dir, Env: map[string]string{"GIT_TERMINAL_PROMPT": "0"}})
	if err != nil {
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	if res.ExitCode != 0 {
		return "", fmt.Errorf("git %s: exit %d: %s", args[0], res.ExitCode, strings.TrimSpace(res.Stderr))
	}
	return strings.TrimSpace(res.Stdout), nil
}

// HasRemote reports whether origin is configured.
func (r *Repo) HasRemote(ctx context.Context) bool {
	out, err := r.Git(ctx, "remote")
	if err != nil {
		return false
	}
	for _, name := range strings.Fields(out) {
		if name == "origin" {
			return true
		}
	}
	return false
}

// ResetToDefault checks out the default branch and discards local changes,
// matching origin when a remote exists.
func (r *Repo) ResetToDefault(ctx context.Context) error {
	target := "HEAD"
	if r.HasRemote(ctx) {
		target = "origin/" + r.DefaultBranch
		if _, err := r.Git(ctx, "checkout", "--quiet", "-B", r.DefaultBranch, target); err != nil {
			return err
		}
	} else if _, err := r.Git(ctx, "checkout", "--quiet", r.DefaultBranch); err != nil {
		return err
	}
	if _, err := r.Git(ctx, "reset", "--quiet", "--hard", target); err != nil {
		return err
	}
	_, err := r.Git(ctx, "clean", "--quiet", "-fd")
	return err
}

// CreateBranch creates and checks out branch from the current HEAD.
func (r *Repo) CreateBranch(ctx context.Context, branch string) error {
	if branch == r.DefaultBranch {
		return fmt.Errorf("refusing to create branch named after default branch %q", branch)
	}
	_, err := r.Git(ctx, "checkout", "--quiet", "-b", branch)
	return err
}

// CheckoutRemoteBranch fetches branch from origin and checks it out at the
// fetched commit, replacing any local branch of the same name.
func (r *Repo) CheckoutRemoteBranch(ctx context.Context, branch string) error {
	if branch == r.DefaultBranch {
		return fmt.Errorf("refusing to check out default branch %q for a sync", branch)
	}
	if _, err := r.Git(ctx, "fetch", "--quiet", "origin", branch); err != nil {
		return err
	}
	_, err := r.Git(ctx, "checkout", "--quiet", "-B", branch, "FETCH_HEAD")
	return err
}

// ReadFile returns the content of rel in the working tree, nil when absent.
func (r *Repo) ReadFile(rel string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(r.Dir, filepath.FromSlash(rel)))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// CurrentBranch returns the checked out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	return r.Git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
}

// CommitFile writes content to rel, stages it and commits it as author.
// It returns the new commit SHA.
func (r *Repo) CommitFile(ctx context.Context, rel string, content []byte, message string, author Author) (string, error) {
	p := filepath.Join(r.Dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(p, content, 0o644); err != nil {
		return "", err
	}
	if _, err := r.Git(ctx, "add", "--", rel); err != nil {
		return "", err
	}
	if _, err := r.Git(ctx,
		"-c", "user.name="+author.Name,
		"-c", "user.email="+author.Email,
		"commit", "--quiet", "--no-verify", "-m", message,
	); err != nil {
		return "", err
	}
	return r.Git(ctx, "rev-parse", "HEAD")
}

// Push publishes branch to origin. The default branch is never pushed.
func (r *Repo) Push(ctx context.Context, branch string) error {
	if branch == r.DefaultBranch {
		return fmt.Errorf("refusing to push default branch %q", branch)
	}
	_, err := r.Git(ctx, "push", "--quiet", "--set-upstream", "origin", branch)
	return err
}
