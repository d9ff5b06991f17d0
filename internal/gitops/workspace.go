// SPDX-License-Identifier: AGPL-3.0-or-later

package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/raibid-labs/cfgsync/internal/logging"
)

// ErrLeased is returned when a working copy is already in use by another task.
var ErrLeased = errors.New("working copy already leased")

// Workspace holds one working copy per repository under a root directory.
type Workspace struct {
	root   string
	runner CommandRunner

	mu     sync.Mutex
	leased map[string]bool
}

// NewWorkspace returns a workspace rooted at root.
func NewWorkspace(root string, runner CommandRunner) *Workspace {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Workspace{root: root, runner: runner, leased: make(map[string]bool)}
}

// Path returns the working copy directory for name.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.root, name)
}

// Acquire leases the working copy of name, cloning it from cloneURL when absent
// or refreshing it to origin's default branch otherwise. The returned release
// must be called once the task is done with the working copy.
func (w *Workspace) Acquire(ctx context.Context, name, cloneURL, defaultBranch string) (*Repo, func(), error) {
	w.mu.Lock()
	if w.leased[name] {
		w.mu.Unlock()
		return nil, nil, fmt.Errorf("%s: %w", name, ErrLeased)
	}
	w.leased[name] = true
	w.mu.Unlock()

	release := func() {
		w.mu.Lock()
		delete(w.leased, name)
		w.mu.Unlock()
	}

	repo, err := w.prepare(ctx, name, cloneURL, defaultBranch)
	if err != nil {
		release()
		return nil, nil, err
	}
	return repo, release, nil
}

func (w *Workspace) prepare(ctx context.Context, name, cloneURL, defaultBranch string) (*Repo, error) {
	dir := w.Path(name)
	log := logging.Component(ctx, "gitops")

	if _, err := os.Stat(filepath.Join(dir, ".git")); errors.Is(err, os.ErrNotExist) {
		if err := os.MkdirAll(w.root, 0o755); err != nil {
			return nil, fmt.Errorf("creating workspace: %w", err)
		}
		_ = os.RemoveAll(dir)
		log.Debug().Str("url", cloneURL).Msg("cloning")
		args := []string{"clone", "--quiet"}
		if defaultBranch != "" {
			args = append(args, "--branch", defaultBranch)
		}
		if _, err := git(ctx, w.runner, w.root, append(args, cloneURL, dir)...); err != nil {
			return nil, err
		}
	} else {
		log.Debug().Msg("refreshing working copy")
		if _, err := git(ctx, w.runner, dir, "fetch", "--quiet", "--prune", "origin"); err != nil {
			return nil, err
		}
	}

	repo := Open(dir, defaultBranch, w.runner)
	if repo.DefaultBranch == "" {
		head, err := repo.Git(ctx, "symbolic-ref", "--short", "refs/remotes/origin/HEAD")
		if err != nil {
			return nil, fmt.Errorf("detecting default branch: %w", err)
		}
		repo.DefaultBranch = strings.TrimPrefix(head, "origin/")
	}
	if err := repo.ResetToDefault(ctx); err != nil {
		return nil, err
	}
	return repo, nil
}
