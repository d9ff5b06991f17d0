// SPDX-License-Identifier: AGPL-3.0-or-later

package runner

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/raibid-labs/cfgsync/internal/hosting"
)

// Mode selects how far the pipeline goes for each repository.
type Mode string

const (
	ModeClassify Mode = "classify"
	ModeValidate Mode = "validate"
	ModeSync     Mode = "sync"
)

// Target is one repository of the worklist.
type Target struct {
	Repo hosting.Repository
	// Dir is set for local working copies; the workspace is not used for them.
	Dir string
}

// Name returns the repository name.
func (t Target) Name() string { return t.Repo.Name }

// LocalTarget builds a target for an existing working copy.
func LocalTarget(dir string) (Target, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Target{}, fmt.Errorf("resolving %s: %w", dir, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Target{}, fmt.Errorf("working copy %s: %w", dir, err)
	}
	if !info.IsDir() {
		return Target{}, fmt.Errorf("working copy %s is not a directory", dir)
	}
	return Target{Repo: hosting.Repository{Name: filepath.Base(abs)}, Dir: abs}, nil
}
