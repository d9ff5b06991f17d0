// Package scanner lists the files git tracks in a repository working copy.
package scanner

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// Scanner provides access to a working copy's tracked files.
type Scanner struct {
	repoRoot string

	mu           sync.Mutex
	trackedCache []string
}

// New creates a new Scanner for the given working copy.
func New(repoRoot string) *Scanner {
	return &Scanner{
		repoRoot: repoRoot,
	}
}

// Root returns the working copy directory.
func (s *Scanner) Root() string { return s.repoRoot }

// IsWorkingCopy reports whether the root is inside a git work tree.
func (s *Scanner) IsWorkingCopy(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "git", "rev-parse", "--is-inside-work-tree")
	cmd.Dir = s.repoRoot
	out, err := cmd.Output()
	return err == nil && strings.TrimSpace(string(out)) == "true"
}

// TrackedFiles returns all files tracked by git, caching the result for the instance lifetime.
// It respects .gitignore implicitly by asking git.
func (s *Scanner) TrackedFiles(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.trackedCache != nil {
		return s.trackedCache, nil
	}

	// -z avoids quoting of unusual file names.
	cmd := exec.CommandContext(ctx, "git", "ls-files", "-z")
	cmd.Dir = s.repoRoot
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git ls-files failed: %w", err)
	}

	if len(out) == 0 {
		s.trackedCache = []string{}
		return s.trackedCache, nil
	}

	files := strings.Split(strings.TrimSuffix(string(out), "\x00"), "\x00")
	s.trackedCache = files
	return s.trackedCache, nil
}

// TrackedFilesFiltered returns tracked files matching the filter options.
func (s *Scanner) TrackedFilesFiltered(ctx context.Context, opts FilterOptions) ([]string, error) {
	all, err := s.TrackedFiles(ctx)
	if err != nil {
		return nil, err
	}
	return FilterFiles(all, opts), nil
}

// TrackedMatching returns tracked files outside the default excluded
// directories that match any of patterns.
func (s *Scanner) TrackedMatching(ctx context.Context, patterns []string) ([]string, error) {
	if len(patterns) == 0 {
		return nil, nil
	}
	return s.TrackedFilesFiltered(ctx, FilterOptions{
		ExcludeDirs: DefaultExcludeDirs(),
		Patterns:    patterns,
	})
}
